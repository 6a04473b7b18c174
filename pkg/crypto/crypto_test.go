package crypto

import (
	"encoding/hex"
	"testing"

	"gotest.tools/v3/assert"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	assert.NilError(t, err)
	return b
}

// Vectors from RFC 4493 section 4.
func TestCMACVectors(t *testing.T) {
	key := mustHex(t, "2b7e151628aed2a6abf7158809cf4f3c")
	msg := mustHex(t, "6bc1bee22e409f96e93d7e117393172a"+
		"ae2d8a571e03ac9c9eb76fac45af8e51"+
		"30c81c46a35ce411e5fbc1191a0a52ef"+
		"f69f2445df4f9b17ad2b417be66c3710")

	tests := []struct {
		n    int
		want string
	}{
		{0, "bb1d6929e95937287fa37d129b756746"},
		{16, "070a16b46b4d4144f79bdd9dd04a287c"},
		{40, "dfa66747de9ae63030ca32611497c827"},
		{64, "51f0bebf7e3b9d92fc49741779363cfe"},
	}
	for _, tc := range tests {
		tag, err := CMAC(key, msg[:tc.n])
		assert.NilError(t, err)
		assert.Equal(t, hex.EncodeToString(tag[:]), tc.want, "len %d", tc.n)
	}
}

func TestCMACBadKey(t *testing.T) {
	_, err := CMAC(make([]byte, 15), nil)
	assert.ErrorContains(t, err, "key must be 16 bytes")
}

func TestSavegameMACDeterministic(t *testing.T) {
	key := mustHex(t, "000102030405060708090a0b0c0d0e0f")
	hash := Sum256([]byte("slot"))

	a, err := SavegameMAC(key, 0x0004000000123400, hash)
	assert.NilError(t, err)
	b, err := SavegameMAC(key, 0x0004000000123400, hash)
	assert.NilError(t, err)
	assert.Equal(t, a, b)

	c, err := SavegameMAC(key, 0x0004000000123500, hash)
	assert.NilError(t, err)
	assert.Assert(t, a != c, "title ID must feed the MAC")
}
