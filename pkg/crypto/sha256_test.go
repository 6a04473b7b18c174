package crypto

import (
	"encoding/hex"
	"testing"

	"gotest.tools/v3/assert"
)

func TestSHA256KnownAnswers(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{"abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
	}
	for _, tc := range tests {
		got := Sum256([]byte(tc.in))
		assert.Equal(t, hex.EncodeToString(got[:]), tc.want, "input %q", tc.in)
	}
}

func TestSHA256ChunkedMatchesOneShot(t *testing.T) {
	// Lengths around the 64-byte block and 56-byte padding boundaries.
	for _, n := range []int{0, 1, 55, 56, 63, 64, 65, 119, 120, 1000, 0x1000 + 7} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i*7 + 3)
		}
		want := Sum256(data)

		for _, chunk := range []int{1, 3, 17, 64} {
			h := NewSHA256()
			for off := 0; off < len(data); off += chunk {
				end := min(off+chunk, len(data))
				h.Absorb(data[off:end])
			}
			assert.Equal(t, h.Finish(), want, "len %d chunk %d", n, chunk)
		}
	}
}

func TestSHA256Reset(t *testing.T) {
	h := NewSHA256()
	h.Absorb([]byte("garbage"))
	_ = h.Finish()
	h.Reset()
	h.Absorb([]byte("abc"))
	got := h.Finish()
	assert.Equal(t, hex.EncodeToString(got[:]), "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad")
}
