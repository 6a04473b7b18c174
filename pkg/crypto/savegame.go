package crypto

import "encoding/binary"

const (
	savegameMagic = "CTR-SAV0"
	signMagic     = "CTR-SIGN"
)

// SavegameMAC derives the CMAC the console stores in an AGB save header
// from the slot hash:
//
//	AES-CMAC(key, SHA256("CTR-SIGN" || titleID || SHA256("CTR-SAV0" || hash)))
//
// titleID is serialized little-endian, as it is stored in the header.
func SavegameMAC(key []byte, titleID uint64, hash [32]byte) ([16]byte, error) {
	h := NewSHA256()
	h.Absorb([]byte(savegameMagic))
	h.Absorb(hash[:])
	inner := h.Finish()

	var tid [8]byte
	binary.LittleEndian.PutUint64(tid[:], titleID)

	h.Reset()
	h.Absorb([]byte(signMagic))
	h.Absorb(tid[:])
	h.Absorb(inner[:])
	outer := h.Finish()

	return CMAC(key, outer[:])
}
