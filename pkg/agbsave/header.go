// Package agbsave reads and writes the secure save container used by GBA
// Virtual Console titles.
//
// A container holds two header+payload slots back to back. Each header
// carries a generation counter and a CMAC over its slot; the slot with
// a valid CMAC and the newer generation is authoritative, and writes
// always go to the other slot so one good copy survives an interrupted
// write.
//
// See http://3dbrew.org/wiki/3DS_Virtual_Console#Footer
package agbsave

import (
	"encoding/binary"
	"fmt"
)

const (
	HeaderSize = 0x200
	Magic      = ".SAV"

	// hashStart is where the slot hash begins, relative to the slot's
	// header: everything from contentId onward, skipping magic, pad1, the
	// cmac itself and pad2. Fixed by the console firmware.
	hashStart = 0x30

	// Field offsets inside a header.
	offMagic      = 0x000
	offPad1       = 0x004
	offCMAC       = 0x010
	offPad2       = 0x020
	offContentID  = 0x030
	offGeneration = 0x034
	offTitleID    = 0x038
	offSDCID      = 0x040
	offSaveOffset = 0x050
	offSaveSize   = 0x054
	offPad3       = 0x058
	offRegisters  = 0x060
	offPad4       = 0x068
)

// RegisterSnapshot is the opaque 8-byte device register value stored with
// a save. It is carried through untouched.
type RegisterSnapshot [8]byte

// Header is one decoded 0x200-byte slot header.
type Header struct {
	Magic            [4]byte
	Pad1             [12]byte
	CMAC             [16]byte
	Pad2             [16]byte
	ContentID        uint32 // always 1
	Generation       uint32 // saves made; the newer slot has the successor value
	TitleID          uint64
	SDCID            [16]byte
	SaveOffset       uint32 // always 0x200
	SaveSize         uint32
	Pad3             [8]byte
	RegisterSnapshot RegisterSnapshot
	Pad4             [0x198]byte
}

// ParseHeader decodes a header from the first HeaderSize bytes of buf.
func ParseHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("header too short: %d bytes", len(buf))
	}
	h := &Header{
		ContentID:  binary.LittleEndian.Uint32(buf[offContentID:]),
		Generation: binary.LittleEndian.Uint32(buf[offGeneration:]),
		TitleID:    binary.LittleEndian.Uint64(buf[offTitleID:]),
		SaveOffset: binary.LittleEndian.Uint32(buf[offSaveOffset:]),
		SaveSize:   binary.LittleEndian.Uint32(buf[offSaveSize:]),
	}
	copy(h.Magic[:], buf[offMagic:offPad1])
	copy(h.Pad1[:], buf[offPad1:offCMAC])
	copy(h.CMAC[:], buf[offCMAC:offPad2])
	copy(h.Pad2[:], buf[offPad2:offContentID])
	copy(h.SDCID[:], buf[offSDCID:offSaveOffset])
	copy(h.Pad3[:], buf[offPad3:offRegisters])
	copy(h.RegisterSnapshot[:], buf[offRegisters:offPad4])
	copy(h.Pad4[:], buf[offPad4:HeaderSize])
	return h, nil
}

// Bytes encodes h into a fresh HeaderSize buffer.
func (h *Header) Bytes() []byte {
	buf := make([]byte, HeaderSize)
	h.Put(buf)
	return buf
}

// Put encodes h into the first HeaderSize bytes of buf.
func (h *Header) Put(buf []byte) {
	_ = buf[HeaderSize-1]
	copy(buf[offMagic:], h.Magic[:])
	copy(buf[offPad1:], h.Pad1[:])
	copy(buf[offCMAC:], h.CMAC[:])
	copy(buf[offPad2:], h.Pad2[:])
	binary.LittleEndian.PutUint32(buf[offContentID:], h.ContentID)
	binary.LittleEndian.PutUint32(buf[offGeneration:], h.Generation)
	binary.LittleEndian.PutUint64(buf[offTitleID:], h.TitleID)
	copy(buf[offSDCID:], h.SDCID[:])
	binary.LittleEndian.PutUint32(buf[offSaveOffset:], h.SaveOffset)
	binary.LittleEndian.PutUint32(buf[offSaveSize:], h.SaveSize)
	copy(buf[offPad3:], h.Pad3[:])
	copy(buf[offRegisters:], h.RegisterSnapshot[:])
	copy(buf[offPad4:], h.Pad4[:])
}

// Blank reports whether the magic and pad1 region is all 0xFF, i.e. the
// header has never been written.
func (h *Header) Blank() bool {
	return erased(h.Magic[:]) && erased(h.Pad1[:])
}

func erased(b []byte) bool {
	for _, v := range b {
		if v != 0xFF {
			return false
		}
	}
	return true
}

// HasMagic reports whether the header starts with ".SAV".
func (h *Header) HasMagic() bool {
	return string(h.Magic[:]) == Magic
}

// NewHeader returns an initialized header for a save of the given size,
// with every padding field erased to 0xFF and a zero CMAC.
func NewHeader(titleID uint64, saveSize uint32) *Header {
	h := &Header{
		ContentID:  1,
		TitleID:    titleID,
		SaveOffset: HeaderSize,
		SaveSize:   saveSize,
	}
	copy(h.Magic[:], Magic)
	fill(h.Pad1[:], 0xFF)
	fill(h.Pad2[:], 0xFF)
	fill(h.Pad3[:], 0xFF)
	return h
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
