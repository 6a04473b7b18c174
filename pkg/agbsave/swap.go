package agbsave

import "encoding/binary"

// swap64 reverses the byte order of every 8-byte group of buf in place.
// EEPROM saves are stored this way inside the container. Applying it
// twice is a no-op.
func swap64(buf []byte) {
	for i := 0; i+8 <= len(buf); i += 8 {
		v := binary.BigEndian.Uint64(buf[i:])
		binary.LittleEndian.PutUint64(buf[i:], v)
	}
}
