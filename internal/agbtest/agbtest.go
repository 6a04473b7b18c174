// Package agbtest builds AGB save containers and oracles for tests.
package agbtest

import (
	"fmt"
	"io"
	"sync"

	"github.com/falk/agbsave-go/pkg/agbsave"
	"github.com/falk/agbsave-go/pkg/crypto"
	"github.com/falk/agbsave-go/pkg/mac"
)

// TitleID is the title used by containers built here.
const TitleID uint64 = 0x0004000000AB1200

// Oracle is a deterministic stand-in for the secure coprocessor. It
// counts calls and can be made to fail.
type Oracle struct {
	mu    sync.Mutex
	Calls int
	Err   error
}

// Compute implements mac.Oracle.
func (o *Oracle) Compute(hash [32]byte) ([mac.Size]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Calls++
	if o.Err != nil {
		return [mac.Size]byte{}, o.Err
	}
	return MAC(hash), nil
}

// MAC is the code Oracle returns for hash.
func MAC(hash [32]byte) [mac.Size]byte {
	h := crypto.NewSHA256()
	h.Absorb([]byte("agbtest"))
	h.Absorb(hash[:])
	sum := h.Finish()
	var out [mac.Size]byte
	copy(out[:], sum[:])
	return out
}

// Mem is an in-memory container.
type Mem struct {
	Buf      []byte
	WriteErr error
	ReadErr  error
	Writes   int
}

func (m *Mem) ReadAt(p []byte, off int64) (int, error) {
	if m.ReadErr != nil {
		return 0, m.ReadErr
	}
	if off >= int64(len(m.Buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.Buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Mem) WriteAt(p []byte, off int64) (int, error) {
	if m.WriteErr != nil {
		return 0, m.WriteErr
	}
	if off+int64(len(p)) > int64(len(m.Buf)) {
		return 0, fmt.Errorf("write past end: %#x+%#x", off, len(p))
	}
	m.Writes++
	return copy(m.Buf[off:], p), nil
}

func (m *Mem) Size() int64 {
	return int64(len(m.Buf))
}

// SlotOffset returns where slot (1 or 2) starts for saves of size bytes.
func SlotOffset(slot, size int) int64 {
	return int64(slot-1) * int64(agbsave.HeaderSize+size)
}

// Empty returns an erased container (all 0xFF) with room for two slots.
func Empty(size int) *Mem {
	buf := make([]byte, 2*(agbsave.HeaderSize+size))
	for i := range buf {
		buf[i] = 0xFF
	}
	return &Mem{Buf: buf}
}

// Fresh returns a container as a title leaves it after its first save:
// slot 1 sealed with generation 0 and zeroed data, slot 2 erased.
func Fresh(size int) *Mem {
	m := Empty(size)
	Seal(m, 1, 0, make([]byte, size))
	return m
}

// Seal writes a valid header with the given generation plus payload into
// slot. The payload is stored as given, without any byteswap.
func Seal(m *Mem, slot int, generation uint32, payload []byte) *agbsave.Header {
	return SealWith(m, &Oracle{}, slot, generation, payload)
}

// SealWith is Seal with the CMAC computed by o.
func SealWith(m *Mem, o mac.Oracle, slot int, generation uint32, payload []byte) *agbsave.Header {
	size := len(payload)
	off := SlotOffset(slot, size)
	h := agbsave.NewHeader(TitleID, uint32(size))
	h.Generation = generation
	h.Put(m.Buf[off:])
	copy(m.Buf[off+agbsave.HeaderSize:], payload)
	resealWith(m, o, slot, size)
	parsed, _ := agbsave.ParseHeader(m.Buf[off:])
	return parsed
}

func resealWith(m *Mem, o mac.Oracle, slot, size int) {
	off := SlotOffset(slot, size)
	region := m.Buf[off+0x30 : off+agbsave.HeaderSize+int64(size)]
	tag, err := o.Compute(crypto.Sum256(region))
	if err != nil {
		panic(err)
	}
	copy(m.Buf[off+0x10:], tag[:])
}

// Header decodes the header of slot.
func Header(m *Mem, slot, size int) *agbsave.Header {
	h, err := agbsave.ParseHeader(m.Buf[SlotOffset(slot, size):])
	if err != nil {
		panic(err)
	}
	return h
}

// Payload returns the raw stored bytes of slot.
func Payload(m *Mem, slot, size int) []byte {
	off := SlotOffset(slot, size) + agbsave.HeaderSize
	return m.Buf[off : off+int64(size)]
}

// Valid reports whether the stored CMAC of slot matches.
func Valid(m *Mem, slot, size int) bool {
	off := SlotOffset(slot, size)
	region := m.Buf[off+0x30 : off+agbsave.HeaderSize+int64(size)]
	return Header(m, slot, size).CMAC == MAC(crypto.Sum256(region))
}
