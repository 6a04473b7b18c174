package agbsave

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/falk/agbsave-go/pkg/crypto"
	"github.com/falk/agbsave-go/pkg/mac"
)

// readBlockSize is the chunk size used when hashing a slot.
const readBlockSize = 0x1000

// Container is the raw secure save file. Offsets are absolute; the codec
// never relies on a file position.
type Container interface {
	io.ReaderAt
	io.WriterAt
	Size() int64
}

// FlatSave is a save as PC tools and emulators expect it.
type FlatSave struct {
	Data     []byte
	Snapshot RegisterSnapshot

	// Slot is 1 or 2, the container slot the data came from.
	Slot   int
	Header *Header
}

// Codec converts between containers and flat saves. It holds no state
// between calls, but must not be used concurrently on one Container.
type Codec struct {
	oracle mac.Oracle
	log    logrus.FieldLogger
}

// Option configures a Codec.
type Option func(*Codec)

// WithLogger sets the logger used for slot resolution messages.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Codec) { c.log = l }
}

// NewCodec returns a codec that checks slots against oracle. Calls are
// routed through a mac.Stabilizer unless oracle already is one.
func NewCodec(oracle mac.Oracle, opts ...Option) *Codec {
	c := &Codec{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(c)
	}
	if s, ok := oracle.(*mac.Stabilizer); ok {
		c.oracle = s
	} else {
		st := mac.Stabilize(oracle)
		st.Log = c.log
		c.oracle = st
	}
	return c
}

// slot is one header+payload pair inside a container.
type slot struct {
	index  int
	offset int64
	header *Header
	size   int // payload length used for hashing and extraction
}

func (s *slot) end() int64 {
	return s.offset + HeaderSize + int64(s.size)
}

func (s *slot) payloadOffset() int64 {
	return s.offset + HeaderSize
}

// layout is what the codec learned about both slots.
type layout struct {
	first, second *slot
	recovered     bool // first header was unusable, second found by search
}

// Extract returns the authoritative save held in ct.
func (c *Codec) Extract(ct Container) (*FlatSave, error) {
	l, err := scan(ct, c.log)
	if err != nil {
		return nil, err
	}

	var chosen *slot
	if l.recovered {
		ok, err := c.verify(ct, l.second)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: recovered header at %#x fails CMAC check", ErrInvalidContainer, l.second.offset)
		}
		chosen = l.second
	} else {
		firstValid, secondValid, err := c.verifyBoth(ct, l)
		if err != nil {
			return nil, err
		}
		switch {
		case !firstValid && !secondValid:
			return nil, fmt.Errorf("%w: both slots fail CMAC check", ErrInvalidContainer)
		case !firstValid:
			chosen = l.second
		case !secondValid:
			chosen = l.first
		case newer(l.first.header, l.second.header):
			chosen = l.second
		default:
			chosen = l.first
		}
	}

	data := make([]byte, chosen.size)
	if err := readFull(ct, data, chosen.payloadOffset()); err != nil {
		return nil, ioError("reading save", chosen.payloadOffset(), err)
	}
	if IsEEPROM(chosen.size) {
		swap64(data)
	}

	c.log.WithFields(logrus.Fields{
		"slot":       chosen.index,
		"generation": chosen.header.Generation,
		"size":       chosen.size,
	}).Debug("extracted save")

	return &FlatSave{
		Data:     data,
		Snapshot: chosen.header.RegisterSnapshot,
		Slot:     chosen.index,
		Header:   chosen.header,
	}, nil
}

// Inject writes data into the slot that is not currently authoritative
// and reseals it. snapshot replaces the stored register value when
// non-nil.
func (c *Codec) Inject(ct Container, data []byte, snapshot *RegisterSnapshot) error {
	if !IsKnownSize(len(data)) {
		return fmt.Errorf("%w: %d bytes", ErrInvalidSaveSize, len(data))
	}

	l, err := scan(ct, c.log)
	if err != nil {
		return err
	}

	var target *slot
	var base *Header
	var generation uint32
	if l.recovered {
		target, base = l.first, l.second.header
		generation = l.second.header.Generation + 1
	} else {
		firstValid, secondValid, err := c.verifyBoth(ct, l)
		if err != nil {
			return err
		}
		switch {
		case !firstValid:
			// The second slot's generation is trusted here even if that slot
			// did not validate either.
			target, base = l.first, l.second.header
			generation = l.second.header.Generation + 1
		case secondValid && newer(l.first.header, l.second.header):
			target, base = l.first, l.second.header
			generation = l.second.header.Generation + 1
		default:
			target, base = l.second, l.first.header
			generation = l.first.header.Generation + 1
		}
	}

	if len(data) != target.size {
		return fmt.Errorf("%w: container holds %d byte saves, got %d", ErrInvalidSaveSize, target.size, len(data))
	}
	if target.end() > ct.Size() {
		return fmt.Errorf("%w: slot %d ends at %#x past container end %#x", ErrInvalidContainer, target.index, target.end(), ct.Size())
	}

	h := *base
	if !h.HasMagic() {
		// Nothing usable to copy from the other slot.
		h = *target.header
		copy(h.Magic[:], Magic)
	}
	h.Generation = generation
	h.SaveSize = uint32(target.size)
	if snapshot != nil {
		h.RegisterSnapshot = *snapshot
	}

	c.log.WithFields(logrus.Fields{
		"slot":       target.index,
		"generation": generation,
		"size":       target.size,
	}).Debug("injecting save")

	return c.writeSlot(ct, target.offset, &h, data)
}

// scan reads the headers and works out where both slots live.
func scan(ct Container, log logrus.FieldLogger) (*layout, error) {
	if ct.Size() < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is smaller than a header", ErrInvalidContainer, ct.Size())
	}
	h1, err := readHeader(ct, 0)
	if err != nil {
		return nil, err
	}

	if h1.Blank() || !IsKnownSize(int(h1.SaveSize)) {
		log.WithField("blank", h1.Blank()).Warn("first save header unusable, searching for second header")
		second, err := findSecondHeader(ct)
		if err != nil {
			return nil, err
		}
		return &layout{
			first:     &slot{index: 1, offset: 0, header: h1, size: second.size},
			second:    second,
			recovered: true,
		}, nil
	}

	first := &slot{index: 1, offset: 0, header: h1, size: int(h1.SaveSize)}
	second := &slot{index: 2, offset: first.end(), size: first.size}
	if second.offset+HeaderSize <= ct.Size() {
		h2, err := readHeader(ct, second.offset)
		if err != nil {
			return nil, err
		}
		second.header = h2
	} else {
		second.header = blankHeader()
	}
	return &layout{first: first, second: second}, nil
}

// findSecondHeader probes every known save size, smallest first, for a
// ".SAV" header right after a slot of that size.
func findSecondHeader(ct Container) (*slot, error) {
	for _, size := range KnownSizes {
		off := int64(size) + HeaderSize
		if off+HeaderSize > ct.Size() {
			break
		}
		h, err := readHeader(ct, off)
		if err != nil {
			return nil, err
		}
		if h.HasMagic() {
			return &slot{index: 2, offset: off, header: h, size: size}, nil
		}
	}
	return nil, fmt.Errorf("%w: no save header found", ErrInvalidContainer)
}

func (c *Codec) verifyBoth(ct Container, l *layout) (firstValid, secondValid bool, err error) {
	if firstValid, err = c.verify(ct, l.first); err != nil {
		return false, false, err
	}
	if secondValid, err = c.verify(ct, l.second); err != nil {
		return false, false, err
	}
	if !firstValid || !secondValid {
		c.log.WithFields(logrus.Fields{
			"first":  firstValid,
			"second": secondValid,
		}).Warn("save slot failed CMAC check")
	}
	return firstValid, secondValid, nil
}

// verify reports whether the slot's stored CMAC matches the oracle. A
// slot that cannot exist in this container is simply invalid.
func (c *Codec) verify(ct Container, s *slot) (bool, error) {
	if s.header.Blank() || int(s.header.SaveSize) != s.size || s.end() > ct.Size() {
		return false, nil
	}
	tag, err := c.slotMAC(ct, s.offset, s.size)
	if err != nil {
		return false, err
	}
	return tag == s.header.CMAC, nil
}

func (c *Codec) slotMAC(ct Container, offset int64, size int) ([mac.Size]byte, error) {
	hash, err := hashSlot(ct, offset, size)
	if err != nil {
		return [mac.Size]byte{}, err
	}
	return c.oracle.Compute(hash)
}

// hashSlot hashes the slot from hashStart through the end of its payload.
func hashSlot(ct Container, offset int64, size int) ([32]byte, error) {
	h := crypto.NewSHA256()
	buf := make([]byte, readBlockSize)
	pos := offset + hashStart
	end := offset + HeaderSize + int64(size)
	for pos < end {
		chunk := buf[:min(int64(len(buf)), end-pos)]
		if err := readFull(ct, chunk, pos); err != nil {
			return [32]byte{}, ioError("hashing slot", pos, err)
		}
		h.Absorb(chunk)
		pos += int64(len(chunk))
	}
	return h.Finish(), nil
}

// writeSlot writes header and payload, then hashes what landed in the
// container and patches the CMAC field. The CMAC is zero until the last
// write, so an interrupted write leaves this slot invalid and the other
// slot authoritative.
func (c *Codec) writeSlot(ct Container, offset int64, h *Header, data []byte) error {
	h.CMAC = [16]byte{}
	image := make([]byte, HeaderSize+len(data))
	h.Put(image)
	copy(image[HeaderSize:], data)
	if IsEEPROM(len(data)) {
		swap64(image[HeaderSize:])
	}
	if _, err := ct.WriteAt(image, offset); err != nil {
		return ioError("writing slot", offset, err)
	}

	tag, err := c.slotMAC(ct, offset, len(data))
	if err != nil {
		return err
	}
	if _, err := ct.WriteAt(tag[:], offset+offCMAC); err != nil {
		return ioError("writing cmac", offset+offCMAC, err)
	}
	h.CMAC = tag
	return nil
}

// newer reports whether b is the write that followed a. Generations wrap.
func newer(a, b *Header) bool {
	return b.Generation == a.Generation+1
}

func readHeader(ct Container, off int64) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if err := readFull(ct, buf, off); err != nil {
		return nil, ioError("reading header", off, err)
	}
	return ParseHeader(buf)
}

func blankHeader() *Header {
	h := &Header{}
	fill(h.Magic[:], 0xFF)
	fill(h.Pad1[:], 0xFF)
	return h
}

// readFull reads exactly len(buf) bytes at off. io.ReaderAt may report
// io.EOF alongside a complete read.
func readFull(r io.ReaderAt, buf []byte, off int64) error {
	n, err := r.ReadAt(buf, off)
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
