package agbsave

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// SlotInfo describes one slot as found on disk, without any CMAC check.
type SlotInfo struct {
	Offset  int64
	Header  *Header
	Present bool // header carries the ".SAV" magic
}

// Info summarizes a container's layout.
type Info struct {
	SaveSize  int
	SaveType  SaveType
	TitleID   uint64
	Slots     [2]SlotInfo
	Recovered bool // first header unusable, second located by search

	// Newer is the slot (1 or 2) the generation counters point at, 0 if
	// neither header is present.
	Newer int
}

// Inspect decodes both headers of ct. It does not consult the MAC oracle,
// so it works without keys and says nothing about slot integrity.
func Inspect(ct Container, log logrus.FieldLogger) (*Info, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	l, err := scan(ct, log)
	if err != nil {
		return nil, err
	}

	info := &Info{
		SaveSize:  l.second.size,
		SaveType:  SaveTypeOf(l.second.size),
		Recovered: l.recovered,
	}
	for i, s := range []*slot{l.first, l.second} {
		info.Slots[i] = SlotInfo{
			Offset:  s.offset,
			Header:  s.header,
			Present: s.header.HasMagic(),
		}
	}

	first, second := info.Slots[0], info.Slots[1]
	switch {
	case first.Present && second.Present:
		info.Newer = 1
		if newer(first.Header, second.Header) {
			info.Newer = 2
		}
	case first.Present:
		info.Newer = 1
	case second.Present:
		info.Newer = 2
	}
	if info.Newer != 0 {
		info.TitleID = info.Slots[info.Newer-1].Header.TitleID
	}
	return info, nil
}

func (i *Info) String() string {
	return fmt.Sprintf("%016X %s newer=%d", i.TitleID, i.SaveType, i.Newer)
}
