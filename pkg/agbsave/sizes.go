package agbsave

import "fmt"

// Save geometries a GBA cartridge can have.
// see: http://3dbrew.org/wiki/3DS_Virtual_Console#Footer
const (
	SizeEEPROM512 = 512
	SizeEEPROM8K  = 8 * 1024
	SizeSRAM32K   = 32 * 1024
	SizeFlash64K  = 64 * 1024
	SizeFlash128K = 128 * 1024
)

// KnownSizes lists every valid save size in ascending order. Header
// recovery probes them in this order.
var KnownSizes = [...]int{
	SizeEEPROM512,
	SizeEEPROM8K,
	SizeSRAM32K,
	SizeFlash64K,
	SizeFlash128K,
}

// SaveType names the cartridge save chip implied by a save size.
type SaveType int

const (
	SaveTypeUnknown SaveType = iota
	SaveTypeEEPROM512
	SaveTypeEEPROM8K
	SaveTypeSRAM32K
	SaveTypeFlash64K
	SaveTypeFlash128K
)

func (t SaveType) String() string {
	switch t {
	case SaveTypeEEPROM512:
		return "EEPROM 512B"
	case SaveTypeEEPROM8K:
		return "EEPROM 8KiB"
	case SaveTypeSRAM32K:
		return "SRAM 32KiB"
	case SaveTypeFlash64K:
		return "Flash 64KiB"
	case SaveTypeFlash128K:
		return "Flash 128KiB"
	}
	return fmt.Sprintf("SaveType(%d)", int(t))
}

// SaveTypeOf classifies a save by its size.
func SaveTypeOf(size int) SaveType {
	switch size {
	case SizeEEPROM512:
		return SaveTypeEEPROM512
	case SizeEEPROM8K:
		return SaveTypeEEPROM8K
	case SizeSRAM32K:
		return SaveTypeSRAM32K
	case SizeFlash64K:
		return SaveTypeFlash64K
	case SizeFlash128K:
		return SaveTypeFlash128K
	}
	return SaveTypeUnknown
}

// IsKnownSize reports whether size is one of KnownSizes.
func IsKnownSize(size int) bool {
	return SaveTypeOf(size) != SaveTypeUnknown
}

// IsEEPROM reports whether saves of this size are stored byteswapped.
func IsEEPROM(size int) bool {
	return size == SizeEEPROM512 || size == SizeEEPROM8K
}
