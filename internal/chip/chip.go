// Package chip models the supported silicon as a closed set of
// variants with per-variant protocol and image-format parameters.
// Everything that differs between chips lives in this table; the rest
// of the codebase never switches on a chip name.
package chip

// Variant identifies one supported chip family.
type Variant int

const (
	Unknown Variant = iota
	ESP8266
	ESP32
	ESP32S2
	ESP32S3
	ESP32C3
)

// DetectMagicReg is the register whose value identifies the chip
// family. Readable by the ROM loader on every supported variant.
const DetectMagicReg = 0x40001000

// Params carries the per-variant constants used by the connection,
// flasher and image builder.
type Params struct {
	Name string

	// Magic values observed in DetectMagicReg, one per silicon revision.
	Magic []uint32

	// ImageChipID is the chip id field of the extended image header.
	ImageChipID uint16

	// ExtendedHeader is true for variants whose flash images carry the
	// 16-byte extended header after the base header.
	ExtendedHeader bool

	// Block sizes for the three write paths.
	ROMBlockSize  uint32
	StubBlockSize uint32
	RAMBlockSize  uint32

	FlashSectorSize  uint32
	DefaultFlashSize uint32

	// SupportsSpiAttach is false only on chips whose ROM has no
	// SPI_ATTACH command.
	SupportsSpiAttach bool

	// EraseWorkaround selects the legacy erase-size computation needed
	// by ROMs that over-erase the first 16 sectors.
	EraseWorkaround bool

	// StubName keys the embedded stub loader image for this variant.
	StubName string
}

var params = map[Variant]Params{
	ESP8266: {
		Name:             "ESP8266",
		Magic:            []uint32{0xFFF0C101},
		ExtendedHeader:   false,
		ROMBlockSize:     0x400,
		StubBlockSize:    0x4000,
		RAMBlockSize:     0x1800,
		FlashSectorSize:  0x1000,
		DefaultFlashSize: 4 * 1024 * 1024,
		EraseWorkaround:  true,
		StubName:         "esp8266",
	},
	ESP32: {
		Name:              "ESP32",
		Magic:             []uint32{0x00F01D83},
		ImageChipID:       0x0000,
		ExtendedHeader:    true,
		ROMBlockSize:      0x400,
		StubBlockSize:     0x4000,
		RAMBlockSize:      0x1800,
		FlashSectorSize:   0x1000,
		DefaultFlashSize:  4 * 1024 * 1024,
		SupportsSpiAttach: true,
		StubName:          "esp32",
	},
	ESP32S2: {
		Name:              "ESP32-S2",
		Magic:             []uint32{0x000007C6},
		ImageChipID:       0x0002,
		ExtendedHeader:    true,
		ROMBlockSize:      0x400,
		StubBlockSize:     0x4000,
		RAMBlockSize:      0x1800,
		FlashSectorSize:   0x1000,
		DefaultFlashSize:  4 * 1024 * 1024,
		SupportsSpiAttach: true,
		StubName:          "esp32s2",
	},
	ESP32S3: {
		Name:              "ESP32-S3",
		Magic:             []uint32{0x00000009},
		ImageChipID:       0x0009,
		ExtendedHeader:    true,
		ROMBlockSize:      0x400,
		StubBlockSize:     0x4000,
		RAMBlockSize:      0x1800,
		FlashSectorSize:   0x1000,
		DefaultFlashSize:  8 * 1024 * 1024,
		SupportsSpiAttach: true,
		StubName:          "esp32s3",
	},
	ESP32C3: {
		Name:              "ESP32-C3",
		Magic:             []uint32{0x6921506F, 0x1B31506F},
		ImageChipID:       0x0005,
		ExtendedHeader:    true,
		ROMBlockSize:      0x400,
		StubBlockSize:     0x4000,
		RAMBlockSize:      0x1800,
		FlashSectorSize:   0x1000,
		DefaultFlashSize:  4 * 1024 * 1024,
		SupportsSpiAttach: true,
		StubName:          "esp32c3",
	},
}

// Variants returns all supported variants in a stable order.
func Variants() []Variant {
	return []Variant{ESP8266, ESP32, ESP32S2, ESP32S3, ESP32C3}
}

// Lookup maps a detect-register magic value to its variant.
func Lookup(magic uint32) (Variant, bool) {
	for _, v := range Variants() {
		for _, m := range params[v].Magic {
			if m == magic {
				return v, true
			}
		}
	}
	return Unknown, false
}

// Parse maps a chip name to its variant. Case and dashes are ignored,
// so "esp32c3" and "ESP32-C3" both resolve.
func Parse(name string) (Variant, bool) {
	key := normalizeName(name)
	for _, v := range Variants() {
		if normalizeName(params[v].Name) == key {
			return v, true
		}
	}
	return Unknown, false
}

func normalizeName(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '-' || c == '_' {
			continue
		}
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// Params returns the parameter table entry for the variant.
func (v Variant) Params() Params {
	p, ok := params[v]
	if !ok {
		return Params{Name: "unknown"}
	}
	return p
}

func (v Variant) String() string {
	return v.Params().Name
}

// BlockSize returns the flash write block size for the given protocol
// capability. The stub accepts much larger blocks than the ROM.
func (v Variant) BlockSize(stub bool) uint32 {
	p := v.Params()
	if stub {
		return p.StubBlockSize
	}
	return p.ROMBlockSize
}

// EraseSize computes the value of the FLASH_BEGIN erase field for an
// image of the given size starting at offset. Most ROMs take the plain
// size; the legacy workaround compensates for ROMs that erase more
// than requested when the region crosses the first 16-sector block.
func (v Variant) EraseSize(offset, size uint32) uint32 {
	if !v.Params().EraseWorkaround {
		return size
	}

	const sectorsPerBlock = 16
	sector := v.Params().FlashSectorSize

	numSectors := (size + sector - 1) / sector
	startSector := offset / sector

	headSectors := sectorsPerBlock - startSector%sectorsPerBlock
	if numSectors < headSectors {
		headSectors = numSectors
	}

	if numSectors < 2*headSectors {
		return (numSectors + 1) / 2 * sector
	}
	return (numSectors - headSectors) * sector
}
