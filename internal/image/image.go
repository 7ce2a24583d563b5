package image

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/bigbag/espburn/internal/chip"
	"github.com/bigbag/espburn/internal/protocol"
)

// Magic is the first byte of every flashable image.
const Magic = 0xE9

// extHeaderSize is the extended header carried by all variants except
// the ESP8266.
const extHeaderSize = 16

// wpPinDisabled is the "write-protect pin not used" marker in the
// extended header.
const wpPinDisabled = 0xEE

// FlashMode selects how the SPI flash is driven.
type FlashMode byte

const (
	ModeQIO  FlashMode = 0
	ModeQOUT FlashMode = 1
	ModeDIO  FlashMode = 2
	ModeDOUT FlashMode = 3
)

// ParseFlashMode maps a command-line spelling to its mode.
func ParseFlashMode(s string) (FlashMode, error) {
	switch s {
	case "qio":
		return ModeQIO, nil
	case "qout":
		return ModeQOUT, nil
	case "dio":
		return ModeDIO, nil
	case "dout":
		return ModeDOUT, nil
	}
	return 0, fmt.Errorf("unknown flash mode %q", s)
}

// FlashFreq selects the SPI flash clock.
type FlashFreq byte

const (
	Freq40M FlashFreq = 0x0
	Freq26M FlashFreq = 0x1
	Freq20M FlashFreq = 0x2
	Freq80M FlashFreq = 0xF
)

// ParseFlashFreq maps a command-line spelling to its frequency code.
func ParseFlashFreq(s string) (FlashFreq, error) {
	switch s {
	case "40m":
		return Freq40M, nil
	case "26m":
		return Freq26M, nil
	case "20m":
		return Freq20M, nil
	case "80m":
		return Freq80M, nil
	}
	return 0, fmt.Errorf("unknown flash frequency %q", s)
}

// FlashSize encodes the total flash size in the image header.
type FlashSize byte

const (
	Size1MB  FlashSize = 0x0
	Size2MB  FlashSize = 0x1
	Size4MB  FlashSize = 0x2
	Size8MB  FlashSize = 0x3
	Size16MB FlashSize = 0x4
)

// ParseFlashSize maps a command-line spelling to its size code.
func ParseFlashSize(s string) (FlashSize, error) {
	switch s {
	case "1MB":
		return Size1MB, nil
	case "2MB":
		return Size2MB, nil
	case "4MB":
		return Size4MB, nil
	case "8MB":
		return Size8MB, nil
	case "16MB":
		return Size16MB, nil
	}
	return 0, fmt.Errorf("unknown flash size %q", s)
}

// Bytes returns the size in bytes.
func (s FlashSize) Bytes() uint32 {
	return (1 << s) * 1024 * 1024
}

// Image is a firmware image ready to be serialized for flashing.
// Serialization is deterministic: the same segments and flags always
// produce the same bytes.
type Image struct {
	Variant chip.Variant
	Entry   uint32
	Mode    FlashMode
	Freq    FlashFreq
	Size    FlashSize

	// HashAppended appends a SHA256 digest of the whole image after
	// the checksum byte. Extended-header variants only.
	HashAppended bool

	Segments []Segment
}

// Build serializes the image:
// base header, optional extended header, {addr, len, data} per
// segment, zero padding, XOR checksum byte, optional SHA256.
func (im *Image) Build() ([]byte, error) {
	if len(im.Segments) == 0 {
		return nil, fmt.Errorf("image has no segments")
	}
	if err := validateSegments(im.Segments); err != nil {
		return nil, err
	}
	if len(im.Segments) > 0xFF {
		return nil, fmt.Errorf("too many segments: %d", len(im.Segments))
	}

	extended := im.Variant.Params().ExtendedHeader
	if im.HashAppended && !extended {
		return nil, fmt.Errorf("%s images cannot carry an appended hash", im.Variant)
	}

	var buf bytes.Buffer
	buf.WriteByte(Magic)
	buf.WriteByte(byte(len(im.Segments)))
	buf.WriteByte(byte(im.Mode))
	buf.WriteByte(byte(im.Size)<<4 | byte(im.Freq))
	binary.Write(&buf, binary.LittleEndian, im.Entry)

	if extended {
		ext := make([]byte, extHeaderSize)
		ext[0] = wpPinDisabled
		binary.LittleEndian.PutUint16(ext[4:6], im.Variant.Params().ImageChipID)
		if im.HashAppended {
			ext[15] = 1
		}
		buf.Write(ext)
	}

	checksum := byte(protocol.ChecksumSeed)
	for _, s := range im.Segments {
		binary.Write(&buf, binary.LittleEndian, s.Addr)
		binary.Write(&buf, binary.LittleEndian, uint32(len(s.Data)))
		buf.Write(s.Data)
		for _, b := range s.Data {
			checksum ^= b
		}
	}

	// Pad so the checksum lands on the last byte of a 16-byte boundary.
	for buf.Len()%16 != 15 {
		buf.WriteByte(0)
	}
	buf.WriteByte(checksum)

	if im.HashAppended {
		digest := sha256.Sum256(buf.Bytes())
		buf.Write(digest[:])
	}

	return buf.Bytes(), nil
}

// Parse is the exact inverse of Build for the same variant: it
// validates magic, checksum and appended hash, and reconstructs the
// header fields and segments.
func Parse(variant chip.Variant, data []byte) (*Image, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("image too short: %d bytes", len(data))
	}
	if data[0] != Magic {
		return nil, fmt.Errorf("bad image magic 0x%02X", data[0])
	}

	im := &Image{
		Variant: variant,
		Mode:    FlashMode(data[2]),
		Freq:    FlashFreq(data[3] & 0x0F),
		Size:    FlashSize(data[3] >> 4),
		Entry:   binary.LittleEndian.Uint32(data[4:8]),
	}
	segCount := int(data[1])
	pos := 8

	if variant.Params().ExtendedHeader {
		if len(data) < pos+extHeaderSize {
			return nil, fmt.Errorf("image too short for extended header")
		}
		im.HashAppended = data[pos+15] == 1
		pos += extHeaderSize
	}

	body := data
	if im.HashAppended {
		if len(data) < sha256.Size+16 {
			return nil, fmt.Errorf("image too short for appended hash")
		}
		body = data[:len(data)-sha256.Size]
		digest := sha256.Sum256(body)
		if !bytes.Equal(digest[:], data[len(body):]) {
			return nil, fmt.Errorf("appended hash mismatch")
		}
	}

	checksum := byte(protocol.ChecksumSeed)
	for i := 0; i < segCount; i++ {
		if len(body) < pos+8 {
			return nil, fmt.Errorf("segment %d header truncated", i)
		}
		addr := binary.LittleEndian.Uint32(body[pos : pos+4])
		length := binary.LittleEndian.Uint32(body[pos+4 : pos+8])
		pos += 8
		if uint32(len(body)) < uint32(pos)+length {
			return nil, fmt.Errorf("segment %d data truncated", i)
		}
		segData := append([]byte(nil), body[pos:pos+int(length)]...)
		pos += int(length)

		for _, b := range segData {
			checksum ^= b
		}
		im.Segments = append(im.Segments, Segment{Addr: addr, Data: segData})
	}

	// Padding, then the checksum byte on the 16-byte boundary.
	end := (pos/16 + 1) * 16
	if len(body) < end {
		return nil, fmt.Errorf("image checksum truncated")
	}
	if got := body[end-1]; got != checksum {
		return nil, fmt.Errorf("image checksum mismatch: 0x%02X != 0x%02X", got, checksum)
	}

	return im, nil
}
