package image

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Partition table binary layout: fixed 32-byte records inside a
// 0xC00-byte table. Each entry starts with a 2-byte magic; an MD5
// record (its own magic) trails the entries, and the first all-0xFF
// record terminates the table.
const (
	TableSize    = 0xC00
	entrySize    = 32
	nameSize     = 16
	SectorAlign  = 0x1000
	entryMagic0  = 0xAA
	entryMagic1  = 0x50
	digestMagic0 = 0xEB
	digestMagic1 = 0xEB
)

// PartitionType is the top-level partition class.
type PartitionType byte

const (
	TypeApp  PartitionType = 0x00
	TypeData PartitionType = 0x01
)

func (t PartitionType) String() string {
	switch t {
	case TypeApp:
		return "app"
	case TypeData:
		return "data"
	default:
		return fmt.Sprintf("0x%02X", byte(t))
	}
}

// Well-known subtypes.
const (
	SubTypeFactory byte = 0x00
	SubTypeOTA0    byte = 0x10
	SubTypeOTA1    byte = 0x11
	SubTypeNVS     byte = 0x02
	SubTypePhy     byte = 0x01
	SubTypeOTAData byte = 0x00
	SubTypeSPIFFS  byte = 0x82
)

// Partition is one named region of the flash address space.
type Partition struct {
	Name    string
	Type    PartitionType
	SubType byte
	Offset  uint32
	Size    uint32
	Flags   uint32
}

// End returns the address one past the partition's last byte.
func (p Partition) End() uint32 {
	return p.Offset + p.Size
}

// Table is an ordered partition table.
type Table struct {
	Entries []Partition
}

// Validate checks sector alignment, non-overlap and the flash size
// bound. It runs before any serialization; a violating table produces
// no bytes.
func (t *Table) Validate(flashSize uint32) error {
	if len(t.Entries) == 0 {
		return fmt.Errorf("partition table is empty")
	}
	maxEntries := (TableSize - 2*entrySize) / entrySize
	if len(t.Entries) > maxEntries {
		return fmt.Errorf("too many partitions: %d (max %d)", len(t.Entries), maxEntries)
	}

	for _, p := range t.Entries {
		if p.Name == "" {
			return fmt.Errorf("partition with empty name")
		}
		if len(p.Name) >= nameSize {
			return fmt.Errorf("partition name %q too long (max %d)", p.Name, nameSize-1)
		}
		if p.Offset%SectorAlign != 0 {
			return &AlignmentError{Name: p.Name, Value: p.Offset, Align: SectorAlign}
		}
		if p.Size == 0 || p.Size%SectorAlign != 0 {
			return &AlignmentError{Name: p.Name, Value: p.Size, Align: SectorAlign}
		}
		if flashSize > 0 && p.End() > flashSize {
			return &SizeError{Name: p.Name, End: p.End(), Max: flashSize}
		}
	}

	sorted := make([]Partition, len(t.Entries))
	copy(sorted, t.Entries)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].Offset < sorted[j-1].Offset; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Offset < sorted[i-1].End() {
			return &OverlapError{First: sorted[i-1].Name, Second: sorted[i].Name}
		}
	}
	return nil
}

// Build validates and serializes the table. The result is bit-exact:
// entries in declaration order, an MD5 record over them, 0xFF fill up
// to the fixed table size.
func (t *Table) Build(flashSize uint32) ([]byte, error) {
	if err := t.Validate(flashSize); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	for _, p := range t.Entries {
		rec := make([]byte, entrySize)
		rec[0] = entryMagic0
		rec[1] = entryMagic1
		rec[2] = byte(p.Type)
		rec[3] = p.SubType
		binary.LittleEndian.PutUint32(rec[4:8], p.Offset)
		binary.LittleEndian.PutUint32(rec[8:12], p.Size)
		copy(rec[12:12+nameSize], p.Name)
		binary.LittleEndian.PutUint32(rec[28:32], p.Flags)
		buf.Write(rec)
	}

	digest := md5.Sum(buf.Bytes())
	rec := make([]byte, entrySize)
	rec[0] = digestMagic0
	rec[1] = digestMagic1
	copy(rec[entrySize-md5.Size:], digest[:])
	buf.Write(rec)

	for buf.Len() < TableSize {
		buf.WriteByte(0xFF)
	}
	return buf.Bytes(), nil
}

// ParseTable is the inverse of Build. The table-wide checksum is
// verified when present.
func ParseTable(data []byte) (*Table, error) {
	table := &Table{}
	var entryBytes int

	for pos := 0; pos+entrySize <= len(data); pos += entrySize {
		rec := data[pos : pos+entrySize]

		switch {
		case rec[0] == entryMagic0 && rec[1] == entryMagic1:
			name := rec[12 : 12+nameSize]
			if i := bytes.IndexByte(name, 0); i >= 0 {
				name = name[:i]
			}
			table.Entries = append(table.Entries, Partition{
				Name:    string(name),
				Type:    PartitionType(rec[2]),
				SubType: rec[3],
				Offset:  binary.LittleEndian.Uint32(rec[4:8]),
				Size:    binary.LittleEndian.Uint32(rec[8:12]),
				Flags:   binary.LittleEndian.Uint32(rec[28:32]),
			})
			entryBytes = pos + entrySize

		case rec[0] == digestMagic0 && rec[1] == digestMagic1:
			digest := md5.Sum(data[:entryBytes])
			if !bytes.Equal(digest[:], rec[entrySize-md5.Size:]) {
				return nil, fmt.Errorf("partition table checksum mismatch")
			}
			return table, tableNonEmpty(table)

		case rec[0] == 0xFF && rec[1] == 0xFF:
			return table, tableNonEmpty(table)

		default:
			return nil, fmt.Errorf("bad partition record magic 0x%02X%02X at 0x%X", rec[0], rec[1], pos)
		}
	}
	return table, tableNonEmpty(table)
}

func tableNonEmpty(t *Table) error {
	if len(t.Entries) == 0 {
		return fmt.Errorf("partition table has no entries")
	}
	return nil
}

// ParseCSV reads the esptool-style CSV description:
// name, type, subtype, offset, size, flags. '#' lines are comments;
// an empty offset means "first aligned address after the previous
// partition"; sizes accept K and M suffixes.
func ParseCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	table := &Table{}
	next := uint32(0)

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("partition CSV: %w", err)
		}
		if len(record) < 5 {
			return nil, fmt.Errorf("partition CSV: %q: need name,type,subtype,offset,size", strings.Join(record, ","))
		}

		name := strings.TrimSpace(record[0])

		ptype, err := parsePartType(strings.TrimSpace(record[1]))
		if err != nil {
			return nil, fmt.Errorf("partition %q: %w", name, err)
		}
		subtype, err := parseSubType(ptype, strings.TrimSpace(record[2]))
		if err != nil {
			return nil, fmt.Errorf("partition %q: %w", name, err)
		}

		size, err := parseSizeField(strings.TrimSpace(record[4]))
		if err != nil {
			return nil, fmt.Errorf("partition %q size: %w", name, err)
		}

		offset := next
		if field := strings.TrimSpace(record[3]); field != "" {
			offset, err = parseSizeField(field)
			if err != nil {
				return nil, fmt.Errorf("partition %q offset: %w", name, err)
			}
		} else if offset%SectorAlign != 0 {
			offset = (offset/SectorAlign + 1) * SectorAlign
		}

		var flags uint32
		if len(record) >= 6 && strings.TrimSpace(record[5]) == "encrypted" {
			flags = 1
		}

		table.Entries = append(table.Entries, Partition{
			Name:    name,
			Type:    ptype,
			SubType: subtype,
			Offset:  offset,
			Size:    size,
			Flags:   flags,
		})
		next = offset + size
	}

	return table, tableNonEmpty(table)
}

func parsePartType(s string) (PartitionType, error) {
	switch s {
	case "app":
		return TypeApp, nil
	case "data":
		return TypeData, nil
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown type %q", s)
	}
	return PartitionType(n), nil
}

func parseSubType(t PartitionType, s string) (byte, error) {
	named := map[string]byte{}
	switch t {
	case TypeApp:
		named = map[string]byte{"factory": SubTypeFactory, "ota_0": SubTypeOTA0, "ota_1": SubTypeOTA1}
	case TypeData:
		named = map[string]byte{"ota": SubTypeOTAData, "phy": SubTypePhy, "nvs": SubTypeNVS, "spiffs": SubTypeSPIFFS}
	}
	if v, ok := named[s]; ok {
		return v, nil
	}
	n, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown subtype %q", s)
	}
	return byte(n), nil
}

// parseSizeField parses a decimal, hex (0x) or K/M-suffixed value.
func parseSizeField(s string) (uint32, error) {
	mult := uint64(1)
	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "K"):
		mult = 1024
		s = s[:len(s)-1]
	case strings.HasSuffix(upper, "M"):
		mult = 1024 * 1024
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	n *= mult
	if n > 0xFFFFFFFF {
		return 0, fmt.Errorf("value %q out of range", s)
	}
	return uint32(n), nil
}
