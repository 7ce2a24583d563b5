package image

import (
	"fmt"
	"io"
	"os"

	"github.com/marcinbor85/gohex"
)

// LoadHex extracts segments from an Intel HEX file.
func LoadHex(path string) ([]Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadHex(f)
}

// ReadHex extracts segments from Intel HEX content.
func ReadHex(r io.Reader) ([]Segment, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("parse Intel HEX: %w", err)
	}

	var segments []Segment
	for _, seg := range mem.GetDataSegments() {
		segments = append(segments, Segment{Addr: seg.Address, Data: seg.Data})
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("no data records")
	}

	return NormalizeSegments(segments)
}
