// Package image builds and parses the flashable firmware image format
// and the binary partition table, and extracts loadable segments from
// ELF and Intel HEX executables.
package image

import (
	"fmt"
	"sort"
)

// Segment is a contiguous block of program bytes destined for a
// specific load address.
type Segment struct {
	Addr uint32
	Data []byte
}

// End returns the address one past the segment's last byte.
func (s Segment) End() uint32 {
	return s.Addr + uint32(len(s.Data))
}

// NormalizeSegments sorts segments by address, merges adjacent ones,
// and rejects empty or overlapping segments.
func NormalizeSegments(segments []Segment) ([]Segment, error) {
	for _, s := range segments {
		if len(s.Data) == 0 {
			return nil, fmt.Errorf("segment at 0x%08X is empty", s.Addr)
		}
	}

	sorted := make([]Segment, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Addr < sorted[j].Addr })

	var out []Segment
	for _, s := range sorted {
		if len(out) == 0 {
			out = append(out, Segment{Addr: s.Addr, Data: append([]byte(nil), s.Data...)})
			continue
		}
		last := &out[len(out)-1]
		switch {
		case s.Addr < last.End():
			return nil, &OverlapError{
				First:  fmt.Sprintf("segment at 0x%08X", last.Addr),
				Second: fmt.Sprintf("segment at 0x%08X", s.Addr),
			}
		case s.Addr == last.End():
			last.Data = append(last.Data, s.Data...)
		default:
			out = append(out, Segment{Addr: s.Addr, Data: append([]byte(nil), s.Data...)})
		}
	}
	return out, nil
}

// validateSegments checks the build-time invariant without merging:
// non-empty, sorted, non-overlapping.
func validateSegments(segments []Segment) error {
	for i, s := range segments {
		if len(s.Data) == 0 {
			return fmt.Errorf("segment at 0x%08X is empty", s.Addr)
		}
		if i == 0 {
			continue
		}
		prev := segments[i-1]
		if s.Addr < prev.Addr {
			return fmt.Errorf("segments not sorted: 0x%08X after 0x%08X", s.Addr, prev.Addr)
		}
		if s.Addr < prev.End() {
			return &OverlapError{
				First:  fmt.Sprintf("segment at 0x%08X", prev.Addr),
				Second: fmt.Sprintf("segment at 0x%08X", s.Addr),
			}
		}
	}
	return nil
}
