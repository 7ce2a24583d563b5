package image

import "fmt"

// OverlapError indicates two segments or partitions occupy the same
// flash range.
type OverlapError struct {
	First, Second string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%s overlaps %s", e.Second, e.First)
}

// AlignmentError indicates an offset or size that is not aligned to
// the flash sector size.
type AlignmentError struct {
	Name  string
	Value uint32
	Align uint32
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("%s: 0x%X is not aligned to 0x%X", e.Name, e.Value, e.Align)
}

// SizeError indicates content that does not fit the declared flash
// size.
type SizeError struct {
	Name string
	End  uint32
	Max  uint32
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s ends at 0x%X, beyond flash size 0x%X", e.Name, e.End, e.Max)
}
