package image

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
	"os"
)

// LoadELF extracts the loadable segments and entry point from an ELF
// executable. Symbol and debug sections are ignored.
func LoadELF(path string) ([]Segment, uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	return readELF(f)
}

// LoadELFBytes is LoadELF over an in-memory executable.
func LoadELFBytes(data []byte) ([]Segment, uint32, error) {
	return readELF(bytes.NewReader(data))
}

func readELF(r io.ReaderAt) ([]Segment, uint32, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, 0, fmt.Errorf("parse ELF: %w", err)
	}
	defer f.Close()

	var segments []Segment
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD || prog.Filesz == 0 {
			continue
		}

		data := make([]byte, prog.Filesz)
		if _, err := io.ReadFull(prog.Open(), data); err != nil {
			return nil, 0, fmt.Errorf("read segment at 0x%X: %w", prog.Paddr, err)
		}

		// The physical address is where the bytes live in flash/ROM;
		// linkers that don't distinguish leave it zero.
		addr := prog.Paddr
		if addr == 0 {
			addr = prog.Vaddr
		}
		segments = append(segments, Segment{Addr: uint32(addr), Data: data})
	}

	if len(segments) == 0 {
		return nil, 0, fmt.Errorf("no loadable segments")
	}

	segments, err = NormalizeSegments(segments)
	if err != nil {
		return nil, 0, err
	}
	return segments, uint32(f.Entry), nil
}
