package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bigbag/espburn/internal/chip"
	"github.com/bigbag/espburn/internal/image"
)

func runImage(cmd *cobra.Command, args []string) error {
	chipName := chipFlag
	if chipName == "" {
		chipName = "esp32"
	}
	variant, ok := chip.Parse(chipName)
	if !ok {
		return fmt.Errorf("unknown chip %q", chipName)
	}

	var (
		segments []image.Segment
		entry    uint32
		err      error
	)
	switch strings.ToLower(filepath.Ext(args[0])) {
	case ".hex", ".ihex":
		segments, err = image.LoadHex(args[0])
		entry = entryFlag
	default:
		segments, entry, err = image.LoadELF(args[0])
		if entryFlag != 0 {
			entry = entryFlag
		}
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", args[0], err)
	}

	data, err := buildImage(variant, segments, entry)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outputFlag, data, 0o644); err != nil {
		return err
	}

	log.Info().Str("output", outputFlag).Int("bytes", len(data)).
		Int("segments", len(segments)).Stringer("chip", variant).Msg("image built")
	return nil
}

func runPartition(cmd *cobra.Command, args []string) error {
	if strings.ToLower(filepath.Ext(args[0])) == ".csv" {
		return buildPartitionTable(args[0])
	}
	return printPartitionTable(args[0])
}

func buildPartitionTable(path string) error {
	if outputFlag == "" {
		return fmt.Errorf("--output is required for CSV input")
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	table, err := image.ParseCSV(f)
	if err != nil {
		return err
	}

	size, err := image.ParseFlashSize(flashSizeFlag)
	if err != nil {
		return err
	}
	data, err := table.Build(size.Bytes())
	if err != nil {
		return err
	}

	if err := os.WriteFile(outputFlag, data, 0o644); err != nil {
		return err
	}
	log.Info().Str("output", outputFlag).Int("entries", len(table.Entries)).Msg("partition table built")
	return nil
}

func printPartitionTable(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	table, err := image.ParseTable(data)
	if err != nil {
		return err
	}

	fmt.Printf("%-16s %-6s %-8s %-10s %-10s %s\n", "Name", "Type", "SubType", "Offset", "Size", "Flags")
	for _, p := range table.Entries {
		fmt.Printf("%-16s %-6s 0x%-6X 0x%-8X 0x%-8X 0x%X\n",
			p.Name, p.Type, p.SubType, p.Offset, p.Size, p.Flags)
	}
	return nil
}
