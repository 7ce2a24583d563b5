package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/bigbag/espburn/internal/chip"
	"github.com/bigbag/espburn/internal/connection"
	"github.com/bigbag/espburn/internal/flasher"
	"github.com/bigbag/espburn/internal/image"
)

func runFlash(cmd *cobra.Command, args []string) error {
	session, portName, err := openSession(portFlag, baudFlag)
	if err != nil {
		return err
	}
	defer session.Close()
	log.Info().Str("port", portName).Stringer("chip", session.Variant()).Msg("connected")

	if err := prepare(session); err != nil {
		return err
	}

	var regions []flasher.Region

	if bootloaderFlag != "" {
		data, err := os.ReadFile(bootloaderFlag)
		if err != nil {
			return fmt.Errorf("read bootloader: %w", err)
		}
		regions = append(regions, flasher.Region{Name: "bootloader", Addr: bootloaderAddrFlag, Data: data})
	}

	if partTableFlag != "" {
		data, err := loadPartitionTable(partTableFlag, session.Variant())
		if err != nil {
			return err
		}
		regions = append(regions, flasher.Region{Name: "partition table", Addr: partTableAddrFlag, Data: data})
	}

	appRegions, err := loadFirmware(args[0], session.Variant())
	if err != nil {
		return err
	}
	regions = append(regions, appRegions...)

	return writeRegions(session, regions)
}

func runWriteBin(cmd *cobra.Command, args []string) error {
	addr, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("bad address %q: %w", args[0], err)
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	session, portName, err := openSession(portFlag, baudFlag)
	if err != nil {
		return err
	}
	defer session.Close()
	log.Info().Str("port", portName).Stringer("chip", session.Variant()).Msg("connected")

	if err := prepare(session); err != nil {
		return err
	}

	region := flasher.Region{Name: filepath.Base(args[1]), Addr: uint32(addr), Data: data}
	return writeRegions(session, []flasher.Region{region})
}

func writeRegions(session *connection.Session, regions []flasher.Region) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	for _, r := range regions {
		log.Info().Str("region", r.Name).
			Uint32("addr", r.Addr).Int("bytes", len(r.Data)).Msg("queued")
	}

	// The flasher reports progress in input bytes across all regions.
	bar := progressbar.NewOptions(0,
		progressbar.OptionSetDescription("Flashing"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	f := flasher.New(session,
		flasher.WithCompression(compressFlag),
		flasher.WithVerification(verifyFlag),
		flasher.WithProgress(func(current, total int) {
			if bar.GetMax() != total {
				bar.ChangeMax(total)
			}
			bar.Set(current)
		}),
	)

	if err := f.WriteRegions(ctx, regions, !noEraseFlag); err != nil {
		bar.Clear()
		return err
	}
	bar.Finish()

	log.Info().Msg("flash complete, rebooting")
	if err := f.Reboot(); err != nil {
		log.Warn().Err(err).Msg("reboot failed")
	}
	return nil
}

// loadFirmware turns the input file into flash regions. ELF is built
// into a firmware image at --addr, Intel HEX supplies its own
// addresses, anything else is flashed verbatim at --addr.
func loadFirmware(path string, variant chip.Variant) ([]flasher.Region, error) {
	name := filepath.Base(path)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".elf":
		segments, entry, err := image.LoadELF(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		data, err := buildImage(variant, segments, entry)
		if err != nil {
			return nil, fmt.Errorf("build image from %s: %w", name, err)
		}
		return []flasher.Region{{Name: name, Addr: addrFlag, Data: data}}, nil

	case ".hex", ".ihex":
		segments, err := image.LoadHex(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		regions := make([]flasher.Region, 0, len(segments))
		for _, seg := range segments {
			regions = append(regions, flasher.Region{
				Name: fmt.Sprintf("%s@0x%X", name, seg.Addr),
				Addr: seg.Addr,
				Data: seg.Data,
			})
		}
		return regions, nil

	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return []flasher.Region{{Name: name, Addr: addrFlag, Data: data}}, nil
	}
}

func buildImage(variant chip.Variant, segments []image.Segment, entry uint32) ([]byte, error) {
	mode, err := image.ParseFlashMode(flashModeFlag)
	if err != nil {
		return nil, err
	}
	freq, err := image.ParseFlashFreq(flashFreqFlag)
	if err != nil {
		return nil, err
	}
	size, err := image.ParseFlashSize(flashSizeFlag)
	if err != nil {
		return nil, err
	}

	im := &image.Image{
		Variant:      variant,
		Entry:        entry,
		Mode:         mode,
		Freq:         freq,
		Size:         size,
		HashAppended: hashFlag && variant != chip.ESP8266,
		Segments:     segments,
	}
	return im.Build()
}

func loadPartitionTable(path string, variant chip.Variant) ([]byte, error) {
	if strings.ToLower(filepath.Ext(path)) != ".csv" {
		return os.ReadFile(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	table, err := image.ParseCSV(f)
	if err != nil {
		return nil, err
	}
	return table.Build(variant.Params().DefaultFlashSize)
}
