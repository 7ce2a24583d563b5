package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bigbag/espburn/internal/config"
	"github.com/bigbag/espburn/internal/serial"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var log zerolog.Logger

var (
	portFlag      string
	baudFlag      int
	flashBaudFlag int
	chipFlag      string
	verboseFlag   bool

	addrFlag     uint32
	noStubFlag   bool
	verifyFlag   bool
	compressFlag bool
	noEraseFlag  bool

	bootloaderFlag     string
	bootloaderAddrFlag uint32
	partTableFlag      string
	partTableAddrFlag  uint32

	outputFlag    string
	flashModeFlag string
	flashFreqFlag string
	flashSizeFlag string
	entryFlag     uint32
	hashFlag      bool
)

func main() {
	log = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
	}).With().Timestamp().Logger().Level(zerolog.InfoLevel)

	cfg, err := config.Discover()
	if err != nil {
		log.Fatal().Err(err).Msg("bad config file")
	}

	rootCmd := &cobra.Command{
		Use:   "espburn",
		Short: "Flash firmware to Espressif devices over serial",
		Long: `espburn talks to the serial bootloader of ESP8266 and ESP32-family
devices: it detects the chip, uploads the flasher stub, and writes
firmware images built from ELF, Intel HEX or raw binary input.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verboseFlag {
				log = log.Level(zerolog.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Debug logging")

	serialFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVarP(&portFlag, "port", "p", cfg.Port, "Serial port (scan if not specified)")
		cmd.Flags().IntVarP(&baudFlag, "baud", "b", cfg.Baud, "Baud rate for the handshake")
	}

	flashCmd := &cobra.Command{
		Use:   "flash <firmware.elf|firmware.hex|firmware.bin>",
		Short: "Flash firmware to a device",
		Long: `Flash firmware to a device.

ELF input is converted to a bootable firmware image and written at
--addr. Intel HEX input is written segment by segment at the addresses
it carries. Raw binary input is written verbatim at --addr.`,
		Args: cobra.ExactArgs(1),
		RunE: runFlash,
	}
	serialFlags(flashCmd)
	flashCmd.Flags().IntVar(&flashBaudFlag, "flash-baud", cfg.FlashBaud, "Baud rate for data transfer (stub only)")
	flashCmd.Flags().Uint32Var(&addrFlag, "addr", 0x10000, "Flash offset for the application")
	flashCmd.Flags().BoolVar(&noStubFlag, "no-stub", false, "Talk to the ROM loader only")
	flashCmd.Flags().BoolVar(&verifyFlag, "verify", cfg.Verify, "Verify flash contents after writing")
	flashCmd.Flags().BoolVar(&compressFlag, "compress", cfg.Compress, "Compress transfers (stub only)")
	flashCmd.Flags().BoolVar(&noEraseFlag, "no-erase", false, "Skip erasing the target regions")
	flashCmd.Flags().StringVar(&bootloaderFlag, "bootloader", "", "Bootloader binary to flash")
	flashCmd.Flags().Uint32Var(&bootloaderAddrFlag, "bootloader-addr", 0x1000, "Flash offset for the bootloader")
	flashCmd.Flags().StringVar(&partTableFlag, "partition-table", "", "Partition table (CSV or binary) to flash")
	flashCmd.Flags().Uint32Var(&partTableAddrFlag, "partition-table-addr", 0x8000, "Flash offset for the partition table")
	flashCmd.Flags().StringVar(&flashModeFlag, "flash-mode", cfg.FlashMode, "SPI flash mode (qio, qout, dio, dout)")
	flashCmd.Flags().StringVar(&flashFreqFlag, "flash-freq", cfg.FlashFreq, "SPI flash frequency (20m, 26m, 40m, 80m)")
	flashCmd.Flags().StringVar(&flashSizeFlag, "flash-size", cfg.FlashSize, "SPI flash size (1MB .. 16MB)")
	flashCmd.Flags().BoolVar(&hashFlag, "hash", true, "Append SHA256 digest to built images (not on ESP8266)")

	writeBinCmd := &cobra.Command{
		Use:   "write-bin <addr> <file.bin>",
		Short: "Write a raw binary at a flash offset",
		Args:  cobra.ExactArgs(2),
		RunE:  runWriteBin,
	}
	serialFlags(writeBinCmd)
	writeBinCmd.Flags().IntVar(&flashBaudFlag, "flash-baud", cfg.FlashBaud, "Baud rate for data transfer (stub only)")
	writeBinCmd.Flags().BoolVar(&noStubFlag, "no-stub", false, "Talk to the ROM loader only")
	writeBinCmd.Flags().BoolVar(&verifyFlag, "verify", cfg.Verify, "Verify flash contents after writing")
	writeBinCmd.Flags().BoolVar(&compressFlag, "compress", cfg.Compress, "Compress transfers (stub only)")
	writeBinCmd.Flags().BoolVar(&noEraseFlag, "no-erase", false, "Skip erasing the target region")
	writeBinCmd.Flags().StringVar(&flashSizeFlag, "flash-size", cfg.FlashSize, "SPI flash size (1MB .. 16MB)")

	imageCmd := &cobra.Command{
		Use:   "image <input.elf|input.hex>",
		Short: "Build a bootable firmware image",
		Args:  cobra.ExactArgs(1),
		RunE:  runImage,
	}
	imageCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output file (required)")
	imageCmd.Flags().StringVar(&chipFlag, "chip", cfg.Chip, "Target chip (esp8266, esp32, esp32s2, esp32s3, esp32c3)")
	imageCmd.Flags().StringVar(&flashModeFlag, "flash-mode", cfg.FlashMode, "SPI flash mode")
	imageCmd.Flags().StringVar(&flashFreqFlag, "flash-freq", cfg.FlashFreq, "SPI flash frequency")
	imageCmd.Flags().StringVar(&flashSizeFlag, "flash-size", cfg.FlashSize, "SPI flash size")
	imageCmd.Flags().Uint32Var(&entryFlag, "entry", 0, "Entry point (required for HEX input)")
	imageCmd.Flags().BoolVar(&hashFlag, "hash", true, "Append SHA256 digest (not on ESP8266)")
	imageCmd.MarkFlagRequired("output")

	partitionCmd := &cobra.Command{
		Use:   "partition <table.csv|table.bin>",
		Short: "Build or inspect a partition table",
		Long: `Build or inspect a partition table.

CSV input is validated and serialized to the binary table format;
binary input is parsed, checksum-verified and printed.`,
		Args: cobra.ExactArgs(1),
		RunE: runPartition,
	}
	partitionCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output file (required for CSV input)")
	partitionCmd.Flags().StringVar(&flashSizeFlag, "flash-size", cfg.FlashSize, "Flash size bound for validation")

	readRegCmd := &cobra.Command{
		Use:   "read-reg <addr>",
		Short: "Read a 32-bit register on the target",
		Args:  cobra.ExactArgs(1),
		RunE:  runReadReg,
	}
	serialFlags(readRegCmd)

	writeRegCmd := &cobra.Command{
		Use:   "write-reg <addr> <value>",
		Short: "Write a 32-bit register on the target",
		Args:  cobra.ExactArgs(2),
		RunE:  runWriteReg,
	}
	serialFlags(writeRegCmd)

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show connected device info",
		RunE:  runInfo,
	}
	serialFlags(infoCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available serial ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := serial.ListPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				fmt.Println("No serial ports found")
				return nil
			}
			for _, p := range ports {
				fmt.Println(p)
			}
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("espburn %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}

	rootCmd.AddCommand(flashCmd, writeBinCmd, imageCmd, partitionCmd,
		readRegCmd, writeRegCmd, infoCmd, listCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
