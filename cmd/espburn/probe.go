package main

import (
	"fmt"
	"strconv"

	"github.com/bigbag/espburn/internal/connection"
	"github.com/bigbag/espburn/internal/image"
	"github.com/bigbag/espburn/internal/serial"
	"github.com/spf13/cobra"
)

// openSession opens the chosen port and completes the bootloader
// handshake. With no --port it probes every listed port and keeps the
// first that answers.
func openSession(portName string, baud int) (*connection.Session, string, error) {
	if portName != "" {
		session, err := connect(portName, baud)
		return session, portName, err
	}

	ports, err := serial.ListPorts()
	if err != nil {
		return nil, "", err
	}
	if len(ports) == 0 {
		return nil, "", fmt.Errorf("no serial ports found")
	}

	for _, name := range ports {
		log.Debug().Str("port", name).Msg("probing")
		session, err := connect(name, baud)
		if err == nil {
			return session, name, nil
		}
		log.Debug().Str("port", name).Err(err).Msg("no device")
	}
	return nil, "", fmt.Errorf("no device answered on %d port(s)", len(ports))
}

func connect(portName string, baud int) (*connection.Session, error) {
	port, err := serial.Open(portName, baud)
	if err != nil {
		return nil, err
	}

	session := connection.New(port, baud)
	if err := session.Connect(); err != nil {
		session.Close()
		return nil, err
	}
	return session, nil
}

// prepare runs the post-handshake steps shared by the writing
// commands: stub upload and the transfer baud change.
func prepare(session *connection.Session) error {
	if !noStubFlag {
		if err := session.UploadStub(); err != nil {
			log.Warn().Err(err).Msg("stub upload failed, staying on ROM loader")
		} else {
			log.Info().Msg("stub running")
		}
	}

	if session.StubActive() && flashBaudFlag > baudFlag {
		if err := session.ChangeBaud(flashBaudFlag); err != nil {
			return fmt.Errorf("baud change: %w", err)
		}
		log.Info().Int("baud", flashBaudFlag).Msg("transfer baud set")
	}

	// The loader assumes the variant's default flash size; tell it the
	// real geometry when the configured size differs.
	if size, err := image.ParseFlashSize(flashSizeFlag); err == nil {
		params := session.Variant().Params()
		if params.SupportsSpiAttach && size.Bytes() != params.DefaultFlashSize {
			if err := session.SetFlashParams(size.Bytes()); err != nil {
				return fmt.Errorf("set flash parameters: %w", err)
			}
			log.Info().Str("size", flashSizeFlag).Msg("flash size set")
		}
	}
	return nil
}

func runReadReg(cmd *cobra.Command, args []string) error {
	addr, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("bad register address %q: %w", args[0], err)
	}

	session, _, err := openSession(portFlag, baudFlag)
	if err != nil {
		return err
	}
	defer session.Close()

	value, err := session.ReadReg(uint32(addr))
	if err != nil {
		return err
	}
	fmt.Printf("0x%08X\n", value)
	return nil
}

func runWriteReg(cmd *cobra.Command, args []string) error {
	addr, err := strconv.ParseUint(args[0], 0, 32)
	if err != nil {
		return fmt.Errorf("bad register address %q: %w", args[0], err)
	}
	value, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		return fmt.Errorf("bad register value %q: %w", args[1], err)
	}

	session, _, err := openSession(portFlag, baudFlag)
	if err != nil {
		return err
	}
	defer session.Close()

	return session.WriteReg(uint32(addr), uint32(value))
}

func runInfo(cmd *cobra.Command, args []string) error {
	session, portName, err := openSession(portFlag, baudFlag)
	if err != nil {
		return err
	}
	defer session.Close()

	params := session.Variant().Params()
	fmt.Printf("Port:        %s @ %d baud\n", portName, session.Baud())
	fmt.Printf("Chip:        %s\n", params.Name)
	fmt.Printf("Flash size:  %d MB (default)\n", params.DefaultFlashSize/(1024*1024))
	fmt.Printf("Block size:  0x%X (ROM) / 0x%X (stub)\n", params.ROMBlockSize, params.StubBlockSize)
	return nil
}
