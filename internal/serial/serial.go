// Package serial adapts go.bug.st/serial ports to the session
// transport interface.
package serial

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// Port is an open serial port. It satisfies connection.Transport.
type Port struct {
	port serial.Port
	name string
	baud int
}

// Open opens a serial port in 8N1 mode at the given baud rate.
func Open(name string, baud int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open port %s: %w", name, err)
	}

	return &Port{port: port, name: name, baud: baud}, nil
}

// Read reads whatever arrives within the timeout. An expired timeout
// is reported as (0, nil).
func (p *Port) Read(buf []byte, timeout time.Duration) (int, error) {
	if err := p.port.SetReadTimeout(timeout); err != nil {
		return 0, err
	}
	return p.port.Read(buf)
}

// Write writes data to the port.
func (p *Port) Write(data []byte) (int, error) {
	return p.port.Write(data)
}

// SetBaudRate reconfigures the port speed, keeping 8N1 framing.
func (p *Port) SetBaudRate(baud int) error {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if err := p.port.SetMode(mode); err != nil {
		return fmt.Errorf("set baud rate %d: %w", baud, err)
	}
	p.baud = baud
	return nil
}

// SetDTR sets the DTR signal.
func (p *Port) SetDTR(value bool) error {
	return p.port.SetDTR(value)
}

// SetRTS sets the RTS signal.
func (p *Port) SetRTS(value bool) error {
	return p.port.SetRTS(value)
}

// Flush discards any buffered input.
func (p *Port) Flush() error {
	return p.port.ResetInputBuffer()
}

// Close closes the port.
func (p *Port) Close() error {
	if p.port == nil {
		return nil
	}
	return p.port.Close()
}

// Name returns the port name.
func (p *Port) Name() string {
	return p.name
}

// BaudRate returns the current baud rate.
func (p *Port) BaudRate() int {
	return p.baud
}

// ListPorts returns the available serial ports.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
