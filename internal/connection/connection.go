// Package connection drives the handshake with the ESP serial
// bootloader and owns the per-session state: transport, chip variant
// and active protocol level. Every protocol exchange of the other
// packages goes through a Session.
package connection

import (
	"errors"
	"fmt"
	"time"

	"github.com/bigbag/espburn/internal/chip"
	"github.com/bigbag/espburn/internal/protocol"
	"github.com/bigbag/espburn/internal/slip"
)

// errResponseTimeout marks a single attempt that saw no matching
// response. The exchange loop converts it into protocol.TimeoutError
// once the retry budget is spent.
var errResponseTimeout = errors.New("no response within timeout")

const readSlice = 50 * time.Millisecond

// Session is one exclusive conversation with a target device.
// Not safe for concurrent use; the protocol is half-duplex.
type Session struct {
	transport Transport
	state     State
	variant   chip.Variant
	stub      bool
	baud      int
	decoder   slip.Decoder

	syncAttempts int
	retry        protocol.RetryPolicy
}

// Option configures a Session.
type Option func(*Session)

// WithSyncAttempts bounds the synchronization probes sent before the
// handshake is declared failed.
func WithSyncAttempts(n int) Option {
	return func(s *Session) { s.syncAttempts = n }
}

// WithRetryPolicy sets the default policy for control commands.
func WithRetryPolicy(p protocol.RetryPolicy) Option {
	return func(s *Session) { s.retry = p }
}

// New creates a session owning the given transport, which must already
// be open at the given baud rate.
func New(t Transport, baud int, opts ...Option) *Session {
	s := &Session{
		transport:    t,
		state:        StateDisconnected,
		baud:         baud,
		syncAttempts: 10,
		retry:        protocol.DefaultRetry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current connection state.
func (s *Session) State() State { return s.state }

// Variant returns the chip variant resolved during the handshake.
func (s *Session) Variant() chip.Variant { return s.variant }

// StubActive reports whether the uploaded stub's command set is in use.
func (s *Session) StubActive() bool { return s.stub }

// Baud returns the rate the transport currently runs at.
func (s *Session) Baud() int { return s.baud }

// Transition moves the session to a new state, enforcing the legal
// transition table.
func (s *Session) Transition(to State) error {
	if !s.state.canTransition(to) {
		return &TransitionError{From: s.state, To: to}
	}
	s.state = to
	return nil
}

// Connect resets the target into its ROM bootloader, synchronizes,
// and identifies the chip variant. On return the session is in
// StateConnectedROM.
func (s *Session) Connect() error {
	if err := s.Transition(StateResetting); err != nil {
		return err
	}
	if err := s.enterBootloader(); err != nil {
		s.state = StateError
		return fmt.Errorf("reset into bootloader: %w", err)
	}

	s.state = StateSyncing
	if err := s.sync(); err != nil {
		s.state = StateError
		return err
	}
	s.state = StateConnectedROM

	magic, err := s.ReadReg(chip.DetectMagicReg)
	if err != nil {
		s.state = StateError
		return fmt.Errorf("read chip id: %w", err)
	}
	variant, ok := chip.Lookup(magic)
	if !ok {
		s.state = StateError
		return &UnknownChipError{Magic: magic}
	}
	s.variant = variant

	if variant.Params().SupportsSpiAttach {
		if _, err := s.Command(protocol.CmdSpiAttach, protocol.SpiAttachPayload(), s.retry); err != nil {
			s.state = StateError
			return fmt.Errorf("attach SPI flash: %w", err)
		}
	}

	return nil
}

// enterBootloader toggles DTR/RTS through the classic auto-reset
// sequence: hold the chip in reset, strap the boot pin, release.
func (s *Session) enterBootloader() error {
	steps := []struct {
		rts, dtr bool
		hold     time.Duration
	}{
		{true, false, 100 * time.Millisecond}, // assert reset
		{false, true, 50 * time.Millisecond},  // strap boot pin, release reset
		{true, false, 50 * time.Millisecond},  // release boot pin
		{false, false, 0},
	}
	for _, st := range steps {
		if err := s.transport.SetRTS(st.rts); err != nil {
			return err
		}
		if err := s.transport.SetDTR(st.dtr); err != nil {
			return err
		}
		time.Sleep(st.hold)
	}

	// Drop the boot chatter emitted during reset.
	s.transport.Flush()
	s.decoder = slip.Decoder{}
	time.Sleep(100 * time.Millisecond)
	return nil
}

// sync probes the loader until it echoes the SYNC command.
func (s *Session) sync() error {
	req := protocol.NewRequest(protocol.CmdSync, protocol.SyncPayload())
	frame := slip.Encode(req.Encode())

	for attempt := 0; attempt < s.syncAttempts; attempt++ {
		s.transport.Flush()
		if _, err := s.transport.Write(frame); err != nil {
			continue
		}

		if _, err := s.readResponse(protocol.CmdSync, protocol.SyncRetry.Timeout); err != nil {
			continue
		}

		// The ROM answers a single SYNC many times; drain the echoes
		// so they are not mistaken for later responses.
		for i := 0; i < 7; i++ {
			if _, err := s.readResponse(protocol.CmdSync, readSlice); err != nil {
				break
			}
		}
		return nil
	}

	return &SyncError{Attempts: s.syncAttempts}
}

// Command sends a control command and waits for its response,
// retrying per the policy. Device-rejected commands are returned
// immediately without retry.
func (s *Session) Command(cmd byte, data []byte, policy protocol.RetryPolicy) (*protocol.Response, error) {
	return s.exchange(protocol.NewRequest(cmd, data), policy)
}

// DataCommand sends a write command whose checksum covers the block
// bytes carried in the payload.
func (s *Session) DataCommand(cmd byte, data, block []byte, policy protocol.RetryPolicy) (*protocol.Response, error) {
	return s.exchange(protocol.NewDataRequest(cmd, data, block), policy)
}

func (s *Session) exchange(req *protocol.Request, policy protocol.RetryPolicy) (*protocol.Response, error) {
	frame := slip.Encode(req.Encode())

	for attempt := 0; attempt < policy.Attempts; attempt++ {
		if d := policy.Delay(attempt); d > 0 {
			time.Sleep(d)
		}

		if _, err := s.transport.Write(frame); err != nil {
			continue
		}

		resp, err := s.readResponse(req.Command, policy.Timeout)
		if err == nil {
			return resp, nil
		}

		var devErr *protocol.DeviceError
		if errors.As(err, &devErr) {
			// Retrying a rejected command is not assumed safe.
			return nil, err
		}
	}

	return nil, &protocol.TimeoutError{Command: req.Command, Attempts: policy.Attempts}
}

// readResponse reads frames until one matches the expected command or
// the timeout elapses. Mismatched and malformed frames are discarded:
// the device interleaves asynchronous status output with responses.
func (s *Session) readResponse(cmd byte, timeout time.Duration) (*protocol.Response, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 1024)

	for {
		for {
			payload, err := s.decoder.Next()
			if err != nil {
				// One corrupt frame; skip it and keep reading.
				break
			}
			if payload == nil {
				break
			}
			resp, err := protocol.DecodeResponse(payload)
			if err != nil || resp.Command != cmd {
				continue
			}
			if resp.Status != 0 {
				return nil, &protocol.DeviceError{Command: cmd, Status: resp.Status, Code: resp.Error}
			}
			return resp, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, errResponseTimeout
		}
		slice := readSlice
		if remaining < slice {
			slice = remaining
		}

		n, err := s.transport.Read(buf, slice)
		if n > 0 {
			s.decoder.Feed(buf[:n])
		}
		if err != nil {
			return nil, fmt.Errorf("transport read: %w", err)
		}
	}
}

// ReadReg reads a 32-bit register on the target.
func (s *Session) ReadReg(addr uint32) (uint32, error) {
	resp, err := s.Command(protocol.CmdReadReg, protocol.ReadRegPayload(addr), s.retry)
	if err != nil {
		return 0, err
	}
	return resp.Value, nil
}

// WriteReg writes a 32-bit register on the target.
func (s *Session) WriteReg(addr, value uint32) error {
	_, err := s.Command(protocol.CmdWriteReg, protocol.WriteRegPayload(addr, value, 0xFFFFFFFF, 0), s.retry)
	return err
}

// SetFlashParams declares the attached flash geometry to the loader.
// Needed when the real flash size differs from the variant default.
func (s *Session) SetFlashParams(size uint32) error {
	_, err := s.Command(protocol.CmdSpiSetParams, protocol.SpiSetParamsPayload(size), s.retry)
	return err
}

// ChangeBaud renegotiates the session rate. Only valid once connected;
// any failure is fatal because host and device may no longer agree.
func (s *Session) ChangeBaud(baud int) error {
	if !s.state.Connected() {
		return fmt.Errorf("change baud: not connected (state %s)", s.state)
	}

	prior := uint32(0)
	if s.stub {
		// The stub needs the current rate to recompute its divisor.
		prior = uint32(s.baud)
	}

	if _, err := s.Command(protocol.CmdChangeBaud, protocol.ChangeBaudPayload(uint32(baud), prior), s.retry); err != nil {
		s.state = StateError
		return &BaudChangeError{Baud: baud, Err: err}
	}

	if err := s.transport.SetBaudRate(baud); err != nil {
		s.state = StateError
		return &BaudChangeError{Baud: baud, Err: err}
	}
	time.Sleep(50 * time.Millisecond)
	s.transport.Flush()
	s.decoder = slip.Decoder{}

	// Re-verify with a lightweight read before trusting the new rate.
	if _, err := s.ReadReg(chip.DetectMagicReg); err != nil {
		s.state = StateError
		return &BaudChangeError{Baud: baud, Err: err}
	}

	s.baud = baud
	return nil
}

// HardReset pulses the reset line to reboot into the user application.
func (s *Session) HardReset() error {
	if err := s.transport.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return s.transport.SetRTS(false)
}

// Close resets the device (best effort) and releases the transport.
// Safe on every exit path, including failed handshakes.
func (s *Session) Close() error {
	if s.state != StateDisconnected {
		s.HardReset()
	}
	s.state = StateDisconnected
	return s.transport.Close()
}
