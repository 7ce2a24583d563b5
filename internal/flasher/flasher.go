// Package flasher writes binary payloads into target flash through a
// connected session, chunking them into bootloader-sized blocks with
// optional compression and device-side verification.
package flasher

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/bigbag/espburn/internal/connection"
	"github.com/bigbag/espburn/internal/protocol"
)

// ProgressCallback is called after each acknowledged block. It runs
// synchronously between protocol exchanges and must return quickly.
type ProgressCallback func(current, total int)

// padByte fills the tail of the final block.
const padByte = 0xFF

// Flasher handles flashing firmware over an established session.
type Flasher struct {
	session  *connection.Session
	progress ProgressCallback
	compress bool
	verify   bool
}

// Option configures a Flasher.
type Option func(*Flasher)

// WithCompression enables compressed transfers where the active
// protocol level supports them (stub only; the ROM path silently
// stays raw).
func WithCompression(on bool) Option {
	return func(f *Flasher) { f.compress = on }
}

// WithVerification enables a device-side MD5 check after each write.
func WithVerification(on bool) Option {
	return func(f *Flasher) { f.verify = on }
}

// WithProgress sets the progress callback.
func WithProgress(cb ProgressCallback) Option {
	return func(f *Flasher) { f.progress = cb }
}

// New creates a Flasher for a session that has completed its
// handshake.
func New(session *connection.Session, opts ...Option) *Flasher {
	f := &Flasher{session: session}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Flasher) reportProgress(current, total int) {
	if f.progress != nil {
		f.progress(current, total)
	}
}

// connectedState is where the session returns after an operation.
func (f *Flasher) connectedState() connection.State {
	if f.session.StubActive() {
		return connection.StateConnectedStub
	}
	return connection.StateConnectedROM
}

// Write flashes data at the given address. When erase is requested the
// covering region is erased first (by the begin command on the ROM
// path, explicitly on the stub path). The context is checked between
// blocks; on cancellation the end command is still sent so the device
// is left consistent, and ErrCancelled is returned.
func (f *Flasher) Write(ctx context.Context, addr uint32, data []byte, erase bool) error {
	if len(data) == 0 {
		return fmt.Errorf("empty payload")
	}
	if err := f.session.Transition(connection.StateFlashing); err != nil {
		return err
	}

	err := f.write(ctx, addr, data, erase)

	// Whatever happened, the session goes back to a connected state;
	// the caller decides whether to retry the region.
	f.session.Transition(f.connectedState())
	if err != nil {
		return err
	}

	if f.verify {
		if err := f.session.Transition(connection.StateVerifying); err != nil {
			return err
		}
		err = f.verifyRegion(addr, data)
		f.session.Transition(f.connectedState())
		return err
	}
	return nil
}

func (f *Flasher) write(ctx context.Context, addr uint32, data []byte, erase bool) error {
	variant := f.session.Variant()
	stubActive := f.session.StubActive()
	blockSize := variant.BlockSize(stubActive)

	compressed := f.compress && stubActive
	payload := data
	if compressed {
		var err error
		payload, err = deflate(data)
		if err != nil {
			return fmt.Errorf("compress payload: %w", err)
		}
	}

	numBlocks := (uint32(len(payload)) + blockSize - 1) / blockSize

	if erase && stubActive {
		// The stub does not erase on begin; clear the region first.
		if err := f.eraseRegion(addr, uint32(len(data))); err != nil {
			return err
		}
	}

	beginCmd := byte(protocol.CmdFlashBegin)
	dataCmd := byte(protocol.CmdFlashData)
	endCmd := byte(protocol.CmdFlashEnd)
	beginSize := variant.EraseSize(addr, numBlocks*blockSize)
	if compressed {
		beginCmd = protocol.CmdFlashDeflBegin
		dataCmd = protocol.CmdFlashDeflData
		endCmd = protocol.CmdFlashDeflEnd
		// The begin command carries the pre-compression size; the
		// device tracks decompressed output against it.
		beginSize = uint32(len(data))
	}

	begin := protocol.BeginPayload(beginSize, numBlocks, blockSize, addr)
	if _, err := f.session.Command(beginCmd, begin, protocol.EraseRetry); err != nil {
		return fmt.Errorf("flash begin at 0x%X: %w", addr, err)
	}

	sent := false
	for seq := uint32(0); seq < numBlocks; seq++ {
		if ctx.Err() != nil {
			f.finish(endCmd, sent)
			return ErrCancelled
		}

		start := seq * blockSize
		end := start + blockSize
		if end > uint32(len(payload)) {
			end = uint32(len(payload))
		}
		block := payload[start:end]
		if uint32(len(block)) < blockSize {
			padded := make([]byte, blockSize)
			copy(padded, block)
			for i := len(block); i < int(blockSize); i++ {
				padded[i] = padByte
			}
			block = padded
		}

		blockPayload := protocol.DataPayload(block, seq)
		if _, err := f.session.DataCommand(dataCmd, blockPayload, block, protocol.WriteRetry); err != nil {
			f.finish(endCmd, sent)
			return &WriteError{Sequence: seq, Err: err}
		}
		sent = true

		f.reportProgress(int(seq)+1, int(numBlocks))
	}

	if _, err := f.session.Command(endCmd, protocol.FlashEndPayload(false), protocol.DefaultRetry); err != nil {
		return fmt.Errorf("flash end: %w", err)
	}
	return nil
}

// finish sends a best-effort end command after an aborted write, so
// the loader drops out of its data-receiving state.
func (f *Flasher) finish(endCmd byte, sent bool) {
	if !sent {
		return
	}
	f.session.Command(endCmd, protocol.FlashEndPayload(false), protocol.RetryPolicy{
		Attempts: 1,
		Timeout:  protocol.DefaultRetry.Timeout,
	})
}

// eraseRegion erases a sector-aligned region covering size bytes at
// addr. Stub protocol only.
func (f *Flasher) eraseRegion(addr, size uint32) error {
	sector := f.session.Variant().Params().FlashSectorSize
	aligned := (size + sector - 1) / sector * sector
	payload := protocol.EraseRegionPayload(addr, aligned)
	if _, err := f.session.Command(protocol.CmdEraseRegion, payload, protocol.EraseRetry); err != nil {
		return fmt.Errorf("erase region at 0x%X: %w", addr, err)
	}
	return nil
}

// verifyRegion asks the device for an MD5 of the written region and
// compares it with the digest of the intended content.
func (f *Flasher) verifyRegion(addr uint32, data []byte) error {
	sum := md5.Sum(data)
	expected := hex.EncodeToString(sum[:])

	resp, err := f.session.Command(protocol.CmdSpiFlashMD5,
		protocol.MD5Payload(addr, uint32(len(data))), protocol.VerifyRetry)
	if err != nil {
		return fmt.Errorf("flash MD5: %w", err)
	}

	actual, err := digestString(resp.Data)
	if err != nil {
		return err
	}
	if actual != expected {
		return &VerifyError{Address: addr, Expected: expected, Actual: actual}
	}
	return nil
}

// digestString normalizes the two response forms: the ROM returns 16
// raw digest bytes, the stub 32 ASCII hex characters.
func digestString(data []byte) (string, error) {
	switch {
	case len(data) >= 32:
		return string(data[:32]), nil
	case len(data) >= 16:
		return hex.EncodeToString(data[:16]), nil
	default:
		return "", fmt.Errorf("short MD5 response: %d bytes", len(data))
	}
}

// Region is one named range to flash.
type Region struct {
	Name string
	Addr uint32
	Data []byte
}

// WriteRegions flashes multiple regions in sequence, reporting
// progress in bytes of input data across the combined size. Byte
// counts stay comparable between regions even when compression shrinks
// the transferred payloads by different ratios.
func (f *Flasher) WriteRegions(ctx context.Context, regions []Region, erase bool) error {
	totalBytes := 0
	for _, r := range regions {
		totalBytes += len(r.Data)
	}

	outer := f.progress
	doneBytes := 0
	for _, region := range regions {
		size := len(region.Data)
		f.progress = func(current, total int) {
			if outer != nil && total > 0 {
				outer(doneBytes+size*current/total, totalBytes)
			}
		}
		err := f.Write(ctx, region.Addr, region.Data, erase)
		f.progress = outer
		if err != nil {
			return fmt.Errorf("flash %s at 0x%X: %w", region.Name, region.Addr, err)
		}
		doneBytes += size
	}
	return nil
}

// Reboot asks the loader to reboot into the application and pulses the
// reset line for boards that ignore the soft reboot.
func (f *Flasher) Reboot() error {
	f.session.Command(protocol.CmdFlashEnd, protocol.FlashEndPayload(true), protocol.RetryPolicy{
		Attempts: 1,
		Timeout:  protocol.DefaultRetry.Timeout,
	})
	return f.session.HardReset()
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
