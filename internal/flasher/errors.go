package flasher

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned when the caller's context is cancelled
// mid-write. The device is left in a consistent state first.
var ErrCancelled = errors.New("flash write cancelled")

// WriteError indicates a data block was rejected or timed out. The
// write is aborted; the caller must restart the affected region.
type WriteError struct {
	Sequence uint32
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("flash write failed at block %d: %v", e.Sequence, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// VerifyError indicates the device-side digest of the written region
// does not match the intended content.
type VerifyError struct {
	Address  uint32
	Expected string
	Actual   string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verification failed at 0x%X: expected MD5 %s, device reports %s",
		e.Address, e.Expected, e.Actual)
}
