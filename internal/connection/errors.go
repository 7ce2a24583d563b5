package connection

import "fmt"

// SyncError indicates the target never answered the synchronization
// probe. Fatal to the session.
type SyncError struct {
	Attempts int
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed after %d attempts", e.Attempts)
}

// UnknownChipError indicates the identification register returned a
// value outside the supported variant table.
type UnknownChipError struct {
	Magic uint32
}

func (e *UnknownChipError) Error() string {
	return fmt.Sprintf("unrecognized chip: magic 0x%08X", e.Magic)
}

// BaudChangeError indicates the host and device could not agree on a
// new rate. Fatal to the session: the two sides may now disagree.
type BaudChangeError struct {
	Baud int
	Err  error
}

func (e *BaudChangeError) Error() string {
	return fmt.Sprintf("baud change to %d failed: %v", e.Baud, e.Err)
}

func (e *BaudChangeError) Unwrap() error { return e.Err }
