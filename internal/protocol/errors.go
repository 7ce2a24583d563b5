package protocol

import "fmt"

// TimeoutError indicates that a command received no matching response
// within the retry budget.
type TimeoutError struct {
	Command  byte
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command 0x%02X timed out after %d attempts", e.Command, e.Attempts)
}

// DeviceError indicates that the device answered with a non-zero
// status. Device-rejected commands are never retried.
type DeviceError struct {
	Command byte
	Status  byte
	Code    byte
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("command 0x%02X rejected: status=0x%02X error=0x%02X (%s)",
		e.Command, e.Status, e.Code, ErrorMessage(e.Code))
}
