package connection

import "time"

// Transport is the byte channel a session talks through. A session
// owns its transport exclusively from New until Close.
//
// Read returns the bytes available within the timeout; a timeout is
// reported as (0, nil), matching serial-port semantics. DTR/RTS drive
// the reset and boot-strapping circuit of the target board.
type Transport interface {
	Read(p []byte, timeout time.Duration) (int, error)
	Write(p []byte) (int, error)
	SetBaudRate(baud int) error
	SetDTR(value bool) error
	SetRTS(value bool) error
	Flush() error
	Close() error
}
