// Package slip implements the SLIP framing used by the ESP serial
// bootloader: frames are delimited by END bytes and the two special
// bytes are escaped inside the payload.
package slip

import "fmt"

const (
	End    = 0xC0
	Esc    = 0xDB
	EscEnd = 0xDC
	EscEsc = 0xDD
)

// FramingError reports a malformed escape sequence inside a frame.
type FramingError struct {
	Offset int
	Byte   byte
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("slip: invalid escape 0x%02X at offset %d", e.Byte, e.Offset)
}

// Encode wraps data in SLIP framing.
// Adds END byte at start and end, escapes special bytes.
func Encode(data []byte) []byte {
	// Pre-allocate with some extra space for escapes
	result := make([]byte, 0, len(data)+10)
	result = append(result, End)

	for _, b := range data {
		switch b {
		case End:
			result = append(result, Esc, EscEnd)
		case Esc:
			result = append(result, Esc, EscEsc)
		default:
			result = append(result, b)
		}
	}

	result = append(result, End)
	return result
}

// Decode extracts the payload from one complete SLIP frame, including
// its END delimiters. An escape byte followed by anything other than
// EscEnd/EscEsc, or a dangling escape at the end of the frame, is a
// framing error.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) < 2 {
		return nil, nil
	}

	// Strip leading/trailing END bytes
	start := 0
	end := len(frame)

	for start < end && frame[start] == End {
		start++
	}
	for end > start && frame[end-1] == End {
		end--
	}

	if start >= end {
		return nil, nil
	}

	return unescape(frame[start:end])
}

func unescape(data []byte) ([]byte, error) {
	result := make([]byte, 0, len(data))

	for i := 0; i < len(data); i++ {
		b := data[i]
		if b != Esc {
			result = append(result, b)
			continue
		}
		if i+1 >= len(data) {
			return nil, &FramingError{Offset: i, Byte: Esc}
		}
		i++
		switch data[i] {
		case EscEnd:
			result = append(result, End)
		case EscEsc:
			result = append(result, Esc)
		default:
			return nil, &FramingError{Offset: i, Byte: data[i]}
		}
	}

	return result, nil
}

// Decoder accumulates raw transport bytes and yields complete frames.
// The zero value is ready to use.
type Decoder struct {
	buf []byte
}

// Feed appends raw bytes read from the transport.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next returns the payload of the next complete frame, or nil when the
// buffered data does not yet contain one. Bytes before the opening
// delimiter are discarded (the ROM interleaves boot chatter with
// frames).
func (d *Decoder) Next() ([]byte, error) {
	for {
		frame, remaining, ok := splitFrame(d.buf)
		d.buf = remaining
		if !ok {
			return nil, nil
		}

		payload, err := unescape(frame)
		if err != nil {
			return nil, err
		}
		if len(payload) == 0 {
			// Empty frame between back-to-back delimiters; keep scanning.
			continue
		}
		return payload, nil
	}
}

// splitFrame extracts the contents of the first complete frame,
// returning the inner bytes (delimiters stripped) and the leftover
// input. ok is false when no complete frame is buffered yet; leading
// noise before the first delimiter is trimmed in that case.
func splitFrame(data []byte) (frame, remaining []byte, ok bool) {
	start := -1
	for i, b := range data {
		if b == End {
			start = i
			break
		}
	}
	if start == -1 {
		// No delimiter at all; drop the noise.
		return nil, nil, false
	}

	inFrame := false
	for i := start; i < len(data); i++ {
		if data[i] != End {
			inFrame = true
			continue
		}
		if inFrame {
			return data[start+1 : i], data[i+1:], true
		}
		start = i
	}

	return nil, data[start:], false
}
