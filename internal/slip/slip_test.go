package slip

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncode_EmptyData(t *testing.T) {
	result := Encode(nil)
	expected := []byte{End, End}
	if !bytes.Equal(result, expected) {
		t.Errorf("Encode(nil) = %v, want %v", result, expected)
	}

	result = Encode([]byte{})
	if !bytes.Equal(result, expected) {
		t.Errorf("Encode([]) = %v, want %v", result, expected)
	}
}

func TestEncode_NoSpecialBytes(t *testing.T) {
	input := []byte{0x01, 0x02, 0x03, 0x04}
	result := Encode(input)
	expected := []byte{End, 0x01, 0x02, 0x03, 0x04, End}
	if !bytes.Equal(result, expected) {
		t.Errorf("Encode(%v) = %v, want %v", input, result, expected)
	}
}

func TestEncode_SpecialBytes(t *testing.T) {
	// 0xC0 -> 0xDB 0xDC, 0xDB -> 0xDB 0xDD
	input := []byte{End, Esc, 0x01}
	result := Encode(input)
	expected := []byte{End, Esc, EscEnd, Esc, EscEsc, 0x01, End}
	if !bytes.Equal(result, expected) {
		t.Errorf("Encode(%v) = %v, want %v", input, result, expected)
	}
}

func TestDecode_ValidFrame(t *testing.T) {
	frame := []byte{End, 0x01, 0x02, 0x03, End}
	result, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode(%v) error: %v", frame, err)
	}
	expected := []byte{0x01, 0x02, 0x03}
	if !bytes.Equal(result, expected) {
		t.Errorf("Decode(%v) = %v, want %v", frame, result, expected)
	}
}

func TestDecode_UnescapeEndByte(t *testing.T) {
	frame := []byte{End, 0x01, Esc, EscEnd, 0x03, End}
	result, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode(%v) error: %v", frame, err)
	}
	expected := []byte{0x01, End, 0x03}
	if !bytes.Equal(result, expected) {
		t.Errorf("Decode(%v) = %v, want %v", frame, result, expected)
	}
}

func TestDecode_UnescapeEscByte(t *testing.T) {
	frame := []byte{End, 0x01, Esc, EscEsc, 0x03, End}
	result, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode(%v) error: %v", frame, err)
	}
	expected := []byte{0x01, Esc, 0x03}
	if !bytes.Equal(result, expected) {
		t.Errorf("Decode(%v) = %v, want %v", frame, result, expected)
	}
}

func TestDecode_InvalidEscape(t *testing.T) {
	frame := []byte{End, 0x01, Esc, 0xFF, 0x03, End}
	_, err := Decode(frame)
	var fe *FramingError
	if !errors.As(err, &fe) {
		t.Fatalf("Decode(%v) error = %v, want FramingError", frame, err)
	}
	if fe.Byte != 0xFF {
		t.Errorf("FramingError byte = 0x%02X, want 0xFF", fe.Byte)
	}
}

func TestDecode_DanglingEscape(t *testing.T) {
	frame := []byte{End, 0x01, Esc, End}
	_, err := Decode(frame)
	var fe *FramingError
	if !errors.As(err, &fe) {
		t.Fatalf("Decode(%v) error = %v, want FramingError", frame, err)
	}
}

func TestDecode_TooShort(t *testing.T) {
	for _, frame := range [][]byte{nil, {End}, {End, End}} {
		result, err := Decode(frame)
		if err != nil {
			t.Errorf("Decode(%v) error: %v", frame, err)
		}
		if result != nil {
			t.Errorf("Decode(%v) = %v, want nil", frame, result)
		}
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	testCases := [][]byte{
		{0x00},
		{0x01, 0x02, 0x03},
		{End},
		{Esc},
		{End, Esc},
		{0x00, End, 0x00, Esc, 0x00},
		{0xFF, 0xFE, 0xFD},
		// Large data
		make([]byte, 256),
	}

	for i, tc := range testCases {
		encoded := Encode(tc)
		decoded, err := Decode(encoded)
		if err != nil {
			t.Errorf("Case %d: Decode error: %v", i, err)
			continue
		}
		if !bytes.Equal(decoded, tc) {
			t.Errorf("Case %d: RoundTrip(%v) = %v, want %v", i, tc, decoded, tc)
		}
	}
}

func TestDecoder_SingleFrame(t *testing.T) {
	var d Decoder
	d.Feed([]byte{End, 0x01, 0x02, 0x03, End})

	payload, err := d.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	expected := []byte{0x01, 0x02, 0x03}
	if !bytes.Equal(payload, expected) {
		t.Errorf("Next() = %v, want %v", payload, expected)
	}

	payload, err = d.Next()
	if err != nil || payload != nil {
		t.Errorf("Next() after drain = %v, %v, want nil, nil", payload, err)
	}
}

func TestDecoder_IncrementalFeed(t *testing.T) {
	var d Decoder
	frame := Encode([]byte{0x01, End, Esc, 0x04})

	for i, b := range frame {
		d.Feed([]byte{b})
		payload, err := d.Next()
		if err != nil {
			t.Fatalf("Next() after byte %d error: %v", i, err)
		}
		if i < len(frame)-1 {
			if payload != nil {
				t.Fatalf("Next() after byte %d = %v, want nil (incomplete)", i, payload)
			}
			continue
		}
		expected := []byte{0x01, End, Esc, 0x04}
		if !bytes.Equal(payload, expected) {
			t.Errorf("Next() = %v, want %v", payload, expected)
		}
	}
}

func TestDecoder_SkipsLeadingNoise(t *testing.T) {
	var d Decoder
	d.Feed([]byte{'b', 'o', 'o', 't', End, 0x0A, End})

	payload, err := d.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if !bytes.Equal(payload, []byte{0x0A}) {
		t.Errorf("Next() = %v, want [0x0A]", payload)
	}
}

func TestDecoder_MultipleFrames(t *testing.T) {
	var d Decoder
	d.Feed(append(Encode([]byte{0x01}), Encode([]byte{0x02})...))

	for _, want := range []byte{0x01, 0x02} {
		payload, err := d.Next()
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		if !bytes.Equal(payload, []byte{want}) {
			t.Errorf("Next() = %v, want [0x%02X]", payload, want)
		}
	}
}

func TestFramingVector(t *testing.T) {
	// Encoding [0xC0, 0xDB, 0x01] must yield
	// [0xC0, 0xDB 0xDC, 0xDB 0xDD, 0x01, 0xC0].
	input := []byte{0xC0, 0xDB, 0x01}
	expected := []byte{0xC0, 0xDB, 0xDC, 0xDB, 0xDD, 0x01, 0xC0}
	result := Encode(input)
	if !bytes.Equal(result, expected) {
		t.Errorf("Encode(%v) = %v, want %v", input, result, expected)
	}
}
