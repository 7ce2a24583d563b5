package chip

import "testing"

func TestLookup(t *testing.T) {
	cases := []struct {
		magic uint32
		want  Variant
	}{
		{0xFFF0C101, ESP8266},
		{0x00F01D83, ESP32},
		{0x000007C6, ESP32S2},
		{0x00000009, ESP32S3},
		{0x6921506F, ESP32C3},
		{0x1B31506F, ESP32C3},
	}

	for _, tc := range cases {
		got, ok := Lookup(tc.magic)
		if !ok || got != tc.want {
			t.Errorf("Lookup(0x%08X) = %v, %v, want %v", tc.magic, got, ok, tc.want)
		}
	}

	if _, ok := Lookup(0xDEADBEEF); ok {
		t.Error("Lookup(0xDEADBEEF) ok = true, want false")
	}
}

func TestParse(t *testing.T) {
	for _, name := range []string{"ESP32-C3", "esp32c3", "Esp32_c3"} {
		v, ok := Parse(name)
		if !ok || v != ESP32C3 {
			t.Errorf("Parse(%q) = %v, %v", name, v, ok)
		}
	}
	if _, ok := Parse("ESP99"); ok {
		t.Error("Parse(ESP99) ok = true, want false")
	}
}

func TestBlockSize(t *testing.T) {
	if got := ESP32.BlockSize(false); got != 0x400 {
		t.Errorf("ROM block size = 0x%X, want 0x400", got)
	}
	if got := ESP32.BlockSize(true); got != 0x4000 {
		t.Errorf("stub block size = 0x%X, want 0x4000", got)
	}
}

func TestEraseSize_PassThrough(t *testing.T) {
	if got := ESP32.EraseSize(0x10000, 0x5000); got != 0x5000 {
		t.Errorf("ESP32 erase size = 0x%X, want 0x5000", got)
	}
}

func TestEraseSize_Workaround(t *testing.T) {
	// Small region at the start of flash: the ROM double-counts, so
	// only half the sectors are requested.
	if got := ESP8266.EraseSize(0, 0x2000); got != 0x1000 {
		t.Errorf("ESP8266 erase size = 0x%X, want 0x1000", got)
	}
	// Region past the first block boundary: head sectors subtracted.
	if got := ESP8266.EraseSize(0, 0x30000); got != 0x20000 {
		t.Errorf("ESP8266 erase size = 0x%X, want 0x20000", got)
	}
}

func TestEveryVariantHasStub(t *testing.T) {
	for _, v := range Variants() {
		if v.Params().StubName == "" {
			t.Errorf("%v has no stub name", v)
		}
	}
}
