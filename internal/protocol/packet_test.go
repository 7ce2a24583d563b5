package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestChecksum_Vector(t *testing.T) {
	// 0x01 ^ 0x02 ^ 0x03 = 0x00, so the seed survives unchanged.
	got := Checksum([]byte{0x01, 0x02, 0x03})
	if got != 0xEF {
		t.Errorf("Checksum = 0x%02X, want 0xEF", got)
	}
}

func TestChecksum_Empty(t *testing.T) {
	if got := Checksum(nil); got != ChecksumSeed {
		t.Errorf("Checksum(nil) = 0x%02X, want seed 0x%02X", got, ChecksumSeed)
	}
}

func TestRequest_Encode(t *testing.T) {
	req := NewRequest(CmdSync, []byte{0xAA, 0xBB})
	packet := req.Encode()

	if len(packet) != 10 {
		t.Fatalf("packet length = %d, want 10", len(packet))
	}
	if packet[0] != DirRequest {
		t.Errorf("direction = 0x%02X, want 0x%02X", packet[0], DirRequest)
	}
	if packet[1] != CmdSync {
		t.Errorf("command = 0x%02X, want 0x%02X", packet[1], CmdSync)
	}
	if size := binary.LittleEndian.Uint16(packet[2:4]); size != 2 {
		t.Errorf("size = %d, want 2", size)
	}
	if cksum := binary.LittleEndian.Uint32(packet[4:8]); cksum != 0 {
		t.Errorf("control command checksum = %d, want 0", cksum)
	}
	if !bytes.Equal(packet[8:], []byte{0xAA, 0xBB}) {
		t.Errorf("data = %v, want [0xAA 0xBB]", packet[8:])
	}
}

func TestDataRequest_ChecksumCoversBlockOnly(t *testing.T) {
	block := []byte{0x01, 0x02, 0x03}
	payload := DataPayload(block, 7)
	req := NewDataRequest(CmdFlashData, payload, block)

	if req.Checksum != 0xEF {
		t.Errorf("checksum = 0x%02X, want 0xEF (block bytes only)", req.Checksum)
	}
}

func TestDecodeResponse_Valid(t *testing.T) {
	// direction, command, size=4, value, data + status + error
	raw := []byte{
		DirResponse, CmdReadReg,
		0x04, 0x00,
		0x78, 0x56, 0x34, 0x12,
		0xDE, 0xAD, // data
		0x00, 0x00, // status, error
	}
	resp, err := DecodeResponse(raw)
	if err != nil {
		t.Fatalf("DecodeResponse error: %v", err)
	}
	if resp.Command != CmdReadReg {
		t.Errorf("command = 0x%02X, want 0x%02X", resp.Command, CmdReadReg)
	}
	if resp.Value != 0x12345678 {
		t.Errorf("value = 0x%08X, want 0x12345678", resp.Value)
	}
	if !bytes.Equal(resp.Data, []byte{0xDE, 0xAD}) {
		t.Errorf("data = %v, want [0xDE 0xAD]", resp.Data)
	}
	if !resp.IsSuccess() {
		t.Error("IsSuccess() = false, want true")
	}
}

func TestDecodeResponse_Failure(t *testing.T) {
	raw := []byte{
		DirResponse, CmdFlashData,
		0x02, 0x00,
		0x00, 0x00, 0x00, 0x00,
		0x01, ErrInvalidCRC,
	}
	resp, err := DecodeResponse(raw)
	if err != nil {
		t.Fatalf("DecodeResponse error: %v", err)
	}
	if resp.IsSuccess() {
		t.Error("IsSuccess() = true, want false")
	}
	if resp.Error != ErrInvalidCRC {
		t.Errorf("error code = 0x%02X, want 0x%02X", resp.Error, ErrInvalidCRC)
	}
}

func TestDecodeResponse_TooShort(t *testing.T) {
	if _, err := DecodeResponse([]byte{DirResponse, CmdSync}); err == nil {
		t.Error("DecodeResponse on short input: want error")
	}
}

func TestDecodeResponse_BadDirection(t *testing.T) {
	raw := make([]byte, 10)
	raw[0] = DirRequest
	if _, err := DecodeResponse(raw); err == nil {
		t.Error("DecodeResponse with request direction: want error")
	}
}

func TestSyncPayload(t *testing.T) {
	data := SyncPayload()
	if len(data) != 36 {
		t.Fatalf("length = %d, want 36", len(data))
	}
	if !bytes.Equal(data[:4], []byte{0x07, 0x07, 0x12, 0x20}) {
		t.Errorf("header = %v, want [0x07 0x07 0x12 0x20]", data[:4])
	}
	for i := 4; i < 36; i++ {
		if data[i] != 0x55 {
			t.Fatalf("data[%d] = 0x%02X, want 0x55", i, data[i])
		}
	}
}

func TestBeginPayload(t *testing.T) {
	data := BeginPayload(0x8000, 32, 0x400, 0x10000)
	if len(data) != 16 {
		t.Fatalf("length = %d, want 16", len(data))
	}
	if v := binary.LittleEndian.Uint32(data[0:4]); v != 0x8000 {
		t.Errorf("size = 0x%X, want 0x8000", v)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != 32 {
		t.Errorf("blocks = %d, want 32", v)
	}
	if v := binary.LittleEndian.Uint32(data[8:12]); v != 0x400 {
		t.Errorf("block size = 0x%X, want 0x400", v)
	}
	if v := binary.LittleEndian.Uint32(data[12:16]); v != 0x10000 {
		t.Errorf("offset = 0x%X, want 0x10000", v)
	}
}

func TestDataPayload(t *testing.T) {
	block := []byte{0x01, 0x02}
	data := DataPayload(block, 5)
	if len(data) != 18 {
		t.Fatalf("length = %d, want 18", len(data))
	}
	if v := binary.LittleEndian.Uint32(data[0:4]); v != 2 {
		t.Errorf("size = %d, want 2", v)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != 5 {
		t.Errorf("seq = %d, want 5", v)
	}
	if !bytes.Equal(data[16:], block) {
		t.Errorf("block = %v, want %v", data[16:], block)
	}
}

func TestMemEndPayload(t *testing.T) {
	data := MemEndPayload(0x4008_1000)
	if v := binary.LittleEndian.Uint32(data[0:4]); v != 0 {
		t.Errorf("flag = %d, want 0 (execute)", v)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != 0x40081000 {
		t.Errorf("entry = 0x%X, want 0x40081000", v)
	}

	data = MemEndPayload(0)
	if v := binary.LittleEndian.Uint32(data[0:4]); v != 1 {
		t.Errorf("flag = %d, want 1 (stay in loader)", v)
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{Attempts: 3, Backoff: 100}
	if d := p.Delay(0); d != 0 {
		t.Errorf("Delay(0) = %v, want 0", d)
	}
	if d := p.Delay(2); d != 200 {
		t.Errorf("Delay(2) = %v, want 200", d)
	}
}
