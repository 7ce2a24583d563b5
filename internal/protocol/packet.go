// Package protocol builds and parses the packets of the ESP serial
// bootloader protocol and defines its retry policy and error taxonomy.
// Packets travel inside SLIP frames; see the slip package.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Request represents a bootloader request packet.
type Request struct {
	Command  byte
	Data     []byte
	Checksum uint32
}

// Response represents a bootloader response packet.
type Response struct {
	Command byte
	Data    []byte
	Value   uint32
	Status  byte
	Error   byte
}

// NewRequest creates a control request. Control commands carry a zero
// checksum; only the write commands checksum their data portion.
func NewRequest(cmd byte, data []byte) *Request {
	return &Request{Command: cmd, Data: data}
}

// NewDataRequest creates a write request whose checksum field covers
// the given block bytes (not the payload header preceding them).
func NewDataRequest(cmd byte, data, block []byte) *Request {
	return &Request{
		Command:  cmd,
		Data:     data,
		Checksum: uint32(Checksum(block)),
	}
}

// Encode serializes the request to bytes (before SLIP encoding).
func (r *Request) Encode() []byte {
	// Packet format:
	// 0: direction (0x00 = request)
	// 1: command
	// 2-3: data size (little-endian)
	// 4-7: checksum (little-endian, only for data commands)
	// 8+: data

	packet := make([]byte, 8+len(r.Data))

	packet[0] = DirRequest
	packet[1] = r.Command
	binary.LittleEndian.PutUint16(packet[2:4], uint16(len(r.Data)))
	binary.LittleEndian.PutUint32(packet[4:8], r.Checksum)
	copy(packet[8:], r.Data)

	return packet
}

// DecodeResponse parses a response from raw bytes (after SLIP decoding).
func DecodeResponse(data []byte) (*Response, error) {
	// Minimum response is 8 bytes header + 2 bytes status
	if len(data) < 10 {
		return nil, fmt.Errorf("response too short: %d bytes", len(data))
	}

	if data[0] != DirResponse {
		return nil, fmt.Errorf("invalid direction byte: 0x%02X", data[0])
	}

	resp := &Response{
		Command: data[1],
	}

	dataSize := binary.LittleEndian.Uint16(data[2:4])
	resp.Value = binary.LittleEndian.Uint32(data[4:8])

	if int(dataSize) > len(data)-8 {
		return nil, fmt.Errorf("data size mismatch: expected %d, have %d", dataSize, len(data)-8)
	}

	if dataSize >= 2 {
		// Last two bytes are status and error
		resp.Data = data[8 : 8+dataSize-2]
		resp.Status = data[8+dataSize-2]
		resp.Error = data[8+dataSize-1]
	} else if dataSize > 0 {
		resp.Data = data[8 : 8+dataSize]
	}

	return resp, nil
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status == 0
}

// SyncPayload returns the data payload for a SYNC command:
// 0x07 0x07 0x12 0x20 followed by 32 bytes of 0x55.
func SyncPayload() []byte {
	data := make([]byte, 36)
	data[0] = 0x07
	data[1] = 0x07
	data[2] = 0x12
	data[3] = 0x20
	for i := 4; i < 36; i++ {
		data[i] = 0x55
	}
	return data
}

// BeginPayload creates the payload shared by FLASH_BEGIN, MEM_BEGIN and
// FLASH_DEFL_BEGIN: total size, block count, block size, destination.
func BeginPayload(size, numBlocks, blockSize, offset uint32) []byte {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint32(data[0:4], size)
	binary.LittleEndian.PutUint32(data[4:8], numBlocks)
	binary.LittleEndian.PutUint32(data[8:12], blockSize)
	binary.LittleEndian.PutUint32(data[12:16], offset)
	return data
}

// DataPayload creates the payload shared by FLASH_DATA, MEM_DATA and
// FLASH_DEFL_DATA. The block must already be padded to the block size.
func DataPayload(block []byte, seq uint32) []byte {
	// Header: size (4) + seq (4) + reserved (8)
	payload := make([]byte, 16+len(block))
	binary.LittleEndian.PutUint32(payload[0:4], uint32(len(block)))
	binary.LittleEndian.PutUint32(payload[4:8], seq)
	copy(payload[16:], block)
	return payload
}

// FlashEndPayload creates the payload for FLASH_END / FLASH_DEFL_END.
func FlashEndPayload(reboot bool) []byte {
	data := make([]byte, 4)
	if !reboot {
		binary.LittleEndian.PutUint32(data, 1) // 1 = stay in bootloader
	}
	return data
}

// MemEndPayload creates the payload for MEM_END. A non-zero entry
// makes the loader jump to it.
func MemEndPayload(entry uint32) []byte {
	data := make([]byte, 8)
	if entry == 0 {
		binary.LittleEndian.PutUint32(data[0:4], 1) // stay in loader
	}
	binary.LittleEndian.PutUint32(data[4:8], entry)
	return data
}

// ReadRegPayload creates the payload for READ_REG.
func ReadRegPayload(addr uint32) []byte {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, addr)
	return data
}

// WriteRegPayload creates the payload for WRITE_REG.
func WriteRegPayload(addr, value, mask, delay uint32) []byte {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint32(data[0:4], addr)
	binary.LittleEndian.PutUint32(data[4:8], value)
	binary.LittleEndian.PutUint32(data[8:12], mask)
	binary.LittleEndian.PutUint32(data[12:16], delay)
	return data
}

// ChangeBaudPayload creates the payload for CHANGE_BAUD. prior is the
// rate currently in use, zero while still talking to the ROM loader.
func ChangeBaudPayload(baud, prior uint32) []byte {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], baud)
	binary.LittleEndian.PutUint32(data[4:8], prior)
	return data
}

// EraseRegionPayload creates the payload for the stub's ERASE_REGION.
func EraseRegionPayload(addr, size uint32) []byte {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], addr)
	binary.LittleEndian.PutUint32(data[4:8], size)
	return data
}

// MD5Payload creates the payload for SPI_FLASH_MD5.
func MD5Payload(address, size uint32) []byte {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint32(data[0:4], address)
	binary.LittleEndian.PutUint32(data[4:8], size)
	return data
}

// SpiAttachPayload creates the payload for SPI_ATTACH. All zeros means
// the default SPI flash configuration.
func SpiAttachPayload() []byte {
	return make([]byte, 8)
}

// SpiSetParamsPayload creates the payload for SPI_SET_PARAMS for a
// flash of the given total size.
func SpiSetParamsPayload(size uint32) []byte {
	data := make([]byte, 24)
	// id, total size, block size, sector size, page size, status mask
	binary.LittleEndian.PutUint32(data[4:8], size)
	binary.LittleEndian.PutUint32(data[8:12], 64*1024)
	binary.LittleEndian.PutUint32(data[12:16], 4*1024)
	binary.LittleEndian.PutUint32(data[16:20], 256)
	binary.LittleEndian.PutUint32(data[20:24], 0xFFFF)
	return data
}
