package protocol

// Serial bootloader commands. The ROM loader understands the 0x02-0x14
// range; the 0xD0-0xD3 range exists only once the RAM stub is running.
const (
	CmdFlashBegin      = 0x02
	CmdFlashData       = 0x03
	CmdFlashEnd        = 0x04
	CmdMemBegin        = 0x05
	CmdMemEnd          = 0x06
	CmdMemData         = 0x07
	CmdSync            = 0x08
	CmdWriteReg        = 0x09
	CmdReadReg         = 0x0A
	CmdSpiSetParams    = 0x0B
	CmdSpiAttach       = 0x0D
	CmdChangeBaud      = 0x0F
	CmdFlashDeflBegin  = 0x10
	CmdFlashDeflData   = 0x11
	CmdFlashDeflEnd    = 0x12
	CmdSpiFlashMD5     = 0x13
	CmdGetSecurityInfo = 0x14

	// Stub-only commands
	CmdEraseFlash  = 0xD0
	CmdEraseRegion = 0xD1
	CmdReadFlash   = 0xD2
	CmdRunUserCode = 0xD3
)

// Direction byte values
const (
	DirRequest  = 0x00
	DirResponse = 0x01
)

// ChecksumSeed is the initial value of the running XOR checksum
// applied to the data portion of write commands.
const ChecksumSeed = 0xEF

// Checksum computes the bootloader checksum over a block of data:
// the seed exclusive-ORed with every byte.
func Checksum(data []byte) byte {
	c := byte(ChecksumSeed)
	for _, b := range data {
		c ^= b
	}
	return c
}

// Error codes reported by the ROM bootloader in response frames.
const (
	ErrInvalidMessage  = 0x05
	ErrFailedToAct     = 0x06
	ErrInvalidCRC      = 0x07
	ErrFlashWriteErr   = 0x08
	ErrFlashReadErr    = 0x09
	ErrFlashReadLenErr = 0x0A
	ErrDeflateError    = 0x0B
)

// ErrorMessage returns human-readable error message for a
// device-reported error code.
func ErrorMessage(code byte) string {
	switch code {
	case ErrInvalidMessage:
		return "invalid message"
	case ErrFailedToAct:
		return "failed to act"
	case ErrInvalidCRC:
		return "invalid CRC"
	case ErrFlashWriteErr:
		return "flash write error"
	case ErrFlashReadErr:
		return "flash read error"
	case ErrFlashReadLenErr:
		return "flash read length error"
	case ErrDeflateError:
		return "deflate error"
	default:
		return "unknown error"
	}
}
