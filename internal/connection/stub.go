package connection

import (
	"bytes"
	"fmt"

	"github.com/bigbag/espburn/internal/protocol"
	"github.com/bigbag/espburn/internal/stub"
)

// stubGreeting is the frame the stub emits once it is running.
var stubGreeting = []byte("OHAI")

// UploadStub transfers the variant's RAM loader into the target and
// jumps to it, upgrading the session to the stub command set. On any
// failure the session stays on the ROM command set; the error reports
// why the upgrade was skipped, and flashing remains fully functional
// at ROM block sizes.
func (s *Session) UploadStub() error {
	if s.state != StateConnectedROM {
		return &TransitionError{From: s.state, To: StateUploadingStub}
	}

	im, err := stub.Load(s.variant.Params().StubName)
	if err != nil {
		return err
	}

	s.state = StateUploadingStub
	if err := s.uploadStub(im); err != nil {
		// Graceful degradation: the ROM loader is still in charge.
		s.state = StateConnectedROM
		return err
	}

	s.stub = true
	s.state = StateConnectedStub
	return nil
}

func (s *Session) uploadStub(im *stub.Image) error {
	blockSize := s.variant.Params().RAMBlockSize

	for _, section := range im.Sections() {
		numBlocks := (uint32(len(section.Data)) + blockSize - 1) / blockSize

		begin := protocol.BeginPayload(uint32(len(section.Data)), numBlocks, blockSize, section.Addr)
		if _, err := s.Command(protocol.CmdMemBegin, begin, s.retry); err != nil {
			return fmt.Errorf("mem begin at 0x%08X: %w", section.Addr, err)
		}

		for seq := uint32(0); seq < numBlocks; seq++ {
			start := seq * blockSize
			end := start + blockSize
			if end > uint32(len(section.Data)) {
				end = uint32(len(section.Data))
			}
			block := section.Data[start:end]

			payload := protocol.DataPayload(block, seq)
			if _, err := s.DataCommand(protocol.CmdMemData, payload, block, s.retry); err != nil {
				return fmt.Errorf("mem data block %d: %w", seq, err)
			}
		}
	}

	if _, err := s.Command(protocol.CmdMemEnd, protocol.MemEndPayload(im.Entry), s.retry); err != nil {
		return fmt.Errorf("mem end: %w", err)
	}

	return s.waitStubGreeting()
}

// waitStubGreeting waits for the running stub to announce itself.
func (s *Session) waitStubGreeting() error {
	buf := make([]byte, 64)
	for i := 0; i < 10; i++ {
		for {
			payload, err := s.decoder.Next()
			if err != nil {
				continue
			}
			if payload == nil {
				break
			}
			if bytes.Equal(payload, stubGreeting) {
				return nil
			}
		}
		n, err := s.transport.Read(buf, readSlice)
		if n > 0 {
			s.decoder.Feed(buf[:n])
		}
		if err != nil {
			return fmt.Errorf("transport read: %w", err)
		}
	}
	return fmt.Errorf("stub did not announce itself")
}
