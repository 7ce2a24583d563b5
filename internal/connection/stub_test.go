package connection

import (
	"testing"

	"github.com/bigbag/espburn/internal/protocol"
	"github.com/bigbag/espburn/internal/slip"
)

func stubHandler(magic uint32, greet bool) func(t *simTransport, req simRequest) {
	rom := romHandler(magic)
	return func(t *simTransport, req simRequest) {
		rom(t, req)
		if req.Command == protocol.CmdMemEnd && greet {
			t.rx.Write(slip.Encode([]byte("OHAI")))
		}
	}
}

func TestUploadStub_Success(t *testing.T) {
	sim := newSimTransport(stubHandler(0x00F01D83, true))
	s := connectedSession(t, sim)

	if err := s.UploadStub(); err != nil {
		t.Fatalf("UploadStub() error: %v", err)
	}
	if s.State() != StateConnectedStub {
		t.Errorf("state = %v, want %v", s.State(), StateConnectedStub)
	}
	if !s.StubActive() {
		t.Error("StubActive() = false, want true")
	}

	// The loader must have seen begin/data/end for the text section at
	// minimum, and exactly one entry-point jump.
	if sim.countRequests(protocol.CmdMemBegin) == 0 {
		t.Error("no MEM_BEGIN sent")
	}
	if sim.countRequests(protocol.CmdMemData) == 0 {
		t.Error("no MEM_DATA sent")
	}
	if got := sim.countRequests(protocol.CmdMemEnd); got != 1 {
		t.Errorf("MEM_END sent %d times, want 1", got)
	}
}

func TestUploadStub_NoGreetingDegrades(t *testing.T) {
	sim := newSimTransport(stubHandler(0x00F01D83, false))
	s := connectedSession(t, sim)

	if err := s.UploadStub(); err == nil {
		t.Fatal("UploadStub() without greeting: want error")
	}
	if s.State() != StateConnectedROM {
		t.Errorf("state = %v, want %v (graceful degradation)", s.State(), StateConnectedROM)
	}
	if s.StubActive() {
		t.Error("StubActive() = true after failed upload")
	}
}

func TestUploadStub_RejectedWriteDegrades(t *testing.T) {
	sim := newSimTransport(nil)
	sim.handler = func(tr *simTransport, req simRequest) {
		if req.Command == protocol.CmdMemData {
			tr.respond(req.Command, 0, nil, 1, protocol.ErrInvalidCRC)
			return
		}
		romHandler(0x00F01D83)(tr, req)
	}
	s := connectedSession(t, sim)

	if err := s.UploadStub(); err == nil {
		t.Fatal("UploadStub() with rejected block: want error")
	}
	if s.State() != StateConnectedROM {
		t.Errorf("state = %v, want %v", s.State(), StateConnectedROM)
	}
}

func TestUploadStub_RequiresROMState(t *testing.T) {
	s := New(newSimTransport(nil), 115200)
	if err := s.UploadStub(); err == nil {
		t.Error("UploadStub() while disconnected: want error")
	}
}
