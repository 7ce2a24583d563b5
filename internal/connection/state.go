package connection

import "fmt"

// State is the connection lifecycle phase. All observers of protocol
// readiness go through the session's state; there is no other shared
// flag.
type State int

const (
	StateDisconnected State = iota
	StateResetting
	StateSyncing
	StateConnectedROM
	StateUploadingStub
	StateConnectedStub
	StateFlashing
	StateVerifying
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateResetting:
		return "resetting"
	case StateSyncing:
		return "syncing"
	case StateConnectedROM:
		return "connected (ROM)"
	case StateUploadingStub:
		return "uploading stub"
	case StateConnectedStub:
		return "connected (stub)"
	case StateFlashing:
		return "flashing"
	case StateVerifying:
		return "verifying"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Connected reports whether a command set is available.
func (s State) Connected() bool {
	return s == StateConnectedROM || s == StateConnectedStub
}

var legalTransitions = map[State][]State{
	StateDisconnected:  {StateResetting},
	StateResetting:     {StateSyncing, StateError, StateDisconnected},
	StateSyncing:       {StateConnectedROM, StateError, StateDisconnected},
	StateConnectedROM:  {StateUploadingStub, StateFlashing, StateVerifying, StateError, StateDisconnected},
	StateUploadingStub: {StateConnectedStub, StateConnectedROM, StateError, StateDisconnected},
	StateConnectedStub: {StateFlashing, StateVerifying, StateError, StateDisconnected},
	StateFlashing:      {StateConnectedROM, StateConnectedStub, StateVerifying, StateError, StateDisconnected},
	StateVerifying:     {StateConnectedROM, StateConnectedStub, StateError, StateDisconnected},
	StateError:         {StateDisconnected},
}

func (s State) canTransition(to State) bool {
	for _, t := range legalTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// TransitionError reports an attempt to drive the session through an
// illegal state change.
type TransitionError struct {
	From, To State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}
