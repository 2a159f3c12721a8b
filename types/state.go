package types

// State represents the concentrator lifecycle state.
//
//	StateStopped → StateStarted → StateStopped → ... → StateDisposed
//
// StateDisposed is terminal.
type State int

const (
	// StateStopped indicates sorting and publication are disabled.
	StateStopped State = iota

	// StateStarted indicates sorting and publication are enabled.
	StateStarted

	// StateDisposed indicates the concentrator has released its resources.
	StateDisposed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarted:
		return "Started"
	case StateDisposed:
		return "Disposed"
	default:
		return "Unknown"
	}
}

// ParseState converts a state name produced by String back into a State.
func ParseState(name string) (State, bool) {
	switch name {
	case "Stopped":
		return StateStopped, true
	case "Started":
		return StateStarted, true
	case "Disposed":
		return StateDisposed, true
	default:
		return StateStopped, false
	}
}
