package session

// State represents the registration state of a session.
type State uint8

const (
	// StateIdle is the initial state before registration is requested.
	StateIdle State = iota

	// StateRegistering indicates a register request is outstanding.
	StateRegistering

	// StateRegistered indicates the server holds a registration.
	StateRegistered

	// StateUpdating indicates a renewal is outstanding. The server binding
	// is still valid while updating.
	StateUpdating

	// StateUnregistering indicates a deregister request is outstanding.
	StateUnregistering

	// StateUnregistered is the terminal state after a graceful shutdown.
	StateUnregistered

	// StateFailed is the terminal state after an error.
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRegistering:
		return "REGISTERING"
	case StateRegistered:
		return "REGISTERED"
	case StateUpdating:
		return "UPDATING"
	case StateUnregistering:
		return "UNREGISTERING"
	case StateUnregistered:
		return "UNREGISTERED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal returns true for states no transition leaves.
func (s State) IsTerminal() bool {
	return s == StateUnregistered || s == StateFailed
}

// IsRegistered returns true while the server holds a registration.
func (s State) IsRegistered() bool {
	return s == StateRegistered || s == StateUpdating
}

// isPending returns true while an outbound operation awaits its callback.
func (s State) isPending() bool {
	return s == StateRegistering || s == StateUpdating || s == StateUnregistering
}

// op names the outbound operation that is pending in state s.
func (s State) op() string {
	switch s {
	case StateIdle, StateRegistering:
		return "register"
	case StateRegistered, StateUpdating:
		return "renew"
	case StateUnregistering:
		return "unregister"
	default:
		return ""
	}
}
