package wire

// Operation represents a management protocol operation.
type Operation uint8

const (
	// OpRegister creates a registration.
	// Direction: endpoint -> server
	OpRegister Operation = 1

	// OpUpdate renews an existing registration.
	// Direction: endpoint -> server
	OpUpdate Operation = 2

	// OpDeregister removes a registration.
	// Direction: endpoint -> server
	OpDeregister Operation = 3

	// OpRead reads a resource value.
	// Direction: server -> endpoint
	OpRead Operation = 4

	// OpWrite replaces a resource value.
	// Direction: server -> endpoint
	OpWrite Operation = 5

	// OpExecute triggers an executable resource.
	// Direction: server -> endpoint
	OpExecute Operation = 6

	// OpNotify reports a changed resource value.
	// Direction: endpoint -> server
	OpNotify Operation = 7
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpRegister:
		return "Register"
	case OpUpdate:
		return "Update"
	case OpDeregister:
		return "Deregister"
	case OpRead:
		return "Read"
	case OpWrite:
		return "Write"
	case OpExecute:
		return "Execute"
	case OpNotify:
		return "Notify"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the operation is known.
func (o Operation) IsValid() bool {
	return o >= OpRegister && o <= OpNotify
}

// FromEndpoint returns true for operations initiated by the endpoint.
func (o Operation) FromEndpoint() bool {
	switch o {
	case OpRegister, OpUpdate, OpDeregister, OpNotify:
		return true
	}
	return false
}
