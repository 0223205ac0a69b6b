package log

import (
	"time"

	"github.com/mash-protocol/m2m-client/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the transport connection (UUID), if any.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer address (host:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Endpoint is the registered endpoint name.
	Endpoint string `cbor:"7,keyasint,omitempty"`

	// SessionID identifies one registration session (UUID).
	SessionID string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection/session state
	Block       *BlockEvent       `cbor:"13,keyasint,omitempty"` // Block-wise transfer
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message encoding layer (decoded CBOR).
	LayerWire Layer = 1
	// LayerSession is the registration lifecycle layer.
	LayerSession Layer = 2
	// LayerBlock is the block-wise transfer layer.
	LayerBlock Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerSession:
		return "SESSION"
	case LayerBlock:
		return "BLOCK"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a protocol message (request/response).
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryBlock indicates block-wise transfer progress.
	CategoryBlock Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryBlock:
		return "BLOCK"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame bytes (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded protocol message at the wire layer.
type MessageEvent struct {
	// MessageID correlates request/response pairs.
	MessageID uint32 `cbor:"1,keyasint"`

	// Operation is the protocol operation.
	Operation wire.Operation `cbor:"2,keyasint"`

	// Response is true for responses.
	Response bool `cbor:"3,keyasint,omitempty"`

	// Status is the response status (responses only).
	Status *wire.Status `cbor:"4,keyasint,omitempty"`

	// Path is the resource path for Read/Write/Execute/Notify.
	Path string `cbor:"5,keyasint,omitempty"`

	// PayloadSize is the size of the encoded payload in bytes.
	PayloadSize int `cbor:"6,keyasint,omitempty"`

	// RoundTrip is the time from request send to response receipt.
	// Stored as nanoseconds.
	RoundTrip *time.Duration `cbor:"7,keyasint,omitempty"`
}

// StateChangeEvent captures connection and session lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a transport connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntitySession indicates a registration session state change.
	StateEntitySession StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// BlockEvent captures the handling of one block of a block-wise transfer.
type BlockEvent struct {
	// ResourceID identifies the resource being transferred.
	ResourceID string `cbor:"1,keyasint"`

	// Index is the block number.
	Index uint32 `cbor:"2,keyasint"`

	// Length is the number of payload bytes in the block.
	Length int `cbor:"3,keyasint"`

	// TotalSize is the declared size of the whole value.
	TotalSize uint32 `cbor:"4,keyasint"`

	// Last marks the final block.
	Last bool `cbor:"5,keyasint,omitempty"`

	// Outcome records what the endpoint did with the block.
	Outcome BlockOutcome `cbor:"6,keyasint"`

	// Generation is the transfer generation the block was applied to.
	Generation uint64 `cbor:"7,keyasint,omitempty"`
}

// BlockOutcome records what happened to a block.
type BlockOutcome uint8

const (
	// BlockAccepted indicates the block was written into the transfer buffer.
	BlockAccepted BlockOutcome = 0
	// BlockCompleted indicates the block completed the transfer.
	BlockCompleted BlockOutcome = 1
	// BlockRejected indicates the block was refused.
	BlockRejected BlockOutcome = 2
	// BlockServed indicates an outgoing value was handed to the transport.
	BlockServed BlockOutcome = 3
)

// String returns the outcome name.
func (o BlockOutcome) String() string {
	switch o {
	case BlockAccepted:
		return "ACCEPTED"
	case BlockCompleted:
		return "COMPLETED"
	case BlockRejected:
		return "REJECTED"
	case BlockServed:
		return "SERVED"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
