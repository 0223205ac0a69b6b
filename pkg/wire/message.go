package wire

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Message validation errors.
var (
	ErrInvalidMessageID = errors.New("messageId 0 is reserved")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrNoPayload        = errors.New("message has no payload")
)

// Message is the envelope of every frame.
//
// CBOR encoding:
//
//	{
//	  1: messageId,    // uint32, correlates request and response
//	  2: operation,    // uint8
//	  3: response,     // bool, true on responses
//	  4: status,       // uint8, responses only
//	  5: payload       // embedded CBOR item, operation-specific
//	}
type Message struct {
	MessageID uint32          `cbor:"1,keyasint"`
	Operation Operation       `cbor:"2,keyasint"`
	Response  bool            `cbor:"3,keyasint,omitempty"`
	Status    Status          `cbor:"4,keyasint,omitempty"`
	Payload   cbor.RawMessage `cbor:"5,keyasint,omitempty"`
}

// Validate checks if the message envelope is well formed.
func (m *Message) Validate() error {
	if m.MessageID == 0 {
		return ErrInvalidMessageID
	}
	if !m.Operation.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidOperation, m.Operation)
	}
	return nil
}

// IsSuccess returns true if the message is a successful response.
func (m *Message) IsSuccess() bool {
	return m.Response && m.Status.IsSuccess()
}

// DecodePayload decodes the embedded payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return ErrNoPayload
	}
	return Unmarshal(m.Payload, v)
}

// NewRequest builds a request message with an encoded payload.
func NewRequest(msgID uint32, op Operation, payload any) (*Message, error) {
	msg := &Message{MessageID: msgID, Operation: op}
	if payload != nil {
		raw, err := Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", op, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// NewResponse builds a response to req with the given status and optional payload.
func NewResponse(req *Message, status Status, payload any) (*Message, error) {
	msg := &Message{
		MessageID: req.MessageID,
		Operation: req.Operation,
		Response:  true,
		Status:    status,
	}
	if payload != nil {
		raw, err := Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s response: %w", req.Operation, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// ErrorResponse builds a response carrying an ErrorPayload.
func ErrorResponse(req *Message, status Status, message string) *Message {
	resp, err := NewResponse(req, status, &ErrorPayload{Message: message})
	if err != nil {
		// A two-field struct always encodes; fall back to a bare status.
		return &Message{MessageID: req.MessageID, Operation: req.Operation, Response: true, Status: status}
	}
	return resp
}

// DeviceInfo carries the device object values sent on registration.
type DeviceInfo struct {
	Manufacturer string `cbor:"1,keyasint,omitempty"`
	DeviceType   string `cbor:"2,keyasint,omitempty"`
	ModelNumber  string `cbor:"3,keyasint,omitempty"`
	SerialNumber string `cbor:"4,keyasint,omitempty"`
}

// RegisterPayload is the body of a Register request.
type RegisterPayload struct {
	Endpoint     string     `cbor:"1,keyasint"`
	Domain       string     `cbor:"2,keyasint,omitempty"`
	EndpointType string     `cbor:"3,keyasint,omitempty"`
	Lifetime     uint32     `cbor:"4,keyasint"`
	Binding      string     `cbor:"5,keyasint,omitempty"`
	Objects      []string   `cbor:"6,keyasint,omitempty"`
	Device       DeviceInfo `cbor:"7,keyasint"`
}

// RegisterResult is the body of a successful Register response.
type RegisterResult struct {
	Location string `cbor:"1,keyasint"`
}

// UpdatePayload is the body of an Update request.
type UpdatePayload struct {
	Location string `cbor:"1,keyasint"`
	Lifetime uint32 `cbor:"2,keyasint,omitempty"`
}

// DeregisterPayload is the body of a Deregister request.
type DeregisterPayload struct {
	Location string `cbor:"1,keyasint"`
}

// BlockOption describes one block of a block-wise transfer.
type BlockOption struct {
	Num   uint32 `cbor:"1,keyasint"`
	Size  uint32 `cbor:"2,keyasint"`
	More  bool   `cbor:"3,keyasint,omitempty"`
	Total uint32 `cbor:"4,keyasint"`
}

// ReadPayload is the body of a Read request. Block selects a single block of
// the value; nil reads the whole value in one response.
type ReadPayload struct {
	Path  string       `cbor:"1,keyasint"`
	Block *BlockOption `cbor:"2,keyasint,omitempty"`
}

// ReadResult is the body of a Read response.
type ReadResult struct {
	Value []byte       `cbor:"1,keyasint"`
	Block *BlockOption `cbor:"2,keyasint,omitempty"`
}

// WritePayload is the body of a Write request. Block is set when the value
// is delivered block-wise, in which case Value holds one block.
type WritePayload struct {
	Path  string       `cbor:"1,keyasint"`
	Value []byte       `cbor:"2,keyasint"`
	Block *BlockOption `cbor:"3,keyasint,omitempty"`
}

// ExecutePayload is the body of an Execute request.
type ExecutePayload struct {
	Path string `cbor:"1,keyasint"`
	Args []byte `cbor:"2,keyasint,omitempty"`
}

// NotifyPayload is the body of a Notify request.
type NotifyPayload struct {
	Path  string `cbor:"1,keyasint"`
	Value []byte `cbor:"2,keyasint"`
}

// ErrorPayload is attached to error responses.
type ErrorPayload struct {
	Message string `cbor:"1,keyasint,omitempty"`
}
