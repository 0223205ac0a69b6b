package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestRegisterRequestRoundTrip(t *testing.T) {
	req, err := NewRequest(7, OpRegister, &RegisterPayload{
		Endpoint: "node-1",
		Domain:   "home",
		Lifetime: 100,
		Binding:  "T",
		Objects:  []string{"/3/0", "/Test/0"},
		Device: DeviceInfo{
			Manufacturer: "manufacturer",
			DeviceType:   "type",
			ModelNumber:  "2015",
			SerialNumber: "12345",
		},
	})
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}

	data, err := EncodeMessage(req)
	if err != nil {
		t.Fatalf("EncodeMessage() error = %v", err)
	}

	decoded, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
	if decoded.MessageID != 7 || decoded.Operation != OpRegister || decoded.Response {
		t.Fatalf("envelope = %+v", decoded)
	}

	var payload RegisterPayload
	if err := decoded.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if payload.Endpoint != "node-1" || payload.Lifetime != 100 {
		t.Errorf("payload = %+v", payload)
	}
	if len(payload.Objects) != 2 || payload.Objects[1] != "/Test/0" {
		t.Errorf("Objects = %v", payload.Objects)
	}
	if payload.Device.SerialNumber != "12345" {
		t.Errorf("SerialNumber = %q, want 12345", payload.Device.SerialNumber)
	}
}

func TestBlockWriteRoundTrip(t *testing.T) {
	req, err := NewRequest(9, OpWrite, &WritePayload{
		Path:  "/Test/0/D",
		Value: []byte("MyVa"),
		Block: &BlockOption{Num: 0, Size: 4, More: true, Total: 7},
	})
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}

	data, err := EncodeMessage(req)
	if err != nil {
		t.Fatalf("EncodeMessage() error = %v", err)
	}
	decoded, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}

	var payload WritePayload
	if err := decoded.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if !bytes.Equal(payload.Value, []byte("MyVa")) {
		t.Errorf("Value = %q", payload.Value)
	}
	if payload.Block == nil {
		t.Fatal("Block is nil")
	}
	if payload.Block.Total != 7 || !payload.Block.More || payload.Block.Size != 4 {
		t.Errorf("Block = %+v", *payload.Block)
	}
}

func TestResponseCarriesStatus(t *testing.T) {
	req := &Message{MessageID: 3, Operation: OpUpdate}

	resp := ErrorResponse(req, StatusNotFound, "no such registration")
	data, err := EncodeMessage(resp)
	if err != nil {
		t.Fatalf("EncodeMessage() error = %v", err)
	}
	decoded, err := DecodeMessage(data)
	if err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}

	if !decoded.Response {
		t.Error("Response = false, want true")
	}
	if decoded.IsSuccess() {
		t.Error("IsSuccess() = true for NOT_FOUND")
	}
	var ep ErrorPayload
	if err := decoded.DecodePayload(&ep); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if ep.Message != "no such registration" {
		t.Errorf("Message = %q", ep.Message)
	}
}

func TestMessageValidation(t *testing.T) {
	t.Run("ZeroMessageID", func(t *testing.T) {
		_, err := EncodeMessage(&Message{Operation: OpRead})
		if !errors.Is(err, ErrInvalidMessageID) {
			t.Errorf("error = %v, want ErrInvalidMessageID", err)
		}
	})

	t.Run("UnknownOperation", func(t *testing.T) {
		_, err := EncodeMessage(&Message{MessageID: 1, Operation: Operation(42)})
		if !errors.Is(err, ErrInvalidOperation) {
			t.Errorf("error = %v, want ErrInvalidOperation", err)
		}
	})

	t.Run("MissingPayload", func(t *testing.T) {
		msg := &Message{MessageID: 1, Operation: OpRead}
		var p ReadPayload
		if err := msg.DecodePayload(&p); !errors.Is(err, ErrNoPayload) {
			t.Errorf("error = %v, want ErrNoPayload", err)
		}
	})

	t.Run("Garbage", func(t *testing.T) {
		if _, err := DecodeMessage([]byte{0xff, 0x00}); err == nil {
			t.Error("DecodeMessage() accepted garbage")
		}
	})
}

func TestOperationDirection(t *testing.T) {
	tests := []struct {
		op   Operation
		from bool
		name string
	}{
		{OpRegister, true, "Register"},
		{OpUpdate, true, "Update"},
		{OpDeregister, true, "Deregister"},
		{OpNotify, true, "Notify"},
		{OpRead, false, "Read"},
		{OpWrite, false, "Write"},
		{OpExecute, false, "Execute"},
	}

	for _, tt := range tests {
		if got := tt.op.FromEndpoint(); got != tt.from {
			t.Errorf("%s.FromEndpoint() = %v, want %v", tt.name, got, tt.from)
		}
		if got := tt.op.String(); got != tt.name {
			t.Errorf("Operation(%d).String() = %q, want %q", tt.op, got, tt.name)
		}
	}
}

func TestStatusSuccess(t *testing.T) {
	if !StatusSuccess.IsSuccess() || !StatusContinue.IsSuccess() {
		t.Error("SUCCESS and CONTINUE must be successful")
	}
	if StatusTooLarge.IsSuccess() {
		t.Error("TOO_LARGE must not be successful")
	}
	if Status(200).String() != "UNKNOWN" {
		t.Errorf("Status(200).String() = %q", Status(200).String())
	}
}
