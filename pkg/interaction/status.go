package interaction

import (
	"errors"

	"github.com/mash-protocol/m2m-client/pkg/blockwise"
	"github.com/mash-protocol/m2m-client/pkg/resource"
	"github.com/mash-protocol/m2m-client/pkg/session"
	"github.com/mash-protocol/m2m-client/pkg/wire"
)

// StatusError is an error response from the peer.
type StatusError struct {
	Status  wire.Status
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return e.Status.String() + ": " + e.Message
	}
	return e.Status.String()
}

// statusError converts a non-success response into a StatusError.
func statusError(resp *wire.Message) error {
	se := &StatusError{Status: resp.Status}
	var ep wire.ErrorPayload
	if resp.DecodePayload(&ep) == nil {
		se.Message = ep.Message
	}
	return se
}

// KindForStatus maps a registration response status to the error kind
// reported to the session.
func KindForStatus(status wire.Status) session.ErrorKind {
	switch status {
	case wire.StatusConflict:
		return session.KindAlreadyRegistered
	case wire.StatusUnauthorized:
		return session.KindAuthenticationOrBootstrapFailure
	case wire.StatusBadRequest:
		return session.KindInvalidParameters
	case wire.StatusNotFound:
		return session.KindNotRegistered
	case wire.StatusNotAllowed:
		return session.KindOperationNotAllowed
	case wire.StatusTooLarge:
		return session.KindOutOfMemory
	case wire.StatusUnavailable:
		return session.KindNetworkUnreachable
	default:
		return session.KindUnknown
	}
}

// StatusFor maps an observer error to the status answered to the server.
func StatusFor(err error) wire.Status {
	switch {
	case err == nil:
		return wire.StatusSuccess
	case errors.Is(err, blockwise.ErrUnknownTransfer),
		errors.Is(err, blockwise.ErrStaleGeneration),
		errors.Is(err, blockwise.ErrOutOfOrder),
		errors.Is(err, blockwise.ErrIncomplete):
		return wire.StatusIncomplete
	case errors.Is(err, blockwise.ErrBlockOverrun):
		return wire.StatusTooLarge
	case errors.Is(err, resource.ErrNotFound):
		return wire.StatusNotFound
	case errors.Is(err, resource.ErrNotAllowed),
		errors.Is(err, resource.ErrStatic),
		errors.Is(err, resource.ErrNotExecutable):
		return wire.StatusNotAllowed
	case errors.Is(err, resource.ErrInvalidPath),
		errors.Is(err, resource.ErrInvalidValue),
		errors.Is(err, blockwise.ErrInvalidBlock),
		errors.Is(err, blockwise.ErrTransportBlock):
		return wire.StatusBadRequest
	default:
		return wire.StatusInternalError
	}
}
