package session

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
)

// Session errors.
var (
	ErrNoTransport  = errors.New("no transport bound")
	ErrInvalidState = errors.New("invalid session state")
	ErrFailed       = errors.New("session failed")
)

// ErrorKind classifies a session failure independently of the transport
// that produced it.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindAlreadyRegistered
	KindAuthenticationOrBootstrapFailure
	KindInvalidParameters
	KindNotRegistered
	KindTimeout
	KindNetworkUnreachable
	KindMalformedResponse
	KindOutOfMemory
	KindOperationNotAllowed
	KindSecureChannelFailure
	KindNameResolutionFailure

	// KindOperationTimeout is raised locally when an outbound operation's
	// callback does not arrive within Config.Timeout.
	KindOperationTimeout
)

var kindNames = map[ErrorKind]string{
	KindUnknown:                          "UNKNOWN",
	KindAlreadyRegistered:                "ALREADY_REGISTERED",
	KindAuthenticationOrBootstrapFailure: "AUTHENTICATION_OR_BOOTSTRAP_FAILURE",
	KindInvalidParameters:                "INVALID_PARAMETERS",
	KindNotRegistered:                    "NOT_REGISTERED",
	KindTimeout:                          "TIMEOUT",
	KindNetworkUnreachable:               "NETWORK_UNREACHABLE",
	KindMalformedResponse:                "MALFORMED_RESPONSE",
	KindOutOfMemory:                      "OUT_OF_MEMORY",
	KindOperationNotAllowed:              "OPERATION_NOT_ALLOWED",
	KindSecureChannelFailure:             "SECURE_CHANNEL_FAILURE",
	KindNameResolutionFailure:            "NAME_RESOLUTION_FAILURE",
	KindOperationTimeout:                 "OPERATION_TIMEOUT",
}

// String returns the kind name.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// ParseErrorKind returns the kind with the given name.
func ParseErrorKind(name string) (ErrorKind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return KindUnknown, false
}

// Error records why a session failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports every *Error as ErrFailed.
func (e *Error) Is(target error) bool {
	return target == ErrFailed
}

// KindOf classifies err. Errors that already carry a kind keep it.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, ErrNoTransport) {
		return KindInvalidParameters
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindNameResolutionFailure
	}

	var (
		recordErr  tls.RecordHeaderError
		alertErr   tls.AlertError
		verifyErr  *tls.CertificateVerificationError
		unknownCA  x509.UnknownAuthorityError
		hostErr    x509.HostnameError
		invalidErr x509.CertificateInvalidError
	)
	if errors.As(err, &recordErr) || errors.As(err, &alertErr) || errors.As(err, &verifyErr) ||
		errors.As(err, &unknownCA) || errors.As(err, &hostErr) || errors.As(err, &invalidErr) {
		return KindSecureChannelFailure
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetworkUnreachable
	}

	return KindUnknown
}
