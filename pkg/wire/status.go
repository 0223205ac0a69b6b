package wire

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0

	// StatusContinue acknowledges a non-final block of a block-wise write.
	StatusContinue Status = 1

	// StatusBadRequest indicates a malformed or invalid request.
	StatusBadRequest Status = 2

	// StatusUnauthorized indicates the peer rejected the security context.
	StatusUnauthorized Status = 3

	// StatusNotFound indicates the registration or resource doesn't exist.
	StatusNotFound Status = 4

	// StatusNotAllowed indicates the operation is not permitted on the target.
	StatusNotAllowed Status = 5

	// StatusConflict indicates the endpoint is already registered.
	StatusConflict Status = 6

	// StatusIncomplete indicates a block arrived for a transfer that was never started.
	StatusIncomplete Status = 7

	// StatusTooLarge indicates a block would write past the declared total size.
	StatusTooLarge Status = 8

	// StatusInternalError indicates an unexpected failure on the responder.
	StatusInternalError Status = 9

	// StatusUnavailable indicates the responder is temporarily unable to serve.
	StatusUnavailable Status = 10
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusContinue:
		return "CONTINUE"
	case StatusBadRequest:
		return "BAD_REQUEST"
	case StatusUnauthorized:
		return "UNAUTHORIZED"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusNotAllowed:
		return "NOT_ALLOWED"
	case StatusConflict:
		return "CONFLICT"
	case StatusIncomplete:
		return "INCOMPLETE"
	case StatusTooLarge:
		return "TOO_LARGE"
	case StatusInternalError:
		return "INTERNAL_ERROR"
	case StatusUnavailable:
		return "UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true for statuses that complete a request without error.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess || s == StatusContinue
}
