package execution

import (
	"errors"
	"fmt"
)

var (
	// ErrPollTimeout is returned when a submission does not reach a terminal status within the
	// configured attempts or elapsed time.
	ErrPollTimeout = errors.New("submission did not finish in time")
	// ErrUnknownOutcome is returned by Render when a finished job matches no known result shape.
	ErrUnknownOutcome = errors.New("unknown outcome")
)

// TransportError is a failed request to the execution service, either a network failure or a
// non-2xx response.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("failed to %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("failed to %s: status %d", e.Op, e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError is a response from the execution service that could not be decoded. Field names
// the offending payload field, or is empty when the whole body was unreadable.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("failed to decode response: %v", e.Err)
	}
	return fmt.Sprintf("failed to decode %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
