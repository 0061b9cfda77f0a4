package rpc

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("rpc: request timed out")
	// ErrPollerFault matches every *PollerFaultError.
	ErrPollerFault = errors.New("rpc: response poller faulted")
	// ErrClosed is returned by a closed Client and used to fail the requests
	// still pending when it closed.
	ErrClosed = errors.New("rpc: client closed")
	// ErrDuplicateRequest is returned when a request id is already pending.
	ErrDuplicateRequest = errors.New("rpc: duplicate request id")
	// ErrMalformedEnvelope wraps envelope decoding and validation failures.
	ErrMalformedEnvelope = errors.New("rpc: malformed envelope")
	// ErrInvalidTimeout is returned for a non-positive request timeout.
	ErrInvalidTimeout = errors.New("rpc: timeout must be positive")
)

// TimeoutError fails a request whose deadline passed before its response
// arrived.
type TimeoutError struct {
	RequestID uuid.UUID
	Deadline  time.Time
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("rpc: request %s timed out (deadline %s)", e.RequestID, e.Deadline.Format(time.RFC3339Nano))
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// PollerFaultError fails every pending request when the response poller dies.
type PollerFaultError struct {
	Cause error
}

func (e *PollerFaultError) Error() string {
	return fmt.Sprintf("rpc: response poller faulted: %v", e.Cause)
}

func (e *PollerFaultError) Unwrap() error { return e.Cause }

func (e *PollerFaultError) Is(target error) bool { return target == ErrPollerFault }

// HandlerPanicError reports a handler that panicked. The request is left on
// the queue and the worker run ends with this error.
type HandlerPanicError struct {
	RequestID uuid.UUID
	Value     any
	Stack     []byte
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("rpc: handler panicked on request %s: %v", e.RequestID, e.Value)
}
