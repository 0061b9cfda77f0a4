package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueNotFound is returned when a queue was never created.
	ErrQueueNotFound = errors.New("queue not found")
	// ErrInvalidHandle is returned by Delete for unknown or expired leases.
	ErrInvalidHandle = errors.New("invalid or expired lease handle")
	// ErrInvalidQueueName is returned for names the backend cannot store.
	ErrInvalidQueueName = errors.New("invalid queue name")
	// ErrClosed is returned once the transport has been closed.
	ErrClosed = errors.New("transport closed")
)

// Error is the transport error: it records the failing operation and queue
// and wraps the backend cause.
type Error struct {
	Op    string
	Queue string
	Err   error
}

func (e *Error) Error() string {
	if e.Queue == "" {
		return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport: %s %s: %v", e.Op, e.Queue, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap returns err as an *Error. nil stays nil and an existing *Error is
// returned unchanged so wrapping is idempotent across layers.
func Wrap(op, queue string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return err
	}
	return &Error{Op: op, Queue: queue, Err: err}
}

// IsTransportError reports whether err carries a transport *Error.
func IsTransportError(err error) bool {
	var te *Error
	return errors.As(err, &te)
}
