package brokerapi

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rzbill/courier/internal/transport"
	"github.com/rzbill/courier/internal/transport/celfilter"
)

// Reasons prefix status messages so the client can restore the sentinel.
const (
	ReasonQueueNotFound    = "queue-not-found"
	ReasonInvalidHandle    = "invalid-handle"
	ReasonInvalidQueueName = "invalid-queue-name"
	ReasonInvalidFilter    = "invalid-filter"
	ReasonClosed           = "closed"
)

var reasons = []struct {
	err    error
	code   codes.Code
	reason string
}{
	{transport.ErrQueueNotFound, codes.NotFound, ReasonQueueNotFound},
	{transport.ErrInvalidHandle, codes.FailedPrecondition, ReasonInvalidHandle},
	{transport.ErrInvalidQueueName, codes.InvalidArgument, ReasonInvalidQueueName},
	{celfilter.ErrInvalidFilter, codes.InvalidArgument, ReasonInvalidFilter},
	{transport.ErrClosed, codes.Unavailable, ReasonClosed},
}

// ToStatus maps a backend error to a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return status.Error(r.code, r.reason+": "+err.Error())
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// FromStatus turns an RPC error back into a *transport.Error for op on
// queue, restoring the sentinel named by the reason prefix.
func FromStatus(err error, op, queue string) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return transport.Wrap(op, queue, err)
	}
	msg := st.Message()
	for _, r := range reasons {
		if st.Code() == r.code && strings.HasPrefix(msg, r.reason+":") {
			if r.err == celfilter.ErrInvalidFilter {
				return transport.Wrap(op, queue, &remoteError{sentinel: r.err, msg: msg})
			}
			return transport.Wrap(op, queue, r.err)
		}
	}
	switch st.Code() {
	case codes.DeadlineExceeded:
		return transport.Wrap(op, queue, context.DeadlineExceeded)
	case codes.Canceled:
		return transport.Wrap(op, queue, context.Canceled)
	}
	return transport.Wrap(op, queue, err)
}

// remoteError keeps the server's message while matching the sentinel.
type remoteError struct {
	sentinel error
	msg      string
}

func (e *remoteError) Error() string { return e.msg }

func (e *remoteError) Is(target error) bool { return target == e.sentinel }
