package brokerapi

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rzbill/courier/internal/transport"
	"github.com/rzbill/courier/internal/transport/celfilter"
)

func TestStructRoundTripKeepsIntegersAndBytes(t *testing.T) {
	in := LeaseResponse{Messages: []LeasedMessage{{Body: []byte{0, 1, 'x'}, DequeueCount: 3, Handle: "12:abc"}}}
	s, err := ToStruct(in)
	if err != nil {
		t.Fatalf("to struct: %v", err)
	}
	var out LeaseResponse
	if err := FromStruct(s, &out); err != nil {
		t.Fatalf("from struct: %v", err)
	}
	if len(out.Messages) != 1 || string(out.Messages[0].Body) != "\x00\x01x" || out.Messages[0].DequeueCount != 3 {
		t.Fatalf("unexpected: %+v", out)
	}

	peek := PeekResponse{Messages: []transport.PeekedMessage{{Seq: 42, EnqueuedAtMs: 1712345678901}}}
	s, err = ToStruct(peek)
	if err != nil {
		t.Fatalf("to struct: %v", err)
	}
	var back PeekResponse
	if err := FromStruct(s, &back); err != nil {
		t.Fatalf("large millisecond timestamps must decode: %v", err)
	}
	if back.Messages[0].EnqueuedAtMs != 1712345678901 || back.Messages[0].Seq != 42 {
		t.Fatalf("unexpected: %+v", back)
	}
}

func TestStatusRoundTripRestoresSentinels(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{transport.Wrap("enqueue", "jobs", transport.ErrQueueNotFound), codes.NotFound},
		{transport.Wrap("delete", "jobs", transport.ErrInvalidHandle), codes.FailedPrecondition},
		{transport.Wrap("open", "Jobs", transport.ErrInvalidQueueName), codes.InvalidArgument},
		{fmt.Errorf("%w: undeclared reference", celfilter.ErrInvalidFilter), codes.InvalidArgument},
		{transport.Wrap("lease", "jobs", transport.ErrClosed), codes.Unavailable},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
	}
	for _, tt := range tests {
		st := ToStatus(tt.err)
		if status.Code(st) != tt.code {
			t.Fatalf("%v: code %v want %v", tt.err, status.Code(st), tt.code)
		}
		back := FromStatus(st, "op", "jobs")
		if !transport.IsTransportError(back) {
			t.Fatalf("%v: not a transport error: %v", tt.err, back)
		}
		var sentinel error
		switch tt.code {
		case codes.DeadlineExceeded:
			sentinel = context.DeadlineExceeded
		default:
			sentinel = errors.Unwrap(tt.err)
			if te := (*transport.Error)(nil); errors.As(tt.err, &te) {
				sentinel = te.Err
			}
		}
		if !errors.Is(back, sentinel) {
			t.Fatalf("%v: sentinel lost in %v", tt.err, back)
		}
	}
}

func TestUnknownErrorsAreInternal(t *testing.T) {
	if c := status.Code(ToStatus(errors.New("disk full"))); c != codes.Internal {
		t.Fatalf("code %v", c)
	}
	if ToStatus(nil) != nil || FromStatus(nil, "op", "q") != nil {
		t.Fatalf("nil must stay nil")
	}
	raw := status.Error(codes.Unavailable, "connection refused")
	if err := FromStatus(raw, "lease", "jobs"); errors.Is(err, transport.ErrClosed) {
		t.Fatalf("transport failures must not look like a closed broker")
	}
}
