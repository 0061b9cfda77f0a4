// Package remote is a transport.Transport that talks to a broker over the
// courier.broker.v1.Broker gRPC service.
package remote

import (
	"context"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rzbill/courier/internal/broker"
	"github.com/rzbill/courier/internal/brokerapi"
	"github.com/rzbill/courier/internal/transport"
)

type Transport struct {
	conn   *grpc.ClientConn
	owned  bool
	closed atomic.Bool
}

// Dial connects to addr without TLS. The connection is closed by Close.
func Dial(addr string, opts ...grpc.DialOption) (*Transport, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, transport.Wrap("dial", "", err)
	}
	return &Transport{conn: conn, owned: true}, nil
}

// New wraps an existing connection, which stays owned by the caller.
func New(conn *grpc.ClientConn) *Transport { return &Transport{conn: conn} }

// Queue returns a handle on name. Names are validated by the broker.
func (t *Transport) Queue(name string) (transport.Queue, error) {
	if t.closed.Load() {
		return nil, transport.Wrap("open", name, transport.ErrClosed)
	}
	return &queue{t: t, name: name}, nil
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) || !t.owned {
		return nil
	}
	return t.conn.Close()
}

// EnsureQueue registers name on the broker and returns its registry record.
func (t *Transport) EnsureQueue(ctx context.Context, name string) (broker.QueueMeta, error) {
	var resp brokerapi.EnsureQueueResponse
	if err := t.invoke(ctx, brokerapi.MethodEnsureQueue, "ensure", name, brokerapi.EnsureQueueRequest{Queue: name}, &resp); err != nil {
		return broker.QueueMeta{}, err
	}
	return broker.QueueMeta{Name: resp.Queue, CreatedAtMs: resp.CreatedAtMs}, nil
}

func (t *Transport) Stats(ctx context.Context, name string) (transport.QueueStats, error) {
	var resp brokerapi.StatsResponse
	err := t.invoke(ctx, brokerapi.MethodStats, "stats", name, brokerapi.StatsRequest{Queue: name}, &resp)
	return resp, err
}

func (t *Transport) Peek(ctx context.Context, name string, opts transport.PeekOptions) ([]transport.PeekedMessage, error) {
	var resp brokerapi.PeekResponse
	req := brokerapi.PeekRequest{Queue: name, Limit: opts.Limit, Filter: opts.Filter}
	if err := t.invoke(ctx, brokerapi.MethodPeek, "peek", name, req, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func (t *Transport) invoke(ctx context.Context, method, op, queue string, req, resp any) error {
	if t.closed.Load() {
		return transport.Wrap(op, queue, transport.ErrClosed)
	}
	in, err := brokerapi.ToStruct(req)
	if err != nil {
		return transport.Wrap(op, queue, err)
	}
	out := new(structpb.Struct)
	if err := t.conn.Invoke(ctx, brokerapi.FullMethod(method), in, out); err != nil {
		return brokerapi.FromStatus(err, op, queue)
	}
	return transport.Wrap(op, queue, brokerapi.FromStruct(out, resp))
}

type queue struct {
	t    *Transport
	name string
}

func (q *queue) Name() string { return q.name }

func (q *queue) EnsureExists(ctx context.Context) error {
	_, err := q.t.EnsureQueue(ctx, q.name)
	return err
}

func (q *queue) Enqueue(ctx context.Context, body []byte) error {
	var resp brokerapi.EnqueueResponse
	return q.t.invoke(ctx, brokerapi.MethodEnqueue, "enqueue", q.name, brokerapi.EnqueueRequest{Queue: q.name, Body: body}, &resp)
}

func (q *queue) LeaseBatch(ctx context.Context, max int, lease time.Duration) ([]transport.LeasedMessage, error) {
	var resp brokerapi.LeaseResponse
	req := brokerapi.LeaseRequest{Queue: q.name, Max: max, LeaseMs: lease.Milliseconds()}
	if err := q.t.invoke(ctx, brokerapi.MethodLease, "lease", q.name, req, &resp); err != nil {
		return nil, err
	}
	out := make([]transport.LeasedMessage, len(resp.Messages))
	for i, m := range resp.Messages {
		out[i] = transport.LeasedMessage{Body: m.Body, DequeueCount: m.DequeueCount, Handle: transport.Handle(m.Handle)}
	}
	return out, nil
}

func (q *queue) Delete(ctx context.Context, h transport.Handle) error {
	var resp brokerapi.DeleteResponse
	return q.t.invoke(ctx, brokerapi.MethodDelete, "delete", q.name, brokerapi.DeleteRequest{Queue: q.name, Handle: string(h)}, &resp)
}
