package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rzbill/courier/internal/transport"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// QueueNames names the queues a client talks to. ResponseQueue must be
// unique to the client instance; RequestQueue is shared with workers.
type QueueNames struct {
	RequestQueue  string
	ResponseQueue string
}

// ClientOptions tunes a Client. Zero values take the defaults noted below.
type ClientOptions struct {
	// PollInterval is how long the poller sleeps after an empty lease. It
	// also bounds how late a timeout is reported. Default 50ms.
	PollInterval time.Duration
	// ResponseBatchSize is the lease batch on the reply queue. Default 32.
	ResponseBatchSize int
	// ResponseLease is the lease taken on responses. Default 5s.
	ResponseLease time.Duration
	// MaxSweepDelay, when positive, forces a timeout sweep on busy passes
	// once the last sweep is older than this.
	MaxSweepDelay time.Duration
	Codec         Codec
	Logger        logpkg.Logger
	Now           func() time.Time
}

const (
	DefaultPollInterval      = 50 * time.Millisecond
	DefaultResponseBatchSize = 32
	DefaultResponseLease     = 5 * time.Second
)

func (o ClientOptions) withDefaults() ClientOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.ResponseBatchSize <= 0 {
		o.ResponseBatchSize = DefaultResponseBatchSize
	}
	if o.ResponseLease <= 0 {
		o.ResponseLease = DefaultResponseLease
	}
	if o.Codec == nil {
		o.Codec = JSONCodec{}
	}
	if o.Logger == nil {
		o.Logger = logpkg.NewNopLogger()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Client submits requests and resolves their responses. It is safe for
// concurrent use.
type Client[Req, Resp any] struct {
	names     QueueNames
	requests  transport.Queue
	responses transport.Queue
	table     *PendingTable[Resp]
	poller    *poller[Resp]
	codec     Codec
	now       func() time.Time
	closed    atomic.Bool
}

// NewClient binds a client to its request and reply queues. Call Initialize
// before the first Submit.
func NewClient[Req, Resp any](tr transport.Transport, names QueueNames, opts ClientOptions) (*Client[Req, Resp], error) {
	if names.RequestQueue == names.ResponseQueue {
		return nil, fmt.Errorf("rpc: request and response queue must differ (%q)", names.RequestQueue)
	}
	reqQ, err := tr.Queue(names.RequestQueue)
	if err != nil {
		return nil, err
	}
	respQ, err := tr.Queue(names.ResponseQueue)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	table := NewPendingTable[Resp]()
	return &Client[Req, Resp]{
		names:     names,
		requests:  reqQ,
		responses: respQ,
		table:     table,
		poller:    newPoller(respQ, table, opts),
		codec:     opts.Codec,
		now:       opts.Now,
	}, nil
}

// Initialize makes sure both queues exist.
func (c *Client[Req, Resp]) Initialize(ctx context.Context) error {
	if err := c.requests.EnsureExists(ctx); err != nil {
		return err
	}
	return c.responses.EnsureExists(ctx)
}

// Names returns the queues this client uses.
func (c *Client[Req, Resp]) Names() QueueNames { return c.names }

// Submit enqueues req and returns a future for its response. The future
// fails with a *TimeoutError if no response arrives within timeout.
func (c *Client[Req, Resp]) Submit(ctx context.Context, req Req, timeout time.Duration) (*Future[Resp], error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if timeout <= 0 {
		return nil, ErrInvalidTimeout
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("rpc: request id: %w", err)
	}
	body, err := c.codec.Marshal(RequestEnvelope[Req]{RequestID: id, ReplyTo: c.names.ResponseQueue, Payload: req})
	if err != nil {
		return nil, fmt.Errorf("rpc: encode request: %w", err)
	}
	// The slot exists before the request is visible, so a response can never
	// reach the poller ahead of it.
	fut, err := c.table.Register(id, c.now().Add(timeout))
	if err != nil {
		return nil, err
	}
	if err := c.requests.Enqueue(ctx, body); err != nil {
		c.table.Discard(id, err)
		return nil, err
	}
	if err := c.poller.ensureRunning(); err != nil {
		c.table.Discard(id, err)
		return nil, err
	}
	return fut, nil
}

// Call submits req and waits for its outcome.
func (c *Client[Req, Resp]) Call(ctx context.Context, req Req, timeout time.Duration) (Resp, error) {
	fut, err := c.Submit(ctx, req, timeout)
	if err != nil {
		var zero Resp
		return zero, err
	}
	return fut.Wait(ctx)
}

// Pending returns the number of requests awaiting a response.
func (c *Client[Req, Resp]) Pending() int { return c.table.Len() }

// Close stops the poller and fails every pending request with ErrClosed.
// It does not close the transport.
func (c *Client[Req, Resp]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.poller.close()
	c.table.FailAllWithFault(ErrClosed)
	return nil
}

// IsRetryable reports whether err from Submit or a future is worth retrying
// with a new request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrPollerFault) ||
		(transport.IsTransportError(err) && !errors.Is(err, transport.ErrClosed))
}
