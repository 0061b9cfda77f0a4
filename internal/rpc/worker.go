package rpc

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rzbill/courier/internal/transport"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// Handler processes one request. It must be safe for concurrent use. A
// returned error drops the request without a response.
type Handler[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// WorkerOptions tunes a Worker.
type WorkerOptions struct {
	// DelayWhenNothingInQueue is the sleep after an empty or failed lease.
	DelayWhenNothingInQueue time.Duration
	// PoisonLimit deletes messages whose dequeue count reached it.
	PoisonLimit int
	// MessagesPerRequest is the lease batch size.
	MessagesPerRequest int
	// MaxProcessingTimeout is both the request lease and the handler
	// deadline.
	MaxProcessingTimeout time.Duration
	Codec                Codec
	Logger               logpkg.Logger
}

// DefaultWorkerOptions returns the stock worker tuning.
func DefaultWorkerOptions() WorkerOptions {
	return WorkerOptions{
		DelayWhenNothingInQueue: 100 * time.Millisecond,
		PoisonLimit:             5,
		MessagesPerRequest:      2,
		MaxProcessingTimeout:    30 * time.Second,
	}
}

func (o WorkerOptions) withDefaults() WorkerOptions {
	d := DefaultWorkerOptions()
	if o.DelayWhenNothingInQueue <= 0 {
		o.DelayWhenNothingInQueue = d.DelayWhenNothingInQueue
	}
	if o.PoisonLimit <= 0 {
		o.PoisonLimit = d.PoisonLimit
	}
	if o.MessagesPerRequest <= 0 {
		o.MessagesPerRequest = d.MessagesPerRequest
	}
	if o.MaxProcessingTimeout <= 0 {
		o.MaxProcessingTimeout = d.MaxProcessingTimeout
	}
	if o.Codec == nil {
		o.Codec = JSONCodec{}
	}
	if o.Logger == nil {
		o.Logger = logpkg.NewNopLogger()
	}
	return o
}

// Worker consumes a request queue.
type Worker[Req, Resp any] struct {
	tr      transport.Transport
	queue   transport.Queue
	handler Handler[Req, Resp]
	opts    WorkerOptions
	log     logpkg.Logger
}

func NewWorker[Req, Resp any](tr transport.Transport, requestQueue string, h Handler[Req, Resp], opts WorkerOptions) (*Worker[Req, Resp], error) {
	if h == nil {
		return nil, errors.New("rpc: nil handler")
	}
	q, err := tr.Queue(requestQueue)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	return &Worker[Req, Resp]{
		tr:      tr,
		queue:   q,
		handler: h,
		opts:    opts,
		log:     opts.Logger.With(logpkg.Component("worker"), logpkg.Str(logpkg.QueueKey, requestQueue)),
	}, nil
}

// Initialize makes sure the request queue exists.
func (w *Worker[Req, Resp]) Initialize(ctx context.Context) error {
	return w.queue.EnsureExists(ctx)
}

// Run processes batches until ctx is cancelled, which returns nil. A closed
// transport or a panicking handler ends the run with an error.
func (w *Worker[Req, Resp]) Run(ctx context.Context) error {
	w.log.Info("worker started",
		logpkg.Int("batch", w.opts.MessagesPerRequest),
		logpkg.Int("poison_limit", w.opts.PoisonLimit))
	defer w.log.Info("worker stopped")
	for {
		if ctx.Err() != nil {
			return nil
		}
		msgs, err := w.queue.LeaseBatch(ctx, w.opts.MessagesPerRequest, w.opts.MaxProcessingTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, transport.ErrClosed) {
				return err
			}
			w.log.Warn("lease failed", logpkg.Err(err))
			w.idle(ctx)
			continue
		}
		if len(msgs) == 0 {
			w.idle(ctx)
			continue
		}
		var g errgroup.Group
		for _, m := range msgs {
			g.Go(func() error { return w.process(ctx, m) })
		}
		if err := g.Wait(); err != nil {
			w.log.Error("worker terminating", logpkg.Err(err))
			return err
		}
	}
}

// process handles one leased message. Only a handler panic is returned;
// every other outcome is logged and settled here.
func (w *Worker[Req, Resp]) process(ctx context.Context, m transport.LeasedMessage) error {
	if ctx.Err() != nil {
		return nil
	}
	// Settling work survives worker cancellation once the handler has run.
	settle := context.WithoutCancel(ctx)
	if m.DequeueCount >= w.opts.PoisonLimit {
		w.log.Warn("dropping poison message",
			logpkg.Int("dequeue_count", m.DequeueCount),
			logpkg.Int("poison_limit", w.opts.PoisonLimit))
		w.delete(settle, m)
		return nil
	}
	env, err := decodeRequest[Req](w.opts.Codec, m.Body)
	if err != nil {
		w.log.Warn("dropping malformed request", logpkg.Err(err), logpkg.Int("size", len(m.Body)))
		w.delete(settle, m)
		return nil
	}
	log := w.log.With(logpkg.Str(logpkg.RequestIDKey, env.RequestID.String()))

	resp, err := w.invoke(settle, env)
	if err != nil {
		var hp *HandlerPanicError
		if errors.As(err, &hp) {
			return err
		}
		log.Warn("handler failed, dropping request", logpkg.Err(err))
		w.delete(settle, m)
		return nil
	}
	if err := w.publish(settle, env.ReplyTo, ResponseEnvelope[Resp]{RequestID: env.RequestID, Payload: resp}); err != nil {
		log.Warn("publishing response failed", logpkg.Str("reply_to", env.ReplyTo), logpkg.Err(err))
	}
	w.delete(settle, m)
	return nil
}

func (w *Worker[Req, Resp]) invoke(ctx context.Context, env RequestEnvelope[Req]) (resp Resp, err error) {
	hctx, cancel := context.WithTimeout(ctx, w.opts.MaxProcessingTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerPanicError{RequestID: env.RequestID, Value: r, Stack: debug.Stack()}
		}
	}()
	return w.handler(hctx, env.Payload)
}

func (w *Worker[Req, Resp]) publish(ctx context.Context, replyTo string, env ResponseEnvelope[Resp]) error {
	body, err := w.opts.Codec.Marshal(env)
	if err != nil {
		return fmt.Errorf("rpc: encode response: %w", err)
	}
	// ReplyTo comes from the message body, so reply queues are resolved per
	// publish and never retained.
	q, err := w.tr.Queue(replyTo)
	if err != nil {
		return err
	}
	return q.Enqueue(ctx, body)
}

func (w *Worker[Req, Resp]) delete(ctx context.Context, m transport.LeasedMessage) {
	if err := w.queue.Delete(ctx, m.Handle); err != nil {
		w.log.Warn("deleting request failed", logpkg.Err(err))
	}
}

func (w *Worker[Req, Resp]) idle(ctx context.Context) {
	t := time.NewTimer(w.opts.DelayWhenNothingInQueue)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
