// Package memq is an in-process lease queue. It backs single-process
// deployments and the RPC tests, and follows the same lease and receipt rules
// as the durable backends.
package memq

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rzbill/courier/internal/transport"
	"github.com/rzbill/courier/internal/transport/celfilter"
	"github.com/rzbill/courier/pkg/id"
)

// Transport owns a set of in-memory queues.
type Transport struct {
	mu     sync.Mutex
	queues map[string]*Queue
	closed bool
	now    func() time.Time
	ids    *id.Generator
}

// New returns an empty Transport using the wall clock.
func New() *Transport { return NewWithClock(time.Now) }

// NewWithClock returns an empty Transport driven by now.
func NewWithClock(now func() time.Time) *Transport {
	return &Transport{queues: make(map[string]*Queue), now: now, ids: id.NewGeneratorWithClock(now)}
}

// Queue implements transport.Transport.
func (t *Transport) Queue(name string) (transport.Queue, error) {
	q, err := t.Open(name)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Open returns the concrete queue for name, creating the handle on first use.
// The queue still has to be ensured before it accepts messages.
func (t *Transport) Open(name string) (*Queue, error) {
	if err := transport.ValidateQueueName(name); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, transport.Wrap("open", name, transport.ErrClosed)
	}
	q, ok := t.queues[name]
	if !ok {
		q = &Queue{t: t, name: name, inflight: make(map[transport.Handle]*item)}
		t.queues[name] = q
	}
	return q, nil
}

// Close makes every queue reject further calls.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type item struct {
	seq        uint64
	body       []byte
	deliveries int
	enqueued   time.Time
	expiry     time.Time
}

// Queue is one in-memory queue.
type Queue struct {
	t    *Transport
	name string

	mu       sync.Mutex
	exists   bool
	seq      uint64
	ready    []*item
	inflight map[transport.Handle]*item
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) EnsureExists(ctx context.Context) error {
	if q.t.isClosed() {
		return transport.Wrap("ensure", q.name, transport.ErrClosed)
	}
	q.mu.Lock()
	q.exists = true
	q.mu.Unlock()
	return nil
}

func (q *Queue) Enqueue(ctx context.Context, body []byte) error {
	if err := q.check(ctx, "enqueue"); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.exists {
		return transport.Wrap("enqueue", q.name, transport.ErrQueueNotFound)
	}
	q.push(body, 0)
	return nil
}

// Put enqueues body as if it had already been delivered `deliveries` times,
// so its next lease reports DequeueCount deliveries+1. The queue is created
// if needed.
func (q *Queue) Put(body []byte, deliveries int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.exists = true
	q.push(body, deliveries)
}

func (q *Queue) push(body []byte, deliveries int) {
	q.seq++
	q.ready = append(q.ready, &item{
		seq:        q.seq,
		body:       append([]byte(nil), body...),
		deliveries: deliveries,
		enqueued:   q.t.now(),
	})
}

func (q *Queue) LeaseBatch(ctx context.Context, max int, lease time.Duration) ([]transport.LeasedMessage, error) {
	if err := q.check(ctx, "lease"); err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.exists {
		return nil, transport.Wrap("lease", q.name, transport.ErrQueueNotFound)
	}
	now := q.t.now()
	q.reclaimLocked(now)

	n := max
	if n > len(q.ready) {
		n = len(q.ready)
	}
	out := make([]transport.LeasedMessage, 0, n)
	for _, it := range q.ready[:n] {
		it.deliveries++
		it.expiry = now.Add(lease)
		h := transport.Handle(q.t.ids.Next().String())
		q.inflight[h] = it
		out = append(out, transport.LeasedMessage{
			Body:         append([]byte(nil), it.body...),
			DequeueCount: it.deliveries,
			Handle:       h,
		})
	}
	q.ready = append(q.ready[:0], q.ready[n:]...)
	return out, nil
}

// reclaimLocked returns expired leases to the ready list in enqueue order.
func (q *Queue) reclaimLocked(now time.Time) {
	reclaimed := false
	for h, it := range q.inflight {
		if now.Before(it.expiry) {
			continue
		}
		delete(q.inflight, h)
		q.ready = append(q.ready, it)
		reclaimed = true
	}
	if reclaimed {
		sort.Slice(q.ready, func(i, j int) bool { return q.ready[i].seq < q.ready[j].seq })
	}
}

func (q *Queue) Delete(ctx context.Context, h transport.Handle) error {
	if err := q.check(ctx, "delete"); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.inflight[h]
	if !ok || !q.t.now().Before(it.expiry) {
		return transport.Wrap("delete", q.name, transport.ErrInvalidHandle)
	}
	delete(q.inflight, h)
	return nil
}

// Stats implements transport.Inspector.
func (t *Transport) Stats(ctx context.Context, queue string) (transport.QueueStats, error) {
	q, err := t.existing(ctx, "stats", queue)
	if err != nil {
		return transport.QueueStats{}, err
	}
	return q.Stats(), nil
}

// Peek implements transport.Inspector. Messages are returned in enqueue
// order, leased or not.
func (t *Transport) Peek(ctx context.Context, queue string, opts transport.PeekOptions) ([]transport.PeekedMessage, error) {
	q, err := t.existing(ctx, "peek", queue)
	if err != nil {
		return nil, err
	}
	f, err := celfilter.Compile(opts.Filter)
	if err != nil {
		return nil, transport.Wrap("peek", queue, err)
	}
	q.mu.Lock()
	now := q.t.now()
	all := make([]transport.PeekedMessage, 0, len(q.ready)+len(q.inflight))
	for _, it := range q.ready {
		all = append(all, it.peeked(false))
	}
	for _, it := range q.inflight {
		all = append(all, it.peeked(now.Before(it.expiry)))
	}
	q.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Seq < all[j].Seq })
	out := all[:0]
	for _, m := range all {
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
		if f.Match(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (t *Transport) existing(ctx context.Context, op, name string) (*Queue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q, err := t.Open(name)
	if err != nil {
		return nil, err
	}
	q.mu.Lock()
	ok := q.exists
	q.mu.Unlock()
	if !ok {
		return nil, transport.Wrap(op, name, transport.ErrQueueNotFound)
	}
	return q, nil
}

func (it *item) peeked(leased bool) transport.PeekedMessage {
	return transport.PeekedMessage{
		Seq:          it.seq,
		Body:         append([]byte(nil), it.body...),
		Deliveries:   it.deliveries,
		Leased:       leased,
		EnqueuedAtMs: it.enqueued.UnixMilli(),
	}
}

// Stats reports ready and in-flight counts. Expired leases count as ready.
func (q *Queue) Stats() transport.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reclaimLocked(q.t.now())
	return transport.QueueStats{Queue: q.name, Ready: len(q.ready), InFlight: len(q.inflight)}
}

func (q *Queue) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.t.isClosed() {
		return transport.Wrap(op, q.name, transport.ErrClosed)
	}
	return nil
}
