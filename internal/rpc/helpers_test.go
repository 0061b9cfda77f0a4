package rpc

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rzbill/courier/internal/transport"
	"github.com/rzbill/courier/internal/transport/memq"
	logpkg "github.com/rzbill/courier/pkg/log"
)

const (
	testRequests  = "requests"
	testResponses = "response-queue-test"
)

// hookedTransport wraps every queue it hands out.
type hookedTransport struct {
	*memq.Transport
	wrap func(transport.Queue) transport.Queue
}

func (t *hookedTransport) Queue(name string) (transport.Queue, error) {
	q, err := t.Transport.Queue(name)
	if err != nil || t.wrap == nil {
		return q, err
	}
	return t.wrap(q), nil
}

// hookedQueue runs optional hooks around the wrapped queue's calls.
// leaseErr, when it returns non-nil, fails the lease; afterLease runs after
// every lease that returned messages.
type hookedQueue struct {
	transport.Queue
	beforeLease func()
	leaseErr    func() error
	afterLease  func()

	mu      sync.Mutex
	deletes map[transport.Handle]int
}

func (q *hookedQueue) LeaseBatch(ctx context.Context, max int, lease time.Duration) ([]transport.LeasedMessage, error) {
	if q.beforeLease != nil {
		q.beforeLease()
	}
	if q.leaseErr != nil {
		if err := q.leaseErr(); err != nil {
			return nil, err
		}
	}
	msgs, err := q.Queue.LeaseBatch(ctx, max, lease)
	if err == nil && len(msgs) > 0 && q.afterLease != nil {
		q.afterLease()
	}
	return msgs, err
}

func (q *hookedQueue) Delete(ctx context.Context, h transport.Handle) error {
	q.mu.Lock()
	if q.deletes == nil {
		q.deletes = make(map[transport.Handle]int)
	}
	q.deletes[h]++
	q.mu.Unlock()
	return q.Queue.Delete(ctx, h)
}

func (q *hookedQueue) deleteCounts() map[transport.Handle]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[transport.Handle]int, len(q.deletes))
	for h, n := range q.deletes {
		out[h] = n
	}
	return out
}

func testClientOptions() ClientOptions {
	return ClientOptions{PollInterval: 10 * time.Millisecond}
}

func testWorkerOptions() WorkerOptions {
	o := DefaultWorkerOptions()
	o.DelayWhenNothingInQueue = 10 * time.Millisecond
	return o
}

func newTestClient(t *testing.T, tr transport.Transport) *Client[string, string] {
	t.Helper()
	return newTestClientWith(t, tr, testClientOptions())
}

func newTestClientWith(t *testing.T, tr transport.Transport, opts ClientOptions) *Client[string, string] {
	t.Helper()
	c, err := NewClient[string, string](tr, QueueNames{RequestQueue: testRequests, ResponseQueue: testResponses}, opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize client: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// startWorker runs a worker until the test ends and returns its exit channel.
func startWorker(t *testing.T, tr transport.Transport, h Handler[string, string]) <-chan error {
	t.Helper()
	w, err := NewWorker[string, string](tr, testRequests, h, testWorkerOptions())
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	if err := w.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize worker: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return done
}

func processed(_ context.Context, s string) (string, error) { return s + "-processed", nil }

func eventually(t *testing.T, within time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", within)
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock { return &testClock{t: time.Unix(1_700_000_000, 0)} }

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// logBuffer collects log output written from background goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *logBuffer) logger() logpkg.Logger {
	return logpkg.NewLogger(
		logpkg.WithLevel(logpkg.WarnLevel),
		logpkg.WithFormatter(&logpkg.TextFormatter{DisableCaller: true}),
		logpkg.WithOutput(logpkg.NewWriterOutput(b)),
	)
}
