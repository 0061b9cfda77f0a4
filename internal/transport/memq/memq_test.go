package memq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rzbill/courier/internal/transport"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func openTestQueue(t *testing.T) (*Queue, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.UnixMilli(1_000_000)}
	tr := NewWithClock(clock.Now)
	q, err := tr.Open("requests")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := q.EnsureExists(context.Background()); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	return q, clock
}

func TestEnqueueRequiresExistingQueue(t *testing.T) {
	tr := New()
	q, err := tr.Queue("missing")
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	err = q.Enqueue(context.Background(), []byte("x"))
	if !errors.Is(err, transport.ErrQueueNotFound) {
		t.Fatalf("want ErrQueueNotFound, got %v", err)
	}
	if _, err := tr.Queue("Bad/Name"); !errors.Is(err, transport.ErrInvalidQueueName) {
		t.Fatalf("want ErrInvalidQueueName, got %v", err)
	}
}

func TestLeaseHidesAndDeleteRemoves(t *testing.T) {
	q, _ := openTestQueue(t)
	ctx := context.Background()
	for _, b := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, []byte(b)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	msgs, err := q.LeaseBatch(ctx, 2, time.Second)
	if err != nil {
		t.Fatalf("lease: %v", err)
	}
	if len(msgs) != 2 || string(msgs[0].Body) != "a" || string(msgs[1].Body) != "b" {
		t.Fatalf("unexpected batch %+v", msgs)
	}
	if msgs[0].DequeueCount != 1 {
		t.Fatalf("first delivery should report 1, got %d", msgs[0].DequeueCount)
	}
	st := q.Stats()
	if st.Ready != 1 || st.InFlight != 2 {
		t.Fatalf("stats %+v", st)
	}
	for _, m := range msgs {
		if err := q.Delete(ctx, m.Handle); err != nil {
			t.Fatalf("delete: %v", err)
		}
	}
	if err := q.Delete(ctx, msgs[0].Handle); !errors.Is(err, transport.ErrInvalidHandle) {
		t.Fatalf("second delete should fail with ErrInvalidHandle, got %v", err)
	}
	st = q.Stats()
	if st.Ready != 1 || st.InFlight != 0 {
		t.Fatalf("stats after delete %+v", st)
	}
}

func TestExpiredLeaseIsRedeliveredWithHigherCount(t *testing.T) {
	q, clock := openTestQueue(t)
	ctx := context.Background()
	_ = q.Enqueue(ctx, []byte("slow"))

	first, _ := q.LeaseBatch(ctx, 1, 500*time.Millisecond)
	if len(first) != 1 {
		t.Fatalf("expected one message")
	}
	if again, _ := q.LeaseBatch(ctx, 1, time.Second); len(again) != 0 {
		t.Fatalf("leased message must stay hidden")
	}

	clock.Advance(time.Second)
	second, _ := q.LeaseBatch(ctx, 1, time.Second)
	if len(second) != 1 || second[0].DequeueCount != 2 {
		t.Fatalf("expected redelivery with count 2, got %+v", second)
	}
	if err := q.Delete(ctx, first[0].Handle); !errors.Is(err, transport.ErrInvalidHandle) {
		t.Fatalf("stale handle must be rejected, got %v", err)
	}
	if err := q.Delete(ctx, second[0].Handle); err != nil {
		t.Fatalf("current handle delete: %v", err)
	}
}

func TestPutPresetsDeliveries(t *testing.T) {
	q, _ := openTestQueue(t)
	q.Put([]byte("poison"), 4)
	msgs, _ := q.LeaseBatch(context.Background(), 5, time.Second)
	if len(msgs) != 1 || msgs[0].DequeueCount != 5 {
		t.Fatalf("unexpected %+v", msgs)
	}
}

func TestClosedTransportRejectsCalls(t *testing.T) {
	tr := New()
	q, _ := tr.Open("requests")
	_ = q.EnsureExists(context.Background())
	_ = tr.Close()
	if _, err := q.LeaseBatch(context.Background(), 1, time.Second); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
	if _, err := tr.Queue("other"); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("want ErrClosed from Queue, got %v", err)
	}
}

func TestPeekFiltersWithoutLeasing(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(5_000)}
	tr := NewWithClock(clock.Now)
	q, _ := tr.Open("requests")
	ctx := context.Background()
	_ = q.EnsureExists(ctx)
	_ = q.Enqueue(ctx, []byte(`{"n":1}`))
	_ = q.Enqueue(ctx, []byte(`{"n":2}`))
	_, _ = q.LeaseBatch(ctx, 1, time.Second)

	all, err := tr.Peek(ctx, "requests", transport.PeekOptions{})
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if len(all) != 2 || !all[0].Leased || all[1].Leased {
		t.Fatalf("unexpected peek %+v", all)
	}
	got, err := tr.Peek(ctx, "requests", transport.PeekOptions{Filter: "json.n == 2.0"})
	if err != nil {
		t.Fatalf("peek filter: %v", err)
	}
	if len(got) != 1 || got[0].Seq != 2 {
		t.Fatalf("filter mismatch %+v", got)
	}
	if _, err := tr.Peek(ctx, "unknown", transport.PeekOptions{}); !errors.Is(err, transport.ErrQueueNotFound) {
		t.Fatalf("want ErrQueueNotFound, got %v", err)
	}
	st, err := tr.Stats(ctx, "requests")
	if err != nil || st.Ready != 1 || st.InFlight != 1 {
		t.Fatalf("stats %+v err=%v", st, err)
	}
}
