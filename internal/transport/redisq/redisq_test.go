package redisq

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/courier/internal/rpc"
	"github.com/rzbill/courier/internal/transport"
	"github.com/rzbill/courier/internal/transport/celfilter"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestTransport(t *testing.T, now func() time.Time) *Transport {
	s := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = c.Close(); s.Close() })
	tr, err := New(c, Options{Prefix: "test", Now: now})
	require.NoError(t, err)
	return tr
}

func ensured(t *testing.T, tr *Transport, name string) transport.Queue {
	q, err := tr.Queue(name)
	require.NoError(t, err)
	require.NoError(t, q.EnsureExists(context.Background()))
	return q
}

func TestEnqueueRequiresRegistration(t *testing.T) {
	tr := newTestTransport(t, nil)
	ctx := context.Background()
	q, err := tr.Queue("jobs")
	require.NoError(t, err)
	require.ErrorIs(t, q.Enqueue(ctx, []byte("x")), transport.ErrQueueNotFound)

	require.NoError(t, q.EnsureExists(ctx))
	require.NoError(t, q.EnsureExists(ctx))
	require.NoError(t, q.Enqueue(ctx, []byte("x")))

	names, err := tr.ListQueues(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"jobs"}, names)

	_, err = tr.Queue("Not Valid")
	require.ErrorIs(t, err, transport.ErrInvalidQueueName)
}

func TestLeaseDeleteInOrder(t *testing.T) {
	tr := newTestTransport(t, nil)
	ctx := context.Background()
	q := ensured(t, tr, "jobs")
	for _, b := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, []byte(b)))
	}

	msgs, err := q.LeaseBatch(ctx, 2, time.Minute)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, []byte("a"), msgs[0].Body)
	require.Equal(t, []byte("b"), msgs[1].Body)
	require.Equal(t, 1, msgs[0].DequeueCount)

	require.NoError(t, q.Delete(ctx, msgs[0].Handle))
	require.ErrorIs(t, q.Delete(ctx, msgs[0].Handle), transport.ErrInvalidHandle)
	require.ErrorIs(t, q.Delete(ctx, ""), transport.ErrInvalidHandle)

	st, err := tr.Stats(ctx, "jobs")
	require.NoError(t, err)
	require.Equal(t, transport.QueueStats{Queue: "jobs", Ready: 1, InFlight: 1}, st)
}

func TestExpiredLeaseIsRedelivered(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1_000_000)}
	tr := newTestTransport(t, clock.Now)
	ctx := context.Background()
	q := ensured(t, tr, "jobs")
	require.NoError(t, q.Enqueue(ctx, []byte("x")))

	first, err := q.LeaseBatch(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, first, 1)

	empty, err := q.LeaseBatch(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Empty(t, empty)

	clock.Advance(2 * time.Second)
	require.ErrorIs(t, q.Delete(ctx, first[0].Handle), transport.ErrInvalidHandle)

	again, err := q.LeaseBatch(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, again, 1)
	require.Equal(t, 2, again[0].DequeueCount)
	require.NotEqual(t, first[0].Handle, again[0].Handle)

	require.ErrorIs(t, q.Delete(ctx, first[0].Handle), transport.ErrInvalidHandle)
	require.NoError(t, q.Delete(ctx, again[0].Handle))
}

func TestPeekFiltersWithoutLeasing(t *testing.T) {
	tr := newTestTransport(t, nil)
	ctx := context.Background()
	q := ensured(t, tr, "jobs")
	for _, b := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
		require.NoError(t, q.Enqueue(ctx, []byte(b)))
	}
	_, err := q.LeaseBatch(ctx, 1, time.Minute)
	require.NoError(t, err)

	all, err := tr.Peek(ctx, "jobs", transport.PeekOptions{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.True(t, all[0].Leased)
	require.Equal(t, 1, all[0].Deliveries)
	require.Equal(t, uint64(1), all[0].Seq)

	some, err := tr.Peek(ctx, "jobs", transport.PeekOptions{Filter: "json.n >= 2.0", Limit: 1})
	require.NoError(t, err)
	require.Len(t, some, 1)
	require.Equal(t, []byte(`{"n":2}`), some[0].Body)

	_, err = tr.Peek(ctx, "jobs", transport.PeekOptions{Filter: "seq +"})
	require.ErrorIs(t, err, celfilter.ErrInvalidFilter)
	_, err = tr.Peek(ctx, "missing", transport.PeekOptions{})
	require.ErrorIs(t, err, transport.ErrQueueNotFound)
}

func TestClosedTransport(t *testing.T) {
	tr := newTestTransport(t, nil)
	q := ensured(t, tr, "jobs")
	require.NoError(t, tr.Close())
	require.ErrorIs(t, q.Enqueue(context.Background(), nil), transport.ErrClosed)
	_, err := tr.Queue("jobs")
	require.ErrorIs(t, err, transport.ErrClosed)
}

func TestRPCRoundTripOverRedis(t *testing.T) {
	tr := newTestTransport(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wopts := rpc.DefaultWorkerOptions()
	wopts.DelayWhenNothingInQueue = 5 * time.Millisecond
	w, err := rpc.NewWorker[string, string](tr, "requests", func(_ context.Context, s string) (string, error) {
		return s + "-processed", nil
	}, wopts)
	require.NoError(t, err)
	require.NoError(t, w.Initialize(ctx))
	wctx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- w.Run(wctx) }()
	defer func() { stop(); <-done }()

	c, err := rpc.NewClient[string, string](tr, rpc.QueueNames{RequestQueue: "requests", ResponseQueue: "response-queue-redis"},
		rpc.ClientOptions{PollInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Initialize(ctx))

	got, err := c.Call(ctx, "A", 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, "A-processed", got)
}

// failNextScript fails the next script call with a network-style error
// before it reaches the server.
type failNextScript struct{ armed atomic.Bool }

func (h *failNextScript) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *failNextScript) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if (cmd.Name() == "evalsha" || cmd.Name() == "eval") && h.armed.CompareAndSwap(true, false) {
			err := errors.New("i/o timeout")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (h *failNextScript) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestFailedLeaseKeepsMessageReady(t *testing.T) {
	tr := newTestTransport(t, nil)
	ctx := context.Background()
	q := ensured(t, tr, "jobs")
	require.NoError(t, q.Enqueue(ctx, []byte("a")))

	hook := &failNextScript{}
	hook.armed.Store(true)
	tr.cmd.AddHook(hook)

	_, err := q.LeaseBatch(ctx, 1, time.Second)
	require.Error(t, err)
	require.True(t, transport.IsTransportError(err))

	st, err := tr.Stats(ctx, "jobs")
	require.NoError(t, err)
	require.Equal(t, 1, st.Ready)
	require.Equal(t, 0, st.InFlight)

	msgs, err := q.LeaseBatch(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "a", string(msgs[0].Body))
	require.Equal(t, 1, msgs[0].DequeueCount)
	require.NoError(t, q.Delete(ctx, msgs[0].Handle))
}

func TestLeaseSkipsIdsWithoutMessage(t *testing.T) {
	tr := newTestTransport(t, nil)
	ctx := context.Background()
	q := ensured(t, tr, "jobs")
	rq := q.(*Queue)
	require.NoError(t, tr.cmd.RPush(ctx, rq.readyKey(), "999").Err())
	require.NoError(t, q.Enqueue(ctx, []byte("b")))

	msgs, err := q.LeaseBatch(ctx, 5, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "b", string(msgs[0].Body))
	require.Zero(t, tr.cmd.LLen(ctx, rq.readyKey()).Val())
}
