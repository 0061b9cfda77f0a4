package broker

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"sync"
	"time"

	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
	"github.com/rzbill/courier/internal/transport"
	"github.com/rzbill/courier/internal/transport/celfilter"
	"github.com/rzbill/courier/pkg/id"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// Options configures a Broker.
type Options struct {
	Logger logpkg.Logger
	// QueueNamePattern overrides transport.DefaultQueueNamePattern.
	QueueNamePattern string
	// SweepBatch caps the leases reclaimed per queue per sweep. 0 means 1024.
	SweepBatch int
	Now        func() time.Time
}

// Broker serves lease queues out of a Pebble database. It implements
// transport.Transport and transport.Inspector. The database is owned by the
// caller.
type Broker struct {
	db     *pebblestore.DB
	log    logpkg.Logger
	nameRe *regexp.Regexp
	now    func() time.Time
	ids    *id.Generator
	batch  int

	mu     sync.Mutex
	queues map[string]*Queue
	closed bool

	sweepStop chan struct{}
	sweepDone chan struct{}
}

func New(db *pebblestore.DB, opts Options) (*Broker, error) {
	pattern := opts.QueueNamePattern
	if pattern == "" {
		pattern = transport.DefaultQueueNamePattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("broker: queue name pattern: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SweepBatch <= 0 {
		opts.SweepBatch = 1024
	}
	return &Broker{
		db:     db,
		log:    opts.Logger.WithComponent("broker"),
		nameRe: re,
		now:    opts.Now,
		ids:    id.NewGeneratorWithClock(opts.Now),
		batch:  opts.SweepBatch,
		queues: make(map[string]*Queue),
	}, nil
}

// Queue implements transport.Transport.
func (b *Broker) Queue(name string) (transport.Queue, error) {
	q, err := b.Open(name)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Open returns the queue handle for name, restoring its sequence from disk on
// first use. It does not create the queue.
func (b *Broker) Open(name string) (*Queue, error) {
	if err := transport.ValidateQueueNameWith(b.nameRe, name); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, transport.Wrap("open", name, transport.ErrClosed)
	}
	if q, ok := b.queues[name]; ok {
		return q, nil
	}
	q, err := openQueue(b, name)
	if err != nil {
		return nil, transport.Wrap("open", name, err)
	}
	b.queues[name] = q
	return q, nil
}

// EnsureQueue registers name if needed and returns its registry record.
func (b *Broker) EnsureQueue(ctx context.Context, name string) (QueueMeta, error) {
	q, err := b.Open(name)
	if err != nil {
		return QueueMeta{}, err
	}
	if err := q.check(ctx, "ensure"); err != nil {
		return QueueMeta{}, err
	}
	m, err := ensureMeta(b.db, name, b.now())
	if err != nil {
		return QueueMeta{}, transport.Wrap("ensure", name, err)
	}
	q.exists.Store(true)
	return m, nil
}

// ListQueues returns every registered queue ordered by name.
func (b *Broker) ListQueues() ([]QueueMeta, error) {
	ms, err := listMeta(b.db)
	if err != nil {
		return nil, transport.Wrap("list", "", err)
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].Name < ms[j].Name })
	return ms, nil
}

// Stats implements transport.Inspector.
func (b *Broker) Stats(ctx context.Context, name string) (transport.QueueStats, error) {
	q, err := b.existing(ctx, "stats", name)
	if err != nil {
		return transport.QueueStats{}, err
	}
	return q.stats()
}

// Peek implements transport.Inspector.
func (b *Broker) Peek(ctx context.Context, name string, opts transport.PeekOptions) ([]transport.PeekedMessage, error) {
	q, err := b.existing(ctx, "peek", name)
	if err != nil {
		return nil, err
	}
	f, err := celfilter.Compile(opts.Filter)
	if err != nil {
		return nil, transport.Wrap("peek", name, err)
	}
	return q.peek(opts.Limit, f)
}

func (b *Broker) existing(ctx context.Context, op, name string) (*Queue, error) {
	q, err := b.Open(name)
	if err != nil {
		return nil, err
	}
	if err := q.check(ctx, op); err != nil {
		return nil, err
	}
	if err := q.requireExists(op); err != nil {
		return nil, err
	}
	return q, nil
}

// Sweep reclaims expired leases in every registered queue and returns how
// many messages became visible again.
func (b *Broker) Sweep(ctx context.Context) (int, error) {
	metas, err := b.ListQueues()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, m := range metas {
		q, err := b.Open(m.Name)
		if err != nil {
			return total, err
		}
		n, err := q.Reclaim(ctx, b.batch)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// StartSweeper reclaims expired leases every interval, with up to 10%
// jitter, until StopSweeper or Close.
func (b *Broker) StartSweeper(interval time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sweepStop != nil || b.closed {
		return
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	b.sweepStop, b.sweepDone = stop, done
	go func() {
		defer close(done)
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for {
			select {
			case <-stop:
				return
			case <-time.After(interval + time.Duration(rng.Int63n(int64(interval/10+1)))):
				n, err := b.Sweep(context.Background())
				if err != nil {
					b.log.Warn("lease sweep failed", logpkg.Err(err))
				} else if n > 0 {
					b.log.Debug("reclaimed expired leases", logpkg.Int("count", n))
				}
			}
		}
	}()
}

// StopSweeper stops the background sweeper and waits for it to exit.
func (b *Broker) StopSweeper() {
	b.mu.Lock()
	stop, done := b.sweepStop, b.sweepDone
	b.sweepStop, b.sweepDone = nil, nil
	b.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

// Close stops the sweeper and rejects further calls. The database stays open.
func (b *Broker) Close() error {
	b.StopSweeper()
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
