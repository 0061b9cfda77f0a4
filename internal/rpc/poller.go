package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rzbill/courier/internal/transport"
	logpkg "github.com/rzbill/courier/pkg/log"
)

const (
	pollerIdle int32 = iota
	pollerRunning
	pollerFaulted
)

// poller is the only reader of a client's reply queue and the only place
// pending requests time out. It runs while the table has entries and exits
// once it drains; the next registration starts it again.
type poller[T any] struct {
	queue transport.Queue
	table *PendingTable[T]
	codec Codec
	log   logpkg.Logger
	now   func() time.Time

	interval      time.Duration
	batch         int
	lease         time.Duration
	maxSweepDelay time.Duration

	state atomic.Int32

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// owned by the loop goroutine
	lastSweep time.Time
}

func newPoller[T any](q transport.Queue, table *PendingTable[T], opts ClientOptions) *poller[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &poller[T]{
		queue:         q,
		table:         table,
		codec:         opts.Codec,
		log:           opts.Logger.With(logpkg.Component("response-poller"), logpkg.Str(logpkg.QueueKey, q.Name())),
		now:           opts.Now,
		interval:      opts.PollInterval,
		batch:         opts.ResponseBatchSize,
		lease:         opts.ResponseLease,
		maxSweepDelay: opts.MaxSweepDelay,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// ensureRunning starts the loop unless it is already running. It returns
// ErrClosed once the poller has been closed.
func (p *poller[T]) ensureRunning() error {
	for {
		s := p.state.Load()
		if s == pollerRunning {
			return nil
		}
		if p.state.CompareAndSwap(s, pollerRunning) {
			break
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.state.Store(pollerIdle)
		return ErrClosed
	}
	p.wg.Add(1)
	go p.run()
	return nil
}

func (p *poller[T]) close() {
	p.mu.Lock()
	p.closed = true
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *poller[T]) run() {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.fault(fmt.Errorf("panic: %v", r))
		}
	}()
	for {
		if p.ctx.Err() != nil {
			p.state.Store(pollerIdle)
			return
		}
		if p.table.Len() == 0 {
			p.state.Store(pollerIdle)
			// A submitter may have registered between the check and the
			// store; it either restarted us already or left the work here.
			if p.table.Len() == 0 || !p.state.CompareAndSwap(pollerIdle, pollerRunning) {
				return
			}
		}
		err := p.cycle()
		if err == nil || p.ctx.Err() != nil {
			continue
		}
		if errors.Is(err, transport.ErrClosed) {
			p.fault(err)
			return
		}
		// A failed pass counts as an idle one so deadlines still fire while
		// the reply queue is unreachable.
		p.log.Warn("response poll failed", logpkg.Err(err))
		p.sweep(p.now())
		p.sleep()
	}
}

// fault marks the poller faulted before failing the table, so a request
// registered concurrently restarts the loop instead of waiting on it.
func (p *poller[T]) fault(cause error) {
	p.state.Store(pollerFaulted)
	ids := p.table.FailAllWithFault(&PollerFaultError{Cause: cause})
	p.log.Error("response poller stopped", logpkg.Err(cause), logpkg.Int("failed_requests", len(ids)))
}

func (p *poller[T]) cycle() error {
	msgs, err := p.queue.LeaseBatch(p.ctx, p.batch, p.lease)
	if err != nil {
		return err
	}
	now := p.now()
	if len(msgs) == 0 {
		p.sweep(now)
		p.sleep()
		return nil
	}
	for _, m := range msgs {
		p.resolve(m)
	}
	if p.maxSweepDelay > 0 && now.Sub(p.lastSweep) >= p.maxSweepDelay {
		p.sweep(now)
	}
	return p.deleteAll(msgs)
}

func (p *poller[T]) resolve(m transport.LeasedMessage) {
	env, err := decodeResponse[T](p.codec, m.Body)
	if err != nil {
		p.log.Warn("dropping undecodable response", logpkg.Err(err), logpkg.Int("size", len(m.Body)))
		return
	}
	if !p.table.CompleteIfPresent(env.RequestID, env.Payload) {
		p.log.Info("orphan response", logpkg.Str(logpkg.RequestIDKey, env.RequestID.String()))
	}
}

func (p *poller[T]) sweep(now time.Time) {
	p.lastSweep = now
	if ids := p.table.FailTimedOutBefore(now); len(ids) > 0 {
		p.log.Debug("requests timed out", logpkg.Int("count", len(ids)))
	}
}

// deleteAll removes every lease of a batch, whether or not its response
// matched a pending request. Deletes run to completion even if the poller is
// closing.
func (p *poller[T]) deleteAll(msgs []transport.LeasedMessage) error {
	ctx := context.WithoutCancel(p.ctx)
	var g errgroup.Group
	for _, m := range msgs {
		g.Go(func() error { return p.queue.Delete(ctx, m.Handle) })
	}
	return g.Wait()
}

func (p *poller[T]) sleep() {
	t := time.NewTimer(p.interval)
	defer t.Stop()
	select {
	case <-p.ctx.Done():
	case <-t.C:
	}
}
