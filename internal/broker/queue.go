package broker

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
	"github.com/rzbill/courier/internal/transport"
	"github.com/rzbill/courier/internal/transport/celfilter"
	"github.com/rzbill/courier/pkg/id"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// Queue is one durable lease queue. All mutations are serialized by mu.
type Queue struct {
	b      *Broker
	name   string
	exists atomic.Bool

	mu      sync.Mutex
	lastSeq uint64
}

func openQueue(b *Broker, name string) (*Queue, error) {
	q := &Queue{b: b, name: name}
	v, err := b.db.Get(SeqKey(name))
	switch {
	case err == nil && len(v) >= 8:
		q.lastSeq = binary.BigEndian.Uint64(v[:8])
	case err != nil && !pebblestore.IsNotFound(err):
		return nil, err
	}
	return q, nil
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) EnsureExists(ctx context.Context) error {
	_, err := q.b.EnsureQueue(ctx, q.name)
	return err
}

func (q *Queue) Enqueue(ctx context.Context, body []byte) error {
	if err := q.check(ctx, "enqueue"); err != nil {
		return err
	}
	if err := q.requireExists("enqueue"); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	seq := q.lastSeq + 1
	batch := q.b.db.NewBatch()
	defer batch.Close()
	rec := EncodeRecord(Record{EnqueuedAtMs: q.b.now().UnixMilli(), Payload: body})
	if err := batch.Set(MsgKey(q.name, seq), rec, nil); err != nil {
		return transport.Wrap("enqueue", q.name, err)
	}
	if err := batch.Set(ReadyKey(q.name, seq), nil, nil); err != nil {
		return transport.Wrap("enqueue", q.name, err)
	}
	if err := batch.Set(SeqKey(q.name), appendBE8(nil, seq), nil); err != nil {
		return transport.Wrap("enqueue", q.name, err)
	}
	if err := q.b.db.CommitBatch(ctx, batch); err != nil {
		return transport.Wrap("enqueue", q.name, err)
	}
	q.lastSeq = seq
	return nil
}

func (q *Queue) LeaseBatch(ctx context.Context, max int, lease time.Duration) ([]transport.LeasedMessage, error) {
	if err := q.check(ctx, "lease"); err != nil {
		return nil, err
	}
	if err := q.requireExists("lease"); err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.b.now()
	if _, err := q.reclaimLocked(ctx, now, 0); err != nil {
		return nil, transport.Wrap("lease", q.name, err)
	}

	var seqs []uint64
	err := q.b.db.ScanPrefix(ReadyPrefix(q.name), func(k, _ []byte) bool {
		if seq, ok := seqSuffix(k); ok {
			seqs = append(seqs, seq)
		}
		return len(seqs) < max
	})
	if err != nil {
		return nil, transport.Wrap("lease", q.name, err)
	}
	if len(seqs) == 0 {
		return nil, nil
	}

	batch := q.b.db.NewBatch()
	defer batch.Close()
	expiry := uint64(now.Add(lease).UnixMilli())
	out := make([]transport.LeasedMessage, 0, len(seqs))
	for _, seq := range seqs {
		raw, err := q.b.db.Get(MsgKey(q.name, seq))
		if err != nil && !pebblestore.IsNotFound(err) {
			return nil, transport.Wrap("lease", q.name, err)
		}
		rec, ok := DecodeRecord(raw)
		if !ok {
			q.b.log.Warn("discarding unreadable message", logpkg.Str(logpkg.QueueKey, q.name), logpkg.Int64("seq", int64(seq)))
			_ = batch.Delete(ReadyKey(q.name, seq), nil)
			_ = batch.Delete(MsgKey(q.name, seq), nil)
			continue
		}
		rec.Deliveries++
		receipt := q.b.ids.Next()
		if err := batch.Set(MsgKey(q.name, seq), EncodeRecord(rec), nil); err != nil {
			return nil, transport.Wrap("lease", q.name, err)
		}
		if err := batch.Delete(ReadyKey(q.name, seq), nil); err != nil {
			return nil, transport.Wrap("lease", q.name, err)
		}
		if err := batch.Set(LeaseKey(q.name, seq), encodeLease(expiry, [16]byte(receipt)), nil); err != nil {
			return nil, transport.Wrap("lease", q.name, err)
		}
		if err := batch.Set(LeaseIdxKey(q.name, expiry, seq), nil, nil); err != nil {
			return nil, transport.Wrap("lease", q.name, err)
		}
		out = append(out, transport.LeasedMessage{
			Body:         rec.Payload,
			DequeueCount: int(rec.Deliveries),
			Handle:       formatHandle(seq, receipt),
		})
	}
	if err := q.b.db.CommitBatch(ctx, batch); err != nil {
		return nil, transport.Wrap("lease", q.name, err)
	}
	return out, nil
}

// Delete removes a leased message. The handle must belong to the current,
// unexpired lease.
func (q *Queue) Delete(ctx context.Context, h transport.Handle) error {
	if err := q.check(ctx, "delete"); err != nil {
		return err
	}
	seq, receipt, err := parseHandle(h)
	if err != nil {
		return transport.Wrap("delete", q.name, transport.ErrInvalidHandle)
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	v, err := q.b.db.Get(LeaseKey(q.name, seq))
	if err != nil {
		if pebblestore.IsNotFound(err) {
			return transport.Wrap("delete", q.name, transport.ErrInvalidHandle)
		}
		return transport.Wrap("delete", q.name, err)
	}
	exp, current, ok := decodeLease(v)
	if !ok || current != [16]byte(receipt) || exp <= uint64(q.b.now().UnixMilli()) {
		return transport.Wrap("delete", q.name, transport.ErrInvalidHandle)
	}
	batch := q.b.db.NewBatch()
	defer batch.Close()
	_ = batch.Delete(LeaseKey(q.name, seq), nil)
	_ = batch.Delete(LeaseIdxKey(q.name, exp, seq), nil)
	_ = batch.Delete(MsgKey(q.name, seq), nil)
	if err := q.b.db.CommitBatch(ctx, batch); err != nil {
		return transport.Wrap("delete", q.name, err)
	}
	return nil
}

// Reclaim makes up to max expired leases visible again. max <= 0 reclaims
// all of them.
func (q *Queue) Reclaim(ctx context.Context, max int) (int, error) {
	if err := q.check(ctx, "reclaim"); err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	n, err := q.reclaimLocked(ctx, q.b.now(), max)
	return n, transport.Wrap("reclaim", q.name, err)
}

func (q *Queue) reclaimLocked(ctx context.Context, now time.Time, max int) (int, error) {
	type due struct {
		key      []byte
		exp, seq uint64
	}
	prefix := LeaseIdxPrefix(q.name)
	nowMs := uint64(now.UnixMilli())
	var dues []due
	err := q.b.db.ScanPrefix(prefix, func(k, _ []byte) bool {
		rest := k[len(prefix):]
		if len(rest) != 16 {
			return true
		}
		exp := binary.BigEndian.Uint64(rest[:8])
		if exp > nowMs {
			return false
		}
		dues = append(dues, due{key: append([]byte(nil), k...), exp: exp, seq: binary.BigEndian.Uint64(rest[8:])})
		return max <= 0 || len(dues) < max
	})
	if err != nil || len(dues) == 0 {
		return 0, err
	}

	batch := q.b.db.NewBatch()
	defer batch.Close()
	reclaimed := 0
	for _, d := range dues {
		_ = batch.Delete(d.key, nil)
		v, err := q.b.db.Get(LeaseKey(q.name, d.seq))
		if err != nil {
			if pebblestore.IsNotFound(err) {
				continue
			}
			return 0, err
		}
		// A lease index entry whose lease was replaced is simply dropped.
		if exp, _, ok := decodeLease(v); !ok || exp != d.exp {
			continue
		}
		_ = batch.Delete(LeaseKey(q.name, d.seq), nil)
		if err := batch.Set(ReadyKey(q.name, d.seq), nil, nil); err != nil {
			return 0, err
		}
		reclaimed++
	}
	if err := q.b.db.CommitBatch(ctx, batch); err != nil {
		return 0, err
	}
	return reclaimed, nil
}

func (q *Queue) stats() (transport.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := transport.QueueStats{Queue: q.name}
	err := q.b.db.ScanPrefix(ReadyPrefix(q.name), func(_, _ []byte) bool {
		st.Ready++
		return true
	})
	if err != nil {
		return st, transport.Wrap("stats", q.name, err)
	}
	nowMs := uint64(q.b.now().UnixMilli())
	err = q.b.db.ScanPrefix(LeasePrefix(q.name), func(_, v []byte) bool {
		if exp, _, ok := decodeLease(v); ok && exp > nowMs {
			st.InFlight++
		} else {
			st.Ready++
		}
		return true
	})
	return st, transport.Wrap("stats", q.name, err)
}

func (q *Queue) peek(limit int, f celfilter.Filter) ([]transport.PeekedMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	nowMs := uint64(q.b.now().UnixMilli())
	leased := make(map[uint64]bool)
	lp := LeasePrefix(q.name)
	err := q.b.db.ScanPrefix(lp, func(k, v []byte) bool {
		if exp, _, ok := decodeLease(v); ok && exp > nowMs {
			if seq, ok := seqSuffix(k); ok {
				leased[seq] = true
			}
		}
		return true
	})
	if err != nil {
		return nil, transport.Wrap("peek", q.name, err)
	}

	var out []transport.PeekedMessage
	err = q.b.db.ScanPrefix(MsgPrefix(q.name), func(k, v []byte) bool {
		seq, ok := seqSuffix(k)
		if !ok {
			return true
		}
		rec, ok := DecodeRecord(v)
		if !ok {
			return true
		}
		m := transport.PeekedMessage{
			Seq:          seq,
			Body:         rec.Payload,
			Deliveries:   int(rec.Deliveries),
			Leased:       leased[seq],
			EnqueuedAtMs: rec.EnqueuedAtMs,
		}
		if f.Match(m) {
			out = append(out, m)
		}
		return limit <= 0 || len(out) < limit
	})
	if err != nil {
		return nil, transport.Wrap("peek", q.name, err)
	}
	return out, nil
}

func (q *Queue) requireExists(op string) error {
	if q.exists.Load() {
		return nil
	}
	ok, err := q.b.db.Has(MetaKey(q.name))
	if err != nil {
		return transport.Wrap(op, q.name, err)
	}
	if !ok {
		return transport.Wrap(op, q.name, transport.ErrQueueNotFound)
	}
	q.exists.Store(true)
	return nil
}

func (q *Queue) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.b.isClosed() {
		return transport.Wrap(op, q.name, transport.ErrClosed)
	}
	return nil
}

func formatHandle(seq uint64, receipt id.ID) transport.Handle {
	return transport.Handle(strconv.FormatUint(seq, 10) + ":" + receipt.String())
}

func parseHandle(h transport.Handle) (uint64, id.ID, error) {
	s, r, ok := strings.Cut(string(h), ":")
	if !ok {
		return 0, id.ID{}, fmt.Errorf("handle %q: missing receipt", h)
	}
	seq, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, id.ID{}, err
	}
	receipt, err := id.Parse(r)
	if err != nil {
		return 0, id.ID{}, err
	}
	return seq, receipt, nil
}
