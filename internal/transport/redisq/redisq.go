// Package redisq is a transport.Transport on Redis.
//
// Keys under {prefix}:
//
//	queues                    set of registered queue names
//	q:{name}:seq              message id counter
//	q:{name}:ready            list of message ids
//	q:{name}:msg:{id}         hash: body, rc, created_at_ms
//	q:{name}:inflight         zset: receipt -> visibleAtMs
//	q:{name}:receipts         hash: receipt -> id
//
// A lease first requeues expired receipts, then pops a ready id, increments
// rc and records the receipt in one script. Requeueing drops the old
// receipt, so its Delete fails.
package redisq

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rzbill/courier/internal/transport"
	"github.com/rzbill/courier/internal/transport/celfilter"
	"github.com/rzbill/courier/pkg/id"
	logpkg "github.com/rzbill/courier/pkg/log"
)

const DefaultPrefix = "courier"

type Options struct {
	Prefix string
	// QueueNamePattern overrides transport.DefaultQueueNamePattern.
	QueueNamePattern string
	Logger           logpkg.Logger
	Now              func() time.Time
}

type Transport struct {
	cmd    redis.UniversalClient
	owned  bool
	prefix string
	nameRe *regexp.Regexp
	now    func() time.Time
	ids    *id.Generator
	log    logpkg.Logger
	closed atomic.Bool
}

// Dial connects to a single Redis server at addr. Close closes the client.
func Dial(addr string, opts Options) (*Transport, error) {
	t, err := New(redis.NewClient(&redis.Options{Addr: addr}), opts)
	if err != nil {
		return nil, err
	}
	t.owned = true
	return t, nil
}

// New wraps an existing client, which stays owned by the caller.
func New(cmd redis.UniversalClient, opts Options) (*Transport, error) {
	pattern := opts.QueueNamePattern
	if pattern == "" {
		pattern = transport.DefaultQueueNamePattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	return &Transport{
		cmd:    cmd,
		prefix: opts.Prefix,
		nameRe: re,
		now:    opts.Now,
		ids:    id.NewGeneratorWithClock(opts.Now),
		log:    opts.Logger.With(logpkg.Component("redisq")),
	}, nil
}

func (t *Transport) Queue(name string) (transport.Queue, error) { return t.open("open", name) }

func (t *Transport) open(op, name string) (*Queue, error) {
	if t.closed.Load() {
		return nil, transport.Wrap(op, name, transport.ErrClosed)
	}
	if err := transport.ValidateQueueNameWith(t.nameRe, name); err != nil {
		return nil, err
	}
	return &Queue{t: t, name: name, base: t.prefix + ":q:" + name}, nil
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) || !t.owned {
		return nil
	}
	return t.cmd.Close()
}

func (t *Transport) registryKey() string { return t.prefix + ":queues" }

// ListQueues returns the registered queue names in order.
func (t *Transport) ListQueues(ctx context.Context) ([]string, error) {
	names, err := t.cmd.SMembers(ctx, t.registryKey()).Result()
	if err != nil {
		return nil, transport.Wrap("list", "", err)
	}
	sort.Strings(names)
	return names, nil
}

// Stats implements transport.Inspector. Expired leases are requeued first.
func (t *Transport) Stats(ctx context.Context, name string) (transport.QueueStats, error) {
	q, err := t.existing(ctx, "stats", name)
	if err != nil {
		return transport.QueueStats{}, err
	}
	if _, err := q.requeueExpired(ctx); err != nil {
		return transport.QueueStats{}, transport.Wrap("stats", name, err)
	}
	var ready *redis.IntCmd
	var inflight *redis.IntCmd
	_, err = t.cmd.Pipelined(ctx, func(p redis.Pipeliner) error {
		ready = p.LLen(ctx, q.readyKey())
		inflight = p.ZCard(ctx, q.inflightKey())
		return nil
	})
	if err != nil {
		return transport.QueueStats{}, transport.Wrap("stats", name, err)
	}
	return transport.QueueStats{Queue: name, Ready: int(ready.Val()), InFlight: int(inflight.Val())}, nil
}

// Peek implements transport.Inspector. Messages are returned in enqueue
// order, leased or not.
func (t *Transport) Peek(ctx context.Context, name string, opts transport.PeekOptions) ([]transport.PeekedMessage, error) {
	q, err := t.existing(ctx, "peek", name)
	if err != nil {
		return nil, err
	}
	f, err := celfilter.Compile(opts.Filter)
	if err != nil {
		return nil, transport.Wrap("peek", name, err)
	}
	msgs, err := q.snapshot(ctx)
	if err != nil {
		return nil, transport.Wrap("peek", name, err)
	}
	out := msgs[:0]
	for _, m := range msgs {
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
	q, err := t.open(op, name)
	if err != nil {
		return nil, err
	}
	if err := q.requireExists(ctx, op); err != nil {
		return nil, err
	}
	return q, nil
}

type Queue struct {
	t      *Transport
	name   string
	base   string
	exists atomic.Bool
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) seqKey() string           { return q.base + ":seq" }
func (q *Queue) readyKey() string         { return q.base + ":ready" }
func (q *Queue) inflightKey() string      { return q.base + ":inflight" }
func (q *Queue) receiptsKey() string      { return q.base + ":receipts" }
func (q *Queue) msgKey(mid string) string { return q.base + ":msg:" + mid }

func (q *Queue) EnsureExists(ctx context.Context) error {
	if err := q.check(ctx, "ensure"); err != nil {
		return err
	}
	if err := q.t.cmd.SAdd(ctx, q.t.registryKey(), q.name).Err(); err != nil {
		return transport.Wrap("ensure", q.name, err)
	}
	q.exists.Store(true)
	return nil
}

func (q *Queue) Enqueue(ctx context.Context, body []byte) error {
	if err := q.requireExists(ctx, "enqueue"); err != nil {
		return err
	}
	seq, err := q.t.cmd.Incr(ctx, q.seqKey()).Result()
	if err != nil {
		return transport.Wrap("enqueue", q.name, err)
	}
	mid := strconv.FormatInt(seq, 10)
	_, err = q.t.cmd.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, q.msgKey(mid),
			"body", body,
			"rc", int64(0),
			"created_at_ms", q.t.now().UnixMilli(),
		)
		p.RPush(ctx, q.readyKey(), mid)
		return nil
	})
	return transport.Wrap("enqueue", q.name, err)
}

func (q *Queue) LeaseBatch(ctx context.Context, max int, lease time.Duration) ([]transport.LeasedMessage, error) {
	if err := q.requireExists(ctx, "lease"); err != nil {
		return nil, err
	}
	if max <= 0 {
		return nil, nil
	}
	if _, err := q.requeueExpired(ctx); err != nil {
		return nil, transport.Wrap("lease", q.name, err)
	}
	var out []transport.LeasedMessage
	for len(out) < max {
		m, ok, err := q.popLease(ctx, lease)
		if err != nil {
			return out, transport.Wrap("lease", q.name, err)
		}
		if !ok {
			break
		}
		out = append(out, m)
	}
	return out, nil
}

// popLeaseScript pops ready ids until one still has a message hash, then
// records its receipt in the same step, so an id is never out of both the
// ready list and the in-flight set. Ids of messages deleted while queued
// are discarded.
//
// KEYS: ready, receipts, inflight. ARGV: msg key prefix, receipt, visibleAtMs.
var popLeaseScript = redis.NewScript(`
while true do
  local mid = redis.call('LPOP', KEYS[1])
  if not mid then
    return false
  end
  local key = ARGV[1] .. mid
  if redis.call('EXISTS', key) == 1 then
    local rc = redis.call('HINCRBY', key, 'rc', 1)
    local body = redis.call('HGET', key, 'body')
    redis.call('HSET', KEYS[2], ARGV[2], mid)
    redis.call('ZADD', KEYS[3], ARGV[3], ARGV[2])
    return {mid, rc, body}
  end
end
`)

// popLease leases the next ready message. ok is false when none is ready.
func (q *Queue) popLease(ctx context.Context, d time.Duration) (transport.LeasedMessage, bool, error) {
	receipt := q.t.ids.Next().String()
	visibleAt := q.t.now().Add(d).UnixMilli()
	res, err := popLeaseScript.Run(ctx, q.t.cmd,
		[]string{q.readyKey(), q.receiptsKey(), q.inflightKey()},
		q.msgKey(""), receipt, visibleAt,
	).Slice()
	if errors.Is(err, redis.Nil) {
		return transport.LeasedMessage{}, false, nil
	}
	if err != nil {
		return transport.LeasedMessage{}, false, err
	}
	if len(res) != 3 {
		return transport.LeasedMessage{}, false, fmt.Errorf("redisq: unexpected lease reply %v", res)
	}
	rc, _ := res[1].(int64)
	body, _ := res[2].(string)
	return transport.LeasedMessage{Body: []byte(body), DequeueCount: int(rc), Handle: transport.Handle(receipt)}, true, nil
}

// Delete removes a leased message. Unknown, requeued or expired receipts
// fail with ErrInvalidHandle.
func (q *Queue) Delete(ctx context.Context, h transport.Handle) error {
	if err := q.check(ctx, "delete"); err != nil {
		return err
	}
	receipt := string(h)
	if receipt == "" {
		return transport.Wrap("delete", q.name, transport.ErrInvalidHandle)
	}
	mid, err := q.t.cmd.HGet(ctx, q.receiptsKey(), receipt).Result()
	if errors.Is(err, redis.Nil) {
		return transport.Wrap("delete", q.name, transport.ErrInvalidHandle)
	}
	if err != nil {
		return transport.Wrap("delete", q.name, err)
	}
	score, err := q.t.cmd.ZScore(ctx, q.inflightKey(), receipt).Result()
	if errors.Is(err, redis.Nil) || (err == nil && int64(score) <= q.t.now().UnixMilli()) {
		return transport.Wrap("delete", q.name, transport.ErrInvalidHandle)
	}
	if err != nil {
		return transport.Wrap("delete", q.name, err)
	}
	_, err = q.t.cmd.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, q.receiptsKey(), receipt)
		p.ZRem(ctx, q.inflightKey(), receipt)
		p.Del(ctx, q.msgKey(mid))
		return nil
	})
	return transport.Wrap("delete", q.name, err)
}

// requeueExpired moves expired leases back to the front of the ready list
// and forgets their receipts.
func (q *Queue) requeueExpired(ctx context.Context) (int, error) {
	now := strconv.FormatInt(q.t.now().UnixMilli(), 10)
	receipts, err := q.t.cmd.ZRangeByScore(ctx, q.inflightKey(), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil || len(receipts) == 0 {
		return 0, err
	}
	requeued := 0
	for _, r := range receipts {
		mid, err := q.t.cmd.HGet(ctx, q.receiptsKey(), r).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return requeued, err
		}
		// Only the caller that removes the receipt requeues the id.
		n, err := q.t.cmd.HDel(ctx, q.receiptsKey(), r).Result()
		if err != nil {
			return requeued, err
		}
		_, err = q.t.cmd.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if n == 1 && mid != "" {
				p.LPush(ctx, q.readyKey(), mid)
			}
			p.ZRem(ctx, q.inflightKey(), r)
			return nil
		})
		if err != nil {
			return requeued, err
		}
		if n == 1 && mid != "" {
			requeued++
		}
	}
	if requeued > 0 {
		q.t.log.Debug("requeued expired leases", logpkg.Str(logpkg.QueueKey, q.name), logpkg.Int("count", requeued))
	}
	return requeued, nil
}

// snapshot returns every stored message of the queue ordered by id.
func (q *Queue) snapshot(ctx context.Context) ([]transport.PeekedMessage, error) {
	ready, err := q.t.cmd.LRange(ctx, q.readyKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	inflight, err := q.t.cmd.ZRangeWithScores(ctx, q.inflightKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	leased := make(map[string]bool, len(inflight))
	now := q.t.now().UnixMilli()
	ids := append([]string(nil), ready...)
	for _, z := range inflight {
		receipt, _ := z.Member.(string)
		mid, err := q.t.cmd.HGet(ctx, q.receiptsKey(), receipt).Result()
		if err != nil {
			continue
		}
		leased[mid] = int64(z.Score) > now
		ids = append(ids, mid)
	}

	out := make([]transport.PeekedMessage, 0, len(ids))
	for _, mid := range ids {
		vals, err := q.t.cmd.HGetAll(ctx, q.msgKey(mid)).Result()
		if err != nil {
			return nil, err
		}
		if len(vals) == 0 {
			continue
		}
		seq, _ := strconv.ParseUint(mid, 10, 64)
		rc, _ := strconv.Atoi(vals["rc"])
		created, _ := strconv.ParseInt(vals["created_at_ms"], 10, 64)
		out = append(out, transport.PeekedMessage{
			Seq:          seq,
			Body:         []byte(vals["body"]),
			Deliveries:   rc,
			Leased:       leased[mid],
			EnqueuedAtMs: created,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (q *Queue) requireExists(ctx context.Context, op string) error {
	if err := q.check(ctx, op); err != nil {
		return err
	}
	if q.exists.Load() {
		return nil
	}
	ok, err := q.t.cmd.SIsMember(ctx, q.t.registryKey(), q.name).Result()
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
	if q.t.closed.Load() {
		return transport.Wrap(op, q.name, transport.ErrClosed)
	}
	return nil
}

// Ping checks that the server is reachable.
func (t *Transport) Ping(ctx context.Context) error {
	return t.cmd.Ping(ctx).Err()
}
