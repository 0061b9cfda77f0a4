// Package recorder persists load-test outcomes: one latency entry per
// completed round and one exception entry per failed round. Entries live in
// two eventlog topics and are read back newest-first.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rzbill/courier/internal/eventlog"
	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
	logpkg "github.com/rzbill/courier/pkg/log"
)

const (
	LatencyTopic   = "latency"
	ExceptionTopic = "exceptions"

	// DefaultRetain bounds each topic when Options.Retain is zero.
	DefaultRetain = 10000
	trimEvery     = 64
)

// Latency summarizes one load-test round.
type Latency struct {
	Instance      string    `json:"instance"`
	AvgLatencyMs  float64   `json:"avgLatencyMs"`
	TotalRequests int       `json:"totalRequests"`
	Succeeded     int       `json:"succeeded"`
	Failed        int       `json:"failed"`
	TargetTPS     int       `json:"targetTps"`
	ElapsedMs     float64   `json:"elapsedMs"`
	ActualTPS     float64   `json:"actualTps"`
	RecordedAt    time.Time `json:"recordedAt"`
}

// Exception is a failed round.
type Exception struct {
	Instance   string    `json:"instance"`
	Message    string    `json:"message"`
	RecordedAt time.Time `json:"recordedAt"`
}

type Options struct {
	// Retain is the number of entries kept per topic. Negative disables trimming.
	Retain int
	Logger logpkg.Logger
}

type Recorder struct {
	latency    *eventlog.Log
	exceptions *eventlog.Log
	retain     int
	logger     logpkg.Logger

	appends atomic.Uint64
	trimMu  sync.Mutex
}

func New(db *pebblestore.DB, opts Options) (*Recorder, error) {
	lat, err := eventlog.OpenLog(db, LatencyTopic)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", LatencyTopic, err)
	}
	exc, err := eventlog.OpenLog(db, ExceptionTopic)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", ExceptionTopic, err)
	}
	if opts.Retain == 0 {
		opts.Retain = DefaultRetain
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	return &Recorder{
		latency:    lat,
		exceptions: exc,
		retain:     opts.Retain,
		logger:     opts.Logger.With(logpkg.Component("recorder")),
	}, nil
}

// RecordLatency appends a round summary.
func (r *Recorder) RecordLatency(ctx context.Context, l Latency) error {
	r.logger.Info("round complete",
		logpkg.Str("instance", l.Instance),
		logpkg.Any("avg_latency_ms", l.AvgLatencyMs),
		logpkg.Int("succeeded", l.Succeeded),
		logpkg.Int("failed", l.Failed),
		logpkg.Any("actual_tps", l.ActualTPS))
	l.RecordedAt = time.Time{}
	return r.append(ctx, r.latency, l)
}

// RecordException appends a failed round. A nil err is ignored.
func (r *Recorder) RecordException(ctx context.Context, instance string, err error) error {
	if err == nil {
		return nil
	}
	r.logger.Warn("round failed", logpkg.Str("instance", instance), logpkg.Err(err))
	return r.append(ctx, r.exceptions, Exception{Instance: instance, Message: err.Error()})
}

// RecentLatency returns up to limit latency entries, newest first.
func (r *Recorder) RecentLatency(limit int) ([]Latency, error) {
	return recent(r.latency, limit, func(l *Latency, at time.Time) { l.RecordedAt = at })
}

// RecentExceptions returns up to limit exceptions, newest first.
func (r *Recorder) RecentExceptions(limit int) ([]Exception, error) {
	return recent(r.exceptions, limit, func(e *Exception, at time.Time) { e.RecordedAt = at })
}

func (r *Recorder) append(ctx context.Context, l *eventlog.Log, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("recorder: encode: %w", err)
	}
	if _, err := l.Append(ctx, b); err != nil {
		return fmt.Errorf("recorder: append %s: %w", l.Topic(), err)
	}
	if r.retain > 0 && r.appends.Add(1)%trimEvery == 0 {
		r.trim(ctx)
	}
	return nil
}

// trim is best-effort; failures are logged.
func (r *Recorder) trim(ctx context.Context) {
	r.trimMu.Lock()
	defer r.trimMu.Unlock()
	for _, l := range []*eventlog.Log{r.latency, r.exceptions} {
		n, err := l.TrimToCount(ctx, r.retain)
		if err != nil {
			r.logger.Warn("trim failed", logpkg.Str("topic", l.Topic()), logpkg.Err(err))
			continue
		}
		if n > 0 {
			r.logger.Debug("trimmed", logpkg.Str("topic", l.Topic()), logpkg.Int("deleted", n))
		}
	}
}

func recent[T any](l *eventlog.Log, limit int, stamp func(*T, time.Time)) ([]T, error) {
	items, err := l.Read(eventlog.ReadOptions{Reverse: true, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("recorder: read %s: %w", l.Topic(), err)
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		var v T
		if err := json.Unmarshal(it.Payload, &v); err != nil {
			continue
		}
		stamp(&v, time.UnixMilli(it.TimestampMs).UTC())
		out = append(out, v)
	}
	return out, nil
}
