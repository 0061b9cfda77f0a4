package loadgen

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rzbill/courier/internal/probe"
	"github.com/rzbill/courier/internal/recorder"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// ErrNoResults is returned when no request of a round succeeded.
var ErrNoResults = errors.New("loadgen: no request succeeded; check the queue names")

type Options struct {
	Requests int
	// TPS is the target submission rate. Zero submits without pacing.
	TPS    int
	Now    func() time.Time
	Logger logpkg.Logger
}

type Result struct {
	Requests   int
	TargetTPS  int
	Succeeded  int
	Failed     int
	AvgLatency time.Duration
	Elapsed    time.Duration
	ActualTPS  float64
}

// Latency converts r into a recorder entry.
func (r Result) Latency(instance string) recorder.Latency {
	return recorder.Latency{
		Instance:      instance,
		AvgLatencyMs:  float64(r.AvgLatency) / float64(time.Millisecond),
		TotalRequests: r.Requests,
		Succeeded:     r.Succeeded,
		Failed:        r.Failed,
		TargetTPS:     r.TargetTPS,
		ElapsedMs:     float64(r.Elapsed) / float64(time.Millisecond),
		ActualTPS:     r.ActualTPS,
	}
}

// Run submits opts.Requests probe requests paced at opts.TPS, waits for all
// of them and reports the average latency of the successful ones. Latency is
// measured from the request's StartTime to the moment its response arrives.
func Run(ctx context.Context, s Submitter, opts Options) (Result, error) {
	if opts.Requests <= 0 {
		return Result{}, fmt.Errorf("loadgen: requests must be positive, got %d", opts.Requests)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	var gap time.Duration
	if opts.TPS > 0 {
		gap = time.Second / time.Duration(opts.TPS)
	}

	var (
		mu       sync.Mutex
		total    time.Duration
		ok       int
		failed   int
		firstErr error
	)
	began := opts.Now()
	var g errgroup.Group
	for i := 0; i < opts.Requests; i++ {
		sent := opts.Now()
		req := probe.Request{RequestNumber: i, StartTime: sent.UTC()}
		g.Go(func() error {
			resp, err := s.Submit(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				if firstErr == nil {
					firstErr = err
				}
				opts.Logger.Debug("probe failed", logpkg.Int("request", req.RequestNumber), logpkg.Err(err))
				return nil
			}
			ok++
			total += resp.Latency(opts.Now())
			return nil
		})
		if i == opts.Requests-1 || gap == 0 {
			continue
		}
		if err := pause(ctx, gap-opts.Now().Sub(sent)); err != nil {
			_ = g.Wait()
			return Result{}, err
		}
	}
	_ = g.Wait()

	res := Result{
		Requests:  opts.Requests,
		TargetTPS: opts.TPS,
		Succeeded: ok,
		Failed:    failed,
		Elapsed:   opts.Now().Sub(began),
	}
	if res.Elapsed > 0 {
		res.ActualTPS = float64(res.Requests) / res.Elapsed.Seconds()
	}
	if ok == 0 {
		if firstErr != nil {
			return res, fmt.Errorf("%w: %v", ErrNoResults, firstErr)
		}
		return res, ErrNoResults
	}
	res.AvgLatency = total / time.Duration(ok)
	return res, nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
