package loadgen

import (
	"context"
	"errors"

	"github.com/rzbill/courier/internal/recorder"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// Sink receives the outcome of every round. *recorder.Recorder satisfies it.
type Sink interface {
	RecordLatency(ctx context.Context, l recorder.Latency) error
	RecordException(ctx context.Context, instance string, err error) error
}

type LoopOptions struct {
	Options
	Instance string
	// Rounds stops the loop after that many rounds. Zero runs until ctx ends.
	Rounds int
}

// Loop runs rounds back to back until ctx is cancelled or Rounds is reached.
// A failed round is recorded as an exception and does not stop the loop.
func Loop(ctx context.Context, s Submitter, sink Sink, opts LoopOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	logger = logger.With(logpkg.Component("loadgen"), logpkg.Str("instance", opts.Instance))
	opts.Logger = logger

	for round := 1; opts.Rounds == 0 || round <= opts.Rounds; round++ {
		res, err := Run(ctx, s, opts.Options)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			logger.Warn("round failed", logpkg.Int("round", round), logpkg.Err(err))
			err = sink.RecordException(ctx, opts.Instance, err)
		} else {
			logger.Info("round complete",
				logpkg.Int("round", round),
				logpkg.Dur("avg_latency", res.AvgLatency),
				logpkg.Int("failed", res.Failed))
			err = sink.RecordLatency(ctx, res.Latency(opts.Instance))
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("record round", logpkg.Err(err))
		}
	}
	return nil
}
