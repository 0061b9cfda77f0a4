package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/rzbill/courier/internal/rpc"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// WorkerRestartDelay is the pause before a worker that terminated on a
// handler panic is started again.
const WorkerRestartDelay = time.Second

// Runner is the part of rpc.Worker a supervisor needs.
type Runner interface {
	Run(ctx context.Context) error
}

// SuperviseWorker runs w until ctx is cancelled. A run that ends with a
// handler panic is logged and restarted after delay; the panicking request
// stays leased and is retried until it poisons. Any other error ends that
// worker alone and is logged, never returned, so one worker cannot take
// down the process hosting it.
func SuperviseWorker(ctx context.Context, w Runner, logger logpkg.Logger, delay time.Duration) error {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	for restarts := 0; ; restarts++ {
		err := w.Run(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		var hp *rpc.HandlerPanicError
		if !errors.As(err, &hp) {
			logger.Error("worker stopped", logpkg.Err(err))
			return nil
		}
		logger.Error("worker terminated by handler panic, restarting",
			logpkg.Str(logpkg.RequestIDKey, hp.RequestID.String()),
			logpkg.Int("restarts", restarts+1),
			logpkg.Err(err))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
