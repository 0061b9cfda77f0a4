package client

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/rzbill/courier/internal/config"
	"github.com/rzbill/courier/internal/probe"
	"github.com/rzbill/courier/internal/rpc"
	"github.com/rzbill/courier/internal/runtime"
	"github.com/rzbill/courier/internal/transport"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// NewWorkerCommand constructs the `worker` command group.
func NewWorkerCommand() *cobra.Command {
	workerCmd := &cobra.Command{Use: "worker", Short: "Request worker commands"}
	workerCmd.AddCommand(newWorkerRunCommand())
	return workerCmd
}

// newWorkerRunCommand constructs the `worker run` subcommand.
func newWorkerRunCommand() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Process probe requests from the request queue until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(cmd)
			if err != nil {
				return err
			}
			count, _ := cmd.Flags().GetInt("count")
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}
			logger := commandLogger(cmd, cfg)
			tr, err := openBackend(cmd.Context(), cfg.Transport, logger)
			if err != nil {
				return err
			}
			defer tr.Close()
			return runProbeWorkers(cmd.Context(), tr, cfg, count, logger)
		},
	}
	runCmd.Flags().Int("count", 1, "Number of concurrent worker loops")
	return runCmd
}

// runProbeWorkers runs n supervised probe worker loops on cfg's request
// queue until ctx ends.
func runProbeWorkers(ctx context.Context, tr transport.Transport, cfg cfgpkg.Config, n int, logger logpkg.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		wlog := logger.With(logpkg.Component("worker"), logpkg.Int("worker", i))
		w, err := rpc.NewWorker[probe.Request, probe.Response](tr, cfg.Queues.Request,
			probe.Handler(time.Now), runtime.WorkerOptions(cfg, wlog))
		if err != nil {
			return err
		}
		if err := w.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize worker: %w", err)
		}
		g.Go(func() error { return runtime.SuperviseWorker(gctx, w, wlog, runtime.WorkerRestartDelay) })
	}
	return g.Wait()
}
