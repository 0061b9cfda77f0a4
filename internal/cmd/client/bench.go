package client

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rzbill/courier/internal/loadgen"
	"github.com/rzbill/courier/internal/probe"
	"github.com/rzbill/courier/internal/recorder"
	"github.com/rzbill/courier/internal/rpc"
	"github.com/rzbill/courier/internal/runtime"
	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// NewBenchCommand constructs the `bench` command, which measures round-trip
// latency of probe requests through the queues or the HTTP front end.
func NewBenchCommand(baseURL BaseURLFunc) *cobra.Command {
	benchCmd := &cobra.Command{
		Use:   "bench",
		Short: "Run load-test rounds and report average latency",
		Example: `  courier bench --transport grpc --requests 200 --tps 100 --rounds 3
  courier bench --transport memory --workers 4 --requests 1000 --tps 500
  courier bench --via http --requests 50 --tps 25`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(cmd)
			if err != nil {
				return err
			}
			via, _ := cmd.Flags().GetString("via")
			requests, _ := cmd.Flags().GetInt("requests")
			tps, _ := cmd.Flags().GetInt("tps")
			rounds, _ := cmd.Flags().GetInt("rounds")
			workers, _ := cmd.Flags().GetInt("workers")
			resultsDir, _ := cmd.Flags().GetString("results-dir")
			httpURL, _ := cmd.Flags().GetString("http-url")
			if httpURL == "" && baseURL != nil {
				httpURL = baseURL()
			}
			if requests <= 0 {
				return fmt.Errorf("--requests must be positive")
			}

			logger := commandLogger(cmd, cfg)
			sink, closeSink, err := benchSink(cmd, resultsDir, logger)
			if err != nil {
				return err
			}
			defer closeSink()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			g, gctx := errgroup.WithContext(ctx)

			var sub loadgen.Submitter
			switch via {
			case "http":
				if workers > 0 {
					return fmt.Errorf("--workers only applies to --via queue")
				}
				sub = loadgen.NewHTTPSubmitter(httpURL, cfg.Client.RequestTimeout())
			case "queue":
				tr, err := openBackend(ctx, cfg.Transport, logger)
				if err != nil {
					return err
				}
				defer tr.Close()
				client, err := rpc.NewClient[probe.Request, probe.Response](tr,
					runtime.QueueNames(cfg),
					runtime.ClientOptions(cfg, logger.With(logpkg.Component("client"))))
				if err != nil {
					return err
				}
				defer client.Close()
				if err := client.Initialize(ctx); err != nil {
					return err
				}
				if workers > 0 {
					g.Go(func() error { return runProbeWorkers(gctx, tr, cfg, workers, logger) })
				}
				sub = loadgen.QueueSubmitter{Client: client, Timeout: cfg.Client.RequestTimeout()}
			default:
				return fmt.Errorf("invalid --via %q; use queue|http", via)
			}

			g.Go(func() error {
				defer cancel()
				return loadgen.Loop(gctx, sub, sink, loadgen.LoopOptions{
					Options:  loadgen.Options{Requests: requests, TPS: tps, Logger: logger},
					Instance: cfg.InstanceName(),
					Rounds:   rounds,
				})
			})
			return g.Wait()
		},
	}
	benchCmd.Flags().String("via", "queue", "Submission path: queue|http")
	benchCmd.Flags().Int("requests", 100, "Requests per round")
	benchCmd.Flags().Int("tps", 50, "Target requests per second (0 = unpaced)")
	benchCmd.Flags().Int("rounds", 1, "Rounds to run (0 = until interrupted)")
	benchCmd.Flags().Int("workers", 0, "In-process probe workers (queue only)")
	benchCmd.Flags().String("results-dir", "", "Record rounds to a Pebble store in this directory instead of printing them")
	benchCmd.Flags().String("http-url", "", "Front end base URL for --via http (default COURIER_HTTP)")
	return benchCmd
}

// benchSink records rounds to a Pebble-backed recorder when dir is set and
// prints them as JSON otherwise.
func benchSink(cmd *cobra.Command, dir string, logger logpkg.Logger) (loadgen.Sink, func(), error) {
	if dir == "" {
		return printSink{cmd: cmd}, func() {}, nil
	}
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		return nil, nil, fmt.Errorf("open results store %s: %w", dir, err)
	}
	rec, err := recorder.New(db, recorder.Options{Logger: logger})
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return rec, func() { _ = db.Close() }, nil
}

// printSink writes each round to stdout.
type printSink struct {
	cmd *cobra.Command
}

func (s printSink) RecordLatency(_ context.Context, l recorder.Latency) error {
	l.RecordedAt = time.Now().UTC()
	return printJSON(s.cmd, l)
}

func (s printSink) RecordException(_ context.Context, instance string, err error) error {
	if err == nil {
		return nil
	}
	return printJSON(s.cmd, recorder.Exception{Instance: instance, Message: err.Error(), RecordedAt: time.Now().UTC()})
}
