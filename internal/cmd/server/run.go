package serverrun

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/rzbill/courier/internal/config"
	"github.com/rzbill/courier/internal/loadgen"
	"github.com/rzbill/courier/internal/probe"
	"github.com/rzbill/courier/internal/rpc"
	"github.com/rzbill/courier/internal/runtime"
	grpcserver "github.com/rzbill/courier/internal/server/grpc"
	httpserver "github.com/rzbill/courier/internal/server/http"
	"github.com/rzbill/courier/internal/server/http/controllers"
	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
	"github.com/rzbill/courier/internal/transports"
	logpkg "github.com/rzbill/courier/pkg/log"
)

type Options struct {
	// DataDir is the data root; empty means config.DefaultDataDir.
	DataDir       string
	GRPCAddr      string
	HTTPAddr      string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// ProbeWorkers runs that many in-process probe workers on the request
	// queue. Zero leaves request handling to external workers.
	ProbeWorkers int
	// Bench runs load-test rounds against the request queue and records
	// them for GET /v1/results. Disabled unless Requests is positive.
	Bench BenchOptions
	// Logger overrides the process logger built from Config.Log.
	Logger logpkg.Logger
}

type BenchOptions struct {
	Requests int
	TPS      int
	// Rounds of zero runs until shutdown.
	Rounds int
}

// Run hosts the broker over gRPC and the HTTP front end, and blocks until ctx
// is cancelled or a listener fails.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.GRPCAddr == "" {
		opts.GRPCAddr = opts.Config.Broker.GRPCAddr
	}
	if opts.HTTPAddr == "" {
		opts.HTTPAddr = opts.Config.Broker.HTTPAddr
	}

	procLogger := opts.Logger
	if procLogger == nil {
		procLogger = newProcessLogger(opts.Config.Log)
		logpkg.RedirectStdLog(procLogger)
	}

	storeDir := transports.StoreDir(opts.DataDir)
	rt, err := runtime.Open(runtime.Options{
		DataDir:       storeDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Config:        opts.Config,
		Logger:        procLogger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	procLogger.Info("Starting courier broker",
		logpkg.Str("grpc", opts.GRPCAddr),
		logpkg.Str("http", opts.HTTPAddr),
		logpkg.Str("data_dir", storeDir),
		logpkg.Str(logpkg.InstanceKey, opts.Config.InstanceName()),
		logpkg.Str("request_queue", opts.Config.Queues.Request),
		logpkg.Int("probe_workers", opts.ProbeWorkers),
	)

	b := rt.Broker()
	b.StartSweeper(opts.Config.Broker.SweepInterval())
	defer b.StopSweeper()

	client, err := rpc.NewClient[json.RawMessage, json.RawMessage](b,
		runtime.QueueNames(opts.Config),
		runtime.ClientOptions(opts.Config, procLogger.With(logpkg.Component("client"))))
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.Initialize(sctx); err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}

	workers := make([]*rpc.Worker[probe.Request, probe.Response], 0, opts.ProbeWorkers)
	for i := 0; i < opts.ProbeWorkers; i++ {
		w, err := rpc.NewWorker[probe.Request, probe.Response](b, opts.Config.Queues.Request,
			probe.Handler(time.Now),
			runtime.WorkerOptions(opts.Config, procLogger.With(logpkg.Component("worker"), logpkg.Int("worker", i))))
		if err != nil {
			return err
		}
		if err := w.Initialize(sctx); err != nil {
			return fmt.Errorf("initialize worker: %w", err)
		}
		workers = append(workers, w)
	}

	var bench *rpc.Client[probe.Request, probe.Response]
	if opts.Bench.Requests > 0 {
		names := runtime.QueueNames(opts.Config)
		names.ResponseQueue = cfgpkg.DefaultResponseQueueName("bench-" + opts.Config.InstanceName())
		bench, err = rpc.NewClient[probe.Request, probe.Response](b, names,
			runtime.ClientOptions(opts.Config, procLogger.With(logpkg.Component("bench"))))
		if err != nil {
			return err
		}
		defer bench.Close()
		if err := bench.Initialize(sctx); err != nil {
			return fmt.Errorf("initialize bench client: %w", err)
		}
	}

	gsrv := grpcserver.New(b, grpcserver.Options{Health: rt.CheckHealth, Logger: procLogger})
	hsrv := httpserver.New(controllers.Deps{
		Health:         rt.CheckHealth,
		Client:         client,
		RequestTimeout: opts.Config.Client.RequestTimeout(),
		Inspector:      b,
		Results:        rt.Recorder(),
	}, procLogger)

	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error {
		if err := gsrv.ListenAndServe(gctx, opts.GRPCAddr); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := hsrv.ListenAndServe(gctx, opts.HTTPAddr); err != nil {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})
	for i, w := range workers {
		wlog := procLogger.With(logpkg.Component("worker"), logpkg.Int("worker", i))
		g.Go(func() error { return runtime.SuperviseWorker(gctx, w, wlog, runtime.WorkerRestartDelay) })
	}

	if bench != nil {
		g.Go(func() error {
			return loadgen.Loop(gctx,
				loadgen.QueueSubmitter{Client: bench, Timeout: opts.Config.Client.RequestTimeout()},
				rt.Recorder(),
				loadgen.LoopOptions{
					Options:  loadgen.Options{Requests: opts.Bench.Requests, TPS: opts.Bench.TPS, Logger: procLogger},
					Instance: opts.Config.InstanceName(),
					Rounds:   opts.Bench.Rounds,
				})
		})
	}

	err = g.Wait()
	// Stop servers before the deferred runtime close so no call races the DB.
	gsrv.Close()
	hsrv.Close()
	if err != nil && sctx.Err() == nil {
		procLogger.Error("broker stopped", logpkg.Err(err))
		return err
	}
	procLogger.Info("broker stopped")
	return nil
}

// newProcessLogger builds the process logger from cfg, falling back to a
// text logger at the parsed (or info) level when cfg is invalid.
func newProcessLogger(cfg cfgpkg.LogConfig) logpkg.Logger {
	l, err := logpkg.ApplyConfig(&logpkg.Config{Level: cfg.Level, Format: cfg.Format})
	if err == nil {
		return l
	}
	lvl := logpkg.InfoLevel
	if parsed, e := logpkg.ParseLevel(cfg.Level); e == nil {
		lvl = parsed
	}
	return logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
}
