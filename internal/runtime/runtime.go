package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rzbill/courier/internal/broker"
	cfgpkg "github.com/rzbill/courier/internal/config"
	"github.com/rzbill/courier/internal/recorder"
	"github.com/rzbill/courier/internal/rpc"
	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        logpkg.Logger
}

// Runtime wires storage, the queue broker and the result recorder for a
// single-node instance.
type Runtime struct {
	db       *pebblestore.DB
	broker   *broker.Broker
	recorder *recorder.Recorder
	config   cfgpkg.Config
	logger   logpkg.Logger
}

// Open initializes the underlying storage and returns a Runtime.
func Open(opts Options) (*Runtime, error) {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
		Logger:        opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage %s: %w", opts.DataDir, err)
	}
	b, err := broker.New(db, broker.Options{
		Logger:           opts.Logger,
		QueueNamePattern: opts.Config.Transport.QueueNameRegex,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	rec, err := recorder.New(db, recorder.Options{Logger: opts.Logger})
	if err != nil {
		_ = b.Close()
		_ = db.Close()
		return nil, err
	}
	return &Runtime{db: db, broker: b, recorder: rec, config: opts.Config, logger: opts.Logger}, nil
}

// Close stops the broker, then closes storage.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	return errors.Join(r.broker.Close(), r.db.Close())
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Broker returns the Pebble-backed queue broker.
func (r *Runtime) Broker() *broker.Broker { return r.broker }

// Recorder returns the load-test result recorder.
func (r *Runtime) Recorder() *recorder.Recorder { return r.recorder }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// ParseFsync maps a config fsync mode to the storage setting.
func ParseFsync(mode string) (pebblestore.FsyncMode, error) {
	switch mode {
	case "always":
		return pebblestore.FsyncModeAlways, nil
	case "", "interval":
		return pebblestore.FsyncModeInterval, nil
	case "never":
		return pebblestore.FsyncModeNever, nil
	default:
		return pebblestore.FsyncModeUnspecified, fmt.Errorf("unknown fsync mode %q", mode)
	}
}

// ClientOptions builds rpc client options from cfg.
func ClientOptions(cfg cfgpkg.Config, logger logpkg.Logger) rpc.ClientOptions {
	return rpc.ClientOptions{
		PollInterval:      cfg.Client.PollInterval(),
		ResponseBatchSize: cfg.Client.ResponseBatchSize,
		ResponseLease:     cfg.Client.ResponseLease(),
		MaxSweepDelay:     cfg.Client.MaxSweepDelay(),
		Logger:            logger,
	}
}

// WorkerOptions builds rpc worker options from cfg.
func WorkerOptions(cfg cfgpkg.Config, logger logpkg.Logger) rpc.WorkerOptions {
	return rpc.WorkerOptions{
		DelayWhenNothingInQueue: cfg.Worker.IdleDelay(),
		PoisonLimit:             cfg.Worker.PoisonLimit,
		MessagesPerRequest:      cfg.Worker.MessagesPerRequest,
		MaxProcessingTimeout:    cfg.Worker.MaxProcessingTimeout(),
		Logger:                  logger,
	}
}

// QueueNames returns the client's queue names from cfg.
func QueueNames(cfg cfgpkg.Config) rpc.QueueNames {
	return rpc.QueueNames{RequestQueue: cfg.Queues.Request, ResponseQueue: cfg.ResponseQueueName()}
}
