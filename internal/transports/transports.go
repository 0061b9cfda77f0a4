// Package transports builds the configured queue backend.
package transports

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rzbill/courier/internal/broker"
	cfgpkg "github.com/rzbill/courier/internal/config"
	"github.com/rzbill/courier/internal/runtime"
	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
	"github.com/rzbill/courier/internal/transport"
	"github.com/rzbill/courier/internal/transport/memq"
	"github.com/rzbill/courier/internal/transport/redisq"
	"github.com/rzbill/courier/internal/transport/remote"
	logpkg "github.com/rzbill/courier/pkg/log"
)

// Backend is a Transport that can also be inspected.
type Backend interface {
	transport.Transport
	transport.Inspector
}

// Open builds the transport selected by cfg.Kind. Closing the result
// releases everything Open acquired.
func Open(ctx context.Context, cfg cfgpkg.TransportConfig, logger logpkg.Logger) (Backend, error) {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	logger = logger.With(logpkg.Str("transport", cfg.Kind))
	switch cfg.Kind {
	case cfgpkg.TransportMemory:
		return memq.New(), nil
	case cfgpkg.TransportPebble:
		return openPebble(cfg, logger)
	case cfgpkg.TransportGRPC:
		tr, err := remote.Dial(cfg.GRPCAddr)
		if err != nil {
			return nil, err
		}
		return tr, nil
	case cfgpkg.TransportRedis:
		tr, err := redisq.Dial(cfg.RedisAddr, redisq.Options{
			Prefix:           cfg.RedisPrefix,
			QueueNamePattern: cfg.QueueNameRegex,
			Logger:           logger,
		})
		if err != nil {
			return nil, err
		}
		if err := tr.Ping(ctx); err != nil {
			_ = tr.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		return tr, nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

// ownedBroker closes its database together with the broker.
type ownedBroker struct {
	*broker.Broker
	db *pebblestore.DB
}

func (b ownedBroker) Close() error {
	return errors.Join(b.Broker.Close(), b.db.Close())
}

func openPebble(cfg cfgpkg.TransportConfig, logger logpkg.Logger) (Backend, error) {
	mode, err := runtime.ParseFsync(cfg.Fsync)
	if err != nil {
		return nil, err
	}
	dir := StoreDir(cfg.DataDir)
	db, err := pebblestore.Open(pebblestore.Options{DataDir: dir, Fsync: mode, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("open storage %s: %w", dir, err)
	}
	b, err := broker.New(db, broker.Options{Logger: logger, QueueNamePattern: cfg.QueueNameRegex})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return ownedBroker{Broker: b, db: db}, nil
}

// StoreDir returns the Pebble directory under the data root dataDir, which
// defaults to config.DefaultDataDir.
func StoreDir(dataDir string) string {
	if dataDir == "" {
		dataDir = cfgpkg.DefaultDataDir()
	}
	return filepath.Join(dataDir, "store")
}
