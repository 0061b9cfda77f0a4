package pebblestore

import (
	"context"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"

	logpkg "github.com/rzbill/courier/pkg/log"
)

// FsyncMode selects when committed writes reach stable storage.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways syncs the WAL on every commit.
	FsyncModeAlways
	// FsyncModeInterval lets Pebble coalesce WAL syncs within FsyncInterval.
	FsyncModeInterval
	// FsyncModeNever leaves syncing to Pebble. A crash may lose recent
	// enqueues and deletes.
	FsyncModeNever
)

const defaultFsyncInterval = 5 * time.Millisecond

type Options struct {
	DataDir       string
	Fsync         FsyncMode
	FsyncInterval time.Duration
	// PebbleOptions tunes Pebble directly; nil means defaults.
	PebbleOptions *pebble.Options
	// Logger receives Pebble's own messages, informational ones at debug.
	Logger logpkg.Logger
}

// DB is a Pebble database with a fixed fsync policy for every commit.
type DB struct {
	inner     *pebble.DB
	writeSync bool
}

// Open creates or opens the database in opts.DataDir.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}
	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	if opts.Logger != nil {
		po.Logger = pebbleLogger{l: opts.Logger.With(logpkg.Component("pebble"))}
	}

	interval := opts.FsyncInterval
	if interval <= 0 {
		interval = defaultFsyncInterval
	}
	switch opts.Fsync {
	case FsyncModeAlways, FsyncModeNever:
	default:
		po.WALMinSyncInterval = func() time.Duration { return interval }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	return &DB{inner: inner, writeSync: opts.Fsync == FsyncModeAlways}, nil
}

func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

// NewBatch starts an atomic multi-key update. Callers Close it.
func (db *DB) NewBatch() *pebble.Batch { return db.inner.NewBatch() }

// CommitBatch commits b under the fsync policy.
func (db *DB) CommitBatch(ctx context.Context, b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebble: nil batch")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Commit(db.writeOptions())
}

func (db *DB) writeOptions() *pebble.WriteOptions {
	if db.writeSync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = pebble.ErrNotFound

func IsNotFound(err error) bool { return errors.Is(err, pebble.ErrNotFound) }

func (db *DB) Set(key, value []byte) error { return db.inner.Set(key, value, db.writeOptions()) }

func (db *DB) Delete(key []byte) error { return db.inner.Delete(key, db.writeOptions()) }

// Get returns a copy of the value stored at key.
func (db *DB) Get(key []byte) ([]byte, error) {
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func (db *DB) Has(key []byte) (bool, error) {
	_, closer, err := db.inner.Get(key)
	switch {
	case IsNotFound(err):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, closer.Close()
}

// PrefixUpperBound returns the smallest key greater than every key with
// prefix, or nil when no such key exists.
func PrefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// ScanPrefix calls fn for every key with prefix in ascending order until fn
// returns false. Key and value are only valid during the callback.
func (db *DB) ScanPrefix(prefix []byte, fn func(key, value []byte) bool) error {
	iter, err := db.inner.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: PrefixUpperBound(prefix)})
	if err != nil {
		return err
	}
	defer iter.Close()
	for ok := iter.First(); ok && fn(iter.Key(), iter.Value()); ok = iter.Next() {
	}
	return iter.Error()
}

// NewIter exposes a raw iterator for reverse and bounded scans.
func (db *DB) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	return db.inner.NewIter(opts)
}
