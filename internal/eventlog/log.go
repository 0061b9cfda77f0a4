package eventlog

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
)

// Log provides append-only operations for one topic.
type Log struct {
	db    *pebblestore.DB
	topic string
	now   func() time.Time

	mu      sync.Mutex
	lastSeq uint64
}

// OpenLog initializes a Log and loads the last sequence from metadata (if any).
func OpenLog(db *pebblestore.DB, topic string) (*Log, error) {
	l := &Log{db: db, topic: topic, now: time.Now}
	meta, err := db.Get(KeyLogMeta(topic))
	switch {
	case err == nil && len(meta) >= 8:
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	case err != nil && !pebblestore.IsNotFound(err):
		return nil, err
	}
	return l, nil
}

// Topic returns the topic name.
func (l *Log) Topic() string { return l.topic }

// Append appends payloads as a single atomic batch stamped with the current
// time. Returns the assigned sequence numbers.
func (l *Log) Append(ctx context.Context, payloads ...[]byte) ([]uint64, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.db.NewBatch()
	defer b.Close()

	ts := l.now().UnixMilli()
	seqs := make([]uint64, len(payloads))
	next := l.lastSeq
	for i, p := range payloads {
		next++
		if err := b.Set(KeyLogEntry(l.topic, next), EncodeRecord(ts, p), nil); err != nil {
			return nil, err
		}
		seqs[i] = next
	}
	if err := b.Set(KeyLogMeta(l.topic), appendBE8(nil, next), nil); err != nil {
		return nil, err
	}
	if err := l.db.CommitBatch(ctx, b); err != nil {
		return nil, err
	}
	l.lastSeq = next
	return seqs, nil
}

// LastSeq returns the highest sequence appended so far.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}
