package eventlog

import (
	"context"
	"encoding/binary"
)

const trimBatch = 1024

// TrimToCount deletes the oldest entries so that at most keep remain.
// Returns the number of deleted entries.
func (l *Log) TrimToCount(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	prefix := KeyLogEntryPrefix(l.topic)
	total := 0
	if err := l.db.ScanPrefix(prefix, func(_, _ []byte) bool { total++; return true }); err != nil {
		return 0, err
	}
	return l.trimOldest(ctx, total-keep, func(_ int64) bool { return true })
}

// TrimOlderThan deletes entries stamped before cutoffMs. Entries are
// appended in time order, so trimming stops at the first newer entry.
func (l *Log) TrimOlderThan(ctx context.Context, cutoffMs int64) (int, error) {
	return l.trimOldest(ctx, -1, func(ts int64) bool { return ts < cutoffMs })
}

// trimOldest deletes up to n oldest entries (all when n < 0) while pred
// holds, committing every trimBatch deletes.
func (l *Log) trimOldest(ctx context.Context, n int, pred func(tsMs int64) bool) (int, error) {
	if n == 0 {
		return 0, nil
	}
	prefix := KeyLogEntryPrefix(l.topic)
	var doomed [][]byte
	err := l.db.ScanPrefix(prefix, func(k, v []byte) bool {
		if len(v) >= 8 && !pred(int64(binary.BigEndian.Uint64(v[:8]))) {
			return false
		}
		doomed = append(doomed, append([]byte(nil), k...))
		return n < 0 || len(doomed) < n
	})
	if err != nil {
		return 0, err
	}
	deleted := 0
	for len(doomed) > 0 {
		chunk := doomed
		if len(chunk) > trimBatch {
			chunk = chunk[:trimBatch]
		}
		b := l.db.NewBatch()
		for _, k := range chunk {
			if err := b.Delete(k, nil); err != nil {
				b.Close()
				return deleted, err
			}
		}
		err := l.db.CommitBatch(ctx, b)
		b.Close()
		if err != nil {
			return deleted, err
		}
		deleted += len(chunk)
		doomed = doomed[len(chunk):]
	}
	return deleted, nil
}
