// Package eventlog implements an append-only log on Pebble. The recorder
// uses one log per topic to keep load-test results and exceptions.
//
// Keys are lexicographically ordered for range scans:
//   - log/{topic}/m             (metadata: lastSeq)
//   - log/{topic}/e/{seq_be8}   (entries)
//
// Entries are stored as: timestampMs(8B BE) | payload | crc32c(ts|payload).
//
//	l, _ := OpenLog(db, "results")
//	seqs, _ := l.Append(ctx, []byte(`{"avgMs":12}`))
//	newest, _ := l.Read(ReadOptions{Reverse: true, Limit: 10})
//	_, _ = l.TrimToCount(ctx, 1000)
package eventlog
