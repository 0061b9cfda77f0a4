package eventlog

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
)

type ReadOptions struct {
	// Start is the first sequence returned (inclusive). 0 begins at the
	// oldest entry, or the newest when Reverse is set.
	Start   uint64
	Limit   int
	Reverse bool
}

type Item struct {
	Seq         uint64
	TimestampMs int64
	Payload     []byte
}

// Read returns up to Limit entries starting at Start. Reverse scans
// newest-first. Corrupted entries are skipped.
func (l *Log) Read(opts ReadOptions) ([]Item, error) {
	prefix := KeyLogEntryPrefix(l.topic)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: pebblestore.PrefixUpperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ok bool
	switch {
	case opts.Reverse && opts.Start == 0:
		ok = iter.Last()
	case opts.Reverse:
		ok = iter.SeekLT(KeyLogEntry(l.topic, opts.Start+1))
	case opts.Start == 0:
		ok = iter.First()
	default:
		ok = iter.SeekGE(KeyLogEntry(l.topic, opts.Start))
	}

	var items []Item
	for ; ok && (opts.Limit <= 0 || len(items) < opts.Limit); ok = step(iter, opts.Reverse) {
		key := iter.Key()
		if len(key) != len(prefix)+8 {
			continue
		}
		ts, payload, valid := DecodeRecord(iter.Value())
		if !valid {
			continue
		}
		items = append(items, Item{Seq: binary.BigEndian.Uint64(key[len(prefix):]), TimestampMs: ts, Payload: payload})
	}
	return items, iter.Error()
}

func step(iter *pebble.Iterator, reverse bool) bool {
	if reverse {
		return iter.Prev()
	}
	return iter.Next()
}
