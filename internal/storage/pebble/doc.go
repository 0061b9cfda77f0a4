// Package pebblestore wraps Pebble with a fixed fsync policy, batches and
// prefix scans. The broker keeps its queues here and the recorder keeps its
// result logs here; Pebble's own messages go to the configured Logger.
//
//	db, err := pebblestore.Open(pebblestore.Options{DataDir: "./data/store", Fsync: pebblestore.FsyncModeInterval})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set([]byte("q/requests/ready/1"), nil, nil)
//	_ = db.CommitBatch(ctx, b)
//	b.Close()
//
//	_ = db.ScanPrefix([]byte("q/requests/ready/"), func(k, v []byte) bool { return true })
package pebblestore
