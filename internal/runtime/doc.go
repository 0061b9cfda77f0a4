// Package runtime wires storage, the broker and the result recorder into a
// single-node courier instance. It exposes Open/Close, a health check, and
// helpers that turn config into rpc client and worker options.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data/store", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	client, _ := rpc.NewClient[Req, Resp](rt.Broker(), runtime.QueueNames(cfg), runtime.ClientOptions(cfg, logger))
package runtime
