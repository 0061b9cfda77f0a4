// Package grpcserver exposes a queue backend over gRPC as the
// courier.broker.v1.Broker service, plus the standard gRPC health service.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	s := grpcserver.New(rt.Broker(), grpcserver.Options{Health: rt.CheckHealth})
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":7070")
package grpcserver
