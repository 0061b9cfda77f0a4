// Package serverrun hosts the broker: it opens the pebble-backed runtime,
// serves the queue over gRPC and the request front end over HTTP, and can run
// in-process probe workers. Run blocks until the context is cancelled.
//
// Example:
//
//	opts := serverrun.Options{DataDir: "./data", GRPCAddr: ":7070", HTTPAddr: ":7080", Config: config.Default()}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, opts)
package serverrun
