// Package httpserver is the HTTP front end: it submits JSON requests
// through the queue-backed RPC client and exposes health, queue
// inspection and recorded load-test results.
//
// Example:
//
//	s := httpserver.New(controllers.Deps{Health: rt.CheckHealth, Client: client, RequestTimeout: 30 * time.Second}, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":7080")
package httpserver
