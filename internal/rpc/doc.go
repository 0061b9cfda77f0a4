// Package rpc layers request/response calls on top of lease-based queues.
//
// A Client enqueues RequestEnvelopes on a shared request queue and waits for
// ResponseEnvelopes on its own reply queue. Responses are matched back to
// callers through a PendingTable keyed by request id. One background poller
// per client reads the reply queue while requests are outstanding, resolves
// futures, and fails requests whose deadline has passed.
//
// A Worker leases requests, invokes a Handler, publishes the response to the
// queue named in ReplyTo and only then deletes the request. Messages leased
// PoisonLimit times or more are deleted without invoking the handler.
//
// Delivery is at-least-once: a handler can run more than once for the same
// request, and callers that time out never see a late response.
package rpc
