// Package transport defines the queue primitives the RPC layer is built on:
// enqueue, lease-based batch dequeue with a dequeue count, and delete by
// lease handle. Backends live in sub-packages (memq) and sibling packages
// (broker, redisq, remote); internal/transports selects one from config.
//
// Delivery is at-least-once. A leased message stays invisible until its
// lease expires or it is deleted; expiry returns it to the queue with an
// incremented DequeueCount. A Handle identifies one lease, not one message:
// once a lease expires its handle is stale and Delete reports
// ErrInvalidHandle even if the same message is leased again.
package transport
