package transport

import (
	"context"
	"regexp"
	"time"
)

// Handle is the opaque receipt of a single lease.
type Handle string

// LeasedMessage is a message held under lease by the caller.
type LeasedMessage struct {
	Body []byte
	// DequeueCount is 1 on first delivery and grows with every redelivery.
	DequeueCount int
	Handle       Handle
}

// Queue is a single named durable queue.
type Queue interface {
	Name() string
	// EnsureExists creates the queue if needed. Idempotent.
	EnsureExists(ctx context.Context) error
	Enqueue(ctx context.Context, body []byte) error
	// LeaseBatch returns up to max visible messages, hiding each for lease.
	// An empty slice means the queue had nothing visible.
	LeaseBatch(ctx context.Context, max int, lease time.Duration) ([]LeasedMessage, error)
	Delete(ctx context.Context, h Handle) error
}

// Transport hands out queues by name.
type Transport interface {
	Queue(name string) (Queue, error)
	Close() error
}

// QueueStats is a point-in-time view of a queue.
type QueueStats struct {
	Queue    string `json:"queue"`
	Ready    int    `json:"ready"`
	InFlight int    `json:"inFlight"`
}

// PeekOptions narrows an inspection scan.
type PeekOptions struct {
	Limit int
	// Filter is a CEL expression; empty matches everything.
	Filter string
}

// PeekedMessage is a queued message observed without leasing it.
type PeekedMessage struct {
	Seq          uint64 `json:"seq"`
	Body         []byte `json:"body"`
	Deliveries   int    `json:"deliveries"`
	Leased       bool   `json:"leased"`
	EnqueuedAtMs int64  `json:"enqueuedAtMs"`
}

// Inspector is implemented by backends that support administrative reads.
type Inspector interface {
	Stats(ctx context.Context, queue string) (QueueStats, error)
	Peek(ctx context.Context, queue string, opts PeekOptions) ([]PeekedMessage, error)
}

// DefaultQueueNamePattern accepts lowercase names usable as key segments in
// every backend.
const DefaultQueueNamePattern = `^[a-z0-9][a-z0-9-_]{0,62}$`

var defaultQueueName = regexp.MustCompile(DefaultQueueNamePattern)

// ValidateQueueName checks name against DefaultQueueNamePattern.
func ValidateQueueName(name string) error {
	return ValidateQueueNameWith(defaultQueueName, name)
}

// ValidateQueueNameWith checks name against re.
func ValidateQueueNameWith(re *regexp.Regexp, name string) error {
	if name == "" || !re.MatchString(name) {
		return Wrap("validate", name, ErrInvalidQueueName)
	}
	return nil
}
