package rpc

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Future is the eventual outcome of one request. It resolves exactly once,
// with either a value or an error.
type Future[T any] struct {
	id   uuid.UUID
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any](id uuid.UUID) *Future[T] {
	return &Future[T]{id: id, done: make(chan struct{})}
}

// ID returns the request id this future belongs to.
func (f *Future[T]) ID() uuid.UUID { return f.id }

// Done is closed once the future resolves.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the future resolves or ctx ends. Giving up on ctx does
// not cancel the request; it still resolves later, by response or timeout.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// resolve sets the outcome. Only the first call has any effect.
func (f *Future[T]) resolve(v T, err error) bool {
	won := false
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
		won = true
	})
	return won
}
