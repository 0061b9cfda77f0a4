package rpc

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type slot[T any] struct {
	future   *Future[T]
	deadline time.Time
}

// PendingTable tracks requests awaiting a response. Every operation that
// resolves a slot removes it under the lock first, so a slot is resolved by
// exactly one of completion, timeout, fault or discard.
type PendingTable[T any] struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*slot[T]
}

func NewPendingTable[T any]() *PendingTable[T] {
	return &PendingTable[T]{slots: make(map[uuid.UUID]*slot[T])}
}

// Register adds a slot for id that times out at deadline.
func (t *PendingTable[T]) Register(id uuid.UUID, deadline time.Time) (*Future[T], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.slots[id]; ok {
		return nil, ErrDuplicateRequest
	}
	f := newFuture[T](id)
	t.slots[id] = &slot[T]{future: f, deadline: deadline}
	return f, nil
}

// CompleteIfPresent resolves id with v. It returns false when id is not
// pending, e.g. because it already timed out.
func (t *PendingTable[T]) CompleteIfPresent(id uuid.UUID, v T) bool {
	s := t.take(id)
	if s == nil {
		return false
	}
	return s.future.resolve(v, nil)
}

// Discard removes id and fails it with err.
func (t *PendingTable[T]) Discard(id uuid.UUID, err error) bool {
	s := t.take(id)
	if s == nil {
		return false
	}
	var zero T
	return s.future.resolve(zero, err)
}

// FailTimedOutBefore fails every slot whose deadline is at or before now
// with a *TimeoutError and returns their ids.
func (t *PendingTable[T]) FailTimedOutBefore(now time.Time) []uuid.UUID {
	t.mu.Lock()
	var expired []*slot[T]
	for id, s := range t.slots {
		if !s.deadline.After(now) {
			expired = append(expired, s)
			delete(t.slots, id)
		}
	}
	t.mu.Unlock()

	var zero T
	ids := make([]uuid.UUID, 0, len(expired))
	for _, s := range expired {
		s.future.resolve(zero, &TimeoutError{RequestID: s.future.id, Deadline: s.deadline})
		ids = append(ids, s.future.id)
	}
	return ids
}

// FailAllWithFault empties the table, failing every slot with err.
func (t *PendingTable[T]) FailAllWithFault(err error) []uuid.UUID {
	t.mu.Lock()
	all := t.slots
	t.slots = make(map[uuid.UUID]*slot[T])
	t.mu.Unlock()

	var zero T
	ids := make([]uuid.UUID, 0, len(all))
	for id, s := range all {
		s.future.resolve(zero, err)
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of pending requests.
func (t *PendingTable[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}

func (t *PendingTable[T]) take(id uuid.UUID) *slot[T] {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[id]
	if !ok {
		return nil
	}
	delete(t.slots, id)
	return s
}
