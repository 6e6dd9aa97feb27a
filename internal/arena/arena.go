// Package arena implements the stable-ID object registries (expressions and
// plans) that live inside every monitor session.
// It is a direct Go port of original_source's picachv-core/src/arena.rs,
// generalized from HashMap<Uuid,T> to a generic, reader-writer-locked type so
// every arena kind in the monitor shares one implementation.
package arena

import (
	"sync"

	"github.com/google/uuid"

	"github.com/agentguard/policyguard/internal/policy"
)

// Arena stores a collection of objects looked up by a random 128-bit ID.
// Safe for concurrent use: reads take the read lock, Insert and Mutate take
// the write lock.
type Arena[T any] struct {
	mu    sync.RWMutex
	inner map[uuid.UUID]T
}

func New[T any]() *Arena[T] {
	return &Arena[T]{inner: make(map[uuid.UUID]T)}
}

// Insert stores obj under a freshly generated ID and returns that ID. IDs are
// never reused within a context's lifetime (google/uuid's v4 generator draws
// from a CSPRNG, matching the 128-bit-random-identifier requirement).
func (a *Arena[T]) Insert(obj T) uuid.UUID {
	id := uuid.New()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inner[id] = obj
	return id
}

// Get resolves id to its stored object, failing with InvalidOperation if the
// id is absent — the arena does not distinguish "never inserted" from
// "dropped alongside its context".
func (a *Arena[T]) Get(id uuid.UUID) (T, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	obj, ok := a.inner[id]
	if !ok {
		var zero T
		return zero, policy.New(policy.InvalidOperation, "the requested object does not exist")
	}
	return obj, nil
}

// Mutate replaces the object stored at id in place, used only by expression
// reification. Fails with InvalidOperation if id is absent.
func (a *Arena[T]) Mutate(id uuid.UUID, fn func(T) T) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	obj, ok := a.inner[id]
	if !ok {
		return policy.New(policy.InvalidOperation, "the requested object does not exist")
	}
	a.inner[id] = fn(obj)
	return nil
}

// Len reports the number of live entries, mostly useful for tests/metrics.
func (a *Arena[T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.inner)
}
