package store

import (
	"context"
	"sync"
	"time"

	"github.com/Cembrun/Checkbell-V2/internal/metrics"
)

// Mutator serializes read-modify-write sequences per document key.
//
// Each caller appends a handle to the key's queue and waits for the handle
// in front of it to close, so callers on one key run one at a time in the
// order they arrived. Different keys never wait on each other. The entry for
// a key is dropped as soon as its last caller finishes.
type Mutator struct {
	store Store

	mu    sync.Mutex
	tails map[string]chan struct{}
}

func NewMutator(s Store) *Mutator {
	return &Mutator{
		store: s,
		tails: make(map[string]chan struct{}),
	}
}

func (m *Mutator) Store() Store {
	return m.store
}

func (m *Mutator) acquire(key string) func() {
	done := make(chan struct{})

	m.mu.Lock()
	prev := m.tails[key]
	m.tails[key] = done
	m.mu.Unlock()

	if prev != nil {
		start := time.Now()
		<-prev
		metrics.ObserveLockWait(time.Since(start))
	}

	return func() {
		m.mu.Lock()
		if m.tails[key] == done {
			delete(m.tails, key)
		}
		m.mu.Unlock()
		close(done)
	}
}

// Do runs fn while holding the lock for key. The lock is released when fn
// returns or panics; its error only reaches this caller.
func (m *Mutator) Do(key string, fn func() error) error {
	release := m.acquire(key)
	defer release()

	return fn()
}

func (m *Mutator) pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.tails)
}

// Update loads the list stored at key, hands it to fn and writes back the
// slice fn returns before the lock is released. Returning a nil slice leaves
// the document untouched.
func Update[T, R any](ctx context.Context, m *Mutator, key string, fn func(items []T) ([]T, R, error)) (R, error) {
	var result R

	err := m.Do(key, func() error {
		items, err := LoadList[T](ctx, m.store, key)
		if err != nil {
			return err
		}

		next, res, err := fn(items)
		if err != nil {
			return err
		}

		if next != nil {
			if err := SaveList(ctx, m.store, key, next); err != nil {
				return err
			}
		}

		result = res
		return nil
	})

	return result, err
}
