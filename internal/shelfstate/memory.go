package shelfstate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps shelf state in process memory. Used for local runs
// without a database and as the reference implementation in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[int]State
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[int]State),
		now:    time.Now,
	}
}

// Upsert records value for field on shelf
func (m *MemoryStore) Upsert(ctx context.Context, shelf int, field Field, value float64) error {
	if err := checkWrite(shelf, field); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.states[shelf]
	st.Shelf = shelf
	st.set(field, value)
	st.UpdatedAt = m.now().UTC()
	m.states[shelf] = st
	return nil
}

// Read returns a copy of the shelf state
func (m *MemoryStore) Read(ctx context.Context, shelf int) (*State, error) {
	m.mu.RLock()
	st, ok := m.states[shelf]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: shelf %d", ErrNotFound, shelf)
	}
	return &st, nil
}

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}
