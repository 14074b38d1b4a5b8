package checkpoint

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory checkpoint store for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	byThread map[string][]*Checkpoint
	byID     map[string]*Checkpoint
	closed   bool
}

// NewMemoryStore creates a new in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byThread: make(map[string][]*Checkpoint),
		byID:     make(map[string]*Checkpoint),
	}
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	if _, exists := m.byID[cp.ID]; exists {
		return ErrDuplicateID
	}

	// Copy so the caller can't mutate what we stored.
	stored := *cp
	stored.State = append([]byte(nil), cp.State...)

	m.byID[stored.ID] = &stored
	m.byThread[stored.ThreadID] = append(m.byThread[stored.ThreadID], &stored)
	return nil
}

// Latest implements Store.
func (m *MemoryStore) Latest(_ context.Context, threadID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	cps := m.byThread[threadID]
	if len(cps) == 0 {
		return nil, ErrNotFound
	}

	latest := cps[0]
	for _, cp := range cps[1:] {
		if cp.Sequence > latest.Sequence {
			latest = cp
		}
	}
	return copyCheckpoint(latest), nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	cp, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCheckpoint(cp), nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, threadID string) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	cps := m.byThread[threadID]
	infos := make([]Info, 0, len(cps))
	for _, cp := range cps {
		infos = append(infos, Info{
			ID:        cp.ID,
			ThreadID:  cp.ThreadID,
			Sequence:  cp.Sequence,
			Timestamp: cp.Timestamp,
			Status:    cp.Status,
			Size:      int64(len(cp.State)),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Sequence < infos[j].Sequence
	})
	return infos, nil
}

// DeleteThread implements Store.
func (m *MemoryStore) DeleteThread(_ context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	for _, cp := range m.byThread[threadID] {
		delete(m.byID, cp.ID)
	}
	delete(m.byThread, threadID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func copyCheckpoint(cp *Checkpoint) *Checkpoint {
	out := *cp
	out.State = append([]byte(nil), cp.State...)
	return &out
}
