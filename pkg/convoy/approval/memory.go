package approval

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory approval store for testing and
// single-process deployments.
type MemoryStore struct {
	mu        sync.Mutex
	approvals map[string]*Approval
	closed    bool
}

// NewMemoryStore creates a new in-memory approval store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		approvals: make(map[string]*Approval),
	}
}

// Create implements Store.
func (m *MemoryStore) Create(_ context.Context, a *Approval) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}
	m.approvals[a.ID] = a.Clone()
	return nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (*Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	a, ok := m.approvals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

// Resolve implements Store.
func (m *MemoryStore) Resolve(_ context.Context, id string, decision Decision, note string) (*Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	a, ok := m.approvals[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != StatusPending {
		return a.Clone(), ErrAlreadyResolved
	}

	now := time.Now().UTC()
	a.Decision = decision
	a.Note = note
	a.ResolvedAt = &now
	if decision == DecisionApprove {
		a.Status = StatusApproved
	} else {
		a.Status = StatusRejected
	}
	return a.Clone(), nil
}

// Consume implements Store.
func (m *MemoryStore) Consume(_ context.Context, id string) (*Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	a, ok := m.approvals[id]
	if !ok {
		return nil, ErrNotFound
	}
	if a.Status != StatusApproved {
		return a.Clone(), ErrNotApproved
	}

	now := time.Now().UTC()
	a.Status = StatusConsumed
	a.ConsumedAt = &now
	return a.Clone(), nil
}

// ListPending implements Store.
func (m *MemoryStore) ListPending(_ context.Context) ([]*Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var pending []*Approval
	for _, a := range m.approvals {
		if a.Status == StatusPending {
			pending = append(pending, a.Clone())
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].RequestedAt.Before(pending[j].RequestedAt)
	})
	return pending, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
