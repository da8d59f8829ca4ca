package repository

import (
	"context"
	"sync"

	"github.com/okian/ttlink/internal/domain/history"
)

// MemoryHistory is a volatile backend. SetFailure makes every following
// call fail until cleared.
type MemoryHistory struct {
	mu      sync.Mutex
	entries []history.Entry
	saves   int
	fail    error
}

// NewMemoryHistory returns an empty in-memory backend.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

// SetFailure injects err into Save and Load; nil clears it.
func (m *MemoryHistory) SetFailure(err error) {
	m.mu.Lock()
	m.fail = err
	m.mu.Unlock()
}

func (m *MemoryHistory) Save(_ context.Context, entries []history.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.entries = append([]history.Entry(nil), entries...)
	m.saves++
	return nil
}

func (m *MemoryHistory) Load(_ context.Context) ([]history.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	return append([]history.Entry(nil), m.entries...), nil
}

// Saves returns how many snapshots were stored.
func (m *MemoryHistory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
