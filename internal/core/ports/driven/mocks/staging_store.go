package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

var _ driven.StagingStore = (*MockStagingStore)(nil)

// MockStagingStore is an in-memory StagingStore for testing.
type MockStagingStore struct {
	mu     sync.Mutex
	staged map[string]*driven.StagedConnection

	// SaveErr is returned by Save when set.
	SaveErr error
}

// NewMockStagingStore creates a new MockStagingStore
func NewMockStagingStore() *MockStagingStore {
	return &MockStagingStore{
		staged: make(map[string]*driven.StagedConnection),
	}
}

func (m *MockStagingStore) Save(ctx context.Context, staged *driven.StagedConnection) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *staged
	m.staged[staged.Handle] = &cp
	return nil
}

func (m *MockStagingStore) Get(ctx context.Context, handle string) (*driven.StagedConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.staged[handle]
	if !ok || time.Now().After(s.ExpiresAt) {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MockStagingStore) Delete(ctx context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.staged, handle)
	return nil
}

func (m *MockStagingStore) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for k, s := range m.staged {
		if now.After(s.ExpiresAt) {
			delete(m.staged, k)
		}
	}
	return nil
}

// Len returns the number of staged connections, expired or not.
func (m *MockStagingStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.staged)
}

// Expire moves a staged connection's expiry into the past.
func (m *MockStagingStore) Expire(handle string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.staged[handle]; ok {
		s.ExpiresAt = time.Now().Add(-time.Second)
	}
}
