package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

var _ driven.OAuthStateStore = (*MockOAuthStateStore)(nil)

// MockOAuthStateStore is an in-memory OAuthStateStore for testing.
type MockOAuthStateStore struct {
	mu     sync.Mutex
	states map[string]*driven.OAuthState

	// SaveErr is returned by Save when set.
	SaveErr error
}

// NewMockOAuthStateStore creates a new MockOAuthStateStore
func NewMockOAuthStateStore() *MockOAuthStateStore {
	return &MockOAuthStateStore{
		states: make(map[string]*driven.OAuthState),
	}
}

func (m *MockOAuthStateStore) Save(ctx context.Context, state *driven.OAuthState) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.states[state.State] = &cp
	return nil
}

func (m *MockOAuthStateStore) GetAndDelete(ctx context.Context, state string) (*driven.OAuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.states[state]
	if !ok {
		return nil, nil
	}
	delete(m.states, state)

	if time.Now().After(s.ExpiresAt) {
		return nil, nil
	}
	return s, nil
}

func (m *MockOAuthStateStore) Cleanup(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for k, s := range m.states {
		if now.After(s.ExpiresAt) {
			delete(m.states, k)
		}
	}
	return nil
}

// Len returns the number of stored states, expired or not.
func (m *MockOAuthStateStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}

// Peek returns a stored state without consuming it.
func (m *MockOAuthStateStore) Peek(state string) *driven.OAuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[state]
}
