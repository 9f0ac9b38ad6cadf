package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/adlink-core/internal/core/domain"
	"github.com/custodia-labs/adlink-core/internal/core/ports/driven"
)

var _ driven.ConnectionStore = (*MockConnectionStore)(nil)

// MockConnectionStore is an in-memory ConnectionStore for testing.
// Rows are keyed by team and platform, mirroring the database unique constraint.
type MockConnectionStore struct {
	mu    sync.RWMutex
	conns map[string]*domain.PlatformConnection

	// UpsertErr is returned by Upsert when set.
	UpsertErr error
	// UpsertCalls counts Upsert invocations, including failed ones.
	UpsertCalls int
}

// NewMockConnectionStore creates a new MockConnectionStore
func NewMockConnectionStore() *MockConnectionStore {
	return &MockConnectionStore{
		conns: make(map[string]*domain.PlatformConnection),
	}
}

func connectionKey(teamID string, platform domain.Platform) string {
	return teamID + ":" + string(platform)
}

func (m *MockConnectionStore) Upsert(ctx context.Context, conn *domain.PlatformConnection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UpsertCalls++
	if m.UpsertErr != nil {
		return m.UpsertErr
	}

	now := time.Now()
	key := connectionKey(conn.TeamID, conn.Platform)
	if existing, ok := m.conns[key]; ok {
		conn.ID = existing.ID
		conn.CreatedAt = existing.CreatedAt
	} else {
		if conn.ID == "" {
			conn.ID = uuid.New().String()
		}
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now

	cp := *conn
	if conn.Secrets != nil {
		secrets := *conn.Secrets
		cp.Secrets = &secrets
	}
	m.conns[key] = &cp
	return nil
}

func (m *MockConnectionStore) Get(ctx context.Context, teamID string, platform domain.Platform) (*domain.PlatformConnection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conn, ok := m.conns[connectionKey(teamID, platform)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *conn
	return &cp, nil
}

func (m *MockConnectionStore) List(ctx context.Context, teamID string) ([]*domain.ConnectionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*domain.ConnectionSummary, 0)
	for _, conn := range m.conns {
		if conn.TeamID == teamID {
			result = append(result, conn.ToSummary())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Platform < result[j].Platform })
	return result, nil
}

func (m *MockConnectionStore) Delete(ctx context.Context, teamID string, platform domain.Platform) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := connectionKey(teamID, platform)
	if _, ok := m.conns[key]; !ok {
		return domain.ErrNotFound
	}
	delete(m.conns, key)
	return nil
}

// Len returns the number of stored connections.
func (m *MockConnectionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}
