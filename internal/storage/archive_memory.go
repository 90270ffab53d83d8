package storage

import (
	"context"
	"sync"
)

// MemoryArchive is a simple map-backed archive used for testing.
type MemoryArchive struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte // repoID -> commitID -> content
}

// NewMemoryArchive constructs an in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{data: make(map[string]map[string][]byte)}
}

func (m *MemoryArchive) Store(ctx context.Context, repoID, commitID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[repoID]; !ok {
		m.data[repoID] = make(map[string][]byte)
	}
	m.data[repoID][commitID] = append([]byte{}, data...)
	return nil
}

func (m *MemoryArchive) Fetch(ctx context.Context, repoID, commitID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	repoData, ok := m.data[repoID]
	if !ok {
		return nil, &NotFoundError{Resource: "archive", Key: commitID}
	}
	payload, ok := repoData[commitID]
	if !ok {
		return nil, &NotFoundError{Resource: "archive", Key: commitID}
	}
	return append([]byte{}, payload...), nil
}

func (m *MemoryArchive) Remove(ctx context.Context, repoID, commitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if repoData, ok := m.data[repoID]; ok {
		delete(repoData, commitID)
	}
	return nil
}

func (m *MemoryArchive) Close() error { return nil }
