package app

import (
	"context"
	"sync"

	"textbook-rag/apps/backend/internal/retrieval"
)

// MockVectorStore is an in-memory VectorStore for tests. Search returns every
// stored unit with score 1.
type MockVectorStore struct {
	EnsureSchemaErr error

	mu    sync.Mutex
	units []retrieval.IndexedVector
}

func (m *MockVectorStore) EnsureSchema(ctx context.Context) error { return m.EnsureSchemaErr }

func (m *MockVectorStore) Upsert(ctx context.Context, v retrieval.IndexedVector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units = append(m.units, v)
	return nil
}

func (m *MockVectorStore) UpsertMany(ctx context.Context, vs []retrieval.IndexedVector) error {
	for _, v := range vs {
		if err := m.Upsert(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockVectorStore) Search(ctx context.Context, vector []float32, k int) ([]retrieval.RetrievedUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []retrieval.RetrievedUnit
	for _, u := range m.units {
		if len(out) == k {
			break
		}
		out = append(out, retrieval.RetrievedUnit{ID: u.ID, Text: u.Text, Metadata: u.Metadata, Score: 1})
	}
	return out, nil
}

func (m *MockVectorStore) Delete(ctx context.Context, id string) error {
	return m.DeleteMany(ctx, []string{id})
}

func (m *MockVectorStore) DeleteMany(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.units[:0]
	for _, u := range m.units {
		if !drop[u.ID] {
			kept = append(kept, u)
		}
	}
	m.units = kept
	return nil
}

func (m *MockVectorStore) DeleteBySource(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.units[:0]
	for _, u := range m.units {
		if u.Metadata.SourceID != sourceID {
			kept = append(kept, u)
		}
	}
	m.units = kept
	return nil
}

func (m *MockVectorStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.units)
}
