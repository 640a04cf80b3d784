package retrieval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

var _ VectorStore = (*MemoryStore)(nil)

// MemoryStore is an in-process VectorStore. It backs offline commands that
// do not need persistence and tests that should not touch SQLite.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[string]Chunk
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chunks: make(map[string]Chunk)}
}

func (m *MemoryStore) Upsert(_ context.Context, chunks []Chunk) error {
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("%w: chunk id is required", ErrIndexWrite)
		}
		if len(c.Vector) == 0 {
			return fmt.Errorf("%w: chunk %s has no vector", ErrIndexWrite, c.ID)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		vec := make([]float32, len(c.Vector))
		copy(vec, c.Vector)
		c.Vector = vec
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = time.Now().UTC()
		}
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *MemoryStore) Query(_ context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	qNorm := norm(vector)
	if qNorm == 0 {
		return nil, nil
	}

	m.mu.RLock()
	matches := make([]Match, 0, len(m.chunks))
	for _, c := range m.chunks {
		matches = append(matches, Match{
			ID:       c.ID,
			Text:     c.Text,
			Section:  c.Section,
			Source:   c.Source,
			Distance: 1 - cosine(vector, c.Vector, qNorm),
		})
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

func (m *MemoryStore) IDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.chunks))
	for id := range m.chunks {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chunks[id]; !ok {
		return fmt.Errorf("chunk %s not found", id)
	}
	delete(m.chunks, id)
	return nil
}

func (m *MemoryStore) DeleteSource(_ context.Context, source string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, c := range m.chunks {
		if c.Source == source {
			delete(m.chunks, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) PruneSource(_ context.Context, source string, keep []string) (int, error) {
	live := make(map[string]bool, len(keep))
	for _, id := range keep {
		live[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, c := range m.chunks {
		if c.Source == source && !live[id] {
			delete(m.chunks, id)
			n++
		}
	}
	return n, nil
}
