package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEncoding is returned when text cannot be turned into a vector.
	ErrEncoding = errors.New("encoding failure")
	// ErrIndexWrite is returned when the vector index rejects a write.
	ErrIndexWrite = errors.New("index write failure")
	// ErrIndexQuery is returned when the vector index cannot be queried.
	ErrIndexQuery = errors.New("index query failure")
)

// VectorStore persists policy chunks and answers nearest-neighbour queries.
//
// Distances are cosine distances (1 - cosine similarity) in [0, 2], so a
// caller can recover similarity as 1 - distance. Both implementations in this
// package follow that contract.
type VectorStore interface {
	// Upsert writes chunks keyed by ID. An existing chunk with the same ID is
	// replaced, so re-indexing the same document never duplicates entries.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Query returns at most k chunks ordered by ascending distance to vector.
	Query(ctx context.Context, vector []float32, k int) ([]Match, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// IDs returns all stored chunk IDs in ascending order.
	IDs(ctx context.Context) ([]string, error)

	// Delete removes a chunk by ID.
	Delete(ctx context.Context, id string) error

	// DeleteSource removes every chunk of a source document and reports how
	// many were removed.
	DeleteSource(ctx context.Context, source string) (int, error)

	// PruneSource removes the chunks of source whose IDs are not in keep and
	// reports how many were removed.
	PruneSource(ctx context.Context, source string, keep []string) (int, error)
}

// Chunk is one embedded piece of a policy section.
type Chunk struct {
	ID        string
	Text      string
	Vector    []float32
	Section   string
	Source    string
	UpdatedAt time.Time
}

// Match is a chunk returned by a nearest-neighbour query.
type Match struct {
	ID       string
	Text     string
	Section  string
	Source   string
	Distance float64
}

// Similarity converts the cosine distance back to a similarity score.
func (m Match) Similarity() float64 {
	return 1 - m.Distance
}

// ChunkID builds the corpus-wide identifier for the seq-th chunk of a
// section within a source document.
func ChunkID(source, section string, seq int) string {
	return fmt.Sprintf("%s_%s_%d", source, section, seq)
}
