package retrieval

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"time"
)

// Compile-time check that SQLiteStore implements VectorStore.
var _ VectorStore = (*SQLiteStore)(nil)

// SQLiteStore keeps policy chunks in the policy_chunks table and answers
// queries with a brute-force cosine scan. The table is created by the
// storage migrations; the store only needs the shared *sql.DB.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB for vector operations.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Upsert inserts or replaces chunks. Each call runs in a single transaction
// so concurrent readers never see a half-written chunk.
func (s *SQLiteStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", ErrIndexWrite, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO policy_chunks (id, source, section, text_chunk, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source = excluded.source,
			section = excluded.section,
			text_chunk = excluded.text_chunk,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: preparing upsert: %v", ErrIndexWrite, err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		if c.ID == "" {
			tx.Rollback()
			return fmt.Errorf("%w: chunk id is required", ErrIndexWrite)
		}
		if len(c.Vector) == 0 {
			tx.Rollback()
			return fmt.Errorf("%w: chunk %s has no vector", ErrIndexWrite, c.ID)
		}
		updatedAt := c.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.Source, c.Section, c.Text, encodeFloat32s(c.Vector), updatedAt.Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("%w: writing chunk %s: %v", ErrIndexWrite, c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing: %v", ErrIndexWrite, err)
	}
	return nil
}

// idScore holds only the ID and similarity during the scan phase of Query.
// Full chunk details are fetched only for the top-K winners.
type idScore struct {
	ID    string
	Score float64
}

// Query scans every stored vector and returns the k nearest by cosine
// distance. A zero query vector matches nothing.
func (s *SQLiteStore) Query(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM policy_chunks`)
	if err != nil {
		return nil, fmt.Errorf("%w: scanning vectors: %v", ErrIndexQuery, err)
	}
	defer rows.Close()

	h := &idScoreHeap{}
	heap.Init(h)

	// Reused across rows to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("%w: scanning row: %v", ErrIndexQuery, err)
		}
		buf, err = decodeFloat32sInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding embedding for %s: %v", ErrIndexQuery, id, err)
		}

		score := cosine(vector, buf, queryNorm)
		if h.Len() < k {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating rows: %v", ErrIndexQuery, err)
	}
	// Release the connection before the detail query; the pool may hold one.
	rows.Close()
	if h.Len() == 0 {
		return nil, nil
	}

	// Pop in ascending score order, fill from the back so the best is first.
	top := make([]idScore, h.Len())
	for i := len(top) - 1; i >= 0; i-- {
		top[i] = heap.Pop(h).(idScore)
	}

	args := make([]any, len(top))
	for i, t := range top {
		args[i] = t.ID
	}
	detailRows, err := s.db.QueryContext(ctx, `SELECT id, source, section, text_chunk
		FROM policy_chunks WHERE id IN (?`+strings.Repeat(",?", len(top)-1)+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching top-k chunks: %v", ErrIndexQuery, err)
	}
	defer detailRows.Close()

	details := make(map[string]Match, len(top))
	for detailRows.Next() {
		var m Match
		if err := detailRows.Scan(&m.ID, &m.Source, &m.Section, &m.Text); err != nil {
			return nil, fmt.Errorf("%w: scanning chunk: %v", ErrIndexQuery, err)
		}
		details[m.ID] = m
	}
	if err := detailRows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating chunks: %v", ErrIndexQuery, err)
	}

	matches := make([]Match, 0, len(top))
	for _, t := range top {
		m, ok := details[t.ID]
		if !ok {
			// Deleted between the scan and the fetch.
			continue
		}
		m.Distance = 1 - t.Score
		matches = append(matches, m)
	}
	return matches, nil
}

// Count returns the number of stored chunks.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM policy_chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: counting chunks: %v", ErrIndexQuery, err)
	}
	return n, nil
}

// IDs returns all chunk IDs in ascending order.
func (s *SQLiteStore) IDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM policy_chunks ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing ids: %v", ErrIndexQuery, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%w: scanning id: %v", ErrIndexQuery, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete removes a chunk by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM policy_chunks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: deleting chunk %s: %v", ErrIndexWrite, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("chunk %s not found", id)
	}
	return nil
}

// DeleteSource removes every chunk of a source document.
func (s *SQLiteStore) DeleteSource(ctx context.Context, source string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM policy_chunks WHERE source = ?`, source)
	if err != nil {
		return 0, fmt.Errorf("%w: deleting source %s: %v", ErrIndexWrite, source, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// PruneSource removes the chunks of source that are not listed in keep. The
// lookup and deletes share one transaction so readers see either the old or
// the pruned set.
func (s *SQLiteStore) PruneSource(ctx context.Context, source string, keep []string) (int, error) {
	live := make(map[string]bool, len(keep))
	for _, id := range keep {
		live[id] = true
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: beginning prune of %s: %v", ErrIndexWrite, source, err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM policy_chunks WHERE source = ?`, source)
	if err != nil {
		return 0, fmt.Errorf("%w: listing chunks of %s: %v", ErrIndexWrite, source, err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("%w: scanning id: %v", ErrIndexWrite, err)
		}
		if !live[id] {
			stale = append(stale, id)
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return 0, fmt.Errorf("%w: listing chunks of %s: %v", ErrIndexWrite, source, err)
	}

	for _, id := range stale {
		if _, err := tx.ExecContext(ctx, `DELETE FROM policy_chunks WHERE id = ?`, id); err != nil {
			return 0, fmt.Errorf("%w: deleting chunk %s: %v", ErrIndexWrite, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: committing prune of %s: %v", ErrIndexWrite, source, err)
	}
	return len(stale), nil
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32sInto decodes little-endian bytes into buf, growing it when
// needed. A length that is not a multiple of 4 means the blob is corrupt.
func decodeFloat32sInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine returns the cosine similarity of a and b given the precomputed
// norm of a. Mismatched dimensions and zero vectors score 0.
func cosine(a, b []float32, aNorm float64) float64 {
	if len(a) != len(b) || aNorm == 0 {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	if bNormSq == 0 {
		return 0
	}
	return dot / (aNorm * math.Sqrt(bNormSq))
}

// idScoreHeap is a min-heap of idScore ordered by Score.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int           { return len(h) }
func (h idScoreHeap) Less(i, j int) bool { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x any)        { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
