package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const policyDocColumns = `id, source, title, format, content, status, chunks, last_error, created_at, indexed_at`

func scanPolicyDoc(r rowScanner) (PolicyDoc, error) {
	var d PolicyDoc
	var createdAt string
	var indexedAt sql.NullString
	err := r.Scan(&d.ID, &d.Source, &d.Title, &d.Format, &d.Content, &d.Status, &d.Chunks, &d.LastError, &createdAt, &indexedAt)
	if err != nil {
		return PolicyDoc{}, err
	}
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return PolicyDoc{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if indexedAt.Valid {
		t, err := parseTime(indexedAt.String)
		if err != nil {
			return PolicyDoc{}, fmt.Errorf("parsing indexed_at: %w", err)
		}
		d.IndexedAt = &t
	}
	return d, nil
}

// SavePolicyDoc inserts a policy document, or replaces the content of the
// document with the same source and resets it to pending. The stored id is
// returned; it differs from d.ID when an existing source was replaced.
func (s *Store) SavePolicyDoc(d PolicyDoc) (string, error) {
	format := d.Format
	if format == "" {
		format = "text"
	}
	var id string
	err := s.db.QueryRow(`
		INSERT INTO policy_docs (id, source, title, format, content, status, chunks, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, 'pending', 0, '', ?)
		ON CONFLICT(source) DO UPDATE SET
			title = excluded.title,
			format = excluded.format,
			content = excluded.content,
			status = 'pending',
			last_error = '',
			indexed_at = NULL
		RETURNING id`,
		d.ID, d.Source, d.Title, format, d.Content, formatTime(d.CreatedAt),
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) GetPolicyDoc(id string) (PolicyDoc, error) {
	d, err := scanPolicyDoc(s.db.QueryRow(`SELECT `+policyDocColumns+` FROM policy_docs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return PolicyDoc{}, ErrNotFound
	}
	return d, err
}

// ListPolicyDocs returns documents newest first. Content is left empty.
func (s *Store) ListPolicyDocs(limit int) ([]PolicyDoc, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, source, title, format, X'', status, chunks, last_error, created_at, indexed_at
		FROM policy_docs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []PolicyDoc
	for rows.Next() {
		d, err := scanPolicyDoc(rows)
		if err != nil {
			return nil, err
		}
		d.Content = nil
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// MarkPolicyIndexed records a successful indexing run.
func (s *Store) MarkPolicyIndexed(id string, chunks int) error {
	return s.updatePolicyStatus(`UPDATE policy_docs SET status = 'indexed', chunks = ?, last_error = '', indexed_at = ? WHERE id = ?`,
		chunks, formatTime(time.Now()), id)
}

// MarkPolicyFailed records a failed indexing run.
func (s *Store) MarkPolicyFailed(id string, errMsg string) error {
	return s.updatePolicyStatus(`UPDATE policy_docs SET status = 'failed', last_error = ? WHERE id = ?`, errMsg, id)
}

func (s *Store) updatePolicyStatus(query string, args ...any) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeletePolicyDoc(id string) error {
	return s.updatePolicyStatus(`DELETE FROM policy_docs WHERE id = ?`, id)
}
