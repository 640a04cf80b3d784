package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

const interactionColumns = `id, kind, created_at, subject, body, category, category_confidence,
	sentiment, sentiment_confidence, response, escalated, escalation_rule,
	policy_used, policy_chunk_id, response_source, duration_ms, feedback`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInteraction(r rowScanner) (Interaction, error) {
	var i Interaction
	var createdAt string
	err := r.Scan(&i.ID, &i.Kind, &createdAt, &i.Subject, &i.Body, &i.Category, &i.CategoryConfidence,
		&i.Sentiment, &i.SentimentConfidence, &i.Response, &i.Escalated, &i.EscalationRule,
		&i.PolicyUsed, &i.PolicyChunkID, &i.ResponseSource, &i.DurationMS, &i.Feedback)
	if err != nil {
		return Interaction{}, err
	}
	if i.CreatedAt, err = parseTime(createdAt); err != nil {
		return Interaction{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return i, nil
}

func (s *Store) SaveInteraction(i Interaction) error {
	kind := i.Kind
	if kind == "" {
		kind = KindEmail
	}
	if i.Feedback != "" && !ValidFeedback(i.Feedback) {
		return fmt.Errorf("invalid feedback %q", i.Feedback)
	}
	_, err := s.db.Exec(`
		INSERT INTO interactions (`+interactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, kind, formatTime(i.CreatedAt), i.Subject, i.Body, i.Category, i.CategoryConfidence,
		i.Sentiment, i.SentimentConfidence, i.Response, i.Escalated, i.EscalationRule,
		i.PolicyUsed, i.PolicyChunkID, i.ResponseSource, i.DurationMS, i.Feedback,
	)
	return err
}

func (s *Store) GetInteraction(id string) (Interaction, error) {
	i, err := scanInteraction(s.db.QueryRow(`SELECT `+interactionColumns+` FROM interactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Interaction{}, ErrNotFound
	}
	return i, err
}

// ListInteractions returns interactions newest first. kind filters by
// interaction kind when non-empty.
func (s *Store) ListInteractions(kind string, limit, offset int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(`
		SELECT `+interactionColumns+` FROM interactions
		WHERE (? = '' OR kind = ?)
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, kind, kind, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Interaction
	for rows.Next() {
		i, err := scanInteraction(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, i)
	}
	return results, rows.Err()
}

// SetFeedback records helpful / not_helpful feedback on an interaction.
func (s *Store) SetFeedback(id, feedback string) error {
	if !ValidFeedback(feedback) {
		return fmt.Errorf("invalid feedback %q", feedback)
	}
	res, err := s.db.Exec(`UPDATE interactions SET feedback = ? WHERE id = ?`, feedback, id)
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

func (s *Store) DeleteInteraction(id string) error {
	res, err := s.db.Exec(`DELETE FROM interactions WHERE id = ?`, id)
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

// InteractionStats counts interactions, escalations and feedback.
func (s *Store) InteractionStats() (InteractionStats, error) {
	var st InteractionStats
	err := s.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(escalated), 0),
			COALESCE(SUM(CASE WHEN feedback = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN feedback = ? THEN 1 ELSE 0 END), 0)
		FROM interactions`, FeedbackHelpful, FeedbackNotHelpful,
	).Scan(&st.Total, &st.Escalated, &st.Helpful, &st.NotHelpful)
	return st, err
}
