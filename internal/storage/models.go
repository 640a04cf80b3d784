package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interaction kinds.
const (
	KindEmail = "email"
	KindChat  = "chat"
)

// Feedback values.
const (
	FeedbackHelpful    = "helpful"
	FeedbackNotHelpful = "not_helpful"
)

// ValidFeedback reports whether f is a recognised feedback value.
func ValidFeedback(f string) bool {
	return f == FeedbackHelpful || f == FeedbackNotHelpful
}

// Interaction is one handled customer message and the service's reply.
type Interaction struct {
	ID                  string    `json:"id"`
	Kind                string    `json:"kind"`
	CreatedAt           time.Time `json:"created_at"`
	Subject             string    `json:"subject,omitempty"`
	Body                string    `json:"body"`
	Category            string    `json:"category,omitempty"`
	CategoryConfidence  float64   `json:"category_confidence"`
	Sentiment           string    `json:"sentiment,omitempty"`
	SentimentConfidence float64   `json:"sentiment_confidence"`
	Response            string    `json:"response"`
	Escalated           bool      `json:"escalated"`
	EscalationRule      string    `json:"escalation_rule,omitempty"`
	PolicyUsed          bool      `json:"policy_used"`
	PolicyChunkID       string    `json:"policy_chunk_id,omitempty"`
	ResponseSource      string    `json:"response_source,omitempty"` // "generated" or "fallback"
	DurationMS          int64     `json:"duration_ms"`
	Feedback            string    `json:"feedback,omitempty"`
}

// InteractionStats aggregates the interaction log.
type InteractionStats struct {
	Total      int `json:"total"`
	Escalated  int `json:"escalated"`
	Helpful    int `json:"helpful"`
	NotHelpful int `json:"not_helpful"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Policy document statuses.
const (
	PolicyPending = "pending"
	PolicyIndexed = "indexed"
	PolicyFailed  = "failed"
)

// PolicyDoc is a policy document submitted through the API. Source is the
// identifier its chunks are stored under.
type PolicyDoc struct {
	ID        string     `json:"id"`
	Source    string     `json:"source"`
	Title     string     `json:"title,omitempty"`
	Format    string     `json:"format"` // "text" or "pdf"
	Content   []byte     `json:"-"`
	Status    string     `json:"status"`
	Chunks    int        `json:"chunks"`
	LastError string     `json:"last_error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	IndexedAt *time.Time `json:"indexed_at,omitempty"`
}
