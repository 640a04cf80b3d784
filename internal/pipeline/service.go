// Package pipeline runs the customer-support flow: triage a message,
// write a reply, decide on escalation and record the interaction.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/querygenie/qgenie/internal/classify"
	"github.com/querygenie/qgenie/internal/composer"
	"github.com/querygenie/qgenie/internal/escalation"
	"github.com/querygenie/qgenie/internal/respond"
	"github.com/querygenie/qgenie/internal/storage"
)

// MaxHistory is how many past chat turns feed a chat reply.
const MaxHistory = 5

// defaultSubject labels emails sent without a subject.
const defaultSubject = "No Subject"

// ErrEmptyQuery is returned when the customer text is blank.
var ErrEmptyQuery = errors.New("query text is empty")

// CategoryScorer is implemented by classify.Classifier.
type CategoryScorer interface {
	Classify(ctx context.Context, text string) (classify.Classification, error)
}

// SentimentScorer is implemented by classify.SentimentAnalyzer.
type SentimentScorer interface {
	Analyze(ctx context.Context, text string) (classify.Sentiment, error)
}

// Responder is implemented by respond.Generator.
type Responder interface {
	GenerateEmail(ctx context.Context, category, email string) respond.Reply
	GenerateChat(ctx context.Context, history []composer.Turn, message string) respond.Reply
}

// InteractionStore is implemented by storage.Store.
type InteractionStore interface {
	SaveInteraction(i storage.Interaction) error
}

// EmailRequest is an inbound support email.
type EmailRequest struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ChatRequest is a chat message with the conversation so far.
type ChatRequest struct {
	Message string          `json:"message"`
	History []composer.Turn `json:"history,omitempty"`
}

// Triage is the classification, sentiment and escalation verdict for a text.
type Triage struct {
	Classification classify.Classification `json:"classification"`
	Sentiment      classify.Sentiment      `json:"sentiment"`
	Escalate       bool                    `json:"escalate"`
	Rule           escalation.Rule         `json:"rule,omitempty"`
}

// Outcome is a handled message. Saved is false when the interaction could
// not be recorded; the reply is still valid.
type Outcome struct {
	storage.Interaction
	Saved bool `json:"saved"`
}

// ChatOutcome is a handled chat message plus the history to send next time.
type ChatOutcome struct {
	Outcome
	History []composer.Turn `json:"history"`
}

// Service wires the scorers, the responder and the escalation policy.
type Service struct {
	classifier CategoryScorer
	sentiment  SentimentScorer
	responder  Responder
	policy     escalation.Policy
	store      InteractionStore
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPolicy replaces the default escalation policy.
func WithPolicy(p escalation.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithStore records every handled message in store.
func WithStore(store InteractionStore) Option {
	return func(s *Service) { s.store = store }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service.
func NewService(c CategoryScorer, sa SentimentScorer, r Responder, opts ...Option) *Service {
	s := &Service{
		classifier: c,
		sentiment:  sa,
		responder:  r,
		policy:     escalation.Default,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Triage scores category and sentiment concurrently and applies the
// escalation policy. Scoring failures are logged and count as zero
// confidence, so Triage itself only fails on blank input.
func (s *Service) Triage(ctx context.Context, text string) (Triage, error) {
	if strings.TrimSpace(text) == "" {
		return Triage{}, ErrEmptyQuery
	}

	var t Triage
	var g errgroup.Group
	g.Go(func() error {
		c, err := s.classifier.Classify(ctx, text)
		if err != nil {
			s.logger.Warn("classification failed", "error", err)
			c = classify.Classification{}
		}
		t.Classification = c
		return nil
	})
	g.Go(func() error {
		sent, err := s.sentiment.Analyze(ctx, text)
		if err != nil {
			s.logger.Warn("sentiment analysis failed", "error", err)
			sent = classify.Sentiment{Label: classify.Neutral}
		}
		t.Sentiment = sent
		return nil
	})
	g.Wait()

	t.Escalate, t.Rule = s.policy.Decide(
		t.Classification.Category, t.Classification.Confidence,
		t.Sentiment.Label, t.Sentiment.Confidence,
	)
	return t, nil
}

// HandleEmail triages an email, writes the reply and records the result.
func (s *Service) HandleEmail(ctx context.Context, req EmailRequest) (Outcome, error) {
	if strings.TrimSpace(req.Body) == "" {
		return Outcome{}, ErrEmptyQuery
	}
	start := s.now()

	t, err := s.Triage(ctx, req.Body)
	if err != nil {
		return Outcome{}, err
	}
	reply := s.responder.GenerateEmail(ctx, t.Classification.Category, req.Body)

	subject := strings.TrimSpace(req.Subject)
	if subject == "" {
		subject = defaultSubject
	}
	i := storage.Interaction{
		ID:                  uuid.New().String(),
		Kind:                storage.KindEmail,
		CreatedAt:           start.UTC(),
		Subject:             subject,
		Body:                req.Body,
		Category:            t.Classification.Category,
		CategoryConfidence:  t.Classification.Confidence,
		Sentiment:           t.Sentiment.Label,
		SentimentConfidence: t.Sentiment.Confidence,
		Response:            reply.Text,
		Escalated:           t.Escalate,
		EscalationRule:      string(t.Rule),
		PolicyUsed:          reply.PolicyUsed,
		PolicyChunkID:       reply.PolicyChunkID,
		ResponseSource:      reply.Source,
		DurationMS:          s.now().Sub(start).Milliseconds(),
	}

	s.logger.Info("email handled",
		"id", i.ID,
		"category", i.Category,
		"sentiment", i.Sentiment,
		"escalated", i.Escalated,
		"policy_used", i.PolicyUsed,
		"duration_ms", i.DurationMS,
	)
	return Outcome{Interaction: i, Saved: s.save(i)}, nil
}

// HandleChat answers a chat message using at most MaxHistory past turns.
func (s *Service) HandleChat(ctx context.Context, req ChatRequest) (ChatOutcome, error) {
	if strings.TrimSpace(req.Message) == "" {
		return ChatOutcome{}, ErrEmptyQuery
	}
	start := s.now()

	history := RecentHistory(req.History)
	reply := s.responder.GenerateChat(ctx, history, req.Message)

	i := storage.Interaction{
		ID:             uuid.New().String(),
		Kind:           storage.KindChat,
		CreatedAt:      start.UTC(),
		Body:           req.Message,
		Response:       reply.Text,
		PolicyUsed:     reply.PolicyUsed,
		PolicyChunkID:  reply.PolicyChunkID,
		ResponseSource: reply.Source,
		DurationMS:     s.now().Sub(start).Milliseconds(),
	}
	s.logger.Debug("chat handled", "id", i.ID, "policy_used", i.PolicyUsed, "duration_ms", i.DurationMS)

	next := RecentHistory(append(append([]composer.Turn(nil), req.History...), composer.Turn{User: req.Message, AI: reply.Text}))
	return ChatOutcome{
		Outcome: Outcome{Interaction: i, Saved: s.save(i)},
		History: next,
	}, nil
}

// RecentHistory returns the last MaxHistory turns.
func RecentHistory(h []composer.Turn) []composer.Turn {
	if len(h) <= MaxHistory {
		return h
	}
	return h[len(h)-MaxHistory:]
}

func (s *Service) save(i storage.Interaction) bool {
	if s.store == nil {
		return false
	}
	if err := s.store.SaveInteraction(i); err != nil {
		s.logger.Warn("failed to record interaction", "id", i.ID, "error", err)
		return false
	}
	return true
}
