package classify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/querygenie/qgenie/internal/engine"
)

const scoringTimeout = 10 * time.Second

// Chatter is the subset of engine.Engine the scorers need.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message, jsonSchema *engine.Schema) (string, error)
}

// Classification is a support category with the model's probability for it.
type Classification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// Sentiment is a sentiment label with its confidence.
type Sentiment struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Classifier assigns a support category to customer messages using a local
// LLM with structured output.
type Classifier struct {
	client     Chatter
	model      string
	categories []string
	timeout    time.Duration
}

// NewClassifier creates a Classifier over DefaultCategories.
func NewClassifier(client Chatter, model string) *Classifier {
	return &Classifier{client: client, model: model, categories: DefaultCategories, timeout: scoringTimeout}
}

// WithCategories returns a copy of c choosing among categories instead.
func (c *Classifier) WithCategories(categories []string) *Classifier {
	cp := *c
	cp.categories = append([]string(nil), categories...)
	return &cp
}

// Categories returns the labels the classifier chooses from.
func (c *Classifier) Categories() []string { return c.categories }

// Classify returns the most probable category for text. On failure it
// returns a zero Classification and the error; callers treat that as a
// confidence of 0.
func (c *Classifier) Classify(ctx context.Context, text string) (Classification, error) {
	if strings.TrimSpace(text) == "" {
		return Classification{}, fmt.Errorf("classify: empty text")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.client.Chat(ctx, c.model, BuildCategoryPrompt(text, c.categories), probabilitySchema(c.categories))
	if err != nil {
		return Classification{}, fmt.Errorf("classify: %w", err)
	}

	label, p, err := parseProbabilities(raw, c.categories)
	if err != nil {
		slog.Warn("category scores rejected", "error", err)
		return Classification{}, fmt.Errorf("classify: %w", err)
	}
	return Classification{Category: label, Confidence: p}, nil
}

// SentimentAnalyzer scores customer messages as positive, neutral or
// negative.
type SentimentAnalyzer struct {
	client  Chatter
	model   string
	floor   float64
	timeout time.Duration
}

// NewSentimentAnalyzer creates a SentimentAnalyzer. A floor outside (0,1]
// falls back to DefaultConfidenceFloor.
func NewSentimentAnalyzer(client Chatter, model string, floor float64) *SentimentAnalyzer {
	if floor <= 0 || floor > 1 {
		floor = DefaultConfidenceFloor
	}
	return &SentimentAnalyzer{client: client, model: model, floor: floor, timeout: scoringTimeout}
}

// Analyze returns the sentiment of text. Blank text is neutral with zero
// confidence and is not sent to the model. The confidence is rounded to two
// decimals; when it is below the floor the label is reported as neutral but
// the confidence is kept.
func (s *SentimentAnalyzer) Analyze(ctx context.Context, text string) (Sentiment, error) {
	if strings.TrimSpace(text) == "" {
		return Sentiment{Label: Neutral, Confidence: 0}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.Chat(ctx, s.model, BuildSentimentPrompt(text), probabilitySchema(SentimentLabels))
	if err != nil {
		return Sentiment{}, fmt.Errorf("sentiment: %w", err)
	}

	label, p, err := parseProbabilities(raw, SentimentLabels)
	if err != nil {
		slog.Warn("sentiment scores rejected", "error", err)
		return Sentiment{}, fmt.Errorf("sentiment: %w", err)
	}

	conf := math.Round(p*100) / 100
	if conf < s.floor {
		label = Neutral
	}
	return Sentiment{Label: label, Confidence: conf}, nil
}
