package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/querygenie/qgenie/internal/engine"
)

// mockChatter implements Chatter for testing.
type mockChatter struct {
	response string
	err      error
	delay    time.Duration
	calls    int
	lastMsgs []engine.Message
	schema   *engine.Schema
}

func (m *mockChatter) Chat(ctx context.Context, _ string, messages []engine.Message, jsonSchema *engine.Schema) (string, error) {
	m.calls++
	m.lastMsgs = messages
	m.schema = jsonSchema
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.response, m.err
}

func TestClassify_PicksMostProbable(t *testing.T) {
	mock := &mockChatter{response: `{"REFUND":0.82,"ORDER":0.1,"PAYMENT":0.05}`}
	c := NewClassifier(mock, "llama3.2")

	got, err := c.Classify(context.Background(), "I need a refund for my damaged product.")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Category != "REFUND" || got.Confidence != 0.82 {
		t.Errorf("Classify = %+v, want REFUND/0.82", got)
	}
	if len(mock.schema.Properties) != len(DefaultCategories) {
		t.Errorf("schema has %d properties, want %d", len(mock.schema.Properties), len(DefaultCategories))
	}
	if !strings.Contains(mock.lastMsgs[0].Content, "- SUBSCRIPTION") {
		t.Error("system prompt does not list categories")
	}
}

func TestClassify_TieGoesToFirstListed(t *testing.T) {
	mock := &mockChatter{response: `{"ORDER":0.4,"CANCEL":0.4}`}
	got, err := NewClassifier(mock, "m").Classify(context.Background(), "cancel my order")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Category != "CANCEL" {
		t.Errorf("Category = %q, want CANCEL", got.Category)
	}
}

func TestClassify_CodeFencedJSON(t *testing.T) {
	mock := &mockChatter{response: "```json\n{\"PAYMENT\":0.9}\n```"}
	got, err := NewClassifier(mock, "m").Classify(context.Background(), "charged twice")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Category != "PAYMENT" {
		t.Errorf("Category = %q", got.Category)
	}
}

func TestClassify_RejectsInvalidScores(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"malformed", `not json {{{`},
		{"empty", `{}`},
		{"above one", `{"REFUND":1.4}`},
		{"negative", `{"REFUND":-0.1}`},
		{"unknown label", `{"TELEPORT":0.9}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewClassifier(&mockChatter{response: tt.response}, "m").Classify(context.Background(), "hello")
			if !errors.Is(err, ErrInvalidScore) {
				t.Errorf("err = %v, want ErrInvalidScore", err)
			}
			if got != (Classification{}) {
				t.Errorf("got %+v, want zero value", got)
			}
		})
	}
}

func TestClassify_ChatErrorAndTimeout(t *testing.T) {
	c := NewClassifier(&mockChatter{err: errors.New("connection refused")}, "m")
	if _, err := c.Classify(context.Background(), "hi"); err == nil {
		t.Error("expected error from chat failure")
	}

	slow := NewClassifier(&mockChatter{response: `{"ORDER":1}`, delay: time.Second}, "m")
	slow.timeout = 20 * time.Millisecond
	if _, err := slow.Classify(context.Background(), "hi"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestClassify_EmptyTextSkipsModel(t *testing.T) {
	mock := &mockChatter{}
	if _, err := NewClassifier(mock, "m").Classify(context.Background(), "  "); err == nil {
		t.Error("expected error for empty text")
	}
	if mock.calls != 0 {
		t.Errorf("model called %d times, want 0", mock.calls)
	}
}

func TestClassify_CustomCategories(t *testing.T) {
	mock := &mockChatter{response: `{"BILLING":0.7,"OTHER":0.3}`}
	c := NewClassifier(mock, "m").WithCategories([]string{"BILLING", "OTHER"})
	got, err := c.Classify(context.Background(), "invoice question")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Category != "BILLING" || len(c.Categories()) != 2 {
		t.Errorf("got %+v, categories %v", got, c.Categories())
	}
}

func TestAnalyze_EmptyInputIsNeutral(t *testing.T) {
	mock := &mockChatter{response: `{"negative":1}`}
	s := NewSentimentAnalyzer(mock, "m", 0)

	got, err := s.Analyze(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.Label != Neutral || got.Confidence != 0 {
		t.Errorf("Analyze(blank) = %+v, want neutral/0", got)
	}
	if mock.calls != 0 {
		t.Errorf("model called %d times, want 0", mock.calls)
	}
}

func TestAnalyze_ConfidenceFloor(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		wantLabel string
		wantConf  float64
	}{
		{"confident negative", `{"negative":0.91,"neutral":0.06,"positive":0.03}`, Negative, 0.91},
		{"weak negative forced neutral", `{"negative":0.6,"neutral":0.3,"positive":0.1}`, Neutral, 0.6},
		{"rounded up to floor", `{"positive":0.648,"neutral":0.3,"negative":0.052}`, Positive, 0.65},
		{"just below floor", `{"positive":0.644,"neutral":0.3,"negative":0.056}`, Neutral, 0.64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSentimentAnalyzer(&mockChatter{response: tt.response}, "m", DefaultConfidenceFloor)
			got, err := s.Analyze(context.Background(), "The service was terrible. I want a refund.")
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if got.Label != tt.wantLabel || got.Confidence != tt.wantConf {
				t.Errorf("Analyze = %+v, want %s/%.2f", got, tt.wantLabel, tt.wantConf)
			}
		})
	}
}

func TestAnalyze_CustomFloor(t *testing.T) {
	s := NewSentimentAnalyzer(&mockChatter{response: `{"negative":0.6}`}, "m", 0.5)
	got, err := s.Analyze(context.Background(), "meh")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.Label != Negative {
		t.Errorf("Label = %q, want negative with floor 0.5", got.Label)
	}
}

func TestAnalyze_RejectsUnknownLabel(t *testing.T) {
	s := NewSentimentAnalyzer(&mockChatter{response: `{"angry":0.9}`}, "m", 0)
	if _, err := s.Analyze(context.Background(), "grr"); !errors.Is(err, ErrInvalidScore) {
		t.Errorf("err = %v, want ErrInvalidScore", err)
	}
}
