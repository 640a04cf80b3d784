//go:build integration

package classify

import (
	"context"
	"testing"

	"github.com/querygenie/qgenie/internal/engine"
)

func TestClassify_RealOllama(t *testing.T) {
	e := engine.NewOllamaEngine("http://localhost:11434")
	if !e.IsRunning(context.Background()) {
		t.Skip("Ollama is not running, skipping integration test")
	}
	if !e.HasModel(context.Background(), "llama3.2") {
		t.Skip("llama3.2 model not available, skipping integration test")
	}

	c := NewClassifier(e, "llama3.2")
	got, err := c.Classify(context.Background(), "My payment was deducted twice. Please help.")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if got.Confidence < 0 || got.Confidence > 1 {
		t.Errorf("confidence %f outside [0,1]", got.Confidence)
	}
	t.Logf("classified as %s (%.2f)", got.Category, got.Confidence)

	s := NewSentimentAnalyzer(e, "llama3.2", DefaultConfidenceFloor)
	sent, err := s.Analyze(context.Background(), "This is the worst experience ever.")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if sent.Label == Positive {
		t.Errorf("sentiment = %+v, want negative or neutral", sent)
	}
}
