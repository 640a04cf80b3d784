package engine

import (
	"fmt"
	"strings"
)

// DetectConfig holds parameters for backend detection.
type DetectConfig struct {
	OllamaBaseURL string
}

// Detect returns the inference backend for cfg. Ollama is the only
// supported backend; an empty or non-HTTP base URL is rejected.
func Detect(cfg DetectConfig) (Engine, error) {
	url := strings.TrimSpace(cfg.OllamaBaseURL)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("invalid ollama base url %q", cfg.OllamaBaseURL)
	}
	return NewOllamaEngine(url), nil
}
