package engine

import "testing"

func TestDetect_ReturnsOllama(t *testing.T) {
	e, err := Detect(DetectConfig{OllamaBaseURL: "http://localhost:11434"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OllamaEngine); !ok {
		t.Errorf("Detect returned %T, want *OllamaEngine", e)
	}
}

func TestDetect_RejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "localhost:11434", "ftp://host"} {
		if _, err := Detect(DetectConfig{OllamaBaseURL: u}); err == nil {
			t.Errorf("Detect(%q) succeeded, want error", u)
		}
	}
}
