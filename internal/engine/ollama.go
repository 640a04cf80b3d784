package engine

import (
	"context"

	"github.com/querygenie/qgenie/internal/ollama"
)

var _ Engine = (*OllamaEngine)(nil)

// OllamaEngine adapts ollama.Client to the Engine interface.
type OllamaEngine struct {
	client *ollama.Client
}

// NewOllamaEngine creates an OllamaEngine backed by an Ollama server at
// baseURL. Models stay loaded for ten minutes between requests.
func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL, ollama.WithKeepAlive("10m"))}
}

// Chat forwards to Ollama. Structured calls run at temperature 0 so the
// same message scores the same way on every request.
func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message{Role: m.Role, Content: m.Content}
	}

	if jsonSchema == nil {
		return e.client.Chat(ctx, model, msgs, nil)
	}

	s := &ollama.Schema{
		Type:     jsonSchema.Type,
		Required: jsonSchema.Required,
	}
	if jsonSchema.Properties != nil {
		s.Properties = make(map[string]ollama.SchemaProperty, len(jsonSchema.Properties))
		for k, v := range jsonSchema.Properties {
			s.Properties[k] = ollama.SchemaProperty{Type: v.Type, Description: v.Description, Enum: v.Enum}
		}
	}
	temp := 0.0
	return e.client.ChatWithOptions(ctx, model, msgs, s, &ollama.ChatOptions{Temperature: &temp})
}

func (e *OllamaEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return e.client.Embed(ctx, model, text)
}

// EmbedMany embeds several texts in one round trip.
func (e *OllamaEngine) EmbedMany(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return e.client.EmbedMany(ctx, model, texts)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) ListModels(ctx context.Context) ([]string, error) {
	return e.client.ListModels(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	var cb func(ollama.PullProgress)
	if onProgress != nil {
		cb = func(p ollama.PullProgress) {
			onProgress(PullProgress{
				Status:    p.Status,
				Total:     p.Total,
				Completed: p.Completed,
			})
		}
	}
	return e.client.PullModel(ctx, name, cb)
}
