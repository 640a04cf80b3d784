package engine

import "context"

// Chatter scores customer messages. The classifier and the sentiment analyzer
// send a prompt with a Schema and read back per-label probabilities as JSON;
// a nil schema asks for free text.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error)
}

// Embedder turns policy chunks and customer queries into vectors. The same
// model must be used for indexing and retrieval or distances are meaningless.
type Embedder interface {
	Embed(ctx context.Context, model string, text string) ([]float32, error)
}

// ModelManager is what start-up needs to make sure the chat and embedding
// models are present before the service accepts traffic.
type ModelManager interface {
	IsRunning(ctx context.Context) bool
	ListModels(ctx context.Context) ([]string, error)
	HasModel(ctx context.Context, name string) bool
	// PullModel downloads name, reporting progress to onProgress when set.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// Engine is the local inference backend qgenie runs against (Ollama).
type Engine interface {
	Chatter
	Embedder
	ModelManager
}
