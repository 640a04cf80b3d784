package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/querygenie/qgenie/internal/engine"
)

// Encoder turns text into a fixed-length vector. The same text must map to
// the same vector for a given model.
type Encoder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Embedder wraps an Engine to generate text embeddings.
type Embedder struct {
	engine engine.Engine
	model  string
}

// NewEmbedder creates an Embedder using the given Engine and model name.
func NewEmbedder(e engine.Engine, model string) *Embedder {
	return &Embedder{engine: e, model: model}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string { return e.model }

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: model %s returned an empty vector", ErrEncoding, e.model)
	}
	return vec, nil
}

// batchEngine is implemented by engines that embed several texts per request.
type batchEngine interface {
	EmbedMany(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// EmbedBatch returns embedding vectors for multiple texts. Engines with a
// batch endpoint get one request; otherwise texts are embedded concurrently
// and the first failure cancels the rest. Returns nil (not error) for empty
// input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if be, ok := e.engine.(batchEngine); ok {
		vecs, err := be.EmbedMany(ctx, e.model, texts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
		}
		for i, v := range vecs {
			if len(v) == 0 {
				return nil, fmt.Errorf("%w: empty vector for text %d", ErrEncoding, i)
			}
		}
		return vecs, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the engine.

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
