package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/querygenie/qgenie/internal/chunker"
	"github.com/querygenie/qgenie/internal/config"
	"github.com/querygenie/qgenie/internal/engine"
	"github.com/querygenie/qgenie/internal/indexing"
	"github.com/querygenie/qgenie/internal/proxy"
	"github.com/querygenie/qgenie/internal/respond"
	"github.com/querygenie/qgenie/internal/retrieval"
	"github.com/querygenie/qgenie/internal/section"
)

func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

func loadRules(cfg config.Config) ([]section.Rule, error) {
	if cfg.Policies.RulesFile == "" {
		return section.DefaultRules(), nil
	}
	rules, err := section.LoadRules(cfg.Policies.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("loading section rules: %w", err)
	}
	return rules, nil
}

func newIndexer(cfg config.Config, eng engine.Engine, vectors retrieval.VectorStore) (*indexing.Pipeline, error) {
	rules, err := loadRules(cfg)
	if err != nil {
		return nil, err
	}
	splitter := chunker.New(
		chunker.WithChunkSize(cfg.Chunking.Size),
		chunker.WithOverlap(cfg.Chunking.Overlap),
	)
	embedder := retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel)
	return indexing.New(embedder, vectors, splitter, rules), nil
}

func newRetriever(cfg config.Config, eng engine.Engine, vectors retrieval.VectorStore) *retrieval.PolicyRetriever {
	return retrieval.NewPolicyRetriever(
		retrieval.NewEmbedder(eng, cfg.Ollama.EmbedModel),
		vectors,
		retrieval.WithTopK(cfg.Retrieval.TopK),
		retrieval.WithThresholdMultiplier(cfg.Retrieval.ThresholdMultiplier),
	)
}

// newCompleter returns nil when no generation API key is configured.
func newCompleter(cfg config.Config) respond.Completer {
	if cfg.Generation.APIKey == "" {
		return nil
	}
	return proxy.NewClient(cfg.Generation.APIKey,
		proxy.WithBaseURL(cfg.Generation.BaseURL),
		proxy.WithModel(cfg.Generation.Model),
		proxy.WithTemperature(cfg.Generation.Temperature),
		proxy.WithRateLimit(cfg.Generation.RequestsPerSecond),
	)
}

func loadCatalog(cfg config.Config) (map[string]string, error) {
	if cfg.Responses.File == "" {
		return respond.DefaultCatalog(), nil
	}
	catalog, err := respond.LoadFile(cfg.Responses.File)
	if err != nil {
		return nil, fmt.Errorf("loading responses: %w", err)
	}
	return catalog, nil
}
