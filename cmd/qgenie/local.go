package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/querygenie/qgenie/internal/config"
	"github.com/querygenie/qgenie/internal/engine"
	"github.com/querygenie/qgenie/internal/extract"
	"github.com/querygenie/qgenie/internal/indexing"
	"github.com/querygenie/qgenie/internal/retrieval"
	"github.com/querygenie/qgenie/internal/storage"
	"github.com/querygenie/qgenie/internal/watcher"
)

// localEnv is what the offline commands need: the on-disk vector index and
// the embedding engine, without the HTTP server.
type localEnv struct {
	cfg     config.Config
	store   *storage.Store
	engine  engine.Engine
	vectors *retrieval.SQLiteStore
}

func openLocal(ctx context.Context) (*localEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log.Level)

	eng, err := engine.Detect(engine.DetectConfig{OllamaBaseURL: cfg.Ollama.BaseURL})
	if err != nil {
		return nil, fmt.Errorf("detecting inference engine: %w", err)
	}
	if !eng.IsRunning(ctx) {
		return nil, fmt.Errorf("local inference engine is not running at %s; start it with: ollama serve", cfg.Ollama.BaseURL)
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	return &localEnv{
		cfg:     cfg,
		store:   store,
		engine:  eng,
		vectors: retrieval.NewSQLiteStore(store.DB()),
	}, nil
}

func (e *localEnv) Close() {
	if err := e.store.Close(); err != nil {
		slog.Warn("closing storage", "error", err)
	}
}

// chunkIndex is the part of a vector store the folder sync needs.
type chunkIndex interface {
	DeleteSource(ctx context.Context, source string) (int, error)
}

// syncPolicies indexes every supported file under dir. With watch set it
// then keeps the index in step with the folder until ctx is cancelled.
func syncPolicies(ctx context.Context, p *indexing.Pipeline, vectors chunkIndex, dir string, watch bool) error {
	res, err := p.IndexDir(ctx, dir)
	if err != nil {
		return err
	}
	reportDir(res)
	if !watch {
		return nil
	}

	w := watcher.New(dir, extract.Supported, watcher.Handler{
		Changed: func(path string) {
			if _, err := reindexFile(ctx, p, dir, path); err != nil {
				printError("re-indexing %s: %v", path, err)
			}
		},
		Removed: func(path string) {
			n, err := vectors.DeleteSource(ctx, indexing.SourcePath(dir, path))
			if err != nil {
				printError("removing %s: %v", path, err)
				return
			}
			printStep("removed %s (%d chunks)", path, n)
		},
	})
	printStep("watching %s for changes", dir)
	return w.Run(ctx)
}

// reindexFile refreshes the chunks of a file under dir and drops the ones
// its previous version left behind.
func reindexFile(ctx context.Context, p *indexing.Pipeline, dir, path string) (indexing.Result, error) {
	res, err := p.IndexFile(ctx, path, indexing.SourcePath(dir, path))
	if err != nil {
		return res, err
	}
	if res.Written == 0 && res.Failed > 0 {
		printWarning("%s: all %d chunks failed, keeping the previous version", path, res.Failed)
		return res, nil
	}
	printStep("indexed %s: %d chunks", path, res.Written)
	return res, nil
}

func reportDir(res indexing.DirResult) {
	for _, f := range res.Files {
		if f.Failed > 0 {
			printWarning("%s: %d chunks stored, %d failed", f.Source, f.Written, f.Failed)
			continue
		}
		printStep("%s: %d chunks", f.Source, f.Written)
	}
	for path, err := range res.FailedFiles {
		printError("%s: %v", path, err)
	}
	if len(res.Skipped) > 0 {
		printStatus("Skipped", "%d unsupported files", len(res.Skipped))
	}
	printSuccess("Indexed %d files, %d chunks", len(res.Files), res.Written())
}
