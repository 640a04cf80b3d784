// Package indexing turns policy documents into embedded chunks in the vector
// index.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/querygenie/qgenie/internal/chunker"
	"github.com/querygenie/qgenie/internal/extract"
	"github.com/querygenie/qgenie/internal/retrieval"
	"github.com/querygenie/qgenie/internal/section"
)

// ChunkError records one chunk that could not be encoded or stored.
type ChunkError struct {
	ID  string
	Err error
}

func (e ChunkError) Error() string { return fmt.Sprintf("chunk %s: %v", e.ID, e.Err) }

// SectionResult is the number of chunks produced for one section.
type SectionResult struct {
	Label  string
	Chunks int
}

// Result summarises indexing of one document.
type Result struct {
	Source   string
	Sections []SectionResult
	Written  int
	Failed   int
	Errors   []ChunkError
	// IDs lists every chunk id the document produced, written or not.
	IDs []string
	// Pruned counts stale chunks removed by Reindex.
	Pruned int
}

// DirResult summarises indexing of a folder.
type DirResult struct {
	Files       []Result
	Skipped     []string
	FailedFiles map[string]error
}

// Written is the total number of chunks stored across all files.
func (d DirResult) Written() int {
	n := 0
	for _, f := range d.Files {
		n += f.Written
	}
	return n
}

// Pipeline segments, chunks, encodes and stores policy documents.
type Pipeline struct {
	encoder  retrieval.Encoder
	store    retrieval.VectorStore
	splitter *chunker.Splitter
	rules    []section.Rule
	logger   *slog.Logger
}

// New creates a Pipeline. A nil splitter uses the default chunk size and
// overlap; nil rules use section.DefaultRules.
func New(encoder retrieval.Encoder, store retrieval.VectorStore, splitter *chunker.Splitter, rules []section.Rule) *Pipeline {
	if splitter == nil {
		splitter = chunker.New()
	}
	if rules == nil {
		rules = section.DefaultRules()
	}
	return &Pipeline{
		encoder:  encoder,
		store:    store,
		splitter: splitter,
		rules:    rules,
		logger:   slog.Default(),
	}
}

// Rules returns the pipeline's default heading rules.
func (p *Pipeline) Rules() []section.Rule { return p.rules }

type pendingChunk struct {
	id      string
	text    string
	section string
}

// IndexDocument stores every chunk of raw under source. Rules override the
// pipeline's defaults when non-nil. A chunk that fails to encode or store is
// logged and counted in the Result; the others are still written. Running
// it twice on the same input writes the same ids. The only error returned
// is context cancellation.
func (p *Pipeline) IndexDocument(ctx context.Context, raw, source string, rules []section.Rule) (Result, error) {
	if rules == nil {
		rules = p.rules
	}
	res := Result{Source: source}

	var pending []pendingChunk
	for _, sec := range section.Segment(raw, rules) {
		if strings.TrimSpace(sec.Text) == "" {
			continue
		}
		chunks := p.splitter.Split(sec.Text)
		for i, text := range chunks {
			pending = append(pending, pendingChunk{
				id:      retrieval.ChunkID(source, sec.Label, i),
				text:    text,
				section: sec.Label,
			})
		}
		res.Sections = append(res.Sections, SectionResult{Label: sec.Label, Chunks: len(chunks)})
	}
	for _, pc := range pending {
		res.IDs = append(res.IDs, pc.id)
	}
	if len(pending) == 0 {
		p.logger.Info("no policy sections found", "source", source)
		return res, nil
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(4)
	for _, pc := range pending {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := p.indexChunk(ctx, pc, source)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Warn("chunk indexing failed", "id", pc.id, "error", err)
				res.Failed++
				res.Errors = append(res.Errors, ChunkError{ID: pc.id, Err: err})
				return nil
			}
			res.Written++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	sort.Slice(res.Errors, func(i, j int) bool { return res.Errors[i].ID < res.Errors[j].ID })
	p.logger.Info("policy document indexed",
		"source", source,
		"sections", len(res.Sections),
		"written", res.Written,
		"failed", res.Failed,
	)
	return res, nil
}

func (p *Pipeline) indexChunk(ctx context.Context, pc pendingChunk, source string) error {
	vec, err := p.encoder.Embed(ctx, pc.text)
	if err != nil {
		return err
	}
	return p.store.Upsert(ctx, []retrieval.Chunk{{
		ID:        pc.id,
		Text:      pc.text,
		Vector:    vec,
		Section:   pc.section,
		Source:    source,
		UpdatedAt: time.Now().UTC(),
	}})
}

// Reindex indexes raw under source and then removes the source's chunks that
// the new version no longer produces. When every chunk failed nothing is
// pruned, so the previous version stays searchable.
func (p *Pipeline) Reindex(ctx context.Context, raw, source string, rules []section.Rule) (Result, error) {
	res, err := p.IndexDocument(ctx, raw, source, rules)
	if err != nil {
		return res, err
	}
	if res.Written == 0 && res.Failed > 0 {
		return res, nil
	}
	n, err := p.store.PruneSource(ctx, source, res.IDs)
	if err != nil {
		return res, fmt.Errorf("pruning stale chunks of %s: %w", source, err)
	}
	res.Pruned = n
	return res, nil
}

// SourceName derives a source identifier for a single uploaded file: its base
// name without extension.
func SourceName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SourcePath derives the source identifier of a file found under dir: its
// slash-separated path relative to dir, extension included, so two files in
// one folder tree never share chunk ids.
func SourcePath(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// IndexFile extracts path and reindexes it under source.
func (p *Pipeline) IndexFile(ctx context.Context, path, source string) (Result, error) {
	text, err := extract.Extract(path)
	if err != nil {
		return Result{Source: source}, fmt.Errorf("extracting %s: %w", filepath.Base(path), err)
	}
	return p.Reindex(ctx, text, source, nil)
}

// IndexDir indexes every supported document under dir. Hidden directories
// are skipped, unsupported files are listed in Skipped, and a file that
// cannot be extracted is recorded in FailedFiles without stopping the walk.
func (p *Pipeline) IndexDir(ctx context.Context, dir string) (DirResult, error) {
	out := DirResult{FailedFiles: make(map[string]error)}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !extract.Supported(path) {
			out.Skipped = append(out.Skipped, path)
			return nil
		}

		res, err := p.IndexFile(ctx, path, SourcePath(dir, path))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if err != nil {
			p.logger.Warn("skipping policy file", "path", path, "error", err)
			out.FailedFiles[path] = err
			return nil
		}
		out.Files = append(out.Files, res)
		return nil
	})
	if err != nil {
		return out, fmt.Errorf("indexing %s: %w", dir, err)
	}
	return out, nil
}
