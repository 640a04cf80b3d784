// Package ingest indexes uploaded policy documents in the background.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/querygenie/qgenie/internal/extract"
	"github.com/querygenie/qgenie/internal/indexing"
	"github.com/querygenie/qgenie/internal/section"
	"github.com/querygenie/qgenie/internal/storage"
)

// JobType is the queue type for policy indexing jobs.
const JobType = "index_policy"

// JobStore abstracts the job queue and policy document operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	RequeueStaleJobs() (int, error)
	GetPolicyDoc(id string) (storage.PolicyDoc, error)
	MarkPolicyIndexed(id string, chunks int) error
	MarkPolicyFailed(id string, errMsg string) error
}

// Indexer writes a document's chunks to the vector index and drops the ones
// its previous version left behind. Implemented by indexing.Pipeline.
type Indexer interface {
	Reindex(ctx context.Context, raw, source string, rules []section.Rule) (indexing.Result, error)
}

// Worker processes index_policy jobs from the SQLite job queue.
type Worker struct {
	store   JobStore
	indexer Indexer
	poll    time.Duration
	logger  *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, indexer Indexer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:   store,
		indexer: indexer,
		poll:    pollInterval,
		logger:  slog.Default(),
	}
}

type indexPayload struct {
	PolicyDocID string `json:"policy_doc_id"`
}

// NewJob builds the queue entry that indexes the policy document docID.
func NewJob(docID string) storage.Job {
	payload, _ := json.Marshal(indexPayload{PolicyDocID: docID})
	return storage.Job{
		ID:          uuid.New().String(),
		Type:        JobType,
		PayloadJSON: string(payload),
	}
}

// Run requeues jobs left running by a previous process, then polls for jobs
// until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	if n, err := w.store.RequeueStaleJobs(); err != nil {
		w.logger.Error("failed to requeue stale jobs", "error", err)
	} else if n > 0 {
		w.logger.Info("requeued stale jobs", "count", n)
	}

	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single index_policy job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload indexPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetPolicyDoc(payload.PolicyDocID)
	if err != nil {
		return fmt.Errorf("loading policy doc %s: %w", payload.PolicyDocID, err)
	}

	chunks, err := w.index(ctx, doc)
	if err != nil {
		if markErr := w.store.MarkPolicyFailed(doc.ID, err.Error()); markErr != nil {
			w.logger.Error("failed to record policy failure", "doc_id", doc.ID, "error", markErr)
		}
		return err
	}

	if err := w.store.MarkPolicyIndexed(doc.ID, chunks); err != nil {
		return fmt.Errorf("recording chunk count: %w", err)
	}
	w.logger.Info("policy indexed", "doc_id", doc.ID, "source", doc.Source, "chunks", chunks)
	return nil
}

// index replaces the document's chunks. A document where no chunk could be
// stored counts as failed so the job is retried; its previous chunks stay in
// place until a later attempt succeeds.
func (w *Worker) index(ctx context.Context, doc storage.PolicyDoc) (int, error) {
	text, err := extract.Bytes(doc.Content, extension(doc.Format))
	if err != nil {
		return 0, fmt.Errorf("extracting text: %w", err)
	}

	res, err := w.indexer.Reindex(ctx, text, doc.Source, nil)
	if err != nil {
		return 0, fmt.Errorf("indexing: %w", err)
	}
	if res.Written == 0 && res.Failed > 0 {
		return 0, fmt.Errorf("all %d chunks failed: %w", res.Failed, errors.Join(chunkErrs(res)...))
	}
	if res.Failed > 0 {
		w.logger.Warn("some chunks failed to index", "source", doc.Source, "failed", res.Failed, "written", res.Written)
	}
	if res.Pruned > 0 {
		w.logger.Debug("stale chunks removed", "source", doc.Source, "pruned", res.Pruned)
	}
	return res.Written, nil
}

func chunkErrs(res indexing.Result) []error {
	errs := make([]error, len(res.Errors))
	for i, e := range res.Errors {
		errs[i] = e
	}
	return errs
}

func extension(format string) string {
	if format == "pdf" {
		return ".pdf"
	}
	return ".txt"
}
