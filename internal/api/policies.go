package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/querygenie/qgenie/internal/ingest"
	"github.com/querygenie/qgenie/internal/storage"
)

const maxPolicyBodySize = 10 << 20 // 10MB
const maxURLFetchSize = 5 << 20    // 5MB

// PolicyRequest uploads a policy document. Type is "text" (default), "pdf"
// with base64 content, or "url" to fetch the document.
type PolicyRequest struct {
	Source  string `json:"source"`
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// SubmitPolicy stores a policy document and queues it for indexing. It
// returns the stored document id.
func SubmitPolicy(store *storage.Store, source, title, format string, content []byte) (string, error) {
	id, err := store.SavePolicyDoc(storage.PolicyDoc{
		ID:        uuid.New().String(),
		Source:    source,
		Title:     title,
		Format:    format,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("saving policy: %w", err)
	}
	if err := store.EnqueueJob(ingest.NewJob(id)); err != nil {
		return id, fmt.Errorf("saved policy but failed to queue indexing: %w", err)
	}
	return id, nil
}

func handleAddPolicy(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PolicyRequest
		if !decodeBody(w, r, maxPolicyBodySize, &req) {
			return
		}

		if req.Source == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "source is required")
			return
		}
		if req.Content == "" && req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of content or url is required")
			return
		}
		if req.Type == "" {
			req.Type = "text"
		}

		var (
			content []byte
			format  = "text"
		)
		switch req.Type {
		case "url":
			if req.URL == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "url is required for type url")
				return
			}
			body, isPDF, err := fetchPolicy(r.Context(), deps.HTTPClient, req.URL)
			if err != nil {
				httpError(w, http.StatusBadGateway, "api_error", "%v", err)
				return
			}
			content = body
			if isPDF {
				format = "pdf"
			}
			if req.Title == "" {
				req.Title = req.URL
			}

		case "pdf":
			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
				return
			}
			content = decoded
			format = "pdf"

		case "text":
			if strings.TrimSpace(req.Content) == "" {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
				return
			}
			content = []byte(req.Content)

		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unsupported type %q", req.Type)
			return
		}

		id, err := SubmitPolicy(deps.Store, req.Source, req.Title, format, content)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     id,
			"status": "queued",
		})
	}
}

func fetchPolicy(ctx context.Context, client *http.Client, url string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("invalid url: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, fmt.Errorf("url returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxURLFetchSize))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read url response: %w", err)
	}
	isPDF := strings.HasPrefix(resp.Header.Get("Content-Type"), "application/pdf") ||
		strings.EqualFold(path.Ext(req.URL.Path), ".pdf")
	return body, isPDF, nil
}

func handleListPolicies(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Store.ListPolicyDocs(parseIntParam(r, "limit", 100, 500))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list policies: %v", err)
			return
		}
		if docs == nil {
			docs = []storage.PolicyDoc{}
		}
		writeJSON(w, http.StatusOK, docs)
	}
}

func handleGetPolicy(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := deps.Store.GetPolicyDoc(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "policy not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get policy: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func handleDeletePolicy(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := deps.Store.GetPolicyDoc(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "policy not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get policy: %v", err)
			return
		}

		removed := 0
		if deps.Vectors != nil {
			removed, err = deps.Vectors.DeleteSource(r.Context(), doc.Source)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to remove policy chunks: %v", err)
				return
			}
		}

		if err := deps.Store.DeletePolicyDoc(id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete policy: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "chunks_removed": removed})
	}
}
