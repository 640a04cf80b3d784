// Package api exposes the support service over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/querygenie/qgenie/internal/escalation"
	"github.com/querygenie/qgenie/internal/pipeline"
	"github.com/querygenie/qgenie/internal/respond"
	"github.com/querygenie/qgenie/internal/retrieval"
	"github.com/querygenie/qgenie/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// SupportService is implemented by pipeline.Service.
type SupportService interface {
	HandleEmail(ctx context.Context, req pipeline.EmailRequest) (pipeline.Outcome, error)
	HandleChat(ctx context.Context, req pipeline.ChatRequest) (pipeline.ChatOutcome, error)
	Triage(ctx context.Context, text string) (pipeline.Triage, error)
}

// PolicySearcher is implemented by retrieval.PolicyRetriever.
type PolicySearcher interface {
	RetrieveDetailed(ctx context.Context, query string) (retrieval.Decision, error)
}

// SourceRemover drops a document's chunks from the vector index.
type SourceRemover interface {
	DeleteSource(ctx context.Context, source string) (int, error)
}

// Deps holds everything the HTTP and MCP surfaces need.
type Deps struct {
	Store      *storage.Store
	Support    SupportService
	Retriever  PolicySearcher
	Vectors    SourceRemover      // optional; if nil, chunks are left in place on delete
	Fallbacks  *respond.Fallbacks // optional; if nil, /responses is not served
	Policy     escalation.Policy  // zero value uses escalation.Default
	Token      string
	HTTPClient *http.Client
}

func (d Deps) policy() escalation.Policy {
	if d.Policy.Critical == nil {
		return escalation.Default
	}
	return d.Policy
}

// NewRouter returns the qgenie HTTP API. /health is public; everything else
// requires the bearer token.
func NewRouter(deps Deps) http.Handler {
	if deps.HTTPClient == nil {
		deps.HTTPClient = http.DefaultClient
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/v1/emails", handleEmail(deps))
		r.Post("/v1/chat", handleChat(deps))
		r.Get("/v1/policies/search", handleSearch(deps))
		r.Post("/v1/escalation", handleEscalation(deps))

		r.Post("/policies", handleAddPolicy(deps))
		r.Get("/policies", handleListPolicies(deps))
		r.Get("/policies/{id}", handleGetPolicy(deps))
		r.Delete("/policies/{id}", handleDeletePolicy(deps))

		r.Get("/interactions", handleListInteractions(deps))
		r.Get("/interactions/stats", handleInteractionStats(deps))
		r.Get("/interactions/{id}", handleGetInteraction(deps))
		r.Post("/interactions/{id}/feedback", handleFeedback(deps))
		r.Delete("/interactions/{id}", handleDeleteInteraction(deps))

		if deps.Fallbacks != nil {
			r.Get("/responses", handleListResponses(deps))
			r.Put("/responses/{category}", handleSetResponse(deps))
			r.Delete("/responses/{category}", handleDeleteResponse(deps))
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
