package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/querygenie/qgenie/internal/storage"
)

func handleListInteractions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)
		kind := r.URL.Query().Get("kind")
		if kind != "" && kind != storage.KindEmail && kind != storage.KindChat {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "kind must be %q or %q", storage.KindEmail, storage.KindChat)
			return
		}

		interactions, err := deps.Store.ListInteractions(kind, limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}
		if interactions == nil {
			interactions = []storage.Interaction{}
		}
		writeJSON(w, http.StatusOK, interactions)
	}
}

func handleInteractionStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.InteractionStats()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute stats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleGetInteraction(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interaction, err := deps.Store.GetInteraction(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get interaction: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, interaction)
	}
}

// FeedbackRequest rates a reply as helpful or not_helpful.
type FeedbackRequest struct {
	Feedback string `json:"feedback"`
}

func handleFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req FeedbackRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if !storage.ValidFeedback(req.Feedback) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "feedback must be %q or %q",
				storage.FeedbackHelpful, storage.FeedbackNotHelpful)
			return
		}

		err := deps.Store.SetFeedback(chi.URLParam(r, "id"), req.Feedback)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record feedback: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
	}
}

func handleDeleteInteraction(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Store.DeleteInteraction(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "interaction not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete interaction: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleListResponses(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := deps.Fallbacks.All()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load responses: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, all)
	}
}

// ResponseRequest sets the canned response for a category.
type ResponseRequest struct {
	Response string `json:"response"`
}

func handleSetResponse(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResponseRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		if strings.TrimSpace(req.Response) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "response is required")
			return
		}
		category := chi.URLParam(r, "category")
		if err := deps.Fallbacks.Set(category, req.Response); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to set response: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated", "category": strings.ToUpper(category)})
	}
}

func handleDeleteResponse(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Fallbacks.Delete(chi.URLParam(r, "category"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no stored response for category")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete response: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}
