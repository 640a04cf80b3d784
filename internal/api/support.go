package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/querygenie/qgenie/internal/escalation"
	"github.com/querygenie/qgenie/internal/pipeline"
	"github.com/querygenie/qgenie/internal/retrieval"
)

func handleEmail(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pipeline.EmailRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}

		out, err := deps.Support.HandleEmail(r.Context(), req)
		if errors.Is(err, pipeline.ErrEmptyQuery) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "body is required")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "handling email: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pipeline.ChatRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}

		out, err := deps.Support.HandleChat(r.Context(), req)
		if errors.Is(err, pipeline.ErrEmptyQuery) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "handling chat: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// SearchResult is the response of a policy search.
type SearchResult struct {
	Query   string       `json:"query"`
	Policy  string       `json:"policy"`
	Matched bool         `json:"matched"`
	Explain *Explanation `json:"explain,omitempty"`
}

// Explanation details how the relevance threshold was applied.
type Explanation struct {
	Average    float64     `json:"average"`
	Threshold  float64     `json:"threshold"`
	Candidates []Candidate `json:"candidates"`
}

// Candidate is one neighbour considered by the retriever.
type Candidate struct {
	ID         string  `json:"id"`
	Section    string  `json:"section"`
	Source     string  `json:"source"`
	Distance   float64 `json:"distance"`
	Similarity float64 `json:"similarity"`
}

// NewSearchResult converts a retrieval decision into a SearchResult.
func NewSearchResult(query string, d retrieval.Decision, explain bool) SearchResult {
	res := SearchResult{Query: query, Policy: retrieval.NoMatch}
	if d.Accepted {
		res.Policy = d.Best()
		res.Matched = true
	}
	if explain {
		ex := &Explanation{Average: d.Average, Threshold: d.Threshold, Candidates: []Candidate{}}
		for i, m := range d.Matches {
			ex.Candidates = append(ex.Candidates, Candidate{
				ID:         m.ID,
				Section:    m.Section,
				Source:     m.Source,
				Distance:   m.Distance,
				Similarity: d.Scores[i],
			})
		}
		res.Explain = ex
	}
	return res
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		explain := r.URL.Query().Get("explain") != ""

		d, err := deps.Retriever.RetrieveDetailed(r.Context(), query)
		if err != nil {
			if explain {
				httpError(w, http.StatusBadGateway, "api_error", "policy retrieval failed: %v", err)
				return
			}
			d = retrieval.Decision{}
		}
		writeJSON(w, http.StatusOK, NewSearchResult(query, d, explain))
	}
}

// EscalationRequest carries the oracle outputs for an escalation decision.
type EscalationRequest struct {
	Category            string  `json:"category"`
	CategoryConfidence  float64 `json:"category_confidence"`
	Sentiment           string  `json:"sentiment"`
	SentimentConfidence float64 `json:"sentiment_confidence"`
}

// EscalationResponse is the escalation verdict.
type EscalationResponse struct {
	Escalate bool            `json:"escalate"`
	Rule     escalation.Rule `json:"rule,omitempty"`
}

func handleEscalation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req EscalationRequest
		if !decodeBody(w, r, maxRequestBodySize, &req) {
			return
		}
		esc, rule := deps.policy().Decide(req.Category, req.CategoryConfidence, req.Sentiment, req.SentimentConfidence)
		writeJSON(w, http.StatusOK, EscalationResponse{Escalate: esc, Rule: rule})
	}
}
