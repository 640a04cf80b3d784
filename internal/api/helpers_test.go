package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/querygenie/qgenie/internal/classify"
	"github.com/querygenie/qgenie/internal/escalation"
	"github.com/querygenie/qgenie/internal/pipeline"
	"github.com/querygenie/qgenie/internal/respond"
	"github.com/querygenie/qgenie/internal/retrieval"
	"github.com/querygenie/qgenie/internal/storage"
)

const testToken = "test-token-12345"

type mockSupport struct {
	emailFn  func(ctx context.Context, req pipeline.EmailRequest) (pipeline.Outcome, error)
	chatFn   func(ctx context.Context, req pipeline.ChatRequest) (pipeline.ChatOutcome, error)
	triageFn func(ctx context.Context, text string) (pipeline.Triage, error)
}

func (m *mockSupport) HandleEmail(ctx context.Context, req pipeline.EmailRequest) (pipeline.Outcome, error) {
	return m.emailFn(ctx, req)
}

func (m *mockSupport) HandleChat(ctx context.Context, req pipeline.ChatRequest) (pipeline.ChatOutcome, error) {
	return m.chatFn(ctx, req)
}

func (m *mockSupport) Triage(ctx context.Context, text string) (pipeline.Triage, error) {
	return m.triageFn(ctx, text)
}

func defaultSupport() *mockSupport {
	return &mockSupport{
		emailFn: func(_ context.Context, req pipeline.EmailRequest) (pipeline.Outcome, error) {
			if strings.TrimSpace(req.Body) == "" {
				return pipeline.Outcome{}, pipeline.ErrEmptyQuery
			}
			return pipeline.Outcome{Interaction: storage.Interaction{
				ID: "ix-1", Kind: storage.KindEmail, Subject: req.Subject, Body: req.Body,
				Category: "REFUND", CategoryConfidence: 0.9, Sentiment: "negative", SentimentConfidence: 0.8,
				Response: "We are processing your refund.", Escalated: true, EscalationRule: "critical_negative",
			}, Saved: true}, nil
		},
		chatFn: func(_ context.Context, req pipeline.ChatRequest) (pipeline.ChatOutcome, error) {
			if strings.TrimSpace(req.Message) == "" {
				return pipeline.ChatOutcome{}, pipeline.ErrEmptyQuery
			}
			return pipeline.ChatOutcome{
				Outcome: pipeline.Outcome{Interaction: storage.Interaction{ID: "ix-2", Kind: storage.KindChat, Response: "Sure!"}},
			}, nil
		},
		triageFn: func(_ context.Context, text string) (pipeline.Triage, error) {
			return pipeline.Triage{
				Classification: classify.Classification{Category: "PAYMENT", Confidence: 0.7},
				Sentiment:      classify.Sentiment{Label: "negative", Confidence: 0.9},
				Escalate:       true,
				Rule:           escalation.RuleCriticalUpset,
			}, nil
		},
	}
}

type mockSearcher struct {
	decision retrieval.Decision
	err      error
	queries  []string
}

func (m *mockSearcher) RetrieveDetailed(_ context.Context, q string) (retrieval.Decision, error) {
	m.queries = append(m.queries, q)
	return m.decision, m.err
}

func acceptedDecision() retrieval.Decision {
	return retrieval.Evaluate([]retrieval.Match{
		{ID: "terms_Refund Queries_0", Text: "Refunds are issued within 7 days.", Section: "Refund Queries", Source: "terms", Distance: 0.1},
		{ID: "terms_Cancellation Overview_0", Text: "Cancel before shipping.", Section: "Cancellation Overview", Source: "terms", Distance: 0.4},
	}, retrieval.DefaultThresholdMultiplier)
}

type mockRemover struct {
	sources []string
	n       int
}

func (m *mockRemover) DeleteSource(_ context.Context, source string) (int, error) {
	m.sources = append(m.sources, source)
	return m.n, nil
}

type testEnv struct {
	handler  http.Handler
	store    *storage.Store
	support  *mockSupport
	searcher *mockSearcher
	vectors  *mockRemover
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		store:    store,
		support:  defaultSupport(),
		searcher: &mockSearcher{decision: acceptedDecision()},
		vectors:  &mockRemover{n: 3},
	}
	env.handler = NewRouter(Deps{
		Store:      store,
		Support:    env.support,
		Retriever:  env.searcher,
		Vectors:    env.vectors,
		Fallbacks:  respond.NewFallbacks(respond.DefaultCatalog(), store),
		Token:      testToken,
		HTTPClient: http.DefaultClient,
	})
	return env
}

func (e *testEnv) do(method, url, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, authReq(method, url, body, testToken))
	return rr
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}
