package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/querygenie/qgenie/internal/classify"
	"github.com/querygenie/qgenie/internal/composer"
	"github.com/querygenie/qgenie/internal/escalation"
	"github.com/querygenie/qgenie/internal/respond"
	"github.com/querygenie/qgenie/internal/storage"
)

type mockClassifier struct {
	classifyFn func(ctx context.Context, text string) (classify.Classification, error)
}

func (m *mockClassifier) Classify(ctx context.Context, text string) (classify.Classification, error) {
	return m.classifyFn(ctx, text)
}

type mockSentiment struct {
	analyzeFn func(ctx context.Context, text string) (classify.Sentiment, error)
}

func (m *mockSentiment) Analyze(ctx context.Context, text string) (classify.Sentiment, error) {
	return m.analyzeFn(ctx, text)
}

type mockResponder struct {
	emailFn     func(category, email string) respond.Reply
	chatHistory []composer.Turn
}

func (m *mockResponder) GenerateEmail(_ context.Context, category, email string) respond.Reply {
	return m.emailFn(category, email)
}

func (m *mockResponder) GenerateChat(_ context.Context, history []composer.Turn, message string) respond.Reply {
	m.chatHistory = history
	return respond.Reply{Text: "re: " + message, Source: respond.SourceGenerated}
}

type mockStore struct {
	mu    sync.Mutex
	saved []storage.Interaction
	err   error
}

func (m *mockStore) SaveInteraction(i storage.Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, i)
	return nil
}

func fixedClassifier(cat string, conf float64) *mockClassifier {
	return &mockClassifier{classifyFn: func(context.Context, string) (classify.Classification, error) {
		return classify.Classification{Category: cat, Confidence: conf}, nil
	}}
}

func fixedSentiment(label string, conf float64) *mockSentiment {
	return &mockSentiment{analyzeFn: func(context.Context, string) (classify.Sentiment, error) {
		return classify.Sentiment{Label: label, Confidence: conf}, nil
	}}
}

func echoResponder() *mockResponder {
	return &mockResponder{emailFn: func(category, email string) respond.Reply {
		return respond.Reply{Text: "reply for " + category, Source: respond.SourceGenerated, PolicyUsed: true, PolicyChunkID: "terms_Refunds_0"}
	}}
}

func TestHandleEmail_RecordsInteraction(t *testing.T) {
	store := &mockStore{}
	svc := NewService(fixedClassifier("REFUND", 0.92), fixedSentiment(classify.Negative, 0.88), echoResponder(), WithStore(store))

	out, err := svc.HandleEmail(context.Background(), EmailRequest{Subject: "Damaged item", Body: "It arrived broken. I want a refund."})
	if err != nil {
		t.Fatalf("HandleEmail: %v", err)
	}
	if !out.Saved || len(store.saved) != 1 {
		t.Fatalf("saved = %v, %d rows", out.Saved, len(store.saved))
	}
	i := store.saved[0]
	if i.ID == "" || i.Kind != storage.KindEmail || i.Subject != "Damaged item" {
		t.Errorf("interaction = %+v", i)
	}
	if i.Category != "REFUND" || i.CategoryConfidence != 0.92 || i.Sentiment != classify.Negative {
		t.Errorf("scores = %+v", i)
	}
	if !i.Escalated || i.EscalationRule != string(escalation.RuleCriticalUpset) {
		t.Errorf("escalation = %v / %q", i.Escalated, i.EscalationRule)
	}
	if i.Response != "reply for REFUND" || !i.PolicyUsed || i.PolicyChunkID != "terms_Refunds_0" {
		t.Errorf("reply = %+v", i)
	}
}

func TestHandleEmail_NoEscalationForPositiveRefund(t *testing.T) {
	svc := NewService(fixedClassifier("REFUND", 0.9), fixedSentiment(classify.Positive, 0.9), echoResponder())
	out, err := svc.HandleEmail(context.Background(), EmailRequest{Body: "Thanks for the quick refund!"})
	if err != nil {
		t.Fatalf("HandleEmail: %v", err)
	}
	if out.Escalated {
		t.Error("escalated a happy customer")
	}
	if out.Subject != "No Subject" {
		t.Errorf("Subject = %q", out.Subject)
	}
	if out.Saved {
		t.Error("Saved = true without a store")
	}
}

func TestHandleEmail_EmptyBody(t *testing.T) {
	svc := NewService(fixedClassifier("ORDER", 1), fixedSentiment(classify.Neutral, 1), echoResponder())
	if _, err := svc.HandleEmail(context.Background(), EmailRequest{Subject: "hi", Body: "  \n"}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestHandleEmail_ScoringFailuresEscalate(t *testing.T) {
	c := &mockClassifier{classifyFn: func(context.Context, string) (classify.Classification, error) {
		return classify.Classification{}, errors.New("model unavailable")
	}}
	s := &mockSentiment{analyzeFn: func(context.Context, string) (classify.Sentiment, error) {
		return classify.Sentiment{}, errors.New("model unavailable")
	}}
	var gotCategory string
	r := &mockResponder{emailFn: func(category, _ string) respond.Reply {
		gotCategory = category
		return respond.Reply{Text: respond.DefaultResponse, Source: respond.SourceFallback}
	}}
	svc := NewService(c, s, r)

	out, err := svc.HandleEmail(context.Background(), EmailRequest{Body: "help"})
	if err != nil {
		t.Fatalf("HandleEmail: %v", err)
	}
	if gotCategory != "" {
		t.Errorf("category = %q, want empty", gotCategory)
	}
	if !out.Escalated || out.EscalationRule != string(escalation.RuleLowConfidence) {
		t.Errorf("escalation = %v / %q", out.Escalated, out.EscalationRule)
	}
	if out.Sentiment != classify.Neutral {
		t.Errorf("Sentiment = %q, want neutral", out.Sentiment)
	}
}

func TestHandleEmail_ScoresConcurrently(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	c := &mockClassifier{classifyFn: func(context.Context, string) (classify.Classification, error) {
		started <- struct{}{}
		<-release
		return classify.Classification{Category: "ORDER", Confidence: 0.9}, nil
	}}
	s := &mockSentiment{analyzeFn: func(context.Context, string) (classify.Sentiment, error) {
		started <- struct{}{}
		<-release
		return classify.Sentiment{Label: classify.Neutral, Confidence: 0.9}, nil
	}}
	svc := NewService(c, s, echoResponder())

	done := make(chan error, 1)
	go func() {
		_, err := svc.HandleEmail(context.Background(), EmailRequest{Body: "order status"})
		done <- err
	}()

	for range 2 {
		select {
		case <-started:
		case <-time.After(2 * time.Second):
			t.Fatal("scorers did not run concurrently")
		}
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("HandleEmail: %v", err)
	}
}

func TestHandleEmail_SaveFailureStillReplies(t *testing.T) {
	store := &mockStore{err: errors.New("disk full")}
	svc := NewService(fixedClassifier("ORDER", 0.9), fixedSentiment(classify.Neutral, 0.9), echoResponder(), WithStore(store))

	out, err := svc.HandleEmail(context.Background(), EmailRequest{Body: "where is my order"})
	if err != nil {
		t.Fatalf("HandleEmail: %v", err)
	}
	if out.Saved || out.Response == "" {
		t.Errorf("outcome = %+v", out)
	}
}

func TestHandleEmail_MeasuresDuration(t *testing.T) {
	svc := NewService(fixedClassifier("ORDER", 0.9), fixedSentiment(classify.Neutral, 0.9), echoResponder())
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	calls := 0
	svc.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * 1500 * time.Millisecond)
	}

	out, _ := svc.HandleEmail(context.Background(), EmailRequest{Body: "x"})
	if out.DurationMS != 1500 {
		t.Errorf("DurationMS = %d, want 1500", out.DurationMS)
	}
	if !out.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", out.CreatedAt, base)
	}
}

func TestHandleEmail_CustomPolicy(t *testing.T) {
	policy := escalation.NewPolicy(0.95, []string{"DELIVERY"})
	svc := NewService(fixedClassifier("DELIVERY", 0.9), fixedSentiment(classify.Negative, 0.9), echoResponder(), WithPolicy(policy))

	out, _ := svc.HandleEmail(context.Background(), EmailRequest{Body: "late again"})
	if !out.Escalated {
		t.Error("custom critical category did not escalate")
	}
}

func TestHandleChat_BoundsHistory(t *testing.T) {
	store := &mockStore{}
	r := echoResponder()
	svc := NewService(fixedClassifier("ORDER", 1), fixedSentiment(classify.Neutral, 1), r, WithStore(store))

	var history []composer.Turn
	for i := range 7 {
		history = append(history, composer.Turn{User: fmt.Sprintf("u%d", i), AI: fmt.Sprintf("a%d", i)})
	}

	out, err := svc.HandleChat(context.Background(), ChatRequest{Message: "still waiting", History: history})
	if err != nil {
		t.Fatalf("HandleChat: %v", err)
	}
	if len(r.chatHistory) != MaxHistory || r.chatHistory[0].User != "u2" {
		t.Errorf("history passed = %+v", r.chatHistory)
	}
	if len(out.History) != MaxHistory {
		t.Fatalf("returned history len = %d", len(out.History))
	}
	last := out.History[MaxHistory-1]
	if last.User != "still waiting" || last.AI != "re: still waiting" {
		t.Errorf("last turn = %+v", last)
	}
	if len(history) != 7 || history[6].User != "u6" {
		t.Error("caller's history was modified")
	}
	if len(store.saved) != 1 || store.saved[0].Kind != storage.KindChat {
		t.Errorf("saved = %+v", store.saved)
	}
}

func TestHandleChat_EmptyMessage(t *testing.T) {
	svc := NewService(fixedClassifier("ORDER", 1), fixedSentiment(classify.Neutral, 1), echoResponder())
	if _, err := svc.HandleChat(context.Background(), ChatRequest{Message: " "}); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestTriage(t *testing.T) {
	svc := NewService(fixedClassifier("PAYMENT", 0.4), fixedSentiment(classify.Neutral, 0.3), echoResponder())
	tr, err := svc.Triage(context.Background(), "charged twice")
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if !tr.Escalate || tr.Rule != escalation.RuleLowConfidence {
		t.Errorf("triage = %+v", tr)
	}
}
