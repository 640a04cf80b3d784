package indexing

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/querygenie/qgenie/internal/chunker"
	"github.com/querygenie/qgenie/internal/retrieval"
	"github.com/querygenie/qgenie/internal/section"
)

// hashEncoder embeds text as a bag of hashed words. Equal text gives equal
// vectors.
type hashEncoder struct {
	failOn string
}

func (h *hashEncoder) Embed(_ context.Context, text string) ([]float32, error) {
	if h.failOn != "" && strings.Contains(text, h.failOn) {
		return nil, retrieval.ErrEncoding
	}
	vec := make([]float32, 64)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		f := fnv.New32a()
		f.Write([]byte(w))
		vec[f.Sum32()%64]++
	}
	return vec, nil
}

var testRules = []section.Rule{
	section.MustRule("Refund Queries", `REFUND QUERIES`),
	section.MustRule("Cancellation", `CANCELLATION POLICY`),
}

const policyDoc = `Preamble that belongs to no section.
REFUND QUERIES
Refunds are processed within 7 working days of pickup.
Instant refunds are credited to the wallet.
CANCELLATION POLICY
Orders can be cancelled before they are shipped.
`

func TestIndexDocument_WritesChunksWithMetadata(t *testing.T) {
	ctx := context.Background()
	store := retrieval.NewMemoryStore()
	p := New(&hashEncoder{}, store, nil, testRules)

	res, err := p.IndexDocument(ctx, policyDoc, "refund_policy", nil)
	if err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	if res.Written != 2 || res.Failed != 0 {
		t.Fatalf("Written = %d, Failed = %d; want 2, 0", res.Written, res.Failed)
	}
	want := []SectionResult{{"Refund Queries", 1}, {"Cancellation", 1}}
	if !reflect.DeepEqual(res.Sections, want) {
		t.Errorf("Sections = %+v, want %+v", res.Sections, want)
	}

	ids, _ := store.IDs(ctx)
	wantIDs := []string{"refund_policy_Cancellation_0", "refund_policy_Refund Queries_0"}
	if !reflect.DeepEqual(ids, wantIDs) {
		t.Errorf("IDs = %v, want %v", ids, wantIDs)
	}
}

func TestIndexDocument_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := retrieval.NewMemoryStore()
	p := New(&hashEncoder{}, store, chunker.New(chunker.WithChunkSize(40), chunker.WithOverlap(10)), testRules)

	if _, err := p.IndexDocument(ctx, policyDoc, "doc", nil); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := store.IDs(ctx)
	if _, err := p.IndexDocument(ctx, policyDoc, "doc", nil); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, _ := store.IDs(ctx)

	if len(first) < 3 {
		t.Fatalf("expected several chunks with a small chunk size, got %d", len(first))
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("id set changed between runs:\n%v\n%v", first, second)
	}
}

func TestIndexDocument_IsolatesChunkFailures(t *testing.T) {
	ctx := context.Background()
	store := retrieval.NewMemoryStore()
	p := New(&hashEncoder{failOn: "cancelled"}, store, nil, testRules)

	res, err := p.IndexDocument(ctx, policyDoc, "doc", nil)
	if err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	if res.Written != 1 || res.Failed != 1 {
		t.Fatalf("Written = %d, Failed = %d; want 1, 1", res.Written, res.Failed)
	}
	if res.Errors[0].ID != "doc_Cancellation_0" || !errors.Is(res.Errors[0].Err, retrieval.ErrEncoding) {
		t.Errorf("Errors = %+v", res.Errors)
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestIndexDocument_NoHeadings(t *testing.T) {
	store := retrieval.NewMemoryStore()
	p := New(&hashEncoder{}, store, nil, testRules)

	res, err := p.IndexDocument(context.Background(), "just some prose\nwith no headings", "doc", nil)
	if err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	if res.Written != 0 || len(res.Sections) != 0 {
		t.Errorf("res = %+v, want empty", res)
	}
}

func TestIndexDocument_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(&hashEncoder{}, retrieval.NewMemoryStore(), nil, testRules)
	if _, err := p.IndexDocument(ctx, policyDoc, "doc", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestIndexDocument_RoundTripRetrieval(t *testing.T) {
	ctx := context.Background()
	store := retrieval.NewMemoryStore()
	enc := &hashEncoder{}
	p := New(enc, store, nil, testRules)
	if _, err := p.IndexDocument(ctx, policyDoc, "doc", nil); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}

	want := "REFUND QUERIES\nRefunds are processed within 7 working days of pickup.\nInstant refunds are credited to the wallet."
	r := retrieval.NewPolicyRetriever(enc, store)
	d, err := r.RetrieveDetailed(ctx, want)
	if err != nil {
		t.Fatalf("RetrieveDetailed: %v", err)
	}
	if !d.Accepted {
		t.Fatalf("not accepted: %+v", d)
	}
	if d.Matches[0].ID != "doc_Refund Queries_0" {
		t.Errorf("rank-1 = %s", d.Matches[0].ID)
	}
	if math.Abs(d.Matches[0].Distance) > 1e-6 {
		t.Errorf("distance = %g, want ~0", d.Matches[0].Distance)
	}
}

func TestIndexDir(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("refunds.txt", policyDoc)
	write("nested/cancel.md", "CANCELLATION POLICY\nCancel any time before dispatch.")
	write("logo.png", "binary")
	write("broken.pdf", "not a pdf")
	write(".git/HEAD.txt", "REFUND QUERIES\nshould be skipped")

	ctx := context.Background()
	store := retrieval.NewMemoryStore()
	p := New(&hashEncoder{}, store, nil, testRules)

	res, err := p.IndexDir(ctx, dir)
	if err != nil {
		t.Fatalf("IndexDir: %v", err)
	}
	if len(res.Files) != 2 {
		t.Errorf("indexed %d files, want 2", len(res.Files))
	}
	if res.Written() != 3 {
		t.Errorf("Written = %d, want 3", res.Written())
	}
	if len(res.Skipped) != 1 || filepath.Base(res.Skipped[0]) != "logo.png" {
		t.Errorf("Skipped = %v", res.Skipped)
	}
	if _, ok := res.FailedFiles[filepath.Join(dir, "broken.pdf")]; !ok {
		t.Errorf("FailedFiles = %v, want broken.pdf", res.FailedFiles)
	}
	ids, _ := store.IDs(ctx)
	for _, id := range ids {
		if strings.Contains(id, "HEAD") {
			t.Errorf("hidden directory was indexed: %s", id)
		}
	}
}

func TestIndexDir_SameBaseNameKeepsBothDocuments(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "a"), 0o755)
	os.WriteFile(filepath.Join(dir, "a", "terms.txt"), []byte("REFUND QUERIES\nRefunds take 7 days."), 0o644)
	os.WriteFile(filepath.Join(dir, "terms.md"), []byte("REFUND QUERIES\nRefunds take 10 days."), 0o644)

	ctx := context.Background()
	store := retrieval.NewMemoryStore()
	p := New(&hashEncoder{}, store, nil, testRules)

	res, err := p.IndexDir(ctx, dir)
	if err != nil {
		t.Fatalf("IndexDir: %v", err)
	}
	if res.Written() != 2 {
		t.Fatalf("Written = %d, want 2", res.Written())
	}
	ids, _ := store.IDs(ctx)
	want := []string{"a/terms.txt_Refund Queries_0", "terms.md_Refund Queries_0"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("IDs = %v, want %v", ids, want)
	}
}

func TestReindex_PrunesDroppedSections(t *testing.T) {
	ctx := context.Background()
	store := retrieval.NewMemoryStore()
	p := New(&hashEncoder{}, store, nil, testRules)

	if _, err := p.Reindex(ctx, policyDoc, "doc", nil); err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	store.Upsert(ctx, []retrieval.Chunk{{ID: "other_Refund Queries_0", Text: "x", Vector: []float32{1}, Source: "other"}})

	res, err := p.Reindex(ctx, "REFUND QUERIES\nRefunds take 10 days.", "doc", nil)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if res.Pruned != 1 {
		t.Errorf("Pruned = %d, want 1", res.Pruned)
	}
	ids, _ := store.IDs(ctx)
	want := []string{"doc_Refund Queries_0", "other_Refund Queries_0"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("IDs = %v, want %v", ids, want)
	}
}

func TestReindex_EncoderOutageKeepsPreviousChunks(t *testing.T) {
	ctx := context.Background()
	store := retrieval.NewMemoryStore()
	if _, err := New(&hashEncoder{}, store, nil, testRules).Reindex(ctx, policyDoc, "doc", nil); err != nil {
		t.Fatalf("Reindex: %v", err)
	}

	down := New(&hashEncoder{failOn: " "}, store, nil, testRules)
	res, err := down.Reindex(ctx, policyDoc, "doc", nil)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if res.Written != 0 || res.Failed != 2 || res.Pruned != 0 {
		t.Errorf("result = %+v, want 0 written, 2 failed, none pruned", res)
	}
	if n, _ := store.Count(ctx); n != 2 {
		t.Errorf("Count = %d, want the 2 previous chunks", n)
	}
}

func TestSourceName(t *testing.T) {
	if got := SourceName("/data/policies/Terms of Use.pdf"); got != "Terms of Use" {
		t.Errorf("SourceName = %q", got)
	}
}

func TestSourcePath(t *testing.T) {
	dir := filepath.Join("data", "policies")
	if got := SourcePath(dir, filepath.Join(dir, "eu", "terms.pdf")); got != "eu/terms.pdf" {
		t.Errorf("SourcePath = %q", got)
	}
	if got := SourcePath(dir, filepath.Join("elsewhere", "x.txt")); got != "elsewhere/x.txt" {
		t.Errorf("SourcePath outside dir = %q", got)
	}
}
