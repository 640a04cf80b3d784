package respond

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type mockStore struct {
	data   map[string]string
	getErr error
	gets   int
}

func newMockStore() *mockStore { return &mockStore{data: map[string]string{}} }

func (m *mockStore) SetFallback(category, response string) error {
	m.data[category] = response
	return nil
}

func (m *mockStore) GetAllFallbacks() (map[string]string, error) {
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

func (m *mockStore) DeleteFallback(category string) error {
	if _, ok := m.data[category]; !ok {
		return errors.New("not found")
	}
	delete(m.data, category)
	return nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestDefaultCatalog_CoversCategories(t *testing.T) {
	cat := DefaultCatalog()
	for _, c := range []string{"ACCOUNT", "CANCEL", "CONTACT", "DELIVERY", "FEEDBACK", "INVOICE", "ORDER", "PAYMENT", "REFUND", "SHIPPING", "SUBSCRIPTION"} {
		if cat[c] == "" {
			t.Errorf("no built-in response for %s", c)
		}
	}
}

func TestFallbacks_LookupAndDefault(t *testing.T) {
	f := NewFallbacks(map[string]string{"refund": "Refund text"}, nil)

	r, err := f.Lookup("REFUND")
	if err != nil || r != "Refund text" {
		t.Fatalf("Lookup = %q, %v", r, err)
	}
	if _, err := f.Lookup("WARRANTY"); !errors.Is(err, ErrMissingFallback) {
		t.Errorf("err = %v, want ErrMissingFallback", err)
	}
	if got := f.Response("WARRANTY"); got != DefaultResponse {
		t.Errorf("Response = %q, want default", got)
	}
}

func TestFallbacks_StoreOverridesBase(t *testing.T) {
	store := newMockStore()
	store.data["REFUND"] = "Stored refund text"
	f := NewFallbacks(map[string]string{"REFUND": "Base", "ORDER": "Order"}, store)

	if got := f.Response("refund"); got != "Stored refund text" {
		t.Errorf("Response = %q", got)
	}
	if got := f.Response("ORDER"); got != "Order" {
		t.Errorf("Response = %q", got)
	}
	if got, err := f.Lookup("ORDER"); err != nil || got != "Order" {
		t.Errorf("Lookup = %q, %v; want Order, nil", got, err)
	}
	if _, err := f.Lookup("WARRANTY"); !errors.Is(err, ErrMissingFallback) {
		t.Errorf("Lookup missing err = %v, want ErrMissingFallback", err)
	}
}

func TestFallbacks_CacheTTL(t *testing.T) {
	store := newMockStore()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	f := NewFallbacksWithClock(nil, store, clock, time.Minute)

	f.All()
	f.All()
	if store.gets != 1 {
		t.Errorf("gets = %d, want 1 (cached)", store.gets)
	}
	clock.now = clock.now.Add(2 * time.Minute)
	f.All()
	if store.gets != 2 {
		t.Errorf("gets = %d, want 2 after expiry", store.gets)
	}
}

func TestFallbacks_SetInvalidatesCache(t *testing.T) {
	store := newMockStore()
	clock := &fakeClock{now: time.Now()}
	f := NewFallbacksWithClock(nil, store, clock, time.Hour)

	if _, err := f.Lookup("CANCEL"); err == nil {
		t.Fatal("expected missing fallback")
	}
	if err := f.Set("cancel", "Cancelled."); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := f.Response("CANCEL"); got != "Cancelled." {
		t.Errorf("Response = %q", got)
	}
	if err := f.Delete("CANCEL"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := f.Response("CANCEL"); got != DefaultResponse {
		t.Errorf("Response after delete = %q", got)
	}
}

func TestFallbacks_SetValidates(t *testing.T) {
	f := NewFallbacks(nil, newMockStore())
	if err := f.Set(" ", "x"); err == nil {
		t.Error("expected error for blank category")
	}
	if err := f.Set("ORDER", "  "); err == nil {
		t.Error("expected error for blank response")
	}
	if err := NewFallbacks(nil, nil).Set("ORDER", "x"); err == nil {
		t.Error("expected error without a store")
	}
}

func TestFallbacks_StoreErrorUsesBase(t *testing.T) {
	store := newMockStore()
	store.getErr = errors.New("db locked")
	f := NewFallbacks(map[string]string{"ORDER": "Order"}, store)

	all, err := f.All()
	if err == nil {
		t.Error("expected store error to be reported")
	}
	if all["ORDER"] != "Order" {
		t.Errorf("base catalog lost: %v", all)
	}
	if got := f.Response("ORDER"); got != "Order" {
		t.Errorf("Response = %q", got)
	}
	if got, err := f.Lookup("ORDER"); err != nil || got != "Order" {
		t.Errorf("Lookup = %q, %v; want Order, nil", got, err)
	}
	if _, err := f.Lookup("WARRANTY"); !errors.Is(err, ErrMissingFallback) {
		t.Errorf("Lookup missing err = %v, want ErrMissingFallback", err)
	}
}

func TestLoadFile_MergesOverBuiltin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "responses.json")
	os.WriteFile(path, []byte(`{"refund": "Custom refund", "WARRANTY": "Warranty text"}`), 0o644)

	m, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if m["REFUND"] != "Custom refund" || m["WARRANTY"] != "Warranty text" {
		t.Errorf("overrides missing: %v", m)
	}
	if m["ORDER"] == "" {
		t.Error("built-in entries lost")
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte(`["not", "an", "object"]`), 0o644)
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for non-object JSON")
	}
}
