package respond

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"
	"sync"
	"time"
)

// DefaultResponse is returned when no canned response exists for a category.
const DefaultResponse = "I'm sorry, I don't understand your request."

// ChatFallback is the reply used when chat generation fails.
const ChatFallback = "I'm here to help! Could you clarify your request?"

// ErrMissingFallback is returned when a category has no canned response.
var ErrMissingFallback = errors.New("no canned response for category")

//go:embed responses.json
var builtinResponses []byte

// FallbackStore defines the storage operations Fallbacks needs.
// Implemented by storage.Store.
type FallbackStore interface {
	SetFallback(category, response string) error
	GetAllFallbacks() (map[string]string, error)
	DeleteFallback(category string) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Fallbacks is the category → canned response catalog. Stored overrides
// take precedence over the base catalog and are cached for a short TTL.
type Fallbacks struct {
	base  map[string]string
	store FallbackStore
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	cached   map[string]string
	cachedAt time.Time
}

// NewFallbacks creates a catalog over base with optional stored overrides
// (store may be nil). Keys are normalised to upper case.
func NewFallbacks(base map[string]string, store FallbackStore) *Fallbacks {
	return NewFallbacksWithClock(base, store, realClock{}, 60*time.Second)
}

// NewFallbacksWithClock creates a catalog with a custom clock (for testing).
func NewFallbacksWithClock(base map[string]string, store FallbackStore, clock Clock, ttl time.Duration) *Fallbacks {
	return &Fallbacks{
		base:  normalise(base),
		store: store,
		clock: clock,
		ttl:   ttl,
	}
}

// DefaultCatalog returns the built-in canned responses.
func DefaultCatalog() map[string]string {
	m, err := parseCatalog(builtinResponses)
	if err != nil {
		panic(fmt.Sprintf("built-in responses are invalid: %v", err))
	}
	return m
}

// LoadFile reads a JSON object of category → response from path and merges
// it over the built-in catalog.
func LoadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading responses file: %w", err)
	}
	m, err := parseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("parsing responses file %s: %w", path, err)
	}
	base := DefaultCatalog()
	maps.Copy(base, m)
	return base, nil
}

func parseCatalog(data []byte) (map[string]string, error) {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return normalise(m), nil
}

func normalise(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out[normaliseKey(k)] = v
	}
	return out
}

func normaliseKey(category string) string {
	return strings.ToUpper(strings.TrimSpace(category))
}

// Lookup returns the canned response for category, or ErrMissingFallback.
// When the override store fails the base catalog still answers.
func (f *Fallbacks) Lookup(category string) (string, error) {
	all, err := f.All()
	if err != nil {
		slog.Warn("stored responses unavailable, using base catalog", "error", err)
	}
	if r, ok := all[normaliseKey(category)]; ok {
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrMissingFallback, category)
}

// Response returns the canned response for category, or DefaultResponse.
func (f *Fallbacks) Response(category string) string {
	r, err := f.Lookup(category)
	if err != nil {
		return DefaultResponse
	}
	return r
}

// All returns the merged catalog. A store failure falls back to the base
// catalog and is reported.
func (f *Fallbacks) All() (map[string]string, error) {
	if f.store == nil {
		return maps.Clone(f.base), nil
	}

	f.mu.RLock()
	if f.cached != nil && f.clock.Now().Before(f.cachedAt.Add(f.ttl)) {
		out := maps.Clone(f.cached)
		f.mu.RUnlock()
		return out, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached != nil && f.clock.Now().Before(f.cachedAt.Add(f.ttl)) {
		return maps.Clone(f.cached), nil
	}

	stored, err := f.store.GetAllFallbacks()
	if err != nil {
		return maps.Clone(f.base), fmt.Errorf("loading stored responses: %w", err)
	}
	merged := maps.Clone(f.base)
	maps.Copy(merged, normalise(stored))
	f.cached = merged
	f.cachedAt = f.clock.Now()
	return maps.Clone(merged), nil
}

// Set persists an override for category and invalidates the cache.
func (f *Fallbacks) Set(category, response string) error {
	if f.store == nil {
		return errors.New("no response store configured")
	}
	key := normaliseKey(category)
	if key == "" || strings.TrimSpace(response) == "" {
		return errors.New("category and response are required")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.store.SetFallback(key, response); err != nil {
		return fmt.Errorf("setting response for %q: %w", key, err)
	}
	f.cached = nil
	return nil
}

// Delete removes a stored override and invalidates the cache.
func (f *Fallbacks) Delete(category string) error {
	if f.store == nil {
		return errors.New("no response store configured")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.store.DeleteFallback(normaliseKey(category)); err != nil {
		return fmt.Errorf("deleting response for %q: %w", category, err)
	}
	f.cached = nil
	return nil
}
