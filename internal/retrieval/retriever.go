package retrieval

import (
	"context"
	"log/slog"
	"strings"
)

// NoMatch is the sentinel passed to prompt builders and API clients when no
// stored passage is relevant enough.
const NoMatch = "NO_MATCH"

const (
	// DefaultTopK is how many neighbours feed the relevance threshold.
	DefaultTopK = 3
	// DefaultThresholdMultiplier scales the mean neighbour similarity into
	// the acceptance threshold for the best match.
	DefaultThresholdMultiplier = 0.8
)

// Decision explains one retrieval: the neighbours considered, the threshold
// derived from them, and whether the best one was accepted.
type Decision struct {
	Matches   []Match
	Scores    []float64
	Average   float64
	Threshold float64
	Accepted  bool
}

// Best returns the accepted passage, or "" when nothing was accepted.
func (d Decision) Best() string {
	if !d.Accepted || len(d.Matches) == 0 {
		return ""
	}
	return d.Matches[0].Text
}

// PolicyRetriever finds the policy passage most relevant to a query. It
// accepts the nearest chunk only when it stands out relative to its
// neighbours, so the threshold adapts to how dense the corpus is around the
// query.
type PolicyRetriever struct {
	encoder    Encoder
	store      VectorStore
	topK       int
	multiplier float64
	logger     *slog.Logger
}

// RetrieverOption configures a PolicyRetriever.
type RetrieverOption func(*PolicyRetriever)

// WithTopK sets how many neighbours are considered.
func WithTopK(k int) RetrieverOption {
	return func(r *PolicyRetriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithThresholdMultiplier sets the factor applied to the mean similarity.
func WithThresholdMultiplier(m float64) RetrieverOption {
	return func(r *PolicyRetriever) {
		if m > 0 {
			r.multiplier = m
		}
	}
}

// NewPolicyRetriever creates a PolicyRetriever backed by the given encoder
// and store.
func NewPolicyRetriever(encoder Encoder, store VectorStore, opts ...RetrieverOption) *PolicyRetriever {
	r := &PolicyRetriever{
		encoder:    encoder,
		store:      store,
		topK:       DefaultTopK,
		multiplier: DefaultThresholdMultiplier,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns the best passage for query and true, or "" and false
// when there is no sufficiently relevant passage. Encoder and index failures
// are logged and reported as no match.
func (r *PolicyRetriever) Retrieve(ctx context.Context, query string) (string, bool) {
	d, err := r.RetrieveDetailed(ctx, query)
	if err != nil {
		r.logger.Warn("policy retrieval failed, treating as no match", "error", err)
		return "", false
	}
	if !d.Accepted {
		return "", false
	}
	return d.Best(), true
}

// RetrievePolicy is Retrieve with the NoMatch sentinel in place of the
// boolean.
func (r *PolicyRetriever) RetrievePolicy(ctx context.Context, query string) string {
	if text, ok := r.Retrieve(ctx, query); ok {
		return text
	}
	return NoMatch
}

// RetrieveDetailed runs the full retrieval and returns the intermediate
// scores. Unlike Retrieve it surfaces encoder and index errors.
func (r *PolicyRetriever) RetrieveDetailed(ctx context.Context, query string) (Decision, error) {
	if strings.TrimSpace(query) == "" {
		return Decision{}, nil
	}

	vec, err := r.encoder.Embed(ctx, query)
	if err != nil {
		return Decision{}, err
	}

	matches, err := r.store.Query(ctx, vec, r.topK)
	if err != nil {
		return Decision{}, err
	}

	d := Evaluate(matches, r.multiplier)
	r.logger.Debug("policy retrieval",
		"candidates", len(d.Matches),
		"average", d.Average,
		"threshold", d.Threshold,
		"accepted", d.Accepted,
	)
	return d, nil
}

// Evaluate applies the relative relevance threshold to matches ordered by
// ascending distance. The best match is accepted when its similarity is at
// least multiplier times the mean similarity of all matches.
func Evaluate(matches []Match, multiplier float64) Decision {
	d := Decision{Matches: matches}
	if len(matches) == 0 {
		return d
	}

	d.Scores = make([]float64, len(matches))
	var sum float64
	for i, m := range matches {
		d.Scores[i] = m.Similarity()
		sum += d.Scores[i]
	}
	d.Average = sum / float64(len(matches))
	d.Threshold = d.Average * multiplier
	d.Accepted = d.Scores[0] >= d.Threshold
	return d
}
