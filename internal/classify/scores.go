package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidScore is returned when the model output is not a usable
// probability table.
var ErrInvalidScore = errors.New("invalid score")

// parseProbabilities decodes a label → probability object and picks the
// argmax. Ties go to the label listed first. Labels outside the allowed
// set and values outside [0,1] are rejected.
func parseProbabilities(raw string, labels []string) (string, float64, error) {
	var probs map[string]float64
	if err := json.Unmarshal([]byte(stripFences(raw)), &probs); err != nil {
		return "", 0, fmt.Errorf("%w: decoding %q: %v", ErrInvalidScore, raw, err)
	}
	if len(probs) == 0 {
		return "", 0, fmt.Errorf("%w: empty probability table", ErrInvalidScore)
	}

	allowed := make(map[string]bool, len(labels))
	for _, l := range labels {
		allowed[l] = true
	}
	for l, p := range probs {
		if !allowed[l] {
			return "", 0, fmt.Errorf("%w: unknown label %q", ErrInvalidScore, l)
		}
		if p < 0 || p > 1 {
			return "", 0, fmt.Errorf("%w: %s = %g outside [0,1]", ErrInvalidScore, l, p)
		}
	}

	best, bestP := "", -1.0
	for _, l := range labels {
		p, ok := probs[l]
		if ok && p > bestP {
			best, bestP = l, p
		}
	}
	return best, bestP, nil
}

// stripFences removes a surrounding markdown code fence, which some models
// emit despite the schema.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
