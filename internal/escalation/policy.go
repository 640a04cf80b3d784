// Package escalation decides whether a customer message needs a human agent.
package escalation

import "strings"

// DefaultLowConfidence is the bound below which both oracle confidences
// count as uncertain.
const DefaultLowConfidence = 0.5

// DefaultCritical lists the categories that escalate on negative sentiment.
var DefaultCritical = []string{"REFUND", "CANCEL", "PAYMENT"}

// Rule names the escalation rule that fired.
type Rule string

const (
	RuleNone          Rule = ""
	RuleLowConfidence Rule = "low_confidence"
	RuleCriticalUpset Rule = "critical_negative"
)

// Policy is the escalation rule table. Rules are tried in order and the
// first one that matches decides.
type Policy struct {
	LowConfidence float64
	Critical      map[string]bool
}

// Default is the stock policy.
var Default = NewPolicy(DefaultLowConfidence, DefaultCritical)

// NewPolicy builds a Policy. Category names are matched exactly.
func NewPolicy(lowConfidence float64, critical []string) Policy {
	p := Policy{LowConfidence: lowConfidence, Critical: make(map[string]bool, len(critical))}
	for _, c := range critical {
		p.Critical[strings.TrimSpace(c)] = true
	}
	return p
}

// Decide returns whether to escalate and which rule fired.
func (p Policy) Decide(category string, categoryConf float64, sentiment string, sentimentConf float64) (bool, Rule) {
	if categoryConf < p.LowConfidence && sentimentConf < p.LowConfidence {
		return true, RuleLowConfidence
	}
	if p.Critical[category] && sentiment == "negative" {
		return true, RuleCriticalUpset
	}
	return false, RuleNone
}

// ShouldEscalate applies the Default policy.
func ShouldEscalate(category string, categoryConf float64, sentiment string, sentimentConf float64) bool {
	escalate, _ := Default.Decide(category, categoryConf, sentiment, sentimentConf)
	return escalate
}
