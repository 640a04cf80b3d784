package section

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule associates a section label with the heading pattern that opens it.
// Patterns are matched against the start of a trimmed line, ignoring case.
type Rule struct {
	Label   string
	Pattern *regexp.Regexp
}

// Section is the accumulated text of one labelled part of a document.
// Text includes the heading line that opened the section.
type Section struct {
	Label string
	Text  string
}

// NewRule compiles pattern into an anchored, case-insensitive Rule.
func NewRule(label, pattern string) (Rule, error) {
	if label == "" {
		return Rule{}, fmt.Errorf("rule label is required")
	}
	re, err := regexp.Compile(`(?i)^(?:` + pattern + `)`)
	if err != nil {
		return Rule{}, fmt.Errorf("compiling pattern for %q: %w", label, err)
	}
	return Rule{Label: label, Pattern: re}, nil
}

// MustRule is like NewRule but panics on an invalid pattern.
func MustRule(label, pattern string) Rule {
	r, err := NewRule(label, pattern)
	if err != nil {
		panic(err)
	}
	return r
}

// Segment splits text into labelled sections using the ordered rule list.
// The first rule whose pattern matches a line wins. Lines before the first
// heading are dropped. A label that matches again later keeps accumulating
// into its existing section. Sections are returned in order of first
// appearance; text without any heading yields nil.
func Segment(text string, rules []Rule) []Section {
	var (
		order   []string
		buffers = make(map[string]*strings.Builder)
		current string
	)

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if label, ok := matchHeading(line, rules); ok {
			current = label
			if _, seen := buffers[label]; !seen {
				buffers[label] = &strings.Builder{}
				order = append(order, label)
			}
		}
		if current == "" {
			continue
		}
		buf := buffers[current]
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	if len(order) == 0 {
		return nil
	}
	out := make([]Section, len(order))
	for i, label := range order {
		out[i] = Section{Label: label, Text: buffers[label].String()}
	}
	return out
}

// Map is Segment keyed by label.
func Map(text string, rules []Rule) map[string]string {
	sections := Segment(text, rules)
	m := make(map[string]string, len(sections))
	for _, s := range sections {
		m[s.Label] = s.Text
	}
	return m
}

func matchHeading(line string, rules []Rule) (string, bool) {
	if line == "" {
		return "", false
	}
	for _, r := range rules {
		if r.Pattern != nil && r.Pattern.MatchString(line) {
			return r.Label, true
		}
	}
	return "", false
}

type ruleFile struct {
	Rules []struct {
		Label   string `yaml:"label"`
		Pattern string `yaml:"pattern"`
	} `yaml:"rules"`
}

// LoadRules reads an ordered rule table from a YAML file of the form
//
//	rules:
//	  - label: Refund Queries
//	    pattern: 'REFUND QUERIES'
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rule table.
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("rules file defines no rules")
	}
	rules := make([]Rule, 0, len(f.Rules))
	for _, r := range f.Rules {
		rule, err := NewRule(r.Label, r.Pattern)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
