// Package composer builds the generation prompts for customer replies.
package composer

import (
	"fmt"
	"strings"

	"github.com/querygenie/qgenie/internal/proxy"
	"github.com/querygenie/qgenie/internal/retrieval"
)

const defaultMaxContextTokens = 4000

// preamble opens every prompt.
const preamble = "You are an AI assistant for an online shopping platform."

// Turn is one exchange of the chat history.
type Turn struct {
	User string `json:"user"`
	AI   string `json:"ai"`
}

// Composer assembles prompts from the customer's text, the retrieved policy
// passage and, for chat, the recent history.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for the injected
// policy passage. If maxContextTokens <= 0, the default (4000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// HasPolicy reports whether policy carries a retrieved passage.
func HasPolicy(policy string) bool {
	p := strings.TrimSpace(policy)
	return p != "" && p != retrieval.NoMatch
}

// EmailPrompt builds the reply prompt for an email. With a policy passage the
// model answers from the policy; without one it answers from the category.
func (c *Composer) EmailPrompt(category, email, policy string) string {
	if HasPolicy(policy) {
		return fmt.Sprintf("%s\n\nUse the following company policy to generate a response:\n\n%s\n\nUser Query: %s",
			preamble, c.fit(policy), email)
	}
	return fmt.Sprintf("%s\n\nCategory: %s\nEmail: %s\nGenerate a response.", preamble, category, email)
}

// ChatPrompt builds a short conversational prompt. History is included only
// when no policy passage was found.
func (c *Composer) ChatPrompt(history []Turn, message, policy string) string {
	if HasPolicy(policy) {
		return fmt.Sprintf("%s\n\nUser: %s\n\nUse the following company policy to provide a conversational response:\n\n%s\n\nRespond in a short and conversational manner.",
			preamble, message, c.fit(policy))
	}

	var sb strings.Builder
	sb.WriteString(preamble)
	sb.WriteString("\n\n")
	turns := make([]string, len(history))
	for i, t := range history {
		turns[i] = fmt.Sprintf("User: %s\nAI: %s", t.User, t.AI)
	}
	sb.WriteString(strings.Join(turns, "\n"))
	fmt.Fprintf(&sb, "\nUser: %s\nAI: Respond in a short and conversational manner.", message)
	return sb.String()
}

// Messages wraps a prompt as a single user message.
func Messages(prompt string) []proxy.Message {
	return []proxy.Message{{Role: "user", Content: prompt}}
}

// fit trims the policy passage to the token budget, cutting at a word
// boundary when possible.
func (c *Composer) fit(policy string) string {
	if EstimateTokens(policy) <= c.MaxContextTokens {
		return policy
	}
	limit := c.MaxContextTokens * 4
	cut := policy[:limit]
	for limit > 0 && !validBoundary(policy, limit) {
		limit--
		cut = policy[:limit]
	}
	if i := strings.LastIndexAny(cut, " \n\t"); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}

// validBoundary reports whether i does not split a UTF-8 sequence.
func validBoundary(s string, i int) bool {
	return i >= len(s) || s[i]&0xC0 != 0x80
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
