package classify

import (
	"fmt"
	"strings"

	"github.com/querygenie/qgenie/internal/engine"
)

const categoryPromptTemplate = `You are a customer-support triage engine for an online shopping platform. Estimate, for every category below, the probability that the customer's message belongs to it. Your output must be ONLY a single valid JSON object that conforms to the provided schema, with one number between 0 and 1 per category. Do not include any other text, prose, or markdown.

Categories:
%s`

const sentimentPromptTemplate = `You are a sentiment scoring engine for customer-support messages. Estimate the probability that the customer's message is positive, neutral, or negative. Your output must be ONLY a single valid JSON object that conforms to the provided schema, with one number between 0 and 1 per label. Do not include any other text, prose, or markdown.`

// BuildCategoryPrompt constructs the chat messages for category scoring.
func BuildCategoryPrompt(text string, categories []string) []engine.Message {
	var sb strings.Builder
	for _, c := range categories {
		fmt.Fprintf(&sb, "- %s\n", c)
	}
	return []engine.Message{
		{Role: "system", Content: fmt.Sprintf(categoryPromptTemplate, sb.String())},
		{Role: "user", Content: text},
	}
}

// BuildSentimentPrompt constructs the chat messages for sentiment scoring.
func BuildSentimentPrompt(text string) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: sentimentPromptTemplate},
		{Role: "user", Content: text},
	}
}

// probabilitySchema asks for one number property per label.
func probabilitySchema(labels []string) *engine.Schema {
	props := make(map[string]engine.SchemaProperty, len(labels))
	for _, l := range labels {
		props[l] = engine.SchemaProperty{Type: "number", Description: "Probability in [0,1] that the message is " + l}
	}
	return &engine.Schema{
		Type:       "object",
		Properties: props,
		Required:   append([]string(nil), labels...),
	}
}
