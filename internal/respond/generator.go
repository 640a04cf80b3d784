// Package respond writes replies to customer emails and chat messages. It
// grounds the reply in the best policy passage when one is found and always
// degrades to a canned response when generation fails.
package respond

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/querygenie/qgenie/internal/composer"
	"github.com/querygenie/qgenie/internal/proxy"
	"github.com/querygenie/qgenie/internal/retrieval"
)

// ErrGeneration wraps every failure of the text generation service.
var ErrGeneration = errors.New("response generation failed")

// Reply sources.
const (
	SourceGenerated = "generated"
	SourceFallback  = "fallback"
)

// Completer produces text for a list of chat messages.
// Implemented by proxy.Client.
type Completer interface {
	Complete(ctx context.Context, messages []proxy.Message) (string, error)
}

// Retriever finds the policy passage for a query.
// Implemented by retrieval.PolicyRetriever.
type Retriever interface {
	RetrieveDetailed(ctx context.Context, query string) (retrieval.Decision, error)
}

// Reply is a generated or canned response plus the policy that grounded it.
type Reply struct {
	Text          string `json:"text"`
	Source        string `json:"source"`
	PolicyUsed    bool   `json:"policy_used"`
	PolicyChunkID string `json:"policy_chunk_id,omitempty"`
	Policy        string `json:"-"`
}

// Generator composes prompts and calls the generation service.
type Generator struct {
	retriever Retriever
	completer Completer
	composer  *composer.Composer
	fallbacks *Fallbacks
	logger    *slog.Logger
}

// NewGenerator creates a Generator. A nil completer means generation is not
// configured and every reply comes from the fallbacks.
func NewGenerator(r Retriever, c Completer, comp *composer.Composer, fb *Fallbacks) *Generator {
	if comp == nil {
		comp = composer.New(0)
	}
	if fb == nil {
		fb = NewFallbacks(DefaultCatalog(), nil)
	}
	return &Generator{
		retriever: r,
		completer: c,
		composer:  comp,
		fallbacks: fb,
		logger:    slog.Default(),
	}
}

// Fallbacks returns the canned response catalog.
func (g *Generator) Fallbacks() *Fallbacks { return g.fallbacks }

// GenerateEmail answers an email. It never fails: when the generation
// service errors the category's canned response is returned instead.
func (g *Generator) GenerateEmail(ctx context.Context, category, email string) Reply {
	reply := g.policyFor(ctx, email)
	prompt := g.composer.EmailPrompt(category, email, reply.Policy)

	text, err := g.Draft(ctx, prompt)
	if err == nil {
		reply.Text = text
		reply.Source = SourceGenerated
		return reply
	}
	g.logger.Warn("email generation failed, using canned response", "category", category, "error", err)

	canned, ferr := g.fallbacks.Lookup(category)
	if ferr != nil {
		g.logger.Warn("no canned response", "category", category, "error", ferr)
		canned = DefaultResponse
	}
	reply.Text = canned
	reply.Source = SourceFallback
	return reply
}

// GenerateChat answers a chat message given the recent history. It never
// fails; generation errors yield ChatFallback.
func (g *Generator) GenerateChat(ctx context.Context, history []composer.Turn, message string) Reply {
	reply := g.policyFor(ctx, message)
	prompt := g.composer.ChatPrompt(history, message, reply.Policy)

	text, err := g.Draft(ctx, prompt)
	if err != nil {
		g.logger.Warn("chat generation failed, using fallback", "error", err)
		reply.Text = ChatFallback
		reply.Source = SourceFallback
		return reply
	}
	reply.Text = text
	reply.Source = SourceGenerated
	return reply
}

// Draft sends a finished prompt to the generation service. Every failure is
// wrapped in ErrGeneration.
func (g *Generator) Draft(ctx context.Context, prompt string) (string, error) {
	if g.completer == nil {
		return "", fmt.Errorf("%w: generation service not configured", ErrGeneration)
	}
	text, err := g.completer.Complete(ctx, composer.Messages(prompt))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrGeneration)
	}
	return text, nil
}

// policyFor retrieves the grounding passage. Retrieval failures read as no
// match.
func (g *Generator) policyFor(ctx context.Context, query string) Reply {
	r := Reply{Policy: retrieval.NoMatch}
	if g.retriever == nil {
		return r
	}
	d, err := g.retriever.RetrieveDetailed(ctx, query)
	if err != nil {
		g.logger.Warn("policy retrieval failed, treating as no match", "error", err)
		return r
	}
	if !d.Accepted {
		return r
	}
	r.Policy = d.Best()
	r.PolicyUsed = true
	r.PolicyChunkID = d.Matches[0].ID
	return r
}
