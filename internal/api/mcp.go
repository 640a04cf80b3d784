package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/querygenie/qgenie/internal/retrieval"
)

// NewMCPServer creates an MCP server with the qgenie tools and resources
// registered.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"qgenie",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("qgenie: customer-support policy lookup, email triage and escalation decisions."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("retrieve_policy",
			mcp.WithDescription("Find the company policy passage most relevant to a customer query. Returns NO_MATCH when nothing is relevant enough."),
			mcp.WithString("query", mcp.Description("Customer query"), mcp.Required()),
			mcp.WithBoolean("explain", mcp.Description("Include the candidates and threshold used")),
		),
		mcpRetrievePolicy(deps),
	)

	s.AddTool(
		mcp.NewTool("triage_email",
			mcp.WithDescription("Classify a customer email, score its sentiment and decide whether a human agent is needed."),
			mcp.WithString("text", mcp.Description("Email body"), mcp.Required()),
		),
		mcpTriageEmail(deps),
	)

	s.AddTool(
		mcp.NewTool("should_escalate",
			mcp.WithDescription("Apply the escalation rules to a category and sentiment with their confidences."),
			mcp.WithString("category", mcp.Description("Support category, e.g. REFUND"), mcp.Required()),
			mcp.WithNumber("category_confidence", mcp.Description("Category confidence in [0,1]"), mcp.Required()),
			mcp.WithString("sentiment", mcp.Description("negative, neutral or positive"), mcp.Required()),
			mcp.WithNumber("sentiment_confidence", mcp.Description("Sentiment confidence in [0,1]"), mcp.Required()),
		),
		mcpShouldEscalate(deps),
	)

	s.AddTool(
		mcp.NewTool("add_policy",
			mcp.WithDescription("Store a policy document and queue it for indexing."),
			mcp.WithString("source", mcp.Description("Document name; re-adding a source replaces it"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Title for the document")),
			mcp.WithString("content", mcp.Description("Plain-text policy content"), mcp.Required()),
		),
		mcpAddPolicy(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"support://recent",
			"Recent Interactions",
			mcp.WithResourceDescription("Last 10 handled emails and chats (summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpRetrievePolicy(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcpError("query is required"), nil
		}
		explain := req.GetBool("explain", false)

		d, err := deps.Retriever.RetrieveDetailed(ctx, query)
		if err != nil {
			if explain {
				return mcpError(fmt.Sprintf("retrieval failed: %v", err)), nil
			}
			d = retrieval.Decision{}
		}

		if !explain {
			return mcpText(NewSearchResult(query, d, false).Policy), nil
		}
		return mcpJSON(NewSearchResult(query, d, true))
	}
}

func mcpTriageEmail(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcpError("text is required"), nil
		}
		t, err := deps.Support.Triage(ctx, text)
		if err != nil {
			return mcpError(fmt.Sprintf("triage failed: %v", err)), nil
		}
		return mcpJSON(t)
	}
}

func mcpShouldEscalate(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		category, err := req.RequireString("category")
		if err != nil {
			return mcpError("category is required"), nil
		}
		catConf, err := req.RequireFloat("category_confidence")
		if err != nil {
			return mcpError("category_confidence is required"), nil
		}
		sentiment, err := req.RequireString("sentiment")
		if err != nil {
			return mcpError("sentiment is required"), nil
		}
		sentConf, err := req.RequireFloat("sentiment_confidence")
		if err != nil {
			return mcpError("sentiment_confidence is required"), nil
		}

		esc, rule := deps.policy().Decide(category, catConf, sentiment, sentConf)
		return mcpJSON(EscalationResponse{Escalate: esc, Rule: rule})
	}
}

func mcpAddPolicy(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		source, err := req.RequireString("source")
		if err != nil || source == "" {
			return mcpError("source is required"), nil
		}
		content, err := req.RequireString("content")
		if err != nil || strings.TrimSpace(content) == "" {
			return mcpError("content is required"), nil
		}
		title := req.GetString("title", "")

		id, err := SubmitPolicy(deps.Store, source, title, "text", []byte(content))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Queued policy %s for indexing", id)), nil
	}
}

func mcpResourceRecent(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.Store.ListInteractions("", 10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent interactions: %w", err)
		}

		type interactionSummary struct {
			ID        string `json:"id"`
			Kind      string `json:"kind"`
			CreatedAt string `json:"created_at"`
			Category  string `json:"category,omitempty"`
			Escalated bool   `json:"escalated"`
			Query     string `json:"query"`
		}

		summaries := make([]interactionSummary, len(interactions))
		for i, ix := range interactions {
			query := ix.Body
			if utf8.RuneCountInString(query) > 200 {
				runes := []rune(query)
				query = string(runes[:200]) + "..."
			}
			summaries[i] = interactionSummary{
				ID:        ix.ID,
				Kind:      ix.Kind,
				CreatedAt: ix.CreatedAt.Format(time.RFC3339),
				Category:  ix.Category,
				Escalated: ix.Escalated,
				Query:     query,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interactions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
