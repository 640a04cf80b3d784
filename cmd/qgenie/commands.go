package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/querygenie/qgenie/internal/api"
	"github.com/querygenie/qgenie/internal/composer"
	"github.com/querygenie/qgenie/internal/indexing"
	"github.com/querygenie/qgenie/internal/pipeline"
)

// --- index ---

var indexCmd = &cobra.Command{
	Use:   "index <dir>",
	Short: "Index a folder of policy documents",
	Long: `Index every supported policy document (.pdf, .txt, .md) under a folder
into the local vector index. With --watch, keep watching the folder and
re-index files as they change.

Examples:
  qgenie index ./policies
  qgenie index ./policies --watch`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := openLocal(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		p, err := newIndexer(env.cfg, env.engine, env.vectors)
		if err != nil {
			return err
		}
		err = syncPolicies(ctx, p, env.vectors, args[0], watch)
		if watch && ctx.Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	indexCmd.Flags().Bool("watch", false, "re-index files when they change")
}

// --- retrieve ---

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Find the policy passage for a query in the local index",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		explain, _ := cmd.Flags().GetBool("explain")
		asJSON, _ := cmd.Flags().GetBool("json")

		env, err := openLocal(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		d, err := newRetriever(env.cfg, env.engine, env.vectors).RetrieveDetailed(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("retrieving policy: %w", err)
		}

		res := api.NewSearchResult(query, d, explain)
		if asJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}
		printSearchResult(cmd.OutOrStdout(), res)
		return nil
	},
}

func init() {
	retrieveCmd.Flags().Bool("explain", false, "show candidate scores and the threshold")
	retrieveCmd.Flags().Bool("json", false, "print the result as JSON")
}

func printSearchResult(w io.Writer, res api.SearchResult) {
	fmt.Fprintln(w, res.Policy)
	if res.Explain == nil {
		return
	}
	fmt.Fprintf(w, "\n%s average %.3f, threshold %.3f\n", colorize(colorBold, "Scores:"), res.Explain.Average, res.Explain.Threshold)
	for i, c := range res.Explain.Candidates {
		fmt.Fprintf(w, "  %d. %.3f  %s / %s  (%s)\n", i+1, c.Similarity, c.Source, c.Section, c.ID)
	}
}

// --- email ---

var emailCmd = &cobra.Command{
	Use:   "email",
	Short: "Submit a support email and print the triage and reply",
	Long: `Submit a support email to the running server.

Examples:
  qgenie email --subject "Refund" --body "My parcel arrived damaged"
  qgenie email --body-file message.txt
  cat message.txt | qgenie email --body -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		body, _ := cmd.Flags().GetString("body")
		bodyFile, _ := cmd.Flags().GetString("body-file")
		asJSON, _ := cmd.Flags().GetBool("json")

		switch {
		case bodyFile != "":
			data, err := os.ReadFile(bodyFile)
			if err != nil {
				return fmt.Errorf("reading body file: %w", err)
			}
			body = string(data)
		case body == "-":
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading stdin: %w", err)
			}
			body = string(data)
		}
		if strings.TrimSpace(body) == "" {
			return fmt.Errorf("--body or --body-file is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		out, err := sendEmail(cmd.Context(), client, pipeline.EmailRequest{Subject: subject, Body: body})
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(cmd.OutOrStdout(), out)
		}
		printOutcome(cmd.OutOrStdout(), out)
		return nil
	},
}

func init() {
	emailCmd.Flags().String("subject", "", "email subject")
	emailCmd.Flags().String("body", "", "email body, or - to read stdin")
	emailCmd.Flags().String("body-file", "", "read the email body from a file")
	emailCmd.Flags().Bool("json", false, "print the full interaction as JSON")
}

func sendEmail(ctx context.Context, c *apiClient, req pipeline.EmailRequest) (pipeline.Outcome, error) {
	resp, err := c.post(ctx, "/v1/emails", req)
	if err != nil {
		return pipeline.Outcome{}, err
	}
	var out pipeline.Outcome
	if err := decodeJSON(resp, &out); err != nil {
		return pipeline.Outcome{}, err
	}
	return out, nil
}

func printOutcome(w io.Writer, out pipeline.Outcome) {
	fmt.Fprintf(w, "%s %s (%.2f)\n", colorize(colorBold, "Category:"), out.Category, out.CategoryConfidence)
	fmt.Fprintf(w, "%s %s (%.2f)\n", colorize(colorBold, "Sentiment:"), sentimentLabel(out.Sentiment), out.SentimentConfidence)
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Escalate:"), escalationLabel(out.Escalated, out.EscalationRule))
	fmt.Fprintf(w, "%s %dms, %s reply, policy used: %v\n", colorize(colorBold, "Handled:"), out.DurationMS, out.ResponseSource, out.PolicyUsed)
	fmt.Fprintf(w, "\n%s\n", out.Response)
	if out.ID != "" {
		fmt.Fprintf(w, "\n%s\n", colorize(colorCyan, "id "+out.ID))
	}
}

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Chat with the support assistant",
	Long: `Send a chat message to the running server. Without a message, start an
interactive session that keeps the last turns as context; an empty line
or EOF ends it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		if len(args) > 0 {
			out, err := sendChat(cmd.Context(), client, pipeline.ChatRequest{Message: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Response)
			return nil
		}
		return chatLoop(cmd.Context(), client, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func sendChat(ctx context.Context, c *apiClient, req pipeline.ChatRequest) (pipeline.ChatOutcome, error) {
	resp, err := c.post(ctx, "/v1/chat", req)
	if err != nil {
		return pipeline.ChatOutcome{}, err
	}
	var out pipeline.ChatOutcome
	if err := decodeJSON(resp, &out); err != nil {
		return pipeline.ChatOutcome{}, err
	}
	return out, nil
}

func chatLoop(ctx context.Context, c *apiClient, in io.Reader, w io.Writer) error {
	var history []composer.Turn
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(w, colorize(colorBold, "you> "))
		if !scanner.Scan() {
			fmt.Fprintln(w)
			return scanner.Err()
		}
		msg := strings.TrimSpace(scanner.Text())
		if msg == "" {
			return nil
		}
		out, err := sendChat(ctx, c, pipeline.ChatRequest{Message: msg, History: history})
		if err != nil {
			return err
		}
		history = out.History
		fmt.Fprintf(w, "%s %s\n", colorize(colorCyan, "genie>"), out.Response)
	}
}

// --- policies ---

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "Manage policy documents on the server",
}

var policiesAddCmd = &cobra.Command{
	Use:   "add [file]",
	Short: "Upload a policy document for indexing",
	Long: `Upload a policy document to the running server. It is stored and
indexed in the background.

Examples:
  qgenie policies add ./terms.pdf
  qgenie policies add --url https://example.com/refund-policy.txt --source refunds`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		title, _ := cmd.Flags().GetString("title")
		u, _ := cmd.Flags().GetString("url")

		var file string
		if len(args) > 0 {
			file = args[0]
		}
		req, err := policyRequest(file, u, source, title)
		if err != nil {
			return err
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.post(cmd.Context(), "/policies", req)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Queued policy %s (%s)", result["id"], req.Source)
		return nil
	},
}

func init() {
	policiesAddCmd.Flags().String("source", "", "source name (default: file name without extension)")
	policiesAddCmd.Flags().String("title", "", "document title")
	policiesAddCmd.Flags().String("url", "", "fetch the document from a URL instead of a file")
}

func policyRequest(file, rawURL, source, title string) (api.PolicyRequest, error) {
	switch {
	case file == "" && rawURL == "":
		return api.PolicyRequest{}, fmt.Errorf("a file or --url is required")
	case file != "" && rawURL != "":
		return api.PolicyRequest{}, fmt.Errorf("give either a file or --url, not both")
	}

	if rawURL != "" {
		if source == "" {
			parsed, err := url.Parse(rawURL)
			if err != nil {
				return api.PolicyRequest{}, fmt.Errorf("invalid url: %w", err)
			}
			source = indexing.SourceName(parsed.Path)
		}
		if source == "" || source == "." || source == "/" {
			return api.PolicyRequest{}, fmt.Errorf("--source is required for this url")
		}
		return api.PolicyRequest{Source: source, Title: title, Type: "url", URL: rawURL}, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return api.PolicyRequest{}, fmt.Errorf("reading file: %w", err)
	}
	if source == "" {
		source = indexing.SourceName(file)
	}
	if title == "" {
		title = filepath.Base(file)
	}
	req := api.PolicyRequest{Source: source, Title: title, Type: "text", Content: string(data)}
	if strings.EqualFold(filepath.Ext(file), ".pdf") {
		req.Type = "pdf"
		req.Content = base64.StdEncoding.EncodeToString(data)
	}
	return req, nil
}

var policiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded policy documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/policies")
		if err != nil {
			return err
		}
		var docs []struct {
			ID        string `json:"id"`
			Source    string `json:"source"`
			Status    string `json:"status"`
			Chunks    int    `json:"chunks"`
			LastError string `json:"last_error"`
		}
		if err := decodeJSON(resp, &docs); err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No policy documents.")
			return nil
		}
		for _, d := range docs {
			line := fmt.Sprintf("%s  %-24s %-8s %d chunks", colorize(colorCyan, shortID(d.ID)), d.Source, d.Status, d.Chunks)
			if d.LastError != "" {
				line += "  " + colorize(colorRed, truncate(d.LastError, 60))
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

var policiesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a policy document and its indexed chunks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/policies/"+args[0])
		if err != nil {
			return err
		}
		var result struct {
			ChunksRemoved int `json:"chunks_removed"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted policy %s (%d chunks removed)", args[0], result.ChunksRemoved)
		return nil
	},
}

func init() {
	policiesCmd.AddCommand(policiesAddCmd)
	policiesCmd.AddCommand(policiesListCmd)
	policiesCmd.AddCommand(policiesDeleteCmd)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
