package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/querygenie/qgenie/internal/api"
	"github.com/querygenie/qgenie/internal/classify"
	"github.com/querygenie/qgenie/internal/composer"
	"github.com/querygenie/qgenie/internal/config"
	"github.com/querygenie/qgenie/internal/engine"
	"github.com/querygenie/qgenie/internal/escalation"
	"github.com/querygenie/qgenie/internal/ingest"
	"github.com/querygenie/qgenie/internal/pipeline"
	"github.com/querygenie/qgenie/internal/respond"
	"github.com/querygenie/qgenie/internal/retrieval"
	"github.com/querygenie/qgenie/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the qgenie server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		mcp, _ := cmd.Flags().GetBool("mcp")
		return runServer(mcp)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running qgenie server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show qgenie system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", true, "serve MCP over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "qgenie.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(serveMCP bool) error {
	fmt.Fprintf(os.Stderr, "qgenie version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	apiToken, err := config.GetAPIToken()
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(serverURL(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("qgenie is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("qgenie is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := engine.Detect(engine.DetectConfig{OllamaBaseURL: cfg.Ollama.BaseURL})
	if err != nil {
		return fmt.Errorf("detecting inference engine: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, cfg.Ollama.ChatModel, cfg.Ollama.EmbedModel, os.Stderr); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	vectors := retrieval.NewSQLiteStore(store.DB())
	indexer, err := newIndexer(cfg, eng, vectors)
	if err != nil {
		return err
	}
	retriever := newRetriever(cfg, eng, vectors)

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	fallbacks := respond.NewFallbacks(catalog, store)
	completer := newCompleter(cfg)
	if completer == nil {
		slog.Warn("reply generation disabled, canned responses only")
	}
	generator := respond.NewGenerator(retriever, completer, composer.New(0), fallbacks)

	policy := escalation.NewPolicy(cfg.Escalation.LowConfidence, escalation.DefaultCritical)
	svc := pipeline.NewService(
		classify.NewClassifier(eng, cfg.Ollama.ChatModel),
		classify.NewSentimentAnalyzer(eng, cfg.Ollama.ChatModel, cfg.Sentiment.ConfidenceFloor),
		generator,
		pipeline.WithPolicy(policy),
		pipeline.WithStore(store),
	)

	worker := ingest.NewWorker(store, indexer, 500*time.Millisecond)
	go worker.Run(ctx)

	if cfg.Policies.Dir != "" {
		go func() {
			if err := syncPolicies(ctx, indexer, vectors, cfg.Policies.Dir, true); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("policy folder sync failed", "dir", cfg.Policies.Dir, "error", err)
			}
		}()
	}

	deps := api.Deps{
		Store:      store,
		Support:    svc,
		Retriever:  retriever,
		Vectors:    vectors,
		Fallbacks:  fallbacks,
		Policy:     policy,
		Token:      apiToken,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}

	if serveMCP {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(deps))
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "qgenie listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("qgenie is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop qgenie (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to qgenie (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	httpClient := &http.Client{Timeout: 2 * time.Second}
	running := false
	resp, err := httpClient.Get(serverURL(cfg) + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on %s", serverURL(cfg))
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	eng, err := engine.Detect(engine.DetectConfig{OllamaBaseURL: cfg.Ollama.BaseURL})
	if err != nil || !eng.IsRunning(ctx) {
		printStatus("Ollama", "not running")
	} else {
		printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
	}

	printStatus("Chat model", "%s", cfg.Ollama.ChatModel)
	printStatus("Embed model", "%s", cfg.Ollama.EmbedModel)
	if cfg.Generation.APIKey != "" {
		printStatus("Generation", "%s (%s)", cfg.Generation.Model, cfg.Generation.BaseURL)
	} else {
		printStatus("Generation", "disabled (no API key)")
	}

	if running {
		if token, err := config.GetAPIToken(); err == nil {
			c := &apiClient{baseURL: serverURL(cfg), token: token, httpClient: httpClient}
			printServerCounts(ctx, c)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func printServerCounts(ctx context.Context, c *apiClient) {
	resp, err := c.get(ctx, "/interactions/stats")
	if err == nil {
		var stats storage.InteractionStats
		if decodeJSON(resp, &stats) == nil {
			printStatus("Interactions", "%d (%d escalated, %d helpful, %d not helpful)",
				stats.Total, stats.Escalated, stats.Helpful, stats.NotHelpful)
		}
	}

	resp, err = c.get(ctx, "/policies?limit=100")
	if err == nil {
		var docs []json.RawMessage
		if decodeJSON(resp, &docs) == nil {
			printStatus("Policy docs", "%s", countLabel(len(docs), 100))
		}
	}
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
