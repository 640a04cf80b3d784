package config

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Ollama     OllamaConfig
	Storage    StorageConfig
	Generation GenerationConfig
	Retrieval  RetrievalConfig
	Chunking   ChunkingConfig
	Sentiment  SentimentConfig
	Escalation EscalationConfig
	Log        LogConfig
	Policies   PoliciesConfig
	Responses  ResponsesConfig
	API        APIConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type OllamaConfig struct {
	BaseURL    string
	ChatModel  string
	EmbedModel string
}

type StorageConfig struct {
	DataDir string
}

// GenerationConfig points at an OpenAI-compatible chat completions API used
// to draft replies. An empty APIKey disables generation.
type GenerationConfig struct {
	BaseURL           string
	Model             string
	APIKey            string
	Temperature       float64
	RequestsPerSecond float64
}

type RetrievalConfig struct {
	TopK                int
	ThresholdMultiplier float64
}

type ChunkingConfig struct {
	Size    int
	Overlap int
}

type SentimentConfig struct {
	ConfidenceFloor float64
}

type EscalationConfig struct {
	LowConfidence float64
}

type LogConfig struct {
	Level string
}

type PoliciesConfig struct {
	Dir       string
	RulesFile string
}

type ResponsesConfig struct {
	File string
}

type APIConfig struct {
	Token string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 4000,
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			ChatModel:  "phi3.5",
			EmbedModel: "nomic-embed-text",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Generation: GenerationConfig{
			BaseURL:           "https://api.groq.com/openai/v1",
			Model:             "llama-3.3-70b-versatile",
			Temperature:       0.7,
			RequestsPerSecond: 1,
		},
		Retrieval: RetrievalConfig{
			TopK:                3,
			ThresholdMultiplier: 0.8,
		},
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Sentiment:  SentimentConfig{ConfidenceFloor: 0.65},
		Escalation: EscalationConfig{LowConfidence: 0.5},
		Log:        LogConfig{Level: "info"},
	}
}

// Load reads configuration from the JSON file at
// $XDG_CONFIG_HOME/qgenie/config.json, then applies QGENIE_* environment
// overrides. A .env file in the working directory is loaded first; it never
// replaces variables that are already set. Secrets are read from the
// environment or, failing that, from the secrets file in the data directory.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("could not load .env file", "error", err)
	}
	return loadWith(newFileBackend(configFilePath()), newFileSecrets(secretsFilePath()))
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secrets)

	if cfg.Generation.APIKey == "" {
		slog.Info("no generation API key configured; replies will use canned responses",
			"env", "QGENIE_GENERATION_API_KEY")
	}

	return cfg, nil
}

// GetAPIToken returns the bearer token that guards the HTTP API. A token is
// generated and saved to the secrets file the first time it is requested.
func GetAPIToken() (string, error) {
	return apiToken(newFileSecrets(secretsFilePath()))
}

func xdgDir(env string, fallback ...string) string {
	dir := os.Getenv(env)
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dir = filepath.Join(append([]string{home}, fallback...)...)
	}
	return dir
}

func defaultDataDir() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", ".local", "share"), "qgenie")
}

func configFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "qgenie", "config.json")
}
