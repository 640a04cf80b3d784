package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "QGENIE_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "QGENIE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "ollama.base_url", typ: kString, env: "QGENIE_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.chat_model", typ: kString, env: "QGENIE_OLLAMA_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.ChatModel },
	},
	{
		key: "ollama.embed_model", typ: kString, env: "QGENIE_OLLAMA_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.EmbedModel },
	},
	{
		key: "storage.data_dir", typ: kString, env: "QGENIE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "generation.base_url", typ: kString, env: "QGENIE_GENERATION_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Generation.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.BaseURL },
	},
	{
		key: "generation.model", typ: kString, env: "QGENIE_GENERATION_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Generation.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Model },
	},
	{
		key: "generation.api_key", typ: kString, env: "QGENIE_GENERATION_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Generation.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.APIKey },
	},
	{
		key: "generation.temperature", typ: kFloat, env: "QGENIE_GENERATION_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Generation.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Generation.Temperature },
	},
	{
		key: "generation.requests_per_second", typ: kFloat, env: "QGENIE_GENERATION_REQUESTS_PER_SECOND",
		apply:   func(cfg *Config, v any) { cfg.Generation.RequestsPerSecond = v.(float64) },
		extract: func(cfg Config) any { return cfg.Generation.RequestsPerSecond },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "QGENIE_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.threshold_multiplier", typ: kFloat, env: "QGENIE_RETRIEVAL_THRESHOLD_MULTIPLIER",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.ThresholdMultiplier = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.ThresholdMultiplier },
	},
	{
		key: "chunking.size", typ: kInt, env: "QGENIE_CHUNKING_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Chunking.Size = v.(int) },
		extract: func(cfg Config) any { return cfg.Chunking.Size },
	},
	{
		key: "chunking.overlap", typ: kInt, env: "QGENIE_CHUNKING_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Chunking.Overlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Chunking.Overlap },
	},
	{
		key: "sentiment.confidence_floor", typ: kFloat, env: "QGENIE_SENTIMENT_CONFIDENCE_FLOOR",
		apply:   func(cfg *Config, v any) { cfg.Sentiment.ConfidenceFloor = v.(float64) },
		extract: func(cfg Config) any { return cfg.Sentiment.ConfidenceFloor },
	},
	{
		key: "escalation.low_confidence", typ: kFloat, env: "QGENIE_ESCALATION_LOW_CONFIDENCE",
		apply:   func(cfg *Config, v any) { cfg.Escalation.LowConfidence = v.(float64) },
		extract: func(cfg Config) any { return cfg.Escalation.LowConfidence },
	},
	{
		key: "log.level", typ: kString, env: "QGENIE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "policies.dir", typ: kString, env: "QGENIE_POLICIES_DIR",
		apply:   func(cfg *Config, v any) { cfg.Policies.Dir = v.(string) },
		extract: func(cfg Config) any { return cfg.Policies.Dir },
	},
	{
		key: "policies.rules_file", typ: kString, env: "QGENIE_POLICIES_RULES_FILE",
		apply:   func(cfg *Config, v any) { cfg.Policies.RulesFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Policies.RulesFile },
	},
	{
		key: "responses.file", typ: kString, env: "QGENIE_RESPONSES_FILE",
		apply:   func(cfg *Config, v any) { cfg.Responses.File = v.(string) },
		extract: func(cfg Config) any { return cfg.Responses.File },
	},
	{
		key: "api.token", typ: kString, env: "QGENIE_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kFloat:
			v, ok, err := b.GetFloat(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				slog.Warn("could not parse integer from env var, using default", "env", s.env, "value", raw, "error", err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				slog.Warn("could not parse float from env var, using default", "env", s.env, "value", raw, "error", err)
			}
		}
	}
}

// applySecrets fills secret keys the environment left empty from the
// secrets store.
func applySecrets(cfg *Config, secrets secretStore) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		v, err := secrets.Get(s.key)
		if err != nil || v == "" {
			continue
		}
		s.apply(cfg, v)
	}
}
