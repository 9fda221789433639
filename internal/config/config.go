// Package config provides centralized configuration for the storyteller server and CLI.
// Values come from defaults, an optional TOML or YAML file, then environment
// variables, in increasing order of precedence.
package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConfigFileEnv names the environment variable holding the config file path.
const ConfigFileEnv = "STORYTELLER_CONFIG"

// Stale result policies.
const (
	StaleApply   = "apply"
	StaleDiscard = "discard"
)

// Config holds all configuration values.
type Config struct {
	// Port is the HTTP server listen port.
	Port string

	// DBPath is the path to the SQLite database file.
	DBPath string

	// LLMProvider selects which LLM backend to use: "openai", "claude", "gemini", "ollama".
	LLMProvider string

	// OpenAIKey is the API key for the OpenAI service.
	OpenAIKey string

	// OpenAIBaseURL overrides the OpenAI-compatible endpoint.
	OpenAIBaseURL string

	// OpenAIModel is the model identifier for OpenAI completions.
	OpenAIModel string

	// AnthropicKey is the API key for the Anthropic Claude service.
	AnthropicKey string

	// AnthropicModel is the model identifier for Claude completions.
	AnthropicModel string

	// GeminiKey is the API key for the Google Gemini service.
	GeminiKey string

	// GeminiModel is the model identifier for Gemini completions.
	GeminiModel string

	// OllamaURL is the base URL for the local Ollama server.
	OllamaURL string

	// OllamaModel is the model identifier for Ollama completions.
	OllamaModel string

	// HTTPTimeout is the timeout for outgoing LLM requests.
	HTTPTimeout time.Duration

	// UploadDelay is how long a new photo stays in the UPLOADING stage.
	UploadDelay time.Duration

	// AnalyzeDelay is how long a photo stays in the ANALYZING stage.
	AnalyzeDelay time.Duration

	// MaxPhotoBytes limits the size of one photo.
	MaxPhotoBytes int64

	// MaxUploadBytes limits the size of one multipart upload request.
	MaxUploadBytes int64

	// DefaultTier is used when a commit does not name a tier.
	DefaultTier string

	// SessionTTL is how long an untouched session is kept in memory.
	SessionTTL time.Duration

	// WorkerInterval is the polling interval of the idle-session reaper.
	WorkerInterval time.Duration

	// StaleResults decides what happens to results that arrive after their
	// batch was reset: "apply" or "discard".
	StaleResults string

	// CORSOrigin is the allowed CORS origin. Defaults to "*".
	CORSOrigin string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// LogFormat is "text" or "json".
	LogFormat string
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:           "8080",
		DBPath:         "storyteller.db",
		LLMProvider:    "openai",
		OpenAIBaseURL:  "https://api.openai.com/v1",
		OpenAIModel:    "gpt-4o-mini",
		AnthropicModel: "claude-sonnet-4-20250514",
		GeminiModel:    "gemini-2.0-flash",
		OllamaURL:      "http://localhost:11434",
		OllamaModel:    "llava",
		HTTPTimeout:    60 * time.Second,
		UploadDelay:    1000 * time.Millisecond,
		AnalyzeDelay:   2000 * time.Millisecond,
		MaxPhotoBytes:  25 << 20,
		MaxUploadBytes: 200 << 20,
		DefaultTier:    "free",
		SessionTTL:     2 * time.Hour,
		WorkerInterval: time.Minute,
		StaleResults:   StaleApply,
		CORSOrigin:     "*",
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Load reads configuration from .env.local, the optional config file named by
// STORYTELLER_CONFIG, and environment variables. A broken config file is
// reported as an error; a missing .env.local is not.
func Load() (Config, error) {
	return LoadFile(os.Getenv(ConfigFileEnv))
}

// LoadFile is Load with an explicit config file path. An empty path skips the file.
func LoadFile(path string) (Config, error) {
	loadEnvFile(".env.local")

	cfg := Default()
	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}
	if path != "" {
		fc, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := fc.apply(&cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() {
	c.Port = envOr("PORT", c.Port)
	c.DBPath = envOr("DB_PATH", c.DBPath)
	c.LLMProvider = envOr("LLM_PROVIDER", c.LLMProvider)
	c.OpenAIKey = envOr("OPENAI_API_KEY", c.OpenAIKey)
	c.OpenAIBaseURL = envOr("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.OpenAIModel = envOr("OPENAI_MODEL", c.OpenAIModel)
	c.AnthropicKey = envOr("ANTHROPIC_API_KEY", c.AnthropicKey)
	c.AnthropicModel = envOr("ANTHROPIC_MODEL", c.AnthropicModel)
	c.GeminiKey = envOr("GEMINI_API_KEY", c.GeminiKey)
	c.GeminiModel = envOr("GEMINI_MODEL", c.GeminiModel)
	c.OllamaURL = envOr("OLLAMA_URL", c.OllamaURL)
	c.OllamaModel = envOr("OLLAMA_MODEL", c.OllamaModel)
	c.HTTPTimeout = envDuration("HTTP_TIMEOUT", c.HTTPTimeout)
	c.UploadDelay = envDuration("UPLOAD_DELAY", c.UploadDelay)
	c.AnalyzeDelay = envDuration("ANALYZE_DELAY", c.AnalyzeDelay)
	c.MaxPhotoBytes = int64(envInt("MAX_PHOTO_BYTES", int(c.MaxPhotoBytes)))
	c.MaxUploadBytes = int64(envInt("MAX_UPLOAD_BYTES", int(c.MaxUploadBytes)))
	c.DefaultTier = envOr("DEFAULT_TIER", c.DefaultTier)
	c.SessionTTL = envDuration("SESSION_TTL", c.SessionTTL)
	c.WorkerInterval = envDuration("WORKER_INTERVAL", c.WorkerInterval)
	c.StaleResults = envOr("STALE_RESULTS", c.StaleResults)
	c.CORSOrigin = envOr("CORS_ORIGIN", c.CORSOrigin)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOr("LOG_FORMAT", c.LogFormat)
}

// UseStubs returns true when no LLM API key is configured for the selected provider.
func (c Config) UseStubs() bool {
	switch c.LLMProvider {
	case "claude":
		return c.AnthropicKey == ""
	case "gemini":
		return c.GeminiKey == ""
	case "ollama":
		return false // Ollama runs locally, no key needed
	default:
		return c.OpenAIKey == ""
	}
}

// DiscardStaleResults reports whether late results from a reset batch are dropped.
func (c Config) DiscardStaleResults() bool {
	return strings.EqualFold(c.StaleResults, StaleDiscard)
}

// loadEnvFile sets KEY=VALUE pairs from path as environment variables unless
// they are already set.
func loadEnvFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		v = strings.Trim(strings.TrimSpace(v), `"'`)
		if _, set := os.LookupEnv(k); !set {
			os.Setenv(k, v)
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
