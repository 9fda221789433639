package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for file decoding. Durations are strings such as
// "1500ms"; unset fields leave the defaults alone.
type fileConfig struct {
	Server struct {
		Port       string `toml:"port" yaml:"port"`
		DBPath     string `toml:"db_path" yaml:"db_path"`
		CORSOrigin string `toml:"cors_origin" yaml:"cors_origin"`
	} `toml:"server" yaml:"server"`

	LLM struct {
		Provider       string `toml:"provider" yaml:"provider"`
		Timeout        string `toml:"timeout" yaml:"timeout"`
		OpenAIKey      string `toml:"openai_api_key" yaml:"openai_api_key"`
		OpenAIBaseURL  string `toml:"openai_base_url" yaml:"openai_base_url"`
		OpenAIModel    string `toml:"openai_model" yaml:"openai_model"`
		AnthropicKey   string `toml:"anthropic_api_key" yaml:"anthropic_api_key"`
		AnthropicModel string `toml:"anthropic_model" yaml:"anthropic_model"`
		GeminiKey      string `toml:"gemini_api_key" yaml:"gemini_api_key"`
		GeminiModel    string `toml:"gemini_model" yaml:"gemini_model"`
		OllamaURL      string `toml:"ollama_url" yaml:"ollama_url"`
		OllamaModel    string `toml:"ollama_model" yaml:"ollama_model"`
	} `toml:"llm" yaml:"llm"`

	Session struct {
		UploadDelay    string `toml:"upload_delay" yaml:"upload_delay"`
		AnalyzeDelay   string `toml:"analyze_delay" yaml:"analyze_delay"`
		MaxPhotoBytes  int64  `toml:"max_photo_bytes" yaml:"max_photo_bytes"`
		MaxUploadBytes int64  `toml:"max_upload_bytes" yaml:"max_upload_bytes"`
		DefaultTier    string `toml:"default_tier" yaml:"default_tier"`
		TTL            string `toml:"ttl" yaml:"ttl"`
		ReapInterval   string `toml:"reap_interval" yaml:"reap_interval"`
		StaleResults   string `toml:"stale_results" yaml:"stale_results"`
	} `toml:"session" yaml:"session"`

	Logging struct {
		Level  string `toml:"level" yaml:"level"`
		Format string `toml:"format" yaml:"format"`
	} `toml:"logging" yaml:"logging"`
}

func readFile(path string) (*fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&fc); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("config %s: unsupported extension %q (want .toml, .yaml or .yml)", path, ext)
	}
	return &fc, nil
}

func (fc *fileConfig) apply(c *Config) error {
	setString(&c.Port, fc.Server.Port)
	setString(&c.DBPath, fc.Server.DBPath)
	setString(&c.CORSOrigin, fc.Server.CORSOrigin)

	setString(&c.LLMProvider, fc.LLM.Provider)
	setString(&c.OpenAIKey, fc.LLM.OpenAIKey)
	setString(&c.OpenAIBaseURL, fc.LLM.OpenAIBaseURL)
	setString(&c.OpenAIModel, fc.LLM.OpenAIModel)
	setString(&c.AnthropicKey, fc.LLM.AnthropicKey)
	setString(&c.AnthropicModel, fc.LLM.AnthropicModel)
	setString(&c.GeminiKey, fc.LLM.GeminiKey)
	setString(&c.GeminiModel, fc.LLM.GeminiModel)
	setString(&c.OllamaURL, fc.LLM.OllamaURL)
	setString(&c.OllamaModel, fc.LLM.OllamaModel)

	setString(&c.DefaultTier, fc.Session.DefaultTier)
	setString(&c.StaleResults, fc.Session.StaleResults)
	if fc.Session.MaxPhotoBytes > 0 {
		c.MaxPhotoBytes = fc.Session.MaxPhotoBytes
	}
	if fc.Session.MaxUploadBytes > 0 {
		c.MaxUploadBytes = fc.Session.MaxUploadBytes
	}

	setString(&c.LogLevel, fc.Logging.Level)
	setString(&c.LogFormat, fc.Logging.Format)

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"llm.timeout", fc.LLM.Timeout, &c.HTTPTimeout},
		{"session.upload_delay", fc.Session.UploadDelay, &c.UploadDelay},
		{"session.analyze_delay", fc.Session.AnalyzeDelay, &c.AnalyzeDelay},
		{"session.ttl", fc.Session.TTL, &c.SessionTTL},
		{"session.reap_interval", fc.Session.ReapInterval, &c.WorkerInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config %s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
