package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate reports configuration values that cannot work.
func (c Config) Validate() error {
	var errs []error
	switch c.LLMProvider {
	case "openai", "claude", "gemini", "ollama":
	default:
		errs = append(errs, fmt.Errorf("llm provider: unsupported value %q", c.LLMProvider))
	}
	if c.UploadDelay <= 0 {
		errs = append(errs, errors.New("upload delay must be positive"))
	}
	if c.AnalyzeDelay <= 0 {
		errs = append(errs, errors.New("analyze delay must be positive"))
	}
	if c.MaxPhotoBytes <= 0 {
		errs = append(errs, errors.New("max photo bytes must be positive"))
	}
	if c.MaxUploadBytes < c.MaxPhotoBytes {
		errs = append(errs, errors.New("max upload bytes must be at least max photo bytes"))
	}
	if c.SessionTTL <= 0 || c.WorkerInterval <= 0 {
		errs = append(errs, errors.New("session ttl and reap interval must be positive"))
	}
	switch strings.ToLower(c.StaleResults) {
	case StaleApply, StaleDiscard:
	default:
		errs = append(errs, fmt.Errorf("stale results: unsupported value %q", c.StaleResults))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format: unsupported value %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
