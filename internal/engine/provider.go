package engine

import (
	"github.com/yangwenmai/storyteller/internal/config"
)

// NewModelClient builds the ModelClient selected by cfg. It returns the stub
// client when the selected provider has no API key.
func NewModelClient(cfg config.Config) (ModelClient, string) {
	if cfg.UseStubs() {
		return &StubModelClient{}, "stub"
	}
	switch cfg.LLMProvider {
	case "claude":
		return NewClaudeClient(cfg.AnthropicKey,
			WithClaudeModel(cfg.AnthropicModel),
			WithClaudeTimeout(cfg.HTTPTimeout),
		), "claude"
	case "gemini":
		return NewGeminiClient(cfg.GeminiKey,
			WithGeminiModel(cfg.GeminiModel),
			WithGeminiTimeout(cfg.HTTPTimeout),
		), "gemini"
	case "ollama":
		return NewOllamaClient(cfg.OllamaURL,
			WithOllamaModel(cfg.OllamaModel),
			WithOllamaTimeout(cfg.HTTPTimeout),
		), "ollama"
	default:
		return NewOpenAIClient(cfg.OpenAIKey,
			WithModel(cfg.OpenAIModel),
			WithBaseURL(cfg.OpenAIBaseURL),
			WithTimeout(cfg.HTTPTimeout),
		), "openai"
	}
}
