package engine

import (
	"context"

	"github.com/yangwenmai/storyteller/internal/model"
)

// ModelClient abstracts LLM calls. Implementations can wrap OpenAI, local models, etc.
// Images are optional; text-only prompts pass nil.
type ModelClient interface {
	Complete(ctx context.Context, prompt string, images []model.ImagePayload) (string, error)
}

// storyResult is the JSON shape the model is asked to produce for a new story.
type storyResult struct {
	Title string     `json:"title"`
	Story string     `json:"story"`
	Tags  model.Tags `json:"tags"`
}

// refineResult is the JSON shape of a rewritten story.
type refineResult struct {
	Story string `json:"story"`
}
