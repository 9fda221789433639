package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yangwenmai/storyteller/internal/model"
)

var (
	// ErrNoImages is returned when a story is requested for zero photos.
	ErrNoImages = errors.New("no images to describe")
	// ErrMalformedResponse is returned when the model reply lacks required fields.
	ErrMalformedResponse = errors.New("malformed model response")
)

// Storyteller turns photos into stories and rewrites stories on request.
type Storyteller struct {
	model  ModelClient
	logger *slog.Logger
}

// NewStoryteller creates a Storyteller backed by mc.
func NewStoryteller(mc ModelClient, logger *slog.Logger) *Storyteller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Storyteller{model: mc, logger: logger}
}

// GenerateStory asks the model for a title, story and tags describing images.
func (s *Storyteller) GenerateStory(ctx context.Context, images []model.ImagePayload) (model.Artifact, error) {
	if len(images) == 0 {
		return model.Artifact{}, ErrNoImages
	}

	raw, err := s.model.Complete(ctx, buildStoryPrompt(len(images)), images)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("generate story: %w", err)
	}

	var result storyResult
	if err := decodeModelJSON(raw, &result); err != nil {
		return model.Artifact{}, fmt.Errorf("generate story: %w: %v", ErrMalformedResponse, err)
	}
	result.Title = strings.TrimSpace(result.Title)
	result.Story = strings.TrimSpace(result.Story)
	if result.Title == "" && result.Story == "" {
		return model.Artifact{}, fmt.Errorf("generate story: %w: title and story are empty", ErrMalformedResponse)
	}

	artifact := model.Artifact{
		Title: result.Title,
		Story: result.Story,
		Tags: model.Tags{
			Location:   cleanTags(result.Tags.Location),
			People:     cleanTags(result.Tags.People),
			Activities: cleanTags(result.Tags.Activities),
		},
	}
	s.logger.Debug("story generated", "images", len(images), "title", artifact.Title)
	return artifact, nil
}

// RefineStory rewrites story following instruction and returns the new text.
func (s *Storyteller) RefineStory(ctx context.Context, story, instruction string) (string, error) {
	raw, err := s.model.Complete(ctx, buildRefinePrompt(story, instruction), nil)
	if err != nil {
		return "", fmt.Errorf("refine story: %w", err)
	}

	var result refineResult
	if err := decodeModelJSON(raw, &result); err != nil {
		return "", fmt.Errorf("refine story: %w: %v", ErrMalformedResponse, err)
	}
	revised := strings.TrimSpace(result.Story)
	if revised == "" {
		return "", fmt.Errorf("refine story: %w: story is empty", ErrMalformedResponse)
	}
	return revised, nil
}

// cleanTags trims values and drops blanks. Order and duplicates are kept.
func cleanTags(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
