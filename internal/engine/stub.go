package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yangwenmai/storyteller/internal/model"
)

// StubModelClient returns canned responses (for development/testing).
type StubModelClient struct{}

func (m *StubModelClient) Complete(_ context.Context, prompt string, images []model.ImagePayload) (string, error) {
	if strings.Contains(prompt, storyMarker) {
		result := storyResult{
			Title: "A Day to Remember",
			Story: fmt.Sprintf("We spent the whole afternoon outside and took %d photos we keep coming back to. "+
				"The light was soft, everyone was laughing, and nobody wanted to go home.", len(images)),
			Tags: model.Tags{
				Location:   []string{"The Old Harbour"},
				People:     []string{"the family"},
				Activities: []string{"walking", "sharing lunch"},
			},
		}
		b, _ := json.Marshal(result)
		return string(b), nil
	}

	if strings.Contains(prompt, refineMarker) {
		_, story, _ := strings.Cut(prompt, "Story:\n")
		_, instruction, _ := strings.Cut(prompt, `Instruction: "`)
		instruction, _, _ = strings.Cut(instruction, `"`)
		b, _ := json.Marshal(refineResult{Story: strings.TrimSpace(story) + " [" + instruction + "]"})
		return string(b), nil
	}

	return "{}", nil
}
