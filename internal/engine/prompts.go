package engine

import (
	"fmt"
	"unicode/utf8"
)

// Markers let StubModelClient tell the prompt kinds apart.
const (
	storyMarker  = "You are a travel and family storyteller."
	refineMarker = "You are a careful story editor."
)

// maxStoryRunes bounds the story text sent back for refinement.
const maxStoryRunes = 12000

func buildStoryPrompt(photoCount int) string {
	return fmt.Sprintf(`%s Look at the %d attached photos, which belong to one moment, and write a short story about it.

Output ONLY valid JSON with this exact structure (no markdown, no explanation):
{"title": "short title", "story": "the story", "tags": {"location": ["place"], "people": ["person"], "activities": ["activity"]}}

Rules:
- title: at most 8 words
- story: 2 to 4 warm paragraphs in the first person plural, grounded in what the photos show
- location: the most specific place names you can infer, most important first; empty list if unknown
- people: names only if visible (signs, captions), otherwise roles like "grandma" or "the kids"
- activities: 1 to 5 short verb phrases
- Never invent details the photos do not support`, storyMarker, photoCount)
}

func buildRefinePrompt(story, instruction string) string {
	return fmt.Sprintf(`%s Rewrite the story below following the user's instruction.

Instruction: "%s"

Output ONLY valid JSON with this exact structure:
{"story": "the rewritten story"}

Rules:
- Keep every fact of the original story unless the instruction asks to change it
- Return the whole story, not a diff

Story:
%s`, refineMarker, instruction, truncateRunes(story, maxStoryRunes))
}

// truncateRunes truncates s to maxRunes runes (Unicode-safe).
func truncateRunes(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes]) + "\n... [truncated]"
}
