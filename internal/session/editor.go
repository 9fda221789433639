package session

import (
	"strings"

	"github.com/yangwenmai/storyteller/internal/model"
)

// SetTitle replaces the artifact title. It is a no-op without an artifact.
func (s *Session) SetTitle(title string) bool {
	return s.editArtifact(func(a *model.Artifact) bool {
		a.Title = title
		return true
	})
}

// SetStory replaces the artifact story. It is a no-op without an artifact.
func (s *Session) SetStory(story string) bool {
	return s.editArtifact(func(a *model.Artifact) bool {
		a.Story = story
		return true
	})
}

// SetTagDraft stores pending tag input for a category.
func (s *Session) SetTagDraft(c model.TagCategory, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[c] = text
	s.notifyLocked()
}

// TagDraft returns the pending tag input for a category.
func (s *Session) TagDraft(c model.TagCategory) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drafts[c]
}

// AddTag appends the trimmed value to a category and clears its draft.
// Duplicates are kept. It is a no-op without an artifact or for blank input.
func (s *Session) AddTag(c model.TagCategory, raw string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addTagLocked(c, raw)
}

// AddDraftTag adds the category's pending draft as a tag.
func (s *Session) AddDraftTag(c model.TagCategory) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addTagLocked(c, s.drafts[c])
}

func (s *Session) addTagLocked(c model.TagCategory, raw string) bool {
	value := strings.TrimSpace(raw)
	if s.artifact == nil || value == "" {
		return false
	}
	if _, err := model.ParseTagCategory(string(c)); err != nil {
		return false
	}
	s.artifact.Tags.Set(c, append(s.artifact.Tags.Get(c), value))
	delete(s.drafts, c)
	s.notifyLocked()
	return true
}

// RemoveTag removes the first occurrence of value from a category.
func (s *Session) RemoveTag(c model.TagCategory, value string) bool {
	return s.editArtifact(func(a *model.Artifact) bool {
		tags := a.Tags.Get(c)
		for i, v := range tags {
			if v == value {
				out := make([]string, 0, len(tags)-1)
				out = append(out, tags[:i]...)
				a.Tags.Set(c, append(out, tags[i+1:]...))
				return true
			}
		}
		return false
	})
}

func (s *Session) editArtifact(fn func(*model.Artifact) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifact == nil || !fn(s.artifact) {
		return false
	}
	s.notifyLocked()
	return true
}
