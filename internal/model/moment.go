package model

import "time"

// MomentDraft is the immutable record handed to the persistence collaborator.
type MomentDraft struct {
	ImagePreview    string   `json:"image_preview"`
	ImagePreviews   []string `json:"image_previews"`
	Title           string   `json:"title"`
	Story           string   `json:"story"`
	PrimaryLocation string   `json:"primary_location,omitempty"`
	People          []string `json:"people"`
	Activities      []string `json:"activities"`
	PhotoCount      int      `json:"photo_count"`
}

// Moment is a committed MomentDraft as stored.
type Moment struct {
	MomentDraft
	ID        string `json:"id"`
	Tier      Tier   `json:"tier,omitempty"`
	Pinned    bool   `json:"pinned"`
	CreatedAt string `json:"created_at"`
}

// NewMoment wraps a draft with a fresh identity and unpinned state.
func NewMoment(id string, tier Tier, draft MomentDraft) Moment {
	return Moment{
		MomentDraft: draft,
		ID:          id,
		Tier:        tier,
		Pinned:      false,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
	}
}

// MomentFilter holds query parameters for listing moments.
type MomentFilter struct {
	Location string
	Person   string
	Pinned   *bool
	Limit    uint64
}
