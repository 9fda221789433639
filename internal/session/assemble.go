package session

import (
	"context"

	"github.com/yangwenmai/storyteller/internal/model"
)

// Assemble builds the moment draft for tier. A batch over the tier's ceiling
// is rejected with *CeilingError; it is never truncated.
func (s *Session) Assemble(tier model.Tier) (model.MomentDraft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assembleLocked(tier)
}

func (s *Session) assembleLocked(tier model.Tier) (model.MomentDraft, error) {
	if s.artifact == nil {
		return model.MomentDraft{}, ErrNoArtifact
	}
	if len(s.items) == 0 {
		return model.MomentDraft{}, ErrNoPhotos
	}
	if ceiling := model.CeilingFor(tier); len(s.items) > ceiling {
		return model.MomentDraft{}, &CeilingError{Tier: tier, Count: len(s.items), Ceiling: ceiling}
	}

	header := s.items[0]
	for _, it := range s.items {
		if it.IsHeader {
			header = it
			break
		}
	}
	previews := make([]string, len(s.items))
	for i, it := range s.items {
		previews[i] = it.Preview
	}

	art := s.artifact.Clone()
	draft := model.MomentDraft{
		ImagePreview:  header.Preview,
		ImagePreviews: previews,
		Title:         art.Title,
		Story:         art.Story,
		People:        art.Tags.People,
		Activities:    art.Tags.Activities,
		PhotoCount:    len(s.items),
	}
	if len(art.Tags.Location) > 0 {
		draft.PrimaryLocation = art.Tags.Location[0]
	}
	return draft, nil
}

// Commit assembles the moment and hands it to c. On success the batch and
// artifact are discarded and the assigned moment ID is returned.
func (s *Session) Commit(ctx context.Context, tier model.Tier, c Committer) (string, error) {
	s.mu.Lock()
	draft, err := s.assembleLocked(tier)
	epochID := s.epoch.id
	s.mu.Unlock()
	if err != nil {
		return "", err
	}

	id, err := c.CommitMoment(ctx, tier, draft)
	if err != nil {
		return "", &StepError{Step: "commit", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if epochID == s.epoch.id {
		s.resetLocked()
	} else {
		s.logger.Warn("batch changed during commit, keeping it", "moment_id", id)
	}
	s.logger.Info("moment committed", "moment_id", id, "tier", tier, "photos", draft.PhotoCount)
	return id, nil
}
