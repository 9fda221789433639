package session

import (
	"context"
	"errors"

	"github.com/yangwenmai/storyteller/internal/model"
)

// maybeTriggerLocked starts the epoch's single generation once every item is
// COMPLETE. The guard flips before the goroutine starts, so repeated
// evaluations of a ready batch fire at most once.
func (s *Session) maybeTriggerLocked() {
	if s.closed || len(s.items) == 0 || s.generating || s.epoch.triggered {
		return
	}
	for _, it := range s.items {
		if it.Stage != model.StageComplete {
			return
		}
	}

	s.epoch.triggered = true
	s.generating = true
	epochID := s.epoch.id

	images := make([]model.ImagePayload, 0, len(s.items))
	var payloadErr error
	for _, it := range s.items {
		p, err := it.Payload()
		if err != nil {
			payloadErr = errors.Join(payloadErr, err)
			continue
		}
		images = append(images, p)
	}

	s.logger.Info("generation triggered", "epoch", epochID, "images", len(images))
	s.notifyLocked()

	s.wg.Add(1)
	go s.generate(epochID, images, payloadErr)
}

func (s *Session) generate(epochID uint64, images []model.ImagePayload, payloadErr error) {
	defer s.wg.Done()

	var (
		art model.Artifact
		err = payloadErr
	)
	if err == nil {
		art, err = s.gen.GenerateStory(s.ctx, images)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generating = false

	if err != nil {
		s.logger.Error("generation failed, using fallback artifact", "epoch", epochID, "error", err)
		info := model.NewErrorInfo("generate", err, !errors.Is(err, context.Canceled))
		s.lastErr = &info
		art = model.FallbackArtifact()
	}

	switch {
	case s.closed:
	case epochID != s.epoch.id && s.stale == StaleDiscard:
		s.logger.Info("discarding stale generation", "epoch", epochID, "current_epoch", s.epoch.id)
	default:
		if epochID != s.epoch.id {
			s.logger.Warn("applying stale generation", "epoch", epochID, "current_epoch", s.epoch.id)
		}
		if err == nil && epochID == s.epoch.id {
			s.lastErr = nil
		}
		s.artifact = &art
	}

	s.notifyLocked()
	s.maybeTriggerLocked()
}
