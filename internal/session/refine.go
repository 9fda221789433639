package session

import (
	"context"
	"errors"
	"strings"

	"github.com/yangwenmai/storyteller/internal/model"
)

// Refine rewrites the artifact story following instruction. Only the story
// changes; title and tags are untouched.
//
// A call is rejected without side effects when there is no artifact, the
// instruction is blank, or another refinement is in flight. A failed call
// leaves the story as it was and returns a *StepError.
func (s *Session) Refine(ctx context.Context, instruction string) error {
	instruction = strings.TrimSpace(instruction)

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.refining:
		s.mu.Unlock()
		return ErrRefinementInFlight
	case s.artifact == nil:
		s.mu.Unlock()
		return ErrNoArtifact
	case instruction == "":
		s.mu.Unlock()
		return ErrEmptyInstruction
	}
	s.refining = true
	story := s.artifact.Story
	epochID := s.epoch.id
	s.notifyLocked()
	s.mu.Unlock()

	// Close cancels the call as well as the caller.
	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	revised, err := s.ref.RefineStory(callCtx, story, instruction)
	stop()
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.refining = false
	defer s.notifyLocked()

	if err != nil {
		s.logger.Error("refinement failed", "epoch", epochID, "error", err)
		info := model.NewErrorInfo("refine", err, !errors.Is(err, context.Canceled))
		s.lastErr = &info
		return &StepError{Step: "refine", Err: err}
	}
	if epochID != s.epoch.id && s.stale == StaleDiscard {
		s.logger.Info("discarding stale refinement", "epoch", epochID, "current_epoch", s.epoch.id)
		return &StepError{Step: "refine", Err: ErrStaleResult}
	}
	if s.artifact == nil {
		return &StepError{Step: "refine", Err: ErrNoArtifact}
	}
	s.artifact.Story = revised
	s.logger.Info("story refined", "epoch", epochID)
	return nil
}
