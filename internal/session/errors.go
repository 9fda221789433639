package session

import (
	"errors"
	"fmt"

	"github.com/yangwenmai/storyteller/internal/model"
)

var (
	// ErrNoArtifact is returned when an operation needs a generated artifact
	// and none exists yet.
	ErrNoArtifact = errors.New("no artifact yet")
	// ErrNoPhotos is returned when assembling a moment from an empty batch.
	ErrNoPhotos = errors.New("no photos in batch")
	// ErrEmptyInstruction is returned for a blank refinement instruction.
	ErrEmptyInstruction = errors.New("refinement instruction is empty")
	// ErrRefinementInFlight is returned when a refinement is already running.
	ErrRefinementInFlight = errors.New("refinement already in flight")
	// ErrStaleResult is returned when a refinement finished after its batch
	// was reset and the session discards stale results.
	ErrStaleResult = errors.New("result belongs to a reset batch")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrDuplicateItem is returned when an added item reuses an ID already
	// in the batch or repeated within the same call.
	ErrDuplicateItem = errors.New("duplicate item id")
)

// StepError wraps an error with the name of the session step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// CeilingError reports a batch that holds more photos than its tier allows.
// Assembly is blocked until photos are removed.
type CeilingError struct {
	Tier    model.Tier
	Count   int
	Ceiling int
}

func (e *CeilingError) Error() string {
	return fmt.Sprintf("tier %q allows %d photos, batch has %d", e.Tier, e.Ceiling, e.Count)
}
