package session

import (
	"time"

	"github.com/yangwenmai/storyteller/internal/model"
)

// Each ingestion cohort runs its own timer chain: one timer per stage group,
// advancing every item of the cohort still in that stage at once.

func (s *Session) delayFor(stage model.Stage) time.Duration {
	if stage == model.StageUploading {
		return s.uploadDelay
	}
	return s.analyzeDelay
}

// scheduleAdvanceLocked arms the timer that moves the cohort out of stage.
func (s *Session) scheduleAdvanceLocked(cohort uint64, stage model.Stage) {
	if stage == model.StageComplete {
		return
	}
	s.schedule(s.delayFor(stage), func() { s.advance(cohort, stage) })
}

// advance moves the cohort's items in stage to the next stage, then
// re-evaluates the generation trigger.
func (s *Session) advance(cohort uint64, from model.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	to := from.Next()
	moved := 0
	for i := range s.items {
		it := &s.items[i]
		if s.cohortOf[it.ID] != cohort || it.Stage != from {
			continue
		}
		it.Stage = to
		moved++
	}
	if moved == 0 {
		return
	}

	s.logger.Debug("stage advanced", "cohort", cohort, "stage", to, "items", moved)
	s.scheduleAdvanceLocked(cohort, to)
	s.notifyLocked()
	s.maybeTriggerLocked()
}
