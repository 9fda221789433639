package session

import (
	"context"
	"fmt"

	"github.com/yangwenmai/storyteller/internal/ingest"
	"github.com/yangwenmai/storyteller/internal/model"
)

// AddPhotos ingests sources and appends them to the batch as one cohort.
// A conversion failure leaves the batch untouched. Adding photos discards the
// current artifact and starts a new epoch.
func (s *Session) AddPhotos(ctx context.Context, sources []ingest.Source) ([]model.Item, error) {
	items, err := s.ingestor.Ingest(ctx, sources)
	if err != nil {
		return nil, &StepError{Step: "ingest", Err: err}
	}
	if err := s.AddItems(items); err != nil {
		return nil, err
	}
	return items, nil
}

// AddItems appends already materialized items as one cohort. Their stage and
// header flag are reset. Item IDs must be unique across the batch; a
// duplicate rejects the whole call with ErrDuplicateItem.
func (s *Session) AddItems(items []model.Item) error {
	if len(items) == 0 {
		return &StepError{Step: "ingest", Err: ingest.ErrNoSources}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		_, inBatch := s.cohortOf[it.ID]
		_, inCall := seen[it.ID]
		if inBatch || inCall {
			return fmt.Errorf("%w: %s", ErrDuplicateItem, it.ID)
		}
		seen[it.ID] = struct{}{}
	}

	s.cohort++
	cohort := s.cohort
	for _, it := range items {
		it.Stage = model.StageUploading
		it.IsHeader = false
		s.cohortOf[it.ID] = cohort
		s.items = append(s.items, it)
	}
	s.ensureHeaderLocked()

	s.artifact = nil
	s.drafts = make(map[model.TagCategory]string)
	s.epoch = epoch{id: s.epoch.id + 1}

	s.logger.Info("photos added", "count", len(items), "batch_size", len(s.items), "epoch", s.epoch.id)
	s.scheduleAdvanceLocked(cohort, model.StageUploading)
	s.notifyLocked()
	s.maybeTriggerLocked()
	return nil
}

// RemovePhoto removes the item with id. It reports whether an item was removed.
func (s *Session) RemovePhoto(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(id)
	if idx < 0 {
		return false
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	delete(s.cohortOf, id)
	s.ensureHeaderLocked()

	s.logger.Info("photo removed", "item_id", id, "batch_size", len(s.items))
	s.notifyLocked()
	s.maybeTriggerLocked()
	return true
}

// SetHeader makes id the header item. An unknown id clears the selection and
// the first item becomes the header again. It reports whether id was found.
func (s *Session) SetHeader(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i := range s.items {
		s.items[i].IsHeader = s.items[i].ID == id
		found = found || s.items[i].IsHeader
	}
	s.ensureHeaderLocked()
	s.notifyLocked()
	return found
}

// MoveHeader makes id the header only if it is in the batch. Unlike
// SetHeader, an unknown id leaves the current header in place.
func (s *Session) MoveHeader(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexLocked(id) < 0 {
		return false
	}
	for i := range s.items {
		s.items[i].IsHeader = s.items[i].ID == id
	}
	s.notifyLocked()
	return true
}

// ensureHeaderLocked keeps exactly one header in a non-empty batch, falling
// back to the first item.
func (s *Session) ensureHeaderLocked() {
	header := -1
	for i := range s.items {
		if !s.items[i].IsHeader {
			continue
		}
		if header >= 0 {
			s.items[i].IsHeader = false
			continue
		}
		header = i
	}
	if header < 0 && len(s.items) > 0 {
		s.items[0].IsHeader = true
	}
}

func (s *Session) indexLocked(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}
