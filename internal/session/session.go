// Package session holds the state of one moment being composed: the photo
// batch, its stage timers, the single-flight story generation, the editable
// artifact and the hand-off to persistence.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yangwenmai/storyteller/internal/ingest"
	"github.com/yangwenmai/storyteller/internal/model"
)

// Generator produces an artifact from the photos of a batch.
type Generator interface {
	GenerateStory(ctx context.Context, images []model.ImagePayload) (model.Artifact, error)
}

// Refiner rewrites a story following a free-form instruction.
type Refiner interface {
	RefineStory(ctx context.Context, story, instruction string) (string, error)
}

// Committer persists an assembled moment and returns its assigned ID.
type Committer interface {
	CommitMoment(ctx context.Context, tier model.Tier, draft model.MomentDraft) (string, error)
}

// Scheduler runs fn once after d. It must not block.
type Scheduler func(d time.Duration, fn func())

// StalePolicy decides what happens to a generation or refinement result that
// arrives after its batch was reset by new photos.
type StalePolicy int

const (
	// StaleApply writes late results into whatever artifact is current.
	StaleApply StalePolicy = iota
	// StaleDiscard drops late results.
	StaleDiscard
)

// Default stage delays.
const (
	DefaultUploadDelay  = 1000 * time.Millisecond
	DefaultAnalyzeDelay = 2000 * time.Millisecond
)

// epoch is the generation guard of one batch. A new epoch starts on every
// ingestion.
type epoch struct {
	id        uint64
	triggered bool
}

// Session is one moment being composed. All methods are safe for concurrent use.
type Session struct {
	id           string
	gen          Generator
	ref          Refiner
	ingestor     *ingest.Ingestor
	schedule     Scheduler
	uploadDelay  time.Duration
	analyzeDelay time.Duration
	stale        StalePolicy
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	items      []model.Item
	cohortOf   map[string]uint64
	cohort     uint64
	artifact   *model.Artifact
	drafts     map[model.TagCategory]string
	epoch      epoch
	generating bool
	refining   bool
	lastErr    *model.ErrorInfo
	changed    chan struct{}
	updatedAt  time.Time
	closed     bool
}

// Option configures a Session.
type Option func(*Session)

// WithID sets the session ID (default: a random UUID).
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithScheduler replaces time.AfterFunc for stage timers.
func WithScheduler(fn Scheduler) Option {
	return func(s *Session) {
		if fn != nil {
			s.schedule = fn
		}
	}
}

// WithDelays sets the UPLOADING and ANALYZING durations. Non-positive values
// keep the defaults.
func WithDelays(upload, analyze time.Duration) Option {
	return func(s *Session) {
		if upload > 0 {
			s.uploadDelay = upload
		}
		if analyze > 0 {
			s.analyzeDelay = analyze
		}
	}
}

// WithStaleResults sets the policy for results of reset batches.
func WithStaleResults(p StalePolicy) Option {
	return func(s *Session) { s.stale = p }
}

// WithIngestor sets the photo ingestor.
func WithIngestor(in *ingest.Ingestor) Option {
	return func(s *Session) {
		if in != nil {
			s.ingestor = in
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty session.
func New(gen Generator, ref Refiner, opts ...Option) *Session {
	s := &Session{
		id:           uuid.NewString(),
		gen:          gen,
		ref:          ref,
		schedule:     func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
		uploadDelay:  DefaultUploadDelay,
		analyzeDelay: DefaultAnalyzeDelay,
		stale:        StaleApply,
		logger:       slog.Default(),
		cohortOf:     make(map[string]uint64),
		drafts:       make(map[model.TagCategory]string),
		changed:      make(chan struct{}),
		updatedAt:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ingestor == nil {
		s.ingestor = ingest.New(ingest.WithLogger(s.logger))
	}
	s.logger = s.logger.With("session_id", s.id)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Snapshot is a point-in-time copy of a session's state.
type Snapshot struct {
	ID         string            `json:"id"`
	Epoch      uint64            `json:"epoch"`
	Items      []model.Item      `json:"items"`
	Artifact   *model.Artifact   `json:"artifact"`
	TagDrafts  map[string]string `json:"tag_drafts,omitempty"`
	Generating bool              `json:"generating"`
	Refining   bool              `json:"refining"`
	LastError  *model.ErrorInfo  `json:"last_error,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:         s.id,
		Epoch:      s.epoch.id,
		Items:      append([]model.Item(nil), s.items...),
		Generating: s.generating,
		Refining:   s.refining,
		UpdatedAt:  s.updatedAt,
	}
	if snap.Items == nil {
		snap.Items = []model.Item{}
	}
	if s.artifact != nil {
		a := s.artifact.Clone()
		snap.Artifact = &a
	}
	if len(s.drafts) > 0 {
		snap.TagDrafts = make(map[string]string, len(s.drafts))
		for c, v := range s.drafts {
			snap.TagDrafts[string(c)] = v
		}
	}
	if s.lastErr != nil {
		e := *s.lastErr
		snap.LastError = &e
	}
	return snap
}

// Items returns a copy of the batch in order.
func (s *Session) Items() []model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Item(nil), s.items...)
}

// Artifact returns a copy of the current artifact, if any.
func (s *Session) Artifact() (model.Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifact == nil {
		return model.Artifact{}, false
	}
	return s.artifact.Clone(), true
}

// LastError returns the most recent generation or refinement failure.
func (s *Session) LastError() *model.ErrorInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastErr == nil {
		return nil
	}
	e := *s.lastErr
	return &e
}

// UpdatedAt returns the time of the last state change.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Changes returns a channel that is closed on the next state change.
func (s *Session) Changes() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// WaitForArtifact blocks until the current batch has a settled artifact:
// its generation was triggered and is no longer in flight.
func (s *Session) WaitForArtifact(ctx context.Context) (model.Artifact, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return model.Artifact{}, ErrClosed
		}
		if s.artifact != nil && s.epoch.triggered && !s.generating {
			a := s.artifact.Clone()
			s.mu.Unlock()
			return a, nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return model.Artifact{}, ctx.Err()
		case <-ch:
		}
	}
}

// Wait blocks until in-flight generations have finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels in-flight model calls and stops pending stage timers from
// advancing. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.notifyLocked()
	s.mu.Unlock()
	s.cancel()
}

// notifyLocked wakes every Changes waiter. Caller holds s.mu.
func (s *Session) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
	s.updatedAt = time.Now()
}

// resetLocked discards the batch and artifact and starts a new epoch.
func (s *Session) resetLocked() {
	s.items = nil
	s.cohortOf = make(map[string]uint64)
	s.artifact = nil
	s.drafts = make(map[model.TagCategory]string)
	s.lastErr = nil
	s.epoch = epoch{id: s.epoch.id + 1}
	s.notifyLocked()
}
