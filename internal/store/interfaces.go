package store

import (
	"context"

	"github.com/yangwenmai/storyteller/internal/model"
)

// MomentReader provides read access to committed moments.
type MomentReader interface {
	GetMoment(ctx context.Context, id string) (*model.Moment, error)
	ListMoments(ctx context.Context, f model.MomentFilter) ([]model.Moment, error)
	CountMoments(ctx context.Context) (MomentCounts, error)
}

// MomentWriter provides write access to moments.
type MomentWriter interface {
	CommitMoment(ctx context.Context, tier model.Tier, draft model.MomentDraft) (string, error)
	SetPinned(ctx context.Context, id string, pinned bool) error
	DeleteMoment(ctx context.Context, id string) error
}

// MomentRepository combines all moment operations for the API layer.
type MomentRepository interface {
	MomentReader
	MomentWriter
}

// MomentCounts holds the number of moments per group.
type MomentCounts struct {
	Total  int `json:"total"`
	Pinned int `json:"pinned"`
}
