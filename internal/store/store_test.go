package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/yangwenmai/storyteller/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := New(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	// Deterministic, strictly increasing timestamps.
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func makeDraft(title, location string, people ...string) model.MomentDraft {
	draft := model.MomentDraft{
		ImagePreview:  "data:image/jpeg;base64,AAAA",
		ImagePreviews: []string{"data:image/jpeg;base64,AAAA", "data:image/png;base64,BBBB"},
		Title:         title,
		Story:         "Story of " + title,
		People:        people,
		Activities:    []string{"walking"},
		PhotoCount:    2,
	}
	draft.PrimaryLocation = location
	return draft
}

func mustCommit(t *testing.T, s *Store, draft model.MomentDraft) string {
	t.Helper()
	id, err := s.CommitMoment(context.Background(), model.TierFree, draft)
	if err != nil {
		t.Fatalf("CommitMoment: %v", err)
	}
	return id
}

func TestCommitAndGetMoment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := mustCommit(t, s, makeDraft("Harbour", "Porto", "Ana", "Rui"))
	if id == "" {
		t.Fatal("expected an assigned id")
	}

	got, err := s.GetMoment(ctx, id)
	if err != nil {
		t.Fatalf("GetMoment: %v", err)
	}
	if got.Title != "Harbour" || got.PrimaryLocation != "Porto" || got.PhotoCount != 2 {
		t.Errorf("moment = %+v", got)
	}
	if got.Pinned {
		t.Error("new moments must be unpinned")
	}
	if got.Tier != model.TierFree {
		t.Errorf("tier = %q, want free", got.Tier)
	}
	if len(got.People) != 2 || got.People[1] != "Rui" {
		t.Errorf("people = %v", got.People)
	}
	if len(got.ImagePreviews) != 2 || got.ImagePreviews[1] != "data:image/png;base64,BBBB" {
		t.Errorf("previews = %v, want batch order", got.ImagePreviews)
	}
	if got.CreatedAt == "" {
		t.Error("created_at should be set")
	}
}

func TestCommitMomentDistinctIDs(t *testing.T) {
	s := newTestStore(t)
	a := mustCommit(t, s, makeDraft("A", ""))
	b := mustCommit(t, s, makeDraft("A", ""))
	if a == b {
		t.Errorf("ids should differ, both %q", a)
	}
}

func TestCommitMomentNilLists(t *testing.T) {
	s := newTestStore(t)
	draft := makeDraft("Empty", "")
	draft.People = nil
	draft.Activities = nil

	got, err := s.GetMoment(context.Background(), mustCommit(t, s, draft))
	if err != nil {
		t.Fatalf("GetMoment: %v", err)
	}
	if got.People == nil || len(got.People) != 0 {
		t.Errorf("people = %#v, want empty slice", got.People)
	}
}

func TestGetMoment_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetMoment(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestListMoments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	porto := mustCommit(t, s, makeDraft("Porto trip", "Porto", "Ana"))
	lisbon := mustCommit(t, s, makeDraft("Lisbon trip", "Lisbon", "Rui"))
	beach := mustCommit(t, s, makeDraft("Beach", "porto", "Ana", "Rui"))
	if err := s.SetPinned(ctx, porto, true); err != nil {
		t.Fatalf("SetPinned: %v", err)
	}

	yes := true
	no := false
	tests := []struct {
		name   string
		filter model.MomentFilter
		want   []string
	}{
		{"all, pinned first then newest", model.MomentFilter{}, []string{porto, beach, lisbon}},
		{"location case-insensitive", model.MomentFilter{Location: "PORTO"}, []string{porto, beach}},
		{"person", model.MomentFilter{Person: "rui"}, []string{beach, lisbon}},
		{"pinned", model.MomentFilter{Pinned: &yes}, []string{porto}},
		{"unpinned", model.MomentFilter{Pinned: &no}, []string{beach, lisbon}},
		{"combined", model.MomentFilter{Location: "porto", Person: "Rui"}, []string{beach}},
		{"limit", model.MomentFilter{Limit: 1}, []string{porto}},
		{"no match", model.MomentFilter{Person: "Zoe"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListMoments(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListMoments: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d moments, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("moment[%d] = %q (%s), want %q", i, got[i].ID, got[i].Title, id)
				}
				if got[i].ImagePreviews != nil {
					t.Error("list should not load all previews")
				}
			}
		})
	}
}

func TestSetPinned(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustCommit(t, s, makeDraft("Pin me", ""))

	if err := s.SetPinned(ctx, id, true); err != nil {
		t.Fatalf("SetPinned: %v", err)
	}
	got, _ := s.GetMoment(ctx, id)
	if !got.Pinned {
		t.Error("moment should be pinned")
	}

	if err := s.SetPinned(ctx, id, false); err != nil {
		t.Fatalf("unpin: %v", err)
	}
	got, _ = s.GetMoment(ctx, id)
	if got.Pinned {
		t.Error("moment should be unpinned")
	}

	if err := s.SetPinned(ctx, "missing", true); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestDeleteMoment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := mustCommit(t, s, makeDraft("Gone", ""))

	if err := s.DeleteMoment(ctx, id); err != nil {
		t.Fatalf("DeleteMoment: %v", err)
	}
	if _, err := s.GetMoment(ctx, id); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}
	var photos int
	s.db.QueryRow(`SELECT COUNT(*) FROM moment_photos WHERE moment_id = ?`, id).Scan(&photos)
	if photos != 0 {
		t.Errorf("photos left = %d, want 0", photos)
	}
	if err := s.DeleteMoment(ctx, id); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("second delete err = %v, want sql.ErrNoRows", err)
	}
}

func TestCountMoments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := mustCommit(t, s, makeDraft("A", ""))
	mustCommit(t, s, makeDraft("B", ""))
	s.SetPinned(ctx, a, true)

	counts, err := s.CountMoments(ctx)
	if err != nil {
		t.Fatalf("CountMoments: %v", err)
	}
	if counts.Total != 2 || counts.Pinned != 1 {
		t.Errorf("counts = %+v, want 2 total, 1 pinned", counts)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if _, err := New(db); err != nil {
		t.Fatalf("first New: %v", err)
	}
	if _, err := New(db); err != nil {
		t.Fatalf("second New: %v", err)
	}
	var version int
	if err := db.QueryRow(`SELECT version FROM schema_version`).Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("version = %d, want %d", version, currentSchemaVersion)
	}
}
