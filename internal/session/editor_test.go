package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yangwenmai/storyteller/internal/model"
)

func readySession(t *testing.T, n int) (*Session, *fakeGenerator, *fakeRefiner) {
	t.Helper()
	gen := newFakeGenerator()
	ref := &fakeRefiner{}
	s, sched := newTestSession(t, gen, ref)
	mustAdd(t, s, n)
	settle(s, sched)
	if _, ok := s.Artifact(); !ok {
		t.Fatal("expected an artifact")
	}
	return s, gen, ref
}

func TestEditsWithoutArtifactAreNoops(t *testing.T) {
	s, _ := newTestSession(t, newFakeGenerator(), &fakeRefiner{})
	mustAdd(t, s, 1)

	if s.SetTitle("x") || s.SetStory("y") {
		t.Error("field edits should be no-ops without an artifact")
	}
	if s.AddTag(model.TagLocation, "Paris") {
		t.Error("AddTag should be a no-op without an artifact")
	}
	if s.RemoveTag(model.TagLocation, "Paris") {
		t.Error("RemoveTag should be a no-op without an artifact")
	}
}

func TestFieldEdits(t *testing.T) {
	s, _, _ := readySession(t, 1)

	if !s.SetTitle("") {
		t.Fatal("SetTitle should accept any string")
	}
	if !s.SetStory("A whole new story.") {
		t.Fatal("SetStory failed")
	}
	art, _ := s.Artifact()
	if art.Title != "" || art.Story != "A whole new story." {
		t.Errorf("artifact = %+v", art)
	}
}

func TestAddTagDuplicatesKept(t *testing.T) {
	s, _, _ := readySession(t, 1)

	s.AddTag(model.TagLocation, "Paris")
	s.AddTag(model.TagLocation, "  Paris ")

	art, _ := s.Artifact()
	got := art.Tags.Location
	want := []string{"Lisbon", "Alfama", "Paris", "Paris"}
	if len(got) != len(want) {
		t.Fatalf("location = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("location = %v, want %v", got, want)
		}
	}
}

func TestAddTag(t *testing.T) {
	tests := []struct {
		name     string
		category model.TagCategory
		raw      string
		want     bool
	}{
		{"trimmed value", model.TagPeople, "  Grandma ", true},
		{"blank", model.TagPeople, "   ", false},
		{"unknown category", model.TagCategory("weather"), "sunny", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := readySession(t, 1)
			if got := s.AddTag(tt.category, tt.raw); got != tt.want {
				t.Errorf("AddTag = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAddDraftTagClearsDraft(t *testing.T) {
	s, _, _ := readySession(t, 1)

	s.SetTagDraft(model.TagActivities, " sailing ")
	if s.TagDraft(model.TagActivities) != " sailing " {
		t.Fatal("draft not stored")
	}
	if !s.AddDraftTag(model.TagActivities) {
		t.Fatal("AddDraftTag failed")
	}
	if s.TagDraft(model.TagActivities) != "" {
		t.Error("draft should be cleared after adding")
	}
	art, _ := s.Artifact()
	if last := art.Tags.Activities[len(art.Tags.Activities)-1]; last != "sailing" {
		t.Errorf("last activity = %q, want %q", last, "sailing")
	}

	s.SetTagDraft(model.TagPeople, "  ")
	if s.AddDraftTag(model.TagPeople) {
		t.Error("blank draft should not be added")
	}
	if s.TagDraft(model.TagPeople) != "  " {
		t.Error("a rejected draft stays in the buffer")
	}
}

func TestRemoveTagRemovesFirstMatch(t *testing.T) {
	s, _, _ := readySession(t, 1)
	s.AddTag(model.TagPeople, "Ana")

	if !s.RemoveTag(model.TagPeople, "Ana") {
		t.Fatal("RemoveTag failed")
	}
	art, _ := s.Artifact()
	if len(art.Tags.People) != 1 || art.Tags.People[0] != "Ana" {
		t.Errorf("people = %v, want one Ana left", art.Tags.People)
	}
	if s.RemoveTag(model.TagPeople, "Bob") {
		t.Error("removing an absent tag should be a no-op")
	}
}

func TestSnapshotDoesNotAlias(t *testing.T) {
	s, _, _ := readySession(t, 1)
	snap := s.Snapshot()
	snap.Artifact.Tags.Location[0] = "changed"
	snap.Items[0].Stage = model.StageUploading

	art, _ := s.Artifact()
	if art.Tags.Location[0] != "Lisbon" {
		t.Error("snapshot tags alias session state")
	}
	if s.Items()[0].Stage != model.StageComplete {
		t.Error("snapshot items alias session state")
	}
}

func TestRefine(t *testing.T) {
	s, _, ref := readySession(t, 1)

	if err := s.Refine(context.Background(), "  make it shorter "); err != nil {
		t.Fatalf("Refine: %v", err)
	}
	art, _ := s.Artifact()
	if art.Story != "We walked up the hill. (make it shorter)" {
		t.Errorf("story = %q", art.Story)
	}
	if art.Title != "Lisbon Afternoon" || len(art.Tags.Location) != 2 {
		t.Error("refinement must only touch the story")
	}

	if err := s.Refine(context.Background(), "add a joke"); err != nil {
		t.Fatalf("second Refine: %v", err)
	}
	if ref.calls != 2 {
		t.Errorf("refine calls = %d, want 2", ref.calls)
	}
}

func TestRefineRejections(t *testing.T) {
	t.Run("no artifact", func(t *testing.T) {
		ref := &fakeRefiner{}
		s, _ := newTestSession(t, newFakeGenerator(), ref)
		if err := s.Refine(context.Background(), "shorter"); !errors.Is(err, ErrNoArtifact) {
			t.Errorf("err = %v, want ErrNoArtifact", err)
		}
		if ref.calls != 0 {
			t.Error("refiner should not be called")
		}
	})

	t.Run("empty instruction", func(t *testing.T) {
		s, _, ref := readySession(t, 1)
		if err := s.Refine(context.Background(), " \n\t"); !errors.Is(err, ErrEmptyInstruction) {
			t.Errorf("err = %v, want ErrEmptyInstruction", err)
		}
		if ref.calls != 0 {
			t.Error("refiner should not be called")
		}
	})
}

func TestRefineInFlightRejected(t *testing.T) {
	s, _, ref := readySession(t, 1)
	ref.mu.Lock()
	ref.release = make(chan struct{})
	ref.mu.Unlock()

	first := make(chan error, 1)
	go func() { first <- s.Refine(context.Background(), "warmer") }()
	waitFor(t, s, func(snap Snapshot) bool { return snap.Refining })

	if err := s.Refine(context.Background(), "colder"); !errors.Is(err, ErrRefinementInFlight) {
		t.Errorf("err = %v, want ErrRefinementInFlight", err)
	}
	art, _ := s.Artifact()
	if art.Story != "We walked up the hill." {
		t.Errorf("rejected call changed the story: %q", art.Story)
	}

	close(ref.release)
	if err := <-first; err != nil {
		t.Fatalf("first Refine: %v", err)
	}
	art, _ = s.Artifact()
	if art.Story != "We walked up the hill. (warmer)" {
		t.Errorf("story = %q", art.Story)
	}
}

func TestRefineFailureKeepsStory(t *testing.T) {
	s, _, ref := readySession(t, 1)
	ref.err = errors.New("upstream timeout")

	err := s.Refine(context.Background(), "shorter")
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "refine" {
		t.Fatalf("err = %v, want refine StepError", err)
	}
	art, _ := s.Artifact()
	if art.Story != "We walked up the hill." {
		t.Errorf("story = %q, want unchanged", art.Story)
	}
	if info := s.LastError(); info == nil || info.FailedStep != "refine" {
		t.Errorf("last error = %+v", info)
	}
}

func TestCloseCancelsRefinement(t *testing.T) {
	s, _, ref := readySession(t, 1)
	ref.mu.Lock()
	ref.release = make(chan struct{})
	ref.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- s.Refine(context.Background(), "warmer") }()
	waitFor(t, s, func(snap Snapshot) bool { return snap.Refining })

	s.Close()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the refinement")
	}
}
