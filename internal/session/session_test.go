package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/yangwenmai/storyteller/internal/ingest"
	"github.com/yangwenmai/storyteller/internal/model"
)

// manualScheduler records stage timers and fires them on demand.
type manualScheduler struct {
	mu      sync.Mutex
	pending []func()
	delays  []time.Duration
}

func (m *manualScheduler) schedule(d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, fn)
	m.delays = append(m.delays, d)
}

// fire runs every timer armed so far and returns how many ran. Timers armed
// by the callbacks wait for the next call.
func (m *manualScheduler) fire() int {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
	return len(pending)
}

func (m *manualScheduler) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// fakeGenerator records calls. When release is set, calls block until it is closed.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   [][]model.ImagePayload
	art     model.Artifact
	err     error
	release chan struct{}
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{art: model.Artifact{
		Title: "Lisbon Afternoon",
		Story: "We walked up the hill.",
		Tags: model.Tags{
			Location:   []string{"Lisbon", "Alfama"},
			People:     []string{"Ana"},
			Activities: []string{"walking"},
		},
	}}
}

func (g *fakeGenerator) GenerateStory(ctx context.Context, images []model.ImagePayload) (model.Artifact, error) {
	g.mu.Lock()
	g.calls = append(g.calls, images)
	release, art, err := g.release, g.art.Clone(), g.err
	g.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return model.Artifact{}, ctx.Err()
		}
	}
	return art, err
}

func (g *fakeGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *fakeGenerator) lastCall() []model.ImagePayload {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.calls) == 0 {
		return nil
	}
	return g.calls[len(g.calls)-1]
}

type fakeRefiner struct {
	mu      sync.Mutex
	calls   int
	err     error
	release chan struct{}
}

func (r *fakeRefiner) RefineStory(ctx context.Context, story, instruction string) (string, error) {
	r.mu.Lock()
	r.calls++
	release, err := r.release, r.err
	r.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return story + " (" + instruction + ")", nil
}

type fakeCommitter struct {
	mu     sync.Mutex
	drafts []model.MomentDraft
	err    error
}

func (c *fakeCommitter) CommitMoment(_ context.Context, _ model.Tier, draft model.MomentDraft) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	c.drafts = append(c.drafts, draft)
	return fmt.Sprintf("moment-%d", len(c.drafts)), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, gen Generator, ref Refiner, opts ...Option) (*Session, *manualScheduler) {
	t.Helper()
	sched := &manualScheduler{}
	opts = append([]Option{WithScheduler(sched.schedule), WithLogger(quietLogger())}, opts...)
	s := New(gen, ref, opts...)
	t.Cleanup(func() {
		s.Close()
		s.Wait()
	})
	return s, sched
}

func photos(n int) []ingest.Source {
	out := make([]ingest.Source, n)
	for i := range out {
		out[i] = &ingest.BytesSource{
			FileName: fmt.Sprintf("photo-%d.jpg", i),
			Data:     []byte{0xff, 0xd8, 0xff, byte(i)},
			Modified: time.UnixMilli(1700000000000),
		}
	}
	return out
}

func mustAdd(t *testing.T, s *Session, n int) []model.Item {
	t.Helper()
	items, err := s.AddPhotos(context.Background(), photos(n))
	if err != nil {
		t.Fatalf("AddPhotos: %v", err)
	}
	return items
}

// settle fires both stage timers and waits for the resulting generation.
func settle(s *Session, sched *manualScheduler) {
	sched.fire()
	sched.fire()
	s.Wait()
}

func stages(s *Session) []model.Stage {
	var out []model.Stage
	for _, it := range s.Items() {
		out = append(out, it.Stage)
	}
	return out
}

func allIn(got []model.Stage, want model.Stage) bool {
	for _, st := range got {
		if st != want {
			return false
		}
	}
	return len(got) > 0
}

func headerCount(items []model.Item) int {
	n := 0
	for _, it := range items {
		if it.IsHeader {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, s *Session, cond func(Snapshot) bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		ch := s.Changes()
		if cond(s.Snapshot()) {
			return
		}
		select {
		case <-ch:
		case <-deadline:
			t.Fatal("timed out waiting for session state")
		}
	}
}

func TestThreePhotoScenario(t *testing.T) {
	gen := newFakeGenerator()
	s, sched := newTestSession(t, gen, &fakeRefiner{})

	mustAdd(t, s, 3)
	if got := stages(s); !allIn(got, model.StageUploading) {
		t.Fatalf("stages after add = %v, want all UPLOADING", got)
	}
	if sched.count() != 1 {
		t.Fatalf("pending timers = %d, want 1 for the cohort", sched.count())
	}

	sched.fire()
	if got := stages(s); !allIn(got, model.StageAnalyzing) {
		t.Fatalf("stages after D1 = %v, want all ANALYZING", got)
	}
	if gen.callCount() != 0 {
		t.Fatal("generation fired before every item was COMPLETE")
	}

	sched.fire()
	s.Wait()
	if got := stages(s); !allIn(got, model.StageComplete) {
		t.Fatalf("stages after D2 = %v, want all COMPLETE", got)
	}
	if gen.callCount() != 1 {
		t.Fatalf("generate calls = %d, want 1", gen.callCount())
	}
	images := gen.lastCall()
	if len(images) != 3 {
		t.Fatalf("payloads = %d, want 3", len(images))
	}
	for _, img := range images {
		if img.MIMEType != "image/jpeg" || img.Data == "" {
			t.Errorf("payload = %+v, want jpeg data", img)
		}
	}
	if art, ok := s.Artifact(); !ok || art.Title != "Lisbon Afternoon" {
		t.Errorf("artifact = %+v, %v", art, ok)
	}
	if sched.fire() != 0 {
		t.Error("no timers should remain once the cohort is COMPLETE")
	}
}

func TestStageDelays(t *testing.T) {
	s, sched := newTestSession(t, newFakeGenerator(), &fakeRefiner{},
		WithDelays(10*time.Millisecond, 20*time.Millisecond))
	mustAdd(t, s, 1)
	sched.fire()
	sched.fire()
	s.Wait()

	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	if len(sched.delays) != 2 || sched.delays[0] != want[0] || sched.delays[1] != want[1] {
		t.Errorf("delays = %v, want %v", sched.delays, want)
	}
}

func TestGenerationFiresAtMostOncePerEpoch(t *testing.T) {
	gen := newFakeGenerator()
	s, sched := newTestSession(t, gen, &fakeRefiner{})

	items := mustAdd(t, s, 3)
	settle(s, sched)

	// Further aggregate changes inside the same epoch must not re-fire.
	s.SetHeader(items[1].ID)
	s.RemovePhoto(items[2].ID)
	sched.fire()
	s.Wait()

	if gen.callCount() != 1 {
		t.Errorf("generate calls = %d, want 1", gen.callCount())
	}
}

func TestIndependentCohorts(t *testing.T) {
	gen := newFakeGenerator()
	s, sched := newTestSession(t, gen, &fakeRefiner{})

	mustAdd(t, s, 2)
	sched.fire() // first cohort -> ANALYZING
	mustAdd(t, s, 1)

	want := []model.Stage{model.StageAnalyzing, model.StageAnalyzing, model.StageUploading}
	assertStages(t, s, want)

	sched.fire() // first -> COMPLETE, second -> ANALYZING
	want = []model.Stage{model.StageComplete, model.StageComplete, model.StageAnalyzing}
	assertStages(t, s, want)
	s.Wait()
	if gen.callCount() != 0 {
		t.Fatal("generation fired while an item was still ANALYZING")
	}

	sched.fire()
	s.Wait()
	if gen.callCount() != 1 || len(gen.lastCall()) != 3 {
		t.Errorf("calls = %d, last payloads = %d; want 1 call with 3", gen.callCount(), len(gen.lastCall()))
	}
}

func assertStages(t *testing.T, s *Session, want []model.Stage) {
	t.Helper()
	got := stages(s)
	if len(got) != len(want) {
		t.Fatalf("stages = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stages = %v, want %v", got, want)
		}
	}
}

func TestReingestResetsArtifactAndEpoch(t *testing.T) {
	gen := newFakeGenerator()
	s, sched := newTestSession(t, gen, &fakeRefiner{})

	mustAdd(t, s, 2)
	settle(s, sched)
	before := s.Snapshot()
	if before.Artifact == nil {
		t.Fatal("expected artifact after first epoch")
	}
	s.SetTagDraft(model.TagPeople, "half typed")

	mustAdd(t, s, 1)
	after := s.Snapshot()
	if after.Artifact != nil {
		t.Error("artifact should be cleared by new photos")
	}
	if after.Epoch != before.Epoch+1 {
		t.Errorf("epoch = %d, want %d", after.Epoch, before.Epoch+1)
	}
	if s.TagDraft(model.TagPeople) != "" {
		t.Error("tag drafts should be cleared by new photos")
	}

	settle(s, sched)
	if gen.callCount() != 2 {
		t.Fatalf("generate calls = %d, want 2 (one per epoch)", gen.callCount())
	}
	if n := len(gen.lastCall()); n != 3 {
		t.Errorf("second generation payloads = %d, want all 3 items", n)
	}
}

func TestRemovingPendingItemCanTrigger(t *testing.T) {
	gen := newFakeGenerator()
	s, sched := newTestSession(t, gen, &fakeRefiner{})

	mustAdd(t, s, 1)
	sched.fire()
	sched.fire() // epoch 1 generates
	s.Wait()
	late := mustAdd(t, s, 1)

	// Epoch 2: the old item is COMPLETE, the new one is still UPLOADING.
	s.RemovePhoto(late[0].ID)
	s.Wait()
	if gen.callCount() != 2 {
		t.Errorf("generate calls = %d, want 2 after the pending item was removed", gen.callCount())
	}
}

func TestHeaderInvariant(t *testing.T) {
	s, _ := newTestSession(t, newFakeGenerator(), &fakeRefiner{})

	check := func(step string) {
		t.Helper()
		items := s.Items()
		if len(items) > 0 && headerCount(items) != 1 {
			t.Fatalf("%s: %d headers in %d items", step, headerCount(items), len(items))
		}
	}

	first := mustAdd(t, s, 3)
	check("add")
	if !s.Items()[0].IsHeader {
		t.Error("first item should be the default header")
	}

	second := mustAdd(t, s, 2)
	check("second add")

	s.SetHeader(second[1].ID)
	check("set header")

	s.RemovePhoto(second[1].ID)
	check("remove header")
	if !s.Items()[0].IsHeader {
		t.Error("removing the header should promote the first item")
	}

	for _, it := range first {
		s.RemovePhoto(it.ID)
		check("remove " + it.ID)
	}
	s.RemovePhoto(second[0].ID)
	if len(s.Items()) != 0 {
		t.Fatalf("items = %d, want 0", len(s.Items()))
	}

	mustAdd(t, s, 1)
	check("add after empty")
}

func TestSetHeaderIdempotent(t *testing.T) {
	s, _ := newTestSession(t, newFakeGenerator(), &fakeRefiner{})
	items := mustAdd(t, s, 3)

	if !s.SetHeader(items[2].ID) {
		t.Fatal("SetHeader should find the item")
	}
	once := s.Items()
	s.SetHeader(items[2].ID)
	twice := s.Items()

	for i := range once {
		if once[i] != twice[i] {
			t.Errorf("item %d changed on repeated SetHeader: %+v vs %+v", i, once[i], twice[i])
		}
	}
	if !twice[2].IsHeader {
		t.Error("third item should be the header")
	}
}

func TestSetHeaderUnknownFallsBackToFirst(t *testing.T) {
	s, _ := newTestSession(t, newFakeGenerator(), &fakeRefiner{})
	items := mustAdd(t, s, 2)
	s.SetHeader(items[1].ID)

	if s.SetHeader("missing") {
		t.Error("SetHeader should report an unknown id")
	}
	got := s.Items()
	if !got[0].IsHeader || got[1].IsHeader {
		t.Errorf("headers = %v,%v; want first item only", got[0].IsHeader, got[1].IsHeader)
	}
}

func TestMoveHeaderKeepsHeaderOnUnknownID(t *testing.T) {
	s, _ := newTestSession(t, newFakeGenerator(), &fakeRefiner{})
	items := mustAdd(t, s, 3)

	if !s.MoveHeader(items[2].ID) {
		t.Fatal("MoveHeader should find a batch item")
	}
	if s.MoveHeader("missing") {
		t.Error("MoveHeader should report an unknown id")
	}
	got := s.Items()
	if !got[2].IsHeader || headerCount(got) != 1 {
		t.Errorf("headers = %v, want third item only", got)
	}

	s.RemovePhoto(items[1].ID)
	if s.MoveHeader(items[1].ID) {
		t.Error("MoveHeader should reject a removed item")
	}
	if got := s.Items(); !got[1].IsHeader || headerCount(got) != 1 {
		t.Errorf("header moved after rejected call: %v", got)
	}
}

func TestAddItemsRejectsDuplicateIDs(t *testing.T) {
	gen := newFakeGenerator()
	s, sched := newTestSession(t, gen, &fakeRefiner{})
	preview := model.DataURI("image/jpeg", "/9j/")
	x := model.NewItem("x", "x.jpg", 3, "image/jpeg", preview)
	y := model.NewItem("y", "y.jpg", 3, "image/jpeg", preview)

	if err := s.AddItems([]model.Item{x}); err != nil {
		t.Fatalf("AddItems: %v", err)
	}
	tests := []struct {
		name  string
		items []model.Item
	}{
		{"already in batch", []model.Item{x}},
		{"repeated in call", []model.Item{y, y}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.AddItems(tt.items); !errors.Is(err, ErrDuplicateItem) {
				t.Errorf("err = %v, want ErrDuplicateItem", err)
			}
		})
	}
	if n := len(s.Items()); n != 1 {
		t.Fatalf("batch size = %d, want 1", n)
	}
	if sched.count() != 1 {
		t.Fatalf("pending timers = %d, want 1", sched.count())
	}

	settle(s, sched)
	if gen.callCount() != 1 {
		t.Fatalf("generations = %d, want 1", gen.callCount())
	}

	// The ID is free again once the item is removed.
	if !s.RemovePhoto("x") {
		t.Fatal("RemovePhoto should remove x")
	}
	if err := s.AddItems([]model.Item{x}); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	settle(s, sched)
	if got := stages(s); !allIn(got, model.StageComplete) {
		t.Errorf("stages = %v, want all COMPLETE", got)
	}
	if gen.callCount() != 2 {
		t.Errorf("generations = %d, want 2", gen.callCount())
	}
}

func TestAddPhotosConversionFailure(t *testing.T) {
	s, sched := newTestSession(t, newFakeGenerator(), &fakeRefiner{})
	sources := append(photos(1), &ingest.BytesSource{FileName: "notes.txt", Data: []byte("hello")})

	_, err := s.AddPhotos(context.Background(), sources)
	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != "ingest" {
		t.Fatalf("err = %v, want ingest StepError", err)
	}
	var convErr *ingest.ConversionError
	if !errors.As(err, &convErr) || convErr.Name != "notes.txt" {
		t.Errorf("err = %v, want ConversionError for notes.txt", err)
	}
	if len(s.Items()) != 0 || sched.count() != 0 {
		t.Error("a failed ingestion must not change the batch")
	}
}

func TestGenerationFailureUsesFallback(t *testing.T) {
	gen := newFakeGenerator()
	gen.err = errors.New("quota exceeded")
	s, sched := newTestSession(t, gen, &fakeRefiner{})

	mustAdd(t, s, 2)
	settle(s, sched)

	art, ok := s.Artifact()
	if !ok {
		t.Fatal("fallback artifact missing")
	}
	if art.Title != model.FallbackTitle || art.Story != model.FallbackStory {
		t.Errorf("artifact = %+v, want fallback", art)
	}
	for _, c := range model.TagCategories {
		if tags := art.Tags.Get(c); tags == nil || len(tags) != 0 {
			t.Errorf("%s tags = %#v, want empty sequence", c, tags)
		}
	}
	info := s.LastError()
	if info == nil || info.FailedStep != "generate" || info.Message == "" {
		t.Errorf("last error = %+v", info)
	}
}

func TestWaitForArtifact(t *testing.T) {
	s, sched := newTestSession(t, newFakeGenerator(), &fakeRefiner{})
	mustAdd(t, s, 2)

	done := make(chan model.Artifact, 1)
	go func() {
		art, err := s.WaitForArtifact(context.Background())
		if err != nil {
			t.Errorf("WaitForArtifact: %v", err)
		}
		done <- art
	}()

	sched.fire()
	sched.fire()
	select {
	case art := <-done:
		if art.Title != "Lisbon Afternoon" {
			t.Errorf("title = %q", art.Title)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForArtifact did not return")
	}
}

func TestWaitForArtifactContextCanceled(t *testing.T) {
	s, _ := newTestSession(t, newFakeGenerator(), &fakeRefiner{})
	mustAdd(t, s, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.WaitForArtifact(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestResetDuringFlightFiresNewEpochAfterward(t *testing.T) {
	gen := newFakeGenerator()
	gen.release = make(chan struct{})
	s, sched := newTestSession(t, gen, &fakeRefiner{})

	mustAdd(t, s, 1)
	sched.fire()
	sched.fire()
	waitFor(t, s, func(snap Snapshot) bool { return snap.Generating })

	mustAdd(t, s, 1)
	sched.fire()
	sched.fire() // new epoch is ready but a generation is still in flight
	if gen.callCount() != 1 {
		t.Fatalf("generate calls = %d, want 1 while in flight", gen.callCount())
	}

	close(gen.release)
	s.Wait()
	if gen.callCount() != 2 {
		t.Fatalf("generate calls = %d, want 2 after the flight ended", gen.callCount())
	}
	if n := len(gen.lastCall()); n != 2 {
		t.Errorf("second generation payloads = %d, want 2", n)
	}
}

func TestStaleGenerationPolicy(t *testing.T) {
	tests := []struct {
		name         string
		policy       StalePolicy
		wantArtifact bool
	}{
		{"apply", StaleApply, true},
		{"discard", StaleDiscard, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := newFakeGenerator()
			gen.release = make(chan struct{})
			s, sched := newTestSession(t, gen, &fakeRefiner{}, WithStaleResults(tt.policy))

			mustAdd(t, s, 1)
			sched.fire()
			sched.fire()
			waitFor(t, s, func(snap Snapshot) bool { return snap.Generating })

			mustAdd(t, s, 1) // new epoch, new items still UPLOADING
			close(gen.release)
			s.Wait()

			if _, ok := s.Artifact(); ok != tt.wantArtifact {
				t.Errorf("artifact present = %v, want %v", ok, tt.wantArtifact)
			}

			settle(s, sched)
			if _, ok := s.Artifact(); !ok {
				t.Error("the new epoch should produce an artifact")
			}
		})
	}
}

func TestCloseStopsSession(t *testing.T) {
	gen := newFakeGenerator()
	s, sched := newTestSession(t, gen, &fakeRefiner{})
	mustAdd(t, s, 1)

	s.Close()
	sched.fire()
	sched.fire()
	s.Wait()

	if gen.callCount() != 0 {
		t.Error("closed session must not generate")
	}
	if _, err := s.AddPhotos(context.Background(), photos(1)); !errors.Is(err, ErrClosed) {
		t.Errorf("AddPhotos err = %v, want ErrClosed", err)
	}
	if _, err := s.WaitForArtifact(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("WaitForArtifact err = %v, want ErrClosed", err)
	}
}
