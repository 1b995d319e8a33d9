package session

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"splice/internal/artifact"
	"splice/internal/assemble"
	"splice/internal/logging"
	"splice/internal/render"
	"splice/internal/segcache"
	"splice/internal/timeline"
)

type countingBackend struct {
	mu    sync.Mutex
	calls int
}

func (b *countingBackend) RenderSegment(_ context.Context, req render.Request) (artifact.Artifact, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if err := os.WriteFile(req.OutputPath, []byte(req.Fingerprint), 0o644); err != nil {
		return artifact.Artifact{}, err
	}
	return artifact.FromFile(req.Fingerprint, req.OutputPath)
}

func (b *countingBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type nullWriter struct {
	parts  int
	closed bool
}

func (w *nullWriter) WritePart(context.Context, assemble.Part) error {
	w.parts++
	return nil
}

func (w *nullWriter) Close(context.Context) error {
	w.closed = true
	return nil
}

func testEDL() *timeline.EDL {
	return &timeline.EDL{
		Media: timeline.Media{ID: "clip-9", Version: "v1", Path: "/media/clip-9.mkv"},
		Segments: []timeline.Segment{
			{Start: 0, End: 4 * time.Second, Speed: 1},
			{Start: 4 * time.Second, End: 8 * time.Second, Speed: 1},
		},
	}
}

func newTestSession(t *testing.T) (*Session, *countingBackend) {
	t.Helper()
	cache, err := segcache.Open(context.Background(), segcache.Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close(context.Background()) })

	backend := &countingBackend{}
	dispatcher := render.NewDispatcher(cache, backend, render.DispatcherOptions{Logger: logging.NewNop()})
	sess, err := New(testEDL(), dispatcher, cache, logging.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sess, backend
}

func TestSessionRejectsInvalidEDL(t *testing.T) {
	edl := testEDL()
	edl.Segments[1].Start = 5 * time.Second // gap
	if _, err := New(edl, nil, nil, logging.NewNop()); err == nil {
		t.Fatal("expected invalid EDL to be rejected")
	}
}

func TestApplyEditsDerivesNewVersion(t *testing.T) {
	sess, _ := newTestSession(t)
	before := sess.Current()

	edited := before.Segments[1]
	edited.End = 9 * time.Second
	next, changed, err := sess.ApplyEdits([]timeline.Edit{{Index: 1, Segment: edited}})
	if err != nil {
		t.Fatalf("ApplyEdits: %v", err)
	}
	if sess.Version() != 1 {
		t.Fatalf("version = %d, want 1", sess.Version())
	}
	if len(changed) != 1 || changed[0] != 1 {
		t.Fatalf("changed = %v, want [1]", changed)
	}
	// Copy-on-write: the old version must be untouched.
	if before.Segments[1].End != 8*time.Second {
		t.Fatalf("previous version mutated: %v", before.Segments[1].End)
	}
	if next.Segments[1].End != 9*time.Second {
		t.Fatalf("edit not applied: %v", next.Segments[1].End)
	}
}

func TestRenderThenReRenderTouchesBackendOnce(t *testing.T) {
	sess, backend := newTestSession(t)
	ctx := context.Background()

	result, err := sess.Render(ctx)
	if err != nil {
		t.Fatalf("first render: %v", err)
	}
	if !result.Complete() {
		t.Fatalf("incomplete first render: %+v", result.Report)
	}
	if got := backend.callCount(); got != 2 {
		t.Fatalf("backend calls = %d, want 2", got)
	}

	if _, err := sess.Render(ctx); err != nil {
		t.Fatalf("second render: %v", err)
	}
	if got := backend.callCount(); got != 2 {
		t.Fatalf("warm re-render hit the backend: %d calls", got)
	}
}

func TestEditedSegmentReRenders(t *testing.T) {
	sess, backend := newTestSession(t)
	ctx := context.Background()

	if _, err := sess.Render(ctx); err != nil {
		t.Fatalf("first render: %v", err)
	}
	cold := backend.callCount()

	edited := sess.Current().Segments[0]
	edited.Speed = 1.5
	if _, _, err := sess.ApplyEdits([]timeline.Edit{{Index: 0, Segment: edited}}); err != nil {
		t.Fatalf("ApplyEdits: %v", err)
	}
	result, err := sess.Render(ctx)
	if err != nil {
		t.Fatalf("re-render: %v", err)
	}
	if !result.Complete() {
		t.Fatalf("incomplete re-render: %+v", result.Report)
	}
	// One dirty segment with a plain join after it, so exactly one fresh
	// render.
	if got := backend.callCount() - cold; got != 1 {
		t.Fatalf("fresh renders after edit = %d, want 1", got)
	}
}

func TestExportRequiresRender(t *testing.T) {
	sess, _ := newTestSession(t)
	if _, err := sess.Export(context.Background(), &nullWriter{}, assemble.Options{}); err == nil {
		t.Fatal("expected export before render to fail")
	}
}

func TestExportRequiresCurrentVersionRendered(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()
	if _, err := sess.Render(ctx); err != nil {
		t.Fatalf("render: %v", err)
	}

	edited := sess.Current().Segments[0]
	edited.Speed = 2
	if _, _, err := sess.ApplyEdits([]timeline.Edit{{Index: 0, Segment: edited}}); err != nil {
		t.Fatalf("ApplyEdits: %v", err)
	}
	if _, err := sess.Export(ctx, &nullWriter{}, assemble.Options{}); err == nil {
		t.Fatal("expected export of unrendered edits to fail")
	}
}

func TestExportAssemblesRenderedTimeline(t *testing.T) {
	sess, _ := newTestSession(t)
	ctx := context.Background()
	if _, err := sess.Render(ctx); err != nil {
		t.Fatalf("render: %v", err)
	}

	w := &nullWriter{}
	plan, err := sess.Export(ctx, w, assemble.Options{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !w.closed || w.parts != 2 {
		t.Fatalf("writer saw %d parts, closed=%v", w.parts, w.closed)
	}
	if plan.TotalDuration != 8*time.Second {
		t.Fatalf("total duration = %v, want 8s", plan.TotalDuration)
	}
}
