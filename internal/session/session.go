package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"splice/internal/assemble"
	"splice/internal/fingerprint"
	"splice/internal/logging"
	"splice/internal/render"
	"splice/internal/segcache"
	"splice/internal/services"
	"splice/internal/timeline"
)

// Session is one editing session over a single source media. Safe for
// concurrent use.
type Session struct {
	ID uuid.UUID

	dispatcher *render.Dispatcher
	cache      *segcache.Cache
	logger     *slog.Logger

	mu       sync.Mutex
	versions []*timeline.EDL
	pending  map[int]struct{}
	// last successful render and the version it rendered
	lastResult  *render.Result
	lastVersion int
}

// New validates the initial EDL and opens a session on it.
func New(edl *timeline.EDL, dispatcher *render.Dispatcher, cache *segcache.Cache, logger *slog.Logger) (*Session, error) {
	if err := edl.Validate(); err != nil {
		return nil, err
	}
	s := &Session{
		ID:          uuid.New(),
		dispatcher:  dispatcher,
		cache:       cache,
		logger:      logging.NewComponentLogger(logger, "session"),
		versions:    []*timeline.EDL{edl.Clone()},
		pending:     make(map[int]struct{}),
		lastVersion: -1,
	}
	s.logger.Info("session opened",
		logging.String(logging.FieldSessionID, s.ID.String()),
		logging.String("media", edl.Media.ID),
		logging.Int("segments", len(edl.Segments)))
	return s, nil
}

// Current returns the latest EDL version. Callers must not mutate it;
// ApplyEdits derives new versions.
func (s *Session) Current() *timeline.EDL {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.versions[len(s.versions)-1]
}

// Version reports the current version number, starting at 0.
func (s *Session) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.versions) - 1
}

// ApplyEdits derives a new EDL version with the edits applied and marks the
// touched indices dirty for the next render. The previous version stays
// intact for any in-flight export.
func (s *Session) ApplyEdits(edits []timeline.Edit) (*timeline.EDL, []int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.versions[len(s.versions)-1]
	next, changed, err := current.Apply(edits)
	if err != nil {
		return nil, nil, err
	}
	s.versions = append(s.versions, next)
	for _, idx := range changed {
		s.pending[idx] = struct{}{}
	}

	s.logger.Info("edits applied",
		logging.String(logging.FieldSessionID, s.ID.String()),
		logging.String(logging.FieldEventType, "edl_derived"),
		logging.Int("version", len(s.versions)-1),
		logging.Int("changed", len(changed)))
	return next, changed, nil
}

// Render dispatches the current version with every index edited since the
// last render marked dirty. On success the dirty set clears and the result
// is retained for Export.
func (s *Session) Render(ctx context.Context) (*render.Result, error) {
	s.mu.Lock()
	edl := s.versions[len(s.versions)-1]
	version := len(s.versions) - 1
	changed := make([]int, 0, len(s.pending))
	for idx := range s.pending {
		if idx < len(edl.Segments) {
			changed = append(changed, idx)
		}
	}
	s.mu.Unlock()

	result, err := s.dispatcher.RenderChanges(ctx, edl, changed)
	if err != nil {
		return result, err
	}

	s.mu.Lock()
	s.pending = make(map[int]struct{})
	s.lastResult = result
	s.lastVersion = version
	s.mu.Unlock()
	return result, nil
}

// Export assembles the most recent render through the writer. Every artifact
// involved is pinned in the cache for the duration, so eviction pressure
// cannot pull files out from under the writer. Fails unless the current
// version has been rendered.
func (s *Session) Export(ctx context.Context, w assemble.Writer, opts assemble.Options) (*assemble.Plan, error) {
	s.mu.Lock()
	result := s.lastResult
	version := s.lastVersion
	currentVersion := len(s.versions) - 1
	edl := s.versions[len(s.versions)-1]
	dirty := len(s.pending) > 0
	s.mu.Unlock()

	if result == nil {
		return nil, services.Wrap(services.ErrValidation, "session", "export", "nothing rendered yet", nil)
	}
	if version != currentVersion || dirty {
		return nil, services.Wrap(services.ErrValidation, "session", "export",
			fmt.Sprintf("version %d has unrendered edits; render before exporting", currentVersion), nil)
	}

	var fps []fingerprint.Fingerprint
	for _, slot := range result.Slots {
		if slot.Err == nil {
			fps = append(fps, slot.Fingerprint)
		}
	}
	lease, err := s.cache.Acquire(fps...)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "session", "export", "pin artifacts", err)
	}
	defer lease.Release()

	plan, err := assemble.BuildPlan(edl, result.Slots, opts)
	if err != nil {
		return nil, err
	}
	if err := assemble.Assemble(ctx, plan, w); err != nil {
		return nil, err
	}

	s.logger.Info("export complete",
		logging.String(logging.FieldSessionID, s.ID.String()),
		logging.String(logging.FieldEventType, "export_complete"),
		logging.Int("parts", len(plan.Parts)),
		logging.Duration("duration", plan.TotalDuration))
	return plan, nil
}
