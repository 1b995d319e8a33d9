package render

import (
	"context"
	"fmt"

	"splice/internal/artifact"
	"splice/internal/fingerprint"
	"splice/internal/timeline"
)

// Request describes one segment render. Predecessor carries the boundary
// context for transition-coupled segments; it is computed up front and must
// be treated as read-only so sibling renders can run in parallel.
type Request struct {
	Media       timeline.Media
	Segment     timeline.Segment
	Predecessor *timeline.Segment
	Index       int
	Fingerprint fingerprint.Fingerprint
	OutputPath  string
}

// Backend is the opaque rendering capability. Implementations produce a
// self-contained artifact at req.OutputPath for the requested segment and
// must respect context cancellation.
type Backend interface {
	RenderSegment(ctx context.Context, req Request) (artifact.Artifact, error)
}

// BackendError wraps a single segment's render failure. It is local to its
// segment: sibling renders proceed independently.
type BackendError struct {
	Index       int
	Fingerprint fingerprint.Fingerprint
	Err         error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("render segment %d (%s): %v", e.Index, e.Fingerprint.Short(), e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
