package segcache

import (
	"context"

	"splice/internal/artifact"
	"splice/internal/fingerprint"
	"splice/internal/logging"
	"splice/internal/timeline"
)

// RenderFunc produces the artifact for one fingerprint. It must write the
// artifact file and return a handle; the cache takes care of recording it.
type RenderFunc func(ctx context.Context) (artifact.Artifact, error)

type flight struct {
	done chan struct{}
	art  artifact.Artifact
	err  error
}

// RenderOnce coalesces concurrent renders of one fingerprint: the first
// caller runs fn and inserts the result; every concurrent caller for the
// same fingerprint blocks on that flight and shares its outcome. The
// returned bool reports whether this call performed the render.
//
// A cancelled render never inserts into the cache, so a stale-input result
// cannot poison later lookups. Waiters honor their own context.
func (c *Cache) RenderOnce(ctx context.Context, fp fingerprint.Fingerprint, media timeline.Media, fn RenderFunc) (artifact.Artifact, bool, error) {
	c.flightMu.Lock()
	if f, ok := c.flights[fp]; ok {
		c.flightMu.Unlock()
		select {
		case <-f.done:
			return f.art, false, f.err
		case <-ctx.Done():
			return artifact.Artifact{}, false, ctx.Err()
		}
	}

	// Re-check under the flight lock: a previous flight may have inserted
	// between the caller's lookup and now.
	if art, ok := c.Lookup(fp); ok {
		c.flightMu.Unlock()
		return art, false, nil
	}

	f := &flight{done: make(chan struct{})}
	c.flights[fp] = f
	c.flightMu.Unlock()

	art, err := fn(ctx)
	if err == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
	}
	if err == nil {
		err = c.Insert(ctx, art, media)
	}
	if err != nil {
		c.logger.Debug("render flight failed",
			logging.String(logging.FieldFingerprint, fp.Short()),
			logging.Error(err))
		art = artifact.Artifact{}
	}

	f.art, f.err = art, err
	close(f.done)

	c.flightMu.Lock()
	delete(c.flights, fp)
	c.flightMu.Unlock()

	return art, true, err
}
