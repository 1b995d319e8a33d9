package segcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"splice/internal/artifact"
	"splice/internal/fingerprint"
	"splice/internal/logging"
	"splice/internal/timeline"
)

// Options bound the cache. Zero values leave the corresponding bound off.
type Options struct {
	// Dir enables persistence: artifacts live under Dir/artifacts and the
	// entry index under Dir/index.db. Empty keeps the cache memory-only.
	Dir        string
	MaxBytes   int64
	MaxEntries int
	TTL        time.Duration
	Logger     *slog.Logger
}

type entry struct {
	art          artifact.Artifact
	mediaID      string
	mediaVersion string
	createdAt    time.Time
	lastUsed     atomic.Int64 // unix nanos
	pins         atomic.Int32
	// orphaned marks an entry dropped from the map while still leased;
	// the last Release removes its file.
	orphaned atomic.Bool
}

// Cache is the only shared mutable state in the engine. Mutation (insert,
// evict, invalidate) is serialized behind the write lock; lookups run
// concurrently under the read lock with access times updated atomically.
type Cache struct {
	mu      sync.RWMutex
	entries map[fingerprint.Fingerprint]*entry

	flightMu sync.Mutex
	flights  map[fingerprint.Fingerprint]*flight

	opts   Options
	logger *slog.Logger
	index  *index
	lock   *flock.Flock
	closed bool
}

// Stats summarizes current cache usage.
type Stats struct {
	Entries    int   `json:"entries"`
	TotalBytes int64 `json:"total_bytes"`
	MaxBytes   int64 `json:"max_bytes"`
	MaxEntries int   `json:"max_entries"`
	Pinned     int   `json:"pinned"`
}

// Open builds a cache. With a directory configured it takes an exclusive
// lock on the directory, opens the persisted index, and reloads entries
// whose artifact files still exist.
func Open(ctx context.Context, opts Options) (*Cache, error) {
	c := &Cache{
		entries: make(map[fingerprint.Fingerprint]*entry),
		flights: make(map[fingerprint.Fingerprint]*flight),
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "segcache"),
	}

	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return c, nil
	}

	if err := os.MkdirAll(filepath.Join(dir, "artifacts"), 0o755); err != nil {
		return nil, fmt.Errorf("segcache: ensure cache directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, "cache.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("segcache: lock cache directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("segcache: cache directory %s is locked by another process", dir)
	}
	c.lock = lock

	idx, err := openIndex(ctx, filepath.Join(dir, "index.db"))
	if err != nil {
		releaseLock(lock)
		return nil, err
	}
	c.index = idx

	if err := c.reload(ctx); err != nil {
		_ = idx.Close()
		releaseLock(lock)
		return nil, err
	}
	return c, nil
}

func releaseLock(lock *flock.Flock) {
	if lock != nil {
		_ = lock.Unlock()
	}
}

func (c *Cache) reload(ctx context.Context) error {
	rows, err := c.index.load(ctx)
	if err != nil {
		return err
	}
	restored := 0
	for _, row := range rows {
		info, statErr := os.Stat(row.Path)
		if statErr != nil || info.IsDir() {
			// Artifact disappeared underneath the index; drop the row.
			if err := c.index.remove(ctx, row.Fingerprint); err != nil {
				return err
			}
			continue
		}
		ent := &entry{
			art: artifact.Artifact{
				ID:          row.ArtifactID,
				Fingerprint: row.Fingerprint,
				Path:        row.Path,
				Size:        row.Size,
				Checksum:    row.Checksum,
				CreatedAt:   row.CreatedAt,
			},
			mediaID:      row.MediaID,
			mediaVersion: row.MediaVersion,
			createdAt:    row.CreatedAt,
		}
		ent.lastUsed.Store(row.LastAccess.UnixNano())
		c.entries[row.Fingerprint] = ent
		restored++
	}
	c.logger.Debug("reloaded cache index",
		logging.Int("restored", restored),
		logging.Int("dropped", len(rows)-restored))
	return nil
}

// ArtifactPath returns where a freshly rendered artifact for the fingerprint
// should be written. Falls back to the system temp directory for
// memory-only caches.
func (c *Cache) ArtifactPath(fp fingerprint.Fingerprint, ext string) string {
	name := string(fp)
	if ext != "" {
		name += "." + strings.TrimPrefix(ext, ".")
	}
	return filepath.Join(c.artifactsRoot(), name)
}

// artifactsRoot is the one directory whose files the cache owns and may
// delete. Memory-only caches still stage artifact files, under the system
// temp directory.
func (c *Cache) artifactsRoot() string {
	if strings.TrimSpace(c.opts.Dir) == "" {
		return filepath.Join(os.TempDir(), "splice-artifacts")
	}
	return filepath.Join(c.opts.Dir, "artifacts")
}

// Lookup returns the cached artifact for the fingerprint, refreshing its
// recency. Expired entries miss.
func (c *Cache) Lookup(fp fingerprint.Fingerprint) (artifact.Artifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ent, ok := c.entries[fp]
	if !ok {
		return artifact.Artifact{}, false
	}
	if c.expired(ent, time.Now()) {
		return artifact.Artifact{}, false
	}
	ent.lastUsed.Store(time.Now().UnixNano())
	return ent.art, true
}

// Insert records a rendered artifact. Re-inserting identical content for an
// existing fingerprint is a no-op; different content fails loudly with
// ConsistencyError. A successful insert may trigger eviction of other,
// unpinned entries.
func (c *Cache) Insert(ctx context.Context, art artifact.Artifact, media timeline.Media) error {
	if art.Fingerprint == "" {
		return errors.New("segcache: artifact has no fingerprint")
	}

	c.mu.Lock()
	if existing, ok := c.entries[art.Fingerprint]; ok {
		c.mu.Unlock()
		if existing.art.SameContent(art) {
			existing.lastUsed.Store(time.Now().UnixNano())
			return nil
		}
		return &ConsistencyError{
			Fingerprint: art.Fingerprint,
			Existing:    existing.art.Checksum,
			Incoming:    art.Checksum,
		}
	}

	now := time.Now()
	ent := &entry{
		art:          art,
		mediaID:      media.ID,
		mediaVersion: media.Version,
		createdAt:    now,
	}
	ent.lastUsed.Store(now.UnixNano())
	c.entries[art.Fingerprint] = ent
	c.mu.Unlock()

	if c.index != nil {
		if err := c.index.upsert(ctx, indexRow{
			Fingerprint:  art.Fingerprint,
			ArtifactID:   art.ID,
			Path:         art.Path,
			Size:         art.Size,
			Checksum:     art.Checksum,
			MediaID:      media.ID,
			MediaVersion: media.Version,
			CreatedAt:    now.UTC(),
			LastAccess:   now.UTC(),
		}); err != nil {
			return err
		}
	}

	c.logger.Debug("cached artifact",
		logging.String(logging.FieldFingerprint, art.Fingerprint.Short()),
		logging.Int64("size_bytes", art.Size))

	return c.Sweep(ctx)
}

// Invalidate evicts one fingerprint. The artifact file is removed unless the
// entry is leased by an in-flight assembly, in which case the readers keep
// the file and only the mapping is dropped.
func (c *Cache) Invalidate(ctx context.Context, fp fingerprint.Fingerprint) error {
	c.mu.Lock()
	ent, ok := c.entries[fp]
	if ok {
		delete(c.entries, fp)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return c.discard(ctx, fp, ent)
}

// InvalidateAll evicts every entry; used when source media changed
// underneath the cache.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	dropped := c.entries
	c.entries = make(map[fingerprint.Fingerprint]*entry)
	c.mu.Unlock()

	var firstErr error
	for fp, ent := range dropped {
		if err := c.discard(ctx, fp, ent); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PurgeMedia evicts entries recorded against the same media identity but a
// different version. Every render pass runs this first, so entries reloaded
// from a superseded ingest of the source never accumulate.
func (c *Cache) PurgeMedia(ctx context.Context, media timeline.Media) error {
	c.mu.Lock()
	var stale []fingerprint.Fingerprint
	for fp, ent := range c.entries {
		if ent.mediaID == media.ID && ent.mediaVersion != media.Version {
			stale = append(stale, fp)
		}
	}
	dropped := make(map[fingerprint.Fingerprint]*entry, len(stale))
	for _, fp := range stale {
		dropped[fp] = c.entries[fp]
		delete(c.entries, fp)
	}
	c.mu.Unlock()

	if len(dropped) > 0 {
		c.logger.Info("purged stale media entries",
			logging.String("media_id", media.ID),
			logging.String("media_version", media.Version),
			logging.Int("purged", len(dropped)))
	}

	var firstErr error
	for fp, ent := range dropped {
		if err := c.discard(ctx, fp, ent); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Lease pins entries for the duration of an assembly pass.
type Lease struct {
	cache   *Cache
	entries []*entry
	once    sync.Once
}

// Release unpins the leased entries. Safe to call more than once. Entries
// invalidated while the lease held them have their files removed here.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		for _, ent := range l.entries {
			if ent.pins.Add(-1) == 0 && ent.orphaned.Load() {
				_ = l.cache.removeArtifactFile(ent.art.Path)
			}
		}
	})
}

// Acquire pins the given fingerprints so eviction cannot remove them while
// an assembly pass reads their artifacts. Missing entries fail the whole
// acquisition with MissingEntryError.
func (c *Cache) Acquire(fps ...fingerprint.Fingerprint) (*Lease, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	lease := &Lease{cache: c, entries: make([]*entry, 0, len(fps))}
	var missing []fingerprint.Fingerprint
	for _, fp := range fps {
		ent, ok := c.entries[fp]
		if !ok {
			missing = append(missing, fp)
			continue
		}
		ent.pins.Add(1)
		lease.entries = append(lease.entries, ent)
	}
	if len(missing) > 0 {
		lease.Release()
		return nil, &MissingEntryError{Fingerprints: missing}
	}
	return lease, nil
}

// Sweep enforces the TTL and size/count bounds, evicting unpinned entries in
// least-recently-used order.
func (c *Cache) Sweep(ctx context.Context) error {
	now := time.Now()

	c.mu.Lock()
	var victims []fingerprint.Fingerprint

	for fp, ent := range c.entries {
		if c.expired(ent, now) && ent.pins.Load() == 0 {
			victims = append(victims, fp)
		}
	}
	for _, fp := range victims {
		delete(c.entries, fp)
	}

	over := func() bool {
		if c.opts.MaxEntries > 0 && len(c.entries) > c.opts.MaxEntries {
			return true
		}
		if c.opts.MaxBytes > 0 && c.totalBytesLocked() > c.opts.MaxBytes {
			return true
		}
		return false
	}

	if over() {
		type candidate struct {
			fp       fingerprint.Fingerprint
			lastUsed int64
		}
		candidates := make([]candidate, 0, len(c.entries))
		for fp, ent := range c.entries {
			if ent.pins.Load() > 0 {
				continue
			}
			candidates = append(candidates, candidate{fp: fp, lastUsed: ent.lastUsed.Load()})
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].lastUsed < candidates[j].lastUsed })
		for _, cand := range candidates {
			if !over() {
				break
			}
			victims = append(victims, cand.fp)
			delete(c.entries, cand.fp)
		}
	}

	c.mu.Unlock()

	var firstErr error
	for _, fp := range victims {
		if err := c.discardByFingerprint(ctx, fp); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if len(victims) > 0 {
		c.logger.Debug("evicted cache entries", logging.Int("evicted", len(victims)))
	}
	return firstErr
}

// Stats reports current usage.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := Stats{
		Entries:    len(c.entries),
		MaxBytes:   c.opts.MaxBytes,
		MaxEntries: c.opts.MaxEntries,
	}
	for _, ent := range c.entries {
		stats.TotalBytes += ent.art.Size
		if ent.pins.Load() > 0 {
			stats.Pinned++
		}
	}
	return stats
}

// Close flushes access times to the index and releases the directory lock.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	snapshot := make(map[fingerprint.Fingerprint]time.Time, len(c.entries))
	for fp, ent := range c.entries {
		snapshot[fp] = time.Unix(0, ent.lastUsed.Load()).UTC()
	}
	c.mu.Unlock()

	var firstErr error
	if c.index != nil {
		for fp, at := range snapshot {
			if err := c.index.touch(ctx, fp, at); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := c.index.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	releaseLock(c.lock)
	return firstErr
}

func (c *Cache) expired(ent *entry, now time.Time) bool {
	return c.opts.TTL > 0 && now.Sub(ent.createdAt) > c.opts.TTL
}

func (c *Cache) totalBytesLocked() int64 {
	var total int64
	for _, ent := range c.entries {
		total += ent.art.Size
	}
	return total
}

func (c *Cache) discard(ctx context.Context, fp fingerprint.Fingerprint, ent *entry) error {
	if c.index != nil {
		if err := c.index.remove(ctx, fp); err != nil {
			return err
		}
	}
	if ent.pins.Load() > 0 {
		// Leased readers keep the file; the final Release removes it.
		ent.orphaned.Store(true)
		return nil
	}
	return c.removeArtifactFile(ent.art.Path)
}

func (c *Cache) discardByFingerprint(ctx context.Context, fp fingerprint.Fingerprint) error {
	if c.index != nil {
		if err := c.index.remove(ctx, fp); err != nil {
			return err
		}
	}
	return c.removeArtifactFile(c.ArtifactPath(fp, ""))
}

func (c *Cache) removeArtifactFile(path string) error {
	// Only delete files the cache owns.
	if !strings.HasPrefix(path, c.artifactsRoot()) {
		return nil
	}
	matches, err := filepath.Glob(path + "*")
	if err != nil {
		return nil
	}
	for _, match := range matches {
		if err := os.Remove(match); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("failed to remove evicted artifact",
				logging.String("path", match),
				logging.Error(err))
		}
	}
	return nil
}
