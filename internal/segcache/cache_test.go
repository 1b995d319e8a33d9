package segcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"splice/internal/artifact"
	"splice/internal/fingerprint"
	"splice/internal/timeline"
)

var testMedia = timeline.Media{ID: "clip-001", Version: "v1"}

func testFingerprint(n int) fingerprint.Fingerprint {
	return fingerprint.Fingerprint(fmt.Sprintf("%064d", n))
}

func writeArtifact(t *testing.T, dir string, fp fingerprint.Fingerprint, content string) artifact.Artifact {
	t.Helper()
	path := filepath.Join(dir, string(fp)+".mkv")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	art, err := artifact.FromFile(fp, path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	return art
}

func openTestCache(t *testing.T, opts Options) *Cache {
	t.Helper()
	cache, err := Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close(context.Background()) })
	return cache
}

func TestInsertAndLookup(t *testing.T) {
	cache := openTestCache(t, Options{})
	art := writeArtifact(t, t.TempDir(), testFingerprint(1), "frames-1")

	if err := cache.Insert(context.Background(), art, testMedia); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, ok := cache.Lookup(testFingerprint(1))
	if !ok {
		t.Fatal("Lookup missed freshly inserted entry")
	}
	if got.Checksum != art.Checksum {
		t.Fatalf("checksum mismatch: got %s want %s", got.Checksum, art.Checksum)
	}
	if _, ok := cache.Lookup(testFingerprint(2)); ok {
		t.Fatal("Lookup hit an entry that was never inserted")
	}
}

func TestInsertSameContentIsNoOp(t *testing.T) {
	cache := openTestCache(t, Options{})
	dir := t.TempDir()
	art := writeArtifact(t, dir, testFingerprint(1), "frames-1")

	if err := cache.Insert(context.Background(), art, testMedia); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	again := writeArtifact(t, dir, testFingerprint(1), "frames-1")
	if err := cache.Insert(context.Background(), again, testMedia); err != nil {
		t.Fatalf("idempotent Insert returned error: %v", err)
	}
}

func TestInsertConflictingContentFailsLoudly(t *testing.T) {
	cache := openTestCache(t, Options{})
	dir := t.TempDir()

	if err := cache.Insert(context.Background(), writeArtifact(t, dir, testFingerprint(1), "frames-1"), testMedia); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := cache.Insert(context.Background(), writeArtifact(t, filepath.Join(dir, "other"), testFingerprint(1), "different"), testMedia)
	if err == nil {
		t.Fatal("expected ConsistencyError for conflicting insert")
	}
	var consistency *ConsistencyError
	if !errors.As(err, &consistency) {
		t.Fatalf("expected ConsistencyError, got %T: %v", err, err)
	}
	// Original content must survive.
	got, ok := cache.Lookup(testFingerprint(1))
	if !ok || got.Size != int64(len("frames-1")) {
		t.Fatal("conflicting insert disturbed the existing entry")
	}
}

func TestEvictionIsLeastRecentlyUsed(t *testing.T) {
	cache := openTestCache(t, Options{MaxEntries: 2})
	dir := t.TempDir()

	for n := 1; n <= 2; n++ {
		if err := cache.Insert(context.Background(), writeArtifact(t, dir, testFingerprint(n), "x"), testMedia); err != nil {
			t.Fatalf("Insert %d: %v", n, err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	// Refresh entry 1 so entry 2 becomes the LRU victim.
	if _, ok := cache.Lookup(testFingerprint(1)); !ok {
		t.Fatal("Lookup 1 missed")
	}
	time.Sleep(2 * time.Millisecond)
	if err := cache.Insert(context.Background(), writeArtifact(t, dir, testFingerprint(3), "x"), testMedia); err != nil {
		t.Fatalf("Insert 3: %v", err)
	}

	if _, ok := cache.Lookup(testFingerprint(2)); ok {
		t.Fatal("expected entry 2 to be evicted")
	}
	if _, ok := cache.Lookup(testFingerprint(1)); !ok {
		t.Fatal("recently used entry 1 was evicted")
	}
	if _, ok := cache.Lookup(testFingerprint(3)); !ok {
		t.Fatal("fresh entry 3 was evicted")
	}
}

func TestEvictionByTotalBytes(t *testing.T) {
	cache := openTestCache(t, Options{MaxBytes: 10})
	dir := t.TempDir()

	if err := cache.Insert(context.Background(), writeArtifact(t, dir, testFingerprint(1), "12345678"), testMedia); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	if err := cache.Insert(context.Background(), writeArtifact(t, dir, testFingerprint(2), "12345678"), testMedia); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	stats := cache.Stats()
	if stats.TotalBytes > 10 {
		t.Fatalf("cache over byte limit: %d bytes", stats.TotalBytes)
	}
	if _, ok := cache.Lookup(testFingerprint(1)); ok {
		t.Fatal("expected oldest entry evicted under byte pressure")
	}
}

func TestLeasedEntrySurvivesEviction(t *testing.T) {
	cache := openTestCache(t, Options{MaxEntries: 1})
	dir := t.TempDir()

	if err := cache.Insert(context.Background(), writeArtifact(t, dir, testFingerprint(1), "x"), testMedia); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	lease, err := cache.Acquire(testFingerprint(1))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	time.Sleep(2 * time.Millisecond)
	if err := cache.Insert(context.Background(), writeArtifact(t, dir, testFingerprint(2), "x"), testMedia); err != nil {
		t.Fatalf("Insert under pressure: %v", err)
	}
	if _, ok := cache.Lookup(testFingerprint(1)); !ok {
		t.Fatal("pinned entry was evicted mid-lease")
	}

	lease.Release()
	if err := cache.Sweep(context.Background()); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if stats := cache.Stats(); stats.Entries != 1 {
		t.Fatalf("expected released entry to become evictable, have %d entries", stats.Entries)
	}
}

func TestInvalidateDuringLeaseRemovesFileOnRelease(t *testing.T) {
	ctx := context.Background()
	cache := openTestCache(t, Options{Dir: t.TempDir()})

	path := cache.ArtifactPath(testFingerprint(1), "mkv")
	if err := os.WriteFile(path, []byte("frames"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	art, err := artifact.FromFile(testFingerprint(1), path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if err := cache.Insert(ctx, art, testMedia); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	lease, err := cache.Acquire(testFingerprint(1))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := cache.Invalidate(ctx, testFingerprint(1)); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("leased artifact file removed while still pinned: %v", err)
	}

	lease.Release()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("orphaned artifact file survived the final release")
	}
}

func TestMemoryOnlyCacheRemovesArtifactFiles(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())
	ctx := context.Background()
	cache := openTestCache(t, Options{})

	path := cache.ArtifactPath(testFingerprint(1), "mkv")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("frames"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	art, err := artifact.FromFile(testFingerprint(1), path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if err := cache.Insert(ctx, art, testMedia); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := cache.Invalidate(ctx, testFingerprint(1)); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("memory-only cache left its staged artifact file behind")
	}
}

func TestAcquireMissingEntry(t *testing.T) {
	cache := openTestCache(t, Options{})
	_, err := cache.Acquire(testFingerprint(9))
	var missing *MissingEntryError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingEntryError, got %v", err)
	}
	if len(missing.Fingerprints) != 1 {
		t.Fatalf("missing list = %v", missing.Fingerprints)
	}
}

func TestTTLExpiry(t *testing.T) {
	cache := openTestCache(t, Options{TTL: 20 * time.Millisecond})
	art := writeArtifact(t, t.TempDir(), testFingerprint(1), "x")

	if err := cache.Insert(context.Background(), art, testMedia); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if _, ok := cache.Lookup(testFingerprint(1)); ok {
		t.Fatal("expired entry still served")
	}
}

func TestInvalidateAll(t *testing.T) {
	cache := openTestCache(t, Options{})
	dir := t.TempDir()
	for n := 1; n <= 3; n++ {
		if err := cache.Insert(context.Background(), writeArtifact(t, dir, testFingerprint(n), "x"), testMedia); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := cache.InvalidateAll(context.Background()); err != nil {
		t.Fatalf("InvalidateAll: %v", err)
	}
	if stats := cache.Stats(); stats.Entries != 0 {
		t.Fatalf("expected empty cache, have %d entries", stats.Entries)
	}
}

func TestRenderOnceCoalescesConcurrentCallers(t *testing.T) {
	cache := openTestCache(t, Options{})
	dir := t.TempDir()
	fp := testFingerprint(1)

	var calls int64
	release := make(chan struct{})
	fn := func(ctx context.Context) (artifact.Artifact, error) {
		atomic.AddInt64(&calls, 1)
		<-release
		return writeArtifact(t, dir, fp, "frames"), nil
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]artifact.Artifact, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			art, _, err := cache.RenderOnce(context.Background(), fp, testMedia, fn)
			results[i], errs[i] = art, err
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("backend called %d times, want exactly 1", got)
	}
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error: %v", i, errs[i])
		}
		if results[i].Checksum != results[0].Checksum {
			t.Fatalf("caller %d received different artifact", i)
		}
	}
}

func TestRenderOnceCancelledDoesNotInsert(t *testing.T) {
	cache := openTestCache(t, Options{})
	dir := t.TempDir()
	fp := testFingerprint(1)

	ctx, cancel := context.WithCancel(context.Background())
	fn := func(ctx context.Context) (artifact.Artifact, error) {
		cancel()
		return writeArtifact(t, dir, fp, "stale"), nil
	}

	if _, _, err := cache.RenderOnce(ctx, fp, testMedia, fn); err == nil {
		t.Fatal("expected error from cancelled render")
	}
	if _, ok := cache.Lookup(fp); ok {
		t.Fatal("cancelled render poisoned the cache")
	}
}

func TestRenderOnceSkipsBackendOnCacheHit(t *testing.T) {
	cache := openTestCache(t, Options{})
	dir := t.TempDir()
	fp := testFingerprint(1)

	if err := cache.Insert(context.Background(), writeArtifact(t, dir, fp, "frames"), testMedia); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	art, fresh, err := cache.RenderOnce(context.Background(), fp, testMedia, func(context.Context) (artifact.Artifact, error) {
		t.Fatal("backend called despite cache hit")
		return artifact.Artifact{}, nil
	})
	if err != nil {
		t.Fatalf("RenderOnce: %v", err)
	}
	if fresh {
		t.Fatal("cache hit reported as fresh render")
	}
	if art.Fingerprint != fp {
		t.Fatalf("unexpected artifact %+v", art)
	}
}

func TestPersistedCacheReloads(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cache, err := Open(ctx, Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	path := cache.ArtifactPath(testFingerprint(1), "mkv")
	if err := os.WriteFile(path, []byte("frames"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	art, err := artifact.FromFile(testFingerprint(1), path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if err := cache.Insert(ctx, art, testMedia); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := cache.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(ctx, Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close(ctx)

	got, ok := reopened.Lookup(testFingerprint(1))
	if !ok {
		t.Fatal("persisted entry did not survive reload")
	}
	if got.Checksum != art.Checksum {
		t.Fatalf("reloaded checksum mismatch: %s vs %s", got.Checksum, art.Checksum)
	}
}

func TestPersistedCachePurgesStaleMediaVersion(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	cache, err := Open(ctx, Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	path := cache.ArtifactPath(testFingerprint(1), "mkv")
	if err := os.WriteFile(path, []byte("frames"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	art, err := artifact.FromFile(testFingerprint(1), path)
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if err := cache.Insert(ctx, art, testMedia); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := cache.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(ctx, Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close(ctx)

	reingested := timeline.Media{ID: "clip-001", Version: "v2"}
	if err := reopened.PurgeMedia(ctx, reingested); err != nil {
		t.Fatalf("PurgeMedia: %v", err)
	}
	if _, ok := reopened.Lookup(testFingerprint(1)); ok {
		t.Fatal("entry from superseded media version still served")
	}
}

func TestSecondOpenOnLockedDirFails(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := Open(ctx, Options{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer first.Close(ctx)

	if _, err := Open(ctx, Options{Dir: dir}); err == nil {
		t.Fatal("expected second Open on locked directory to fail")
	}
}
