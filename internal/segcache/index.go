package segcache

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"splice/internal/fingerprint"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current index schema version. Bump this when the
// schema changes; a mismatched index is rejected rather than migrated since
// cached artifacts can always be re-rendered.
const schemaVersion = 1

// ErrSchemaMismatch indicates the index schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("cache index schema version mismatch")

type indexRow struct {
	Fingerprint  fingerprint.Fingerprint
	ArtifactID   string
	Path         string
	Size         int64
	Checksum     string
	MediaID      string
	MediaVersion string
	CreatedAt    time.Time
	LastAccess   time.Time
}

type index struct {
	db *sql.DB
}

const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func openIndex(ctx context.Context, path string) (*index, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("segcache: open index: %w", err)
	}
	idx := &index{db: db}
	if err := idx.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (i *index) initSchema(ctx context.Context) error {
	var tableExists int
	err := i.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("segcache: check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return i.createSchema(ctx)
	}

	var version int
	if err := i.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("segcache: read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: index has version %d, expected %d (clear the cache directory)",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

func (i *index) createSchema(ctx context.Context) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("segcache: begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("segcache: create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("segcache: record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("segcache: commit schema: %w", err)
	}
	return nil
}

func (i *index) load(ctx context.Context) ([]indexRow, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT fingerprint, artifact_id, path, size_bytes, checksum, media_id, media_version, created_at, last_access
		FROM entries`)
	if err != nil {
		return nil, fmt.Errorf("segcache: load index: %w", err)
	}
	defer rows.Close()

	var out []indexRow
	for rows.Next() {
		var (
			row                   indexRow
			fp, created, lastUsed string
		)
		if err := rows.Scan(&fp, &row.ArtifactID, &row.Path, &row.Size, &row.Checksum,
			&row.MediaID, &row.MediaVersion, &created, &lastUsed); err != nil {
			return nil, fmt.Errorf("segcache: scan index row: %w", err)
		}
		row.Fingerprint = fingerprint.Fingerprint(fp)
		row.CreatedAt = parseIndexTime(created)
		row.LastAccess = parseIndexTime(lastUsed)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("segcache: iterate index rows: %w", err)
	}
	return out, nil
}

func (i *index) upsert(ctx context.Context, row indexRow) error {
	return i.execWithRetry(ctx, `
		INSERT INTO entries (fingerprint, artifact_id, path, size_bytes, checksum, media_id, media_version, created_at, last_access)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			artifact_id = excluded.artifact_id,
			path = excluded.path,
			size_bytes = excluded.size_bytes,
			checksum = excluded.checksum,
			media_id = excluded.media_id,
			media_version = excluded.media_version,
			last_access = excluded.last_access`,
		string(row.Fingerprint), row.ArtifactID, row.Path, row.Size, row.Checksum,
		row.MediaID, row.MediaVersion, formatIndexTime(row.CreatedAt), formatIndexTime(row.LastAccess))
}

func (i *index) remove(ctx context.Context, fp fingerprint.Fingerprint) error {
	return i.execWithRetry(ctx, "DELETE FROM entries WHERE fingerprint = ?", string(fp))
}

func (i *index) touch(ctx context.Context, fp fingerprint.Fingerprint, at time.Time) error {
	return i.execWithRetry(ctx, "UPDATE entries SET last_access = ? WHERE fingerprint = ?",
		formatIndexTime(at), string(fp))
}

func (i *index) Close() error {
	return i.db.Close()
}

func (i *index) execWithRetry(ctx context.Context, query string, args ...any) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		_, lastErr = i.db.ExecContext(ctx, query, args...)
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == 5 {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func formatIndexTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseIndexTime(value string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}
