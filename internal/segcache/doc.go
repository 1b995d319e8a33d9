// Package segcache maps segment fingerprints to rendered artifacts. It owns
// artifact lifetime: entries are bounded by size, count, and age, evicted in
// least-recently-used order, and never removed while an assembly pass holds a
// lease on them. Concurrent renders of the same fingerprint are coalesced so
// the backend sees at most one call.
//
// When configured with a directory the cache persists its entries in a SQLite
// index and reloads them across sessions, purging entries whose recorded
// media version no longer matches the current source.
package segcache
