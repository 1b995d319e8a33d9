// Package preflight verifies the host can actually run a render before any
// work starts: directories are writable, the cache volume has head-room,
// and the external binaries resolve.
package preflight
