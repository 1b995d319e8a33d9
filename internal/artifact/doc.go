// Package artifact defines the handle for backend-rendered segment media.
// Artifacts are write-once: produced by the rendering backend, recorded in
// the segment cache, and consumed by timeline assembly.
package artifact
