// Package services provides shared error classification and context
// plumbing used by the rendering engine's collaborators (backend,
// analyzers, cache persistence).
package services
