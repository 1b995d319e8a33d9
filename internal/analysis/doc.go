// Package analysis defines the feature-extraction capabilities the planner
// consumes. Analyzers are single-method interfaces so callers can swap in
// heavier implementations; the built-in ones are deterministic heuristics
// that need nothing beyond the probed source duration.
package analysis
