// Package probe wraps ffprobe inspection of source media. Callers get the
// container duration and stream layout needed to validate an edit against
// its source before any rendering starts.
package probe
