// Package logging wraps log/slog with the handlers and structured field
// conventions shared across the engine. Components receive a *slog.Logger
// through their constructors and tag records with a component attribute.
package logging
