// Package session ties a single edit session together: the current edit
// decision list, its version history, the render dispatcher, and export.
// Edits derive new EDL versions copy-on-write, so an export reading an older
// version is never disturbed by concurrent edits.
package session
