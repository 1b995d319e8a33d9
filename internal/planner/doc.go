// Package planner compiles extracted source features and a style profile
// into a valid edit decision list. It owns the cut-point selection rules:
// scene changes propose cuts, energy peaks attract them, and the profile's
// pacing bounds decide which survive.
package planner
