// Package fingerprint derives the content-addressed cache key for a segment.
// The digest covers the source media identity and version, every segment
// parameter that affects rendered pixels or audio, and the predecessor's
// parameters whenever a transition couples the two. It deliberately excludes
// the segment's position in the EDL.
package fingerprint
