// Package timeline defines the edit decision list model: segments, their
// transition/effect/grade parameters, and the structural validation rules an
// EDL must satisfy before any rendering is dispatched.
package timeline
