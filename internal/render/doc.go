// Package render dispatches segment renders. Given an EDL and the set of
// changed segment indices it decides which segments the cache can serve,
// sends the rest to the rendering backend through a bounded worker pool,
// and reports fresh, reused, and failed slots in timeline order.
package render
