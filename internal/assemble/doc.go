// Package assemble turns an ordered set of rendered segment artifacts into
// one continuous output. Boundaries with a declared transition overlap the
// earlier artifact's tail with the later artifact's head and blend them;
// everything else is a hard join. Output is produced part by part so writers
// that support progressive writes never need the whole timeline in memory.
package assemble
