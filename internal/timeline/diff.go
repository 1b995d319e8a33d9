package timeline

import (
	"fmt"
	"sort"
)

// Edit replaces the segment at Index with new parameters. Edits are how
// upstream planning communicates user changes to the rendering engine.
type Edit struct {
	Index   int     `json:"index"`
	Segment Segment `json:"segment"`
}

// Apply derives a new EDL with the edits applied and returns it together
// with the sorted, de-duplicated list of changed indices. The receiver is
// left untouched so an in-flight assembly keeps reading a stable version.
func (e *EDL) Apply(edits []Edit) (*EDL, []int, error) {
	next := e.Clone()
	seen := make(map[int]struct{}, len(edits))
	for _, edit := range edits {
		if edit.Index < 0 || edit.Index >= len(next.Segments) {
			return nil, nil, fmt.Errorf("edit index %d out of range (EDL has %d segments)", edit.Index, len(next.Segments))
		}
		next.Segments[edit.Index] = edit.Segment.clone()
		seen[edit.Index] = struct{}{}
	}

	if err := next.Validate(); err != nil {
		return nil, nil, err
	}

	changed := make([]int, 0, len(seen))
	for idx := range seen {
		changed = append(changed, idx)
	}
	sort.Ints(changed)
	return next, changed, nil
}
