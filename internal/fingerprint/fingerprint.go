package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"strconv"

	"splice/internal/timeline"
)

// Fingerprint is a hex-encoded digest used purely as a cache key.
type Fingerprint string

// Short returns an abbreviated form suitable for log lines.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// BoundaryContext carries the neighbor parameters a transition depends on.
// Predecessor is nil for the first segment and for segments whose transition
// does not couple them to their neighbor.
type BoundaryContext struct {
	Predecessor *timeline.Segment
}

// schemaTag versions the canonical encoding. Bump it whenever the encoded
// field set changes so stale persisted entries miss instead of colliding.
const schemaTag = "splice-fp-v1"

// Compute derives the segment's fingerprint. It is pure: identical inputs
// always produce identical output, and any rendering-relevant parameter
// change produces a different output.
func Compute(media timeline.Media, seg timeline.Segment, boundary BoundaryContext) Fingerprint {
	h := sha256.New()
	writeField(h, "schema", schemaTag)
	writeField(h, "media.id", media.ID)
	writeField(h, "media.version", media.Version)
	writeSegment(h, "segment", seg, true)

	if seg.Transition.CouplesPredecessor() && boundary.Predecessor != nil {
		// The predecessor's own transition joins it to an earlier segment
		// and cannot affect frames inside this boundary, so it is skipped.
		writeSegment(h, "boundary", *boundary.Predecessor, false)
	}

	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

func writeSegment(h hash.Hash, prefix string, seg timeline.Segment, includeTransition bool) {
	writeField(h, prefix+".start", strconv.FormatInt(int64(seg.Start), 10))
	writeField(h, prefix+".end", strconv.FormatInt(int64(seg.End), 10))
	writeField(h, prefix+".speed", formatFloat(seg.Speed))
	if includeTransition {
		writeField(h, prefix+".transition.kind", string(seg.Transition.Kind))
		writeField(h, prefix+".transition.duration", strconv.FormatInt(int64(seg.Transition.Duration), 10))
		writeField(h, prefix+".transition.direction", string(seg.Transition.Direction))
	}
	writeField(h, prefix+".grade.name", seg.Grade.Name)
	writeParams(h, prefix+".grade", seg.Grade.Params)
	for i, effect := range seg.Effects {
		key := fmt.Sprintf("%s.effect.%d", prefix, i)
		writeField(h, key+".type", effect.Type)
		writeParams(h, key, effect.Params)
	}
}

func writeParams(h hash.Hash, prefix string, params map[string]float64) {
	if len(params) == 0 {
		return
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(h, prefix+".param."+k, formatFloat(params[k]))
	}
}

func writeField(h hash.Hash, key, value string) {
	// Length prefixes keep adjacent fields from aliasing each other.
	fmt.Fprintf(h, "%d:%s=%d:%s\n", len(key), key, len(value), value)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
