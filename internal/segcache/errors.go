package segcache

import (
	"fmt"

	"splice/internal/fingerprint"
)

// ConsistencyError reports an attempt to overwrite an existing fingerprint
// with different artifact content. Fingerprints are content-stable, so this
// is a programmer error and is never resolved silently.
type ConsistencyError struct {
	Fingerprint fingerprint.Fingerprint
	Existing    string
	Incoming    string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("cache consistency: fingerprint %s already maps to checksum %s, refusing insert of %s",
		e.Fingerprint.Short(), shortSum(e.Existing), shortSum(e.Incoming))
}

// MissingEntryError reports fingerprints requested by an assembly lease that
// are no longer cached.
type MissingEntryError struct {
	Fingerprints []fingerprint.Fingerprint
}

func (e *MissingEntryError) Error() string {
	return fmt.Sprintf("cache lease: %d requested entries are missing", len(e.Fingerprints))
}

func shortSum(sum string) string {
	if len(sum) <= 12 {
		return sum
	}
	return sum[:12]
}
