package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"splice/internal/fingerprint"
)

// Artifact is an opaque handle to one rendered segment. The media bytes live
// at Path; the handle itself is safe to copy and never mutated after creation.
type Artifact struct {
	ID          string                  `json:"id"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Path        string                  `json:"path"`
	Size        int64                   `json:"size"`
	Checksum    string                  `json:"checksum"`
	CreatedAt   time.Time               `json:"created_at"`
}

// FromFile builds an artifact handle for a freshly rendered file, recording
// its size and content checksum.
func FromFile(fp fingerprint.Fingerprint, path string) (Artifact, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Artifact{}, errors.New("artifact: empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("artifact: inspect %s: %w", path, err)
	}
	if info.IsDir() {
		return Artifact{}, fmt.Errorf("artifact: %s is a directory", path)
	}
	sum, err := checksumFile(path)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{
		ID:          uuid.NewString(),
		Fingerprint: fp,
		Path:        path,
		Size:        info.Size(),
		Checksum:    sum,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// SameContent reports whether two handles refer to byte-identical media.
func (a Artifact) SameContent(other Artifact) bool {
	return a.Size == other.Size && a.Checksum == other.Checksum
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("artifact: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("artifact: checksum %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
