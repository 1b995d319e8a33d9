package assemble

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grafov/m3u8"

	"splice/internal/services"
)

// HLSWriter emits a VOD media playlist referencing each part's artifact as a
// segment URI. Parts stream into the playlist as they arrive; Close seals it
// and writes the manifest atomically.
type HLSWriter struct {
	manifestPath string
	playlist     *m3u8.MediaPlaylist
}

// NewHLSWriter creates a playlist writer sized for capacity parts. The
// window size matches capacity so no entry slides out before Close.
func NewHLSWriter(manifestPath string, capacity uint) (*HLSWriter, error) {
	if capacity == 0 {
		capacity = 1
	}
	playlist, err := m3u8.NewMediaPlaylist(capacity, capacity)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "assemble", "hls_init", "create media playlist", err)
	}
	playlist.MediaType = m3u8.VOD
	return &HLSWriter{manifestPath: manifestPath, playlist: playlist}, nil
}

func (w *HLSWriter) WritePart(_ context.Context, part Part) error {
	uri, err := filepath.Rel(filepath.Dir(w.manifestPath), part.Artifact.Path)
	if err != nil {
		uri = part.Artifact.Path
	}
	if err := w.playlist.Append(uri, part.Duration.Seconds(), ""); err != nil {
		return services.Wrap(services.ErrValidation, "assemble", "hls_append",
			fmt.Sprintf("append part %d to playlist", part.Index), err)
	}
	return nil
}

func (w *HLSWriter) Close(_ context.Context) error {
	w.playlist.Close()

	tmp := w.manifestPath + ".tmp"
	if err := os.WriteFile(tmp, w.playlist.Encode().Bytes(), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "assemble", "hls_write", "write manifest", err)
	}
	if err := os.Rename(tmp, w.manifestPath); err != nil {
		os.Remove(tmp)
		return services.Wrap(services.ErrTransient, "assemble", "hls_write", "publish manifest", err)
	}
	return nil
}
