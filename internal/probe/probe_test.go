package probe

import (
	"encoding/json"
	"testing"
	"time"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "channels": 2}
  ],
  "format": {
    "filename": "clip.mkv",
    "nb_streams": 2,
    "duration": "93.500000",
    "size": "104857600",
    "format_name": "matroska,webm"
  }
}`

func TestResultDecoding(t *testing.T) {
	var result Result
	if err := json.Unmarshal([]byte(sampleJSON), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := result.Duration(); got != 93500*time.Millisecond {
		t.Fatalf("Duration = %v, want 93.5s", got)
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("VideoStreamCount = %d, want 1", result.VideoStreamCount())
	}
	if result.AudioStreamCount() != 1 {
		t.Fatalf("AudioStreamCount = %d, want 1", result.AudioStreamCount())
	}
}

func TestDurationUnavailable(t *testing.T) {
	cases := []string{"", "N/A", "-1"}
	for _, value := range cases {
		result := Result{Format: Format{Duration: value}}
		if got := result.Duration(); got != 0 {
			t.Errorf("Duration(%q) = %v, want 0", value, got)
		}
	}
}
