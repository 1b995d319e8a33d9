package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestConsoleOutputIncludesComponentAndAttrs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "splice.log")
	logger, err := New(Options{Format: "console", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	NewComponentLogger(logger, "segcache").Info("entry evicted",
		String(FieldFingerprint, "abc123"),
		Int("bytes", 42))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, "segcache: entry evicted") {
		t.Fatalf("missing component prefix: %s", line)
	}
	if !strings.Contains(line, "fingerprint=abc123") || !strings.Contains(line, "bytes=42") {
		t.Fatalf("missing attrs: %s", line)
	}
	if !strings.Contains(line, "INFO") {
		t.Fatalf("missing level: %s", line)
	}
}

func TestJSONOutputUsesCompactKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "splice.json")
	logger, err := New(Options{Format: "json", Level: "debug", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Warn("cache pressure", Int64("total_bytes", 1024))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if record["msg"] != "cache pressure" {
		t.Fatalf("msg = %v", record["msg"])
	}
	if record["level"] != "warn" {
		t.Fatalf("level = %v", record["level"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatal("missing ts key")
	}
	if record["total_bytes"] != float64(1024) {
		t.Fatalf("total_bytes = %v", record["total_bytes"])
	}
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "splice.log")
	logger, err := New(Options{Format: "console", Level: "error", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("quiet")
	logger.Error("loud")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "quiet") {
		t.Fatal("info record leaked through error level")
	}
	if !strings.Contains(string(data), "loud") {
		t.Fatal("error record missing")
	}
}

func TestNewNopDiscardsEverything(t *testing.T) {
	logger := NewNop()
	// Must not panic and must report disabled at every level.
	logger.Debug("x")
	logger.Error("x")
}
