package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"splice/internal/timeline"
)

// readEDL loads and validates an EDL JSON document.
func readEDL(path string) (*timeline.EDL, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read EDL: %w", err)
	}
	var edl timeline.EDL
	if err := json.Unmarshal(data, &edl); err != nil {
		return nil, fmt.Errorf("parse EDL %s: %w", path, err)
	}
	if err := edl.Validate(); err != nil {
		return nil, err
	}
	return &edl, nil
}

// writeEDL writes the EDL atomically: temp file in the target directory,
// then rename.
func writeEDL(edl *timeline.EDL, path string) error {
	data, err := json.MarshalIndent(edl, "", "  ")
	if err != nil {
		return fmt.Errorf("encode EDL: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".edl-*.json")
	if err != nil {
		return fmt.Errorf("create temp EDL: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write EDL: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("flush EDL: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish EDL: %w", err)
	}
	return nil
}
