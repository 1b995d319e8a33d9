package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateAssemble(); err != nil {
		return err
	}
	if err := c.validatePlan(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateCache() error {
	if c.Cache.MaxGiB < 0 {
		return errors.New("cache.max_gib must not be negative")
	}
	if c.Cache.MaxEntries < 0 {
		return errors.New("cache.max_entries must not be negative")
	}
	if c.Cache.TTLHours < 0 {
		return errors.New("cache.ttl_hours must not be negative")
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.MaxParallel < 1 {
		return errors.New("render.max_parallel must be at least 1")
	}
	if c.Render.CRF < 0 || c.Render.CRF > 51 {
		return errors.New("render.crf must be between 0 and 51")
	}
	return nil
}

func (c *Config) validateAssemble() error {
	switch c.Assemble.Format {
	case "file", "hls":
		return nil
	default:
		return fmt.Errorf("assemble.format %q is not supported (file, hls)", c.Assemble.Format)
	}
}

func (c *Config) validatePlan() error {
	if c.Plan.SceneIntervalSecs < 1 {
		return errors.New("plan.scene_interval_seconds must be at least 1")
	}
	if c.Plan.PeakIntervalSecs < 1 {
		return errors.New("plan.peak_interval_seconds must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (console, json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported (debug, info, warn, error)", c.Logging.Level)
	}
	return nil
}
