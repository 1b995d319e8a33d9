package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRender()
	c.normalizeAssemble()
	c.normalizePlan()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeRender() {
	if c.Render.MaxParallel <= 0 {
		c.Render.MaxParallel = defaultMaxParallel
	}
	c.Render.Container = strings.TrimSpace(strings.TrimPrefix(c.Render.Container, "."))
	if c.Render.Container == "" {
		c.Render.Container = defaultContainer
	}
	if strings.TrimSpace(c.Render.FFmpegBinary) == "" {
		if value, ok := os.LookupEnv("SPLICE_FFMPEG"); ok && strings.TrimSpace(value) != "" {
			c.Render.FFmpegBinary = strings.TrimSpace(value)
		} else {
			c.Render.FFmpegBinary = defaultFFmpegBinary
		}
	}
	if strings.TrimSpace(c.Render.FFprobeBinary) == "" {
		if value, ok := os.LookupEnv("SPLICE_FFPROBE"); ok && strings.TrimSpace(value) != "" {
			c.Render.FFprobeBinary = strings.TrimSpace(value)
		} else {
			c.Render.FFprobeBinary = defaultFFprobeBinary
		}
	}
	if strings.TrimSpace(c.Render.VideoCodec) == "" {
		c.Render.VideoCodec = defaultVideoCodec
	}
	if strings.TrimSpace(c.Render.AudioCodec) == "" {
		c.Render.AudioCodec = defaultAudioCodec
	}
	if c.Render.CRF <= 0 {
		c.Render.CRF = defaultCRF
	}
}

func (c *Config) normalizeAssemble() {
	c.Assemble.Format = strings.ToLower(strings.TrimSpace(c.Assemble.Format))
	if c.Assemble.Format == "" {
		c.Assemble.Format = defaultAssembleFormat
	}
}

func (c *Config) normalizePlan() {
	c.Plan.Style = strings.ToLower(strings.TrimSpace(c.Plan.Style))
	if c.Plan.Style == "" {
		c.Plan.Style = defaultPlanStyle
	}
	if c.Plan.SceneIntervalSecs <= 0 {
		c.Plan.SceneIntervalSecs = defaultSceneInterval
	}
	if c.Plan.PeakIntervalSecs <= 0 {
		c.Plan.PeakIntervalSecs = defaultPeakInterval
	}
	if c.Plan.PeakPhaseSecs < 0 {
		c.Plan.PeakPhaseSecs = defaultPeakPhase
	}
	if c.Plan.MinFreeSpaceGiB < 0 {
		c.Plan.MinFreeSpaceGiB = defaultMinFreeGiB
	}
	if c.Plan.ProbeTimeoutSeconds <= 0 {
		c.Plan.ProbeTimeoutSeconds = defaultProbeTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
