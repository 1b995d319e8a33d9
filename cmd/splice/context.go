package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"splice/internal/config"
	"splice/internal/logging"
	"splice/internal/preflight"
	"splice/internal/render"
	"splice/internal/segcache"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// ensureCacheSpace refuses to start a render pass when the cache volume is
// below the configured free-space floor.
func (c *commandContext) ensureCacheSpace() error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if cfg.Plan.MinFreeSpaceGiB <= 0 {
		return nil
	}
	result := preflight.CheckFreeSpace("cache free space", cfg.Paths.CacheDir, int64(cfg.Plan.MinFreeSpaceGiB)<<30)
	if !result.Passed {
		return fmt.Errorf("%s: %s", result.Name, result.Detail)
	}
	return nil
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, err := logging.New(logging.Options{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

// openCache opens the configured segment cache. The caller owns the close.
func (c *commandContext) openCache(ctx context.Context) (*segcache.Cache, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	return segcache.Open(ctx, segcache.Options{
		Dir:        cfg.Paths.CacheDir,
		MaxBytes:   cfg.CacheMaxBytes(),
		MaxEntries: cfg.Cache.MaxEntries,
		TTL:        cfg.CacheTTL(),
		Logger:     logger,
	})
}

func (c *commandContext) newDispatcher(cache *segcache.Cache) (*render.Dispatcher, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, err
	}
	backend := render.NewFFmpegBackend(render.FFmpegOptions{
		Command:    cfg.Render.FFmpegBinary,
		VideoCodec: cfg.Render.VideoCodec,
		AudioCodec: cfg.Render.AudioCodec,
		CRF:        cfg.Render.CRF,
		Logger:     logger,
	})
	return render.NewDispatcher(cache, backend, render.DispatcherOptions{
		MaxParallel: cfg.Render.MaxParallel,
		Container:   cfg.Render.Container,
		Logger:      logger,
	}), nil
}
