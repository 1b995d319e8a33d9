package config

const (
	defaultCacheDir        = "~/.local/share/splice/cache"
	defaultOutputDir       = "~/.local/share/splice/output"
	defaultLogDir          = "~/.local/share/splice/logs"
	defaultCacheMaxGiB     = 50
	defaultCacheMaxEntries = 4096
	defaultCacheTTLHours   = 720
	defaultMaxParallel     = 4
	defaultContainer       = "mkv"
	defaultFFmpegBinary    = "ffmpeg"
	defaultFFprobeBinary   = "ffprobe"
	defaultVideoCodec      = "libx264"
	defaultAudioCodec      = "aac"
	defaultCRF             = 18
	defaultAssembleFormat  = "file"
	defaultPlanStyle       = "documentary"
	defaultSceneInterval   = 8
	defaultPeakInterval    = 4
	defaultPeakPhase       = 2
	defaultMinFreeGiB      = 5
	defaultProbeTimeout    = 30
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir:  defaultCacheDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Cache: Cache{
			MaxGiB:     defaultCacheMaxGiB,
			MaxEntries: defaultCacheMaxEntries,
			TTLHours:   defaultCacheTTLHours,
		},
		Render: Render{
			MaxParallel: defaultMaxParallel,
			Container:   defaultContainer,
			// Binary paths resolve during normalization so the
			// SPLICE_FFMPEG / SPLICE_FFPROBE overrides can apply.
			VideoCodec: defaultVideoCodec,
			AudioCodec: defaultAudioCodec,
			CRF:        defaultCRF,
		},
		Assemble: Assemble{
			Format: defaultAssembleFormat,
		},
		Plan: Plan{
			Style:               defaultPlanStyle,
			SceneIntervalSecs:   defaultSceneInterval,
			PeakIntervalSecs:    defaultPeakInterval,
			PeakPhaseSecs:       defaultPeakPhase,
			MinFreeSpaceGiB:     defaultMinFreeGiB,
			ProbeTimeoutSeconds: defaultProbeTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
