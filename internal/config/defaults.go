package config

const (
	defaultConfigPath        = "~/.config/chartreel/config.toml"
	defaultDataDir           = "~/.local/share/chartreel"
	defaultCacheDirFallback  = "~/.cache/chartreel/tts"
	defaultPublicDir         = "public"
	defaultBundlePublicDir   = "remotion/public"
	defaultOutDir            = "out"
	defaultLogDir            = "~/.local/share/chartreel/logs"
	defaultAPIBind           = "127.0.0.1:3001"
	defaultTTSHost           = "https://translate.google.com"
	defaultTTSLanguage       = "en"
	defaultTTSTimeoutSeconds = 30
	defaultTTSRequestsPerSec = 4
	defaultTTSBurst          = 2
	defaultTTSConcurrency    = 4
	defaultFFmpegBinary      = "ffmpeg"
	defaultFFprobeBinary     = "ffprobe"
	defaultEntryPoint        = "remotion/index.js"
	defaultCompositionID     = "Infographic"
	defaultFPS               = 30
	defaultWidth             = 1920
	defaultHeight            = 1080
	defaultFloorFrames       = 300
	defaultCodec             = "h264"
	defaultRenderTimeout     = 3600
	defaultStorageRegion     = "us-east-1"
	defaultStoragePrefix     = "renders"
	defaultNtfyTimeout       = 10
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogMaxSizeMB      = 50
	defaultLogMaxBackups     = 5
	defaultLogMaxAgeDays     = 30
)

var (
	defaultBundlerCommand  = []string{"node", "scripts/bundle.js"}
	defaultRendererCommand = []string{"node", "scripts/render.js"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:         defaultDataDir,
			CacheDir:        defaultCacheDir(),
			PublicDir:       defaultPublicDir,
			BundlePublicDir: defaultBundlePublicDir,
			OutDir:          defaultOutDir,
			LogDir:          defaultLogDir,
			APIBind:         defaultAPIBind,
		},
		TTS: TTS{
			Host:              defaultTTSHost,
			DefaultLanguage:   defaultTTSLanguage,
			TimeoutSeconds:    defaultTTSTimeoutSeconds,
			RequestsPerSecond: defaultTTSRequestsPerSec,
			Burst:             defaultTTSBurst,
			MaxConcurrency:    defaultTTSConcurrency,
		},
		Media: Media{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Render: Render{
			EntryPoint:      defaultEntryPoint,
			BundlerCommand:  append([]string(nil), defaultBundlerCommand...),
			RendererCommand: append([]string(nil), defaultRendererCommand...),
			CompositionID:   defaultCompositionID,
			FPS:             defaultFPS,
			Width:           defaultWidth,
			Height:          defaultHeight,
			FloorFrames:     defaultFloorFrames,
			Codec:           defaultCodec,
			TimeoutSeconds:  defaultRenderTimeout,
		},
		Storage: Storage{
			Region: defaultStorageRegion,
			UseSSL: true,
			Prefix: defaultStoragePrefix,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}
