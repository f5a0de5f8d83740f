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
	c.normalizeTTS()
	c.normalizeMedia()
	if err := c.normalizeRender(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir()
	}
	for _, field := range []struct {
		name  string
		value *string
	}{
		{"paths.data_dir", &c.Paths.DataDir},
		{"paths.cache_dir", &c.Paths.CacheDir},
		{"paths.public_dir", &c.Paths.PublicDir},
		{"paths.bundle_public_dir", &c.Paths.BundlePublicDir},
		{"paths.out_dir", &c.Paths.OutDir},
		{"paths.log_dir", &c.Paths.LogDir},
	} {
		if *field.value, err = expandPath(strings.TrimSpace(*field.value)); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("CHARTREEL_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeTTS() {
	c.TTS.Host = strings.TrimRight(strings.TrimSpace(c.TTS.Host), "/")
	if c.TTS.Host == "" {
		c.TTS.Host = defaultTTSHost
	}
	c.TTS.DefaultLanguage = strings.TrimSpace(c.TTS.DefaultLanguage)
	if c.TTS.DefaultLanguage == "" {
		c.TTS.DefaultLanguage = defaultTTSLanguage
	}
	if c.TTS.TimeoutSeconds <= 0 {
		c.TTS.TimeoutSeconds = defaultTTSTimeoutSeconds
	}
	if c.TTS.Burst <= 0 {
		c.TTS.Burst = defaultTTSBurst
	}
	if c.TTS.MaxConcurrency <= 0 {
		c.TTS.MaxConcurrency = defaultTTSConcurrency
	}
}

func (c *Config) normalizeMedia() {
	c.Media.FFmpegBinary = strings.TrimSpace(c.Media.FFmpegBinary)
	if c.Media.FFmpegBinary == "" {
		c.Media.FFmpegBinary = defaultFFmpegBinary
	}
	c.Media.FFprobeBinary = strings.TrimSpace(c.Media.FFprobeBinary)
	if c.Media.FFprobeBinary == "" {
		c.Media.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeRender() error {
	var err error
	if strings.TrimSpace(c.Render.EntryPoint) == "" {
		c.Render.EntryPoint = defaultEntryPoint
	}
	if c.Render.EntryPoint, err = expandPath(strings.TrimSpace(c.Render.EntryPoint)); err != nil {
		return fmt.Errorf("render.entry_point: %w", err)
	}
	c.Render.BundlerCommand = trimArgs(c.Render.BundlerCommand)
	c.Render.RendererCommand = trimArgs(c.Render.RendererCommand)
	c.Render.CompositionID = strings.TrimSpace(c.Render.CompositionID)
	if c.Render.CompositionID == "" {
		c.Render.CompositionID = defaultCompositionID
	}
	c.Render.Codec = strings.ToLower(strings.TrimSpace(c.Render.Codec))
	if c.Render.Codec == "" {
		c.Render.Codec = defaultCodec
	}
	if c.Render.TimeoutSeconds < 0 {
		c.Render.TimeoutSeconds = 0
	}
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = defaultStorageRegion
	}
	c.Storage.Prefix = strings.Trim(strings.TrimSpace(c.Storage.Prefix), "/")
	c.Storage.AccessKey = strings.TrimSpace(c.Storage.AccessKey)
	if c.Storage.AccessKey == "" {
		if value, ok := os.LookupEnv("CHARTREEL_S3_ACCESS_KEY"); ok {
			c.Storage.AccessKey = strings.TrimSpace(value)
		}
	}
	c.Storage.SecretKey = strings.TrimSpace(c.Storage.SecretKey)
	if c.Storage.SecretKey == "" {
		if value, ok := os.LookupEnv("CHARTREEL_S3_SECRET_KEY"); ok {
			c.Storage.SecretKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
	if c.Logging.MaxAgeDays < 0 {
		c.Logging.MaxAgeDays = 0
	}
}

func trimArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
