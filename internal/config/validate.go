package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTTS(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	return c.validateNotifications()
}

func (c *Config) validatePaths() error {
	for name, value := range map[string]string{
		"paths.data_dir":          c.Paths.DataDir,
		"paths.cache_dir":         c.Paths.CacheDir,
		"paths.public_dir":        c.Paths.PublicDir,
		"paths.bundle_public_dir": c.Paths.BundlePublicDir,
		"paths.out_dir":           c.Paths.OutDir,
	} {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s must be set", name)
		}
	}
	return nil
}

func (c *Config) validateTTS() error {
	if !strings.HasPrefix(c.TTS.Host, "http://") && !strings.HasPrefix(c.TTS.Host, "https://") {
		return fmt.Errorf("tts.host must be an http(s) URL, got %q", c.TTS.Host)
	}
	if c.TTS.RequestsPerSecond < 0 {
		return errors.New("tts.requests_per_second must be >= 0 (0 disables throttling)")
	}
	return ensurePositiveMap(map[string]int{
		"tts.timeout_seconds": c.TTS.TimeoutSeconds,
		"tts.burst":           c.TTS.Burst,
		"tts.max_concurrency": c.TTS.MaxConcurrency,
	})
}

func (c *Config) validateRender() error {
	if err := ensurePositiveMap(map[string]int{
		"render.fps":          c.Render.FPS,
		"render.width":        c.Render.Width,
		"render.height":       c.Render.Height,
		"render.floor_frames": c.Render.FloorFrames,
	}); err != nil {
		return err
	}
	if len(c.Render.BundlerCommand) == 0 {
		return errors.New("render.bundler_command must name an executable")
	}
	if len(c.Render.RendererCommand) == 0 {
		return errors.New("render.renderer_command must name an executable")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if !c.Storage.Enabled {
		return nil
	}
	if c.Storage.Endpoint == "" {
		return errors.New("storage.endpoint must be set when storage.enabled is true")
	}
	if c.Storage.Bucket == "" {
		return errors.New("storage.bucket must be set when storage.enabled is true")
	}
	if c.Storage.AccessKey == "" || c.Storage.SecretKey == "" {
		return errors.New("storage.access_key and storage.secret_key must be set when storage.enabled is true (or set CHARTREEL_S3_ACCESS_KEY / CHARTREEL_S3_SECRET_KEY)")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic == "" {
		return nil
	}
	if !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full http(s) topic URL, got %q", topic)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
