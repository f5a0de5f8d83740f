package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"chartreel/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("XDG_CACHE_HOME", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "chartreel")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	wantCache := filepath.Join(tempHome, ".cache", "chartreel", "tts")
	if cfg.Paths.CacheDir != wantCache {
		t.Fatalf("unexpected cache dir: got %q want %q", cfg.Paths.CacheDir, wantCache)
	}
	if cfg.Paths.APIBind != "127.0.0.1:3001" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Render.CompositionID != "Infographic" || cfg.Render.FPS != 30 || cfg.Render.FloorFrames != 300 {
		t.Fatalf("unexpected render defaults: %+v", cfg.Render)
	}
	if cfg.Render.Width != 1920 || cfg.Render.Height != 1080 || cfg.Render.Codec != "h264" {
		t.Fatalf("unexpected render geometry: %+v", cfg.Render)
	}
	if cfg.Storage.Enabled {
		t.Fatal("expected storage disabled by default")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.CacheDir, cfg.PublicAudioDir(), cfg.BundleAudioDir(), cfg.Paths.OutDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "chartreel.toml")

	type payload struct {
		Paths struct {
			OutDir string `toml:"out_dir"`
		} `toml:"paths"`
		TTS struct {
			Host           string `toml:"host"`
			MaxConcurrency int    `toml:"max_concurrency"`
		} `toml:"tts"`
		Render struct {
			FloorFrames    int `toml:"floor_frames"`
			TimeoutSeconds int `toml:"timeout_seconds"`
		} `toml:"render"`
	}
	custom := payload{}
	custom.Paths.OutDir = filepath.Join(tempDir, "renders")
	custom.TTS.Host = "http://tts.local/"
	custom.TTS.MaxConcurrency = 2
	custom.Render.FloorFrames = 150
	custom.Render.TimeoutSeconds = 90

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom path to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.TTS.Host != "http://tts.local" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.TTS.Host)
	}
	if cfg.TTS.MaxConcurrency != 2 {
		t.Fatalf("unexpected max concurrency: %d", cfg.TTS.MaxConcurrency)
	}
	if cfg.Render.FloorFrames != 150 {
		t.Fatalf("unexpected floor frames: %d", cfg.Render.FloorFrames)
	}
	if got := cfg.RenderTimeout().Seconds(); got != 90 {
		t.Fatalf("unexpected render timeout: %v", got)
	}
	if cfg.PropsPath() != filepath.Join(tempDir, "renders", "input-props.json") {
		t.Fatalf("unexpected props path: %q", cfg.PropsPath())
	}
	if cfg.OutputPath() != filepath.Join(tempDir, "renders", "video.mp4") {
		t.Fatalf("unexpected output path: %q", cfg.OutputPath())
	}
}

func TestLoadReadsDotEnvNextToConfig(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "chartreel.toml")
	if err := os.WriteFile(configPath, []byte("[storage]\nenabled = true\nendpoint = \"minio:9000\"\nbucket = \"videos\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	envBody := "CHARTREEL_S3_ACCESS_KEY=from-env-file\nCHARTREEL_S3_SECRET_KEY=secret\nCHARTREEL_API_TOKEN=token-123\n"
	if err := os.WriteFile(filepath.Join(tempDir, ".env"), []byte(envBody), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	for _, key := range []string{"CHARTREEL_S3_ACCESS_KEY", "CHARTREEL_S3_SECRET_KEY", "CHARTREEL_API_TOKEN"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Storage.AccessKey != "from-env-file" || cfg.Storage.SecretKey != "secret" {
		t.Fatalf("expected storage credentials from .env, got %q/%q", cfg.Storage.AccessKey, cfg.Storage.SecretKey)
	}
	if cfg.Paths.APIToken != "token-123" {
		t.Fatalf("expected api token from .env, got %q", cfg.Paths.APIToken)
	}
}

func TestValidateRejectsIncompleteStorage(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Enabled = true
	cfg.Storage.Endpoint = "minio:9000"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "storage.bucket") {
		t.Fatalf("expected storage.bucket error, got %v", err)
	}
}

func TestValidateRejectsNonPositiveRenderSettings(t *testing.T) {
	cfg := config.Default()
	cfg.Render.FPS = 0
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "render.fps") {
		t.Fatalf("expected render.fps error, got %v", err)
	}

	cfg = config.Default()
	cfg.Render.RendererCommand = nil
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "render.renderer_command") {
		t.Fatalf("expected renderer command error, got %v", err)
	}
}

func TestValidateRejectsBadTTSHost(t *testing.T) {
	cfg := config.Default()
	cfg.TTS.Host = "translate.google.com"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "tts.host") {
		t.Fatalf("expected tts.host error, got %v", err)
	}
}

func TestValidateNotificationTopic(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = "renders"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "ntfy_topic") {
		t.Fatalf("expected ntfy_topic error, got %v", err)
	}
	cfg.Notifications.NtfyTopic = "https://ntfy.sh/renders"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid topic, got %v", err)
	}
	if got := cfg.NotificationTimeout().Seconds(); got != 10 {
		t.Fatalf("notification timeout = %v, want 10s", got)
	}
}

func TestCreateSampleRoundTripsThroughLoad(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.TTS.DefaultLanguage != "en" {
		t.Fatalf("unexpected default language: %q", cfg.TTS.DefaultLanguage)
	}
	if len(cfg.Render.BundlerCommand) != 2 {
		t.Fatalf("unexpected bundler command: %v", cfg.Render.BundlerCommand)
	}
}
