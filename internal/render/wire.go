package render

import (
	"fmt"
	"io"
	"log/slog"

	"chartreel/internal/config"
	"chartreel/internal/materialize"
	"chartreel/internal/media/ffprobe"
	"chartreel/internal/media/tempo"
	"chartreel/internal/progress"
	"chartreel/internal/timeline"
	"chartreel/internal/tts"
	"chartreel/internal/ttscache"
)

// NewCache builds the audio cache shared by the daemon and the render job.
func NewCache(cfg *config.Config, logger *slog.Logger) (*ttscache.Cache, error) {
	synth := tts.NewGoogleTranslate(tts.GoogleOptions{
		Host:              cfg.TTS.Host,
		Timeout:           cfg.TTSTimeout(),
		RequestsPerSecond: cfg.TTS.RequestsPerSecond,
		Burst:             cfg.TTS.Burst,
		Logger:            logger,
	})
	cache, err := ttscache.New(
		cfg.Paths.CacheDir,
		synth,
		tempo.NewFilter(cfg.Media.FFmpegBinary),
		ffprobe.NewProber(cfg.Media.FFprobeBinary),
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("open audio cache: %w", err)
	}
	return cache, nil
}

// NewJobFromConfig wires a Job with the production collaborators. Progress
// events go to stdout.
func NewJobFromConfig(cfg *config.Config, stdout io.Writer, logger *slog.Logger) (*Job, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	cache, err := NewCache(cfg, logger)
	if err != nil {
		return nil, err
	}
	return NewJob(Options{
		Config:      cfg,
		Store:       timeline.NewStore(cfg.PropsPath()),
		Resolver:    cache,
		Stager:      materialize.New(cfg.Paths.PublicDir, cfg.Paths.BundlePublicDir, logger),
		Bundler:     NewCLIBundler(cfg.Render.BundlerCommand, logger),
		Renderer:    NewCLIRenderer(cfg.Render.RendererCommand, logger),
		Emitter:     progress.NewEmitter(stdout),
		Logger:      logger,
		Concurrency: cfg.TTS.MaxConcurrency,
	})
}
