package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"chartreel/internal/config"
	"chartreel/internal/fileutil"
	"chartreel/internal/logging"
	"chartreel/internal/materialize"
	"chartreel/internal/progress"
	"chartreel/internal/services"
	"chartreel/internal/timeline"
	"chartreel/internal/tts"
	"chartreel/internal/ttscache"
)

// Resolver returns the cached asset for a narration key.
type Resolver interface {
	Resolve(ctx context.Context, key ttscache.Key) (ttscache.Entry, error)
}

// Stager copies resolved assets where the bundler and bundle need them.
type Stager interface {
	Stage(assets []materialize.Asset) materialize.Report
	IntoBundle(bundleDir string, assets []materialize.Asset) materialize.Report
}

// Options wires a Job. All fields are required except Logger.
type Options struct {
	Config      *config.Config
	Store       *timeline.Store
	Resolver    Resolver
	Stager      Stager
	Bundler     Bundler
	Renderer    Renderer
	Emitter     *progress.Emitter
	Logger      *slog.Logger
	Concurrency int
}

// Job runs one render pass.
type Job struct {
	cfg         *config.Config
	store       *timeline.Store
	resolver    Resolver
	stager      Stager
	bundler     Bundler
	renderer    Renderer
	emitter     *progress.Emitter
	logger      *slog.Logger
	concurrency int
}

// Result summarizes a finished job.
type Result struct {
	Composition      timeline.Composition
	SegmentsResolved int
	SegmentsFailed   int
	Staged           materialize.Report
	OutputPath       string
	Elapsed          time.Duration
}

// NewJob validates opts and returns a Job.
func NewJob(opts Options) (*Job, error) {
	if opts.Config == nil || opts.Store == nil || opts.Resolver == nil || opts.Stager == nil || opts.Bundler == nil || opts.Renderer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "render", "init", "incomplete job wiring", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Job{
		cfg:         opts.Config,
		store:       opts.Store,
		resolver:    opts.Resolver,
		stager:      opts.Stager,
		bundler:     opts.Bundler,
		renderer:    opts.Renderer,
		emitter:     opts.Emitter,
		logger:      logging.NewComponentLogger(logger, "render"),
		concurrency: concurrency,
	}, nil
}

// Execute runs the job and returns the process exit code. Fatal errors are
// reported on the progress channel before returning 1.
func (j *Job) Execute(ctx context.Context) int {
	if _, err := j.Run(ctx); err != nil {
		logging.ErrorWithContext(j.logger, "render job failed", "render_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check bundler and renderer output in the log"),
		)
		_ = j.emitter.Error(err.Error())
		return ExitCode(err)
	}
	return 0
}

// Run executes every step of the render pass.
func (j *Job) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	result := Result{}

	props, err := j.store.Load()
	if err != nil {
		return result, fmt.Errorf("load props: %w", err)
	}

	resolveCtx := services.WithPhase(ctx, "resolve")
	segments, assets, failed := j.resolveSegments(resolveCtx, props)
	props.AudioURLs = segments
	result.SegmentsResolved = len(assets)
	result.SegmentsFailed = failed
	if err := ctx.Err(); err != nil {
		return result, err
	}

	result.Staged = j.stager.Stage(assets)

	_ = j.emitter.Progress(progress.PhaseBundling, 0, 0, 0)
	bundleDir, err := j.bundler.Bundle(services.WithPhase(ctx, string(progress.PhaseBundling)), BundleRequest{
		EntryPoint: j.cfg.Render.EntryPoint,
		PublicDir:  j.cfg.Paths.BundlePublicDir,
		OutDir:     j.cfg.BundleDir(),
	}, func(fraction float64) {
		_ = j.emitter.Progress(progress.PhaseBundling, fraction*100, 0, 0)
	})
	if err != nil {
		return result, fmt.Errorf("bundle: %w", err)
	}
	_ = j.emitter.Progress(progress.PhaseBundling, 100, 0, 0)
	j.stager.IntoBundle(bundleDir, assets)

	comp := timeline.Compose(props, timeline.SettingsFromConfig(j.cfg.Render))
	result.Composition = comp
	data, err := json.MarshalIndent(comp, "", "  ")
	if err != nil {
		return result, fmt.Errorf("encode composition: %w", err)
	}
	if err := fileutil.WriteFileAtomic(j.cfg.CompositionPath(), data, 0o644); err != nil {
		return result, fmt.Errorf("write composition: %w", err)
	}
	j.logSummary(comp)

	output := j.cfg.OutputPath()
	partial := fileutil.TempPath(output)
	total := comp.DurationInFrames
	_ = j.emitter.Progress(progress.PhaseRendering, 0, 0, total)
	err = j.renderer.Render(services.WithPhase(ctx, string(progress.PhaseRendering)), RenderRequest{
		BundleDir:       bundleDir,
		CompositionPath: j.cfg.CompositionPath(),
		OutputPath:      partial,
		Codec:           comp.Codec,
		TotalFrames:     total,
	}, func(rendered, encoded int) {
		j.reportFrames(rendered, encoded, total)
	})
	if err != nil {
		_ = os.Remove(partial)
		return result, fmt.Errorf("render: %w", err)
	}
	if err := os.Rename(partial, output); err != nil {
		_ = os.Remove(partial)
		return result, fmt.Errorf("promote output: %w", err)
	}
	_ = j.emitter.Progress(progress.PhaseEncoding, 100, total, total)

	result.OutputPath = output
	result.Elapsed = time.Since(start)
	j.logger.Info("render complete",
		logging.String("output", output),
		logging.Int("segments_resolved", result.SegmentsResolved),
		logging.Int("segments_failed", result.SegmentsFailed),
		logging.Duration("elapsed", result.Elapsed),
		logging.String(logging.FieldEventType, "render_complete"),
	)
	return result, nil
}

// Warm resolves and stages every narration segment without bundling or
// rendering, so the next render starts from a hot cache.
func (j *Job) Warm(ctx context.Context) (Result, error) {
	start := time.Now()
	result := Result{}
	props, err := j.store.Load()
	if err != nil {
		return result, fmt.Errorf("load props: %w", err)
	}
	_, assets, failed := j.resolveSegments(services.WithPhase(ctx, "resolve"), props)
	result.SegmentsResolved = len(assets)
	result.SegmentsFailed = failed
	if err := ctx.Err(); err != nil {
		return result, err
	}
	result.Staged = j.stager.Stage(assets)
	result.Elapsed = time.Since(start)
	return result, nil
}

func (j *Job) reportFrames(rendered, encoded, total int) {
	if total <= 0 {
		return
	}
	if rendered < total {
		_ = j.emitter.Progress(progress.PhaseRendering, float64(rendered)*100/float64(total), rendered, total)
		return
	}
	_ = j.emitter.Progress(progress.PhaseEncoding, float64(encoded)*100/float64(total), encoded, total)
}

// resolveSegments resolves every segment concurrently. Each goroutine owns one
// slot of the output slice; a failed segment keeps its original descriptor.
func (j *Job) resolveSegments(ctx context.Context, props timeline.Props) ([]timeline.AudioSegment, []materialize.Asset, int) {
	segments := append([]timeline.AudioSegment(nil), props.AudioURLs...)
	entries := make([]*ttscache.Entry, len(segments))
	errs := make([]error, len(segments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	for i := range segments {
		key, ok := j.segmentKey(segments[i], props.TTSSpeed)
		if !ok {
			continue
		}
		g.Go(func() error {
			segCtx := services.WithSegmentIndex(gctx, segments[i].Index)
			entry, err := j.resolver.Resolve(segCtx, key)
			if err != nil {
				errs[i] = err
				return nil
			}
			entries[i] = &entry
			return nil
		})
	}
	_ = g.Wait()

	var assets []materialize.Asset
	failed := 0
	for i := range segments {
		if errs[i] != nil {
			failed++
			logging.WarnWithContext(logging.WithContext(services.WithSegmentIndex(ctx, segments[i].Index), j.logger),
				"narration segment unresolved", "segment_resolve_failed",
				logging.String("url", segments[i].URL),
				logging.Error(errs[i]),
				logging.String(logging.FieldErrorHint, "check tts provider reachability and ffmpeg"),
				logging.String(logging.FieldImpact, "segment keeps its original url"),
			)
			continue
		}
		entry := entries[i]
		if entry == nil {
			continue
		}
		segments[i].URL = "/audio/" + entry.FileName
		if entry.DurationSeconds > 0 {
			segments[i].DurationInSeconds = entry.DurationSeconds
		}
		assets = append(assets, materialize.Asset{Source: entry.Path, Name: entry.FileName})
	}
	return segments, assets, failed
}

// segmentKey derives the cache key for a segment. Proxy URLs resolve exactly as
// the preview endpoint resolves them, so a rendered segment is the asset that
// was previewed. Segments with only ShortText take their speed from the
// segment or the props. URLs that already point at /audio/ or an absolute
// http(s) location are left alone.
func (j *Job) segmentKey(seg timeline.AudioSegment, propsSpeed float64) (ttscache.Key, bool) {
	raw := strings.TrimSpace(seg.URL)
	switch {
	case tts.IsProxyURL(raw):
		key, err := ttscache.ProxyKey(raw, j.cfg.TTS.DefaultLanguage)
		if err != nil {
			logging.WarnWithContext(j.logger, "skipping malformed narration url", "segment_url_invalid",
				logging.Int("index", seg.Index),
				logging.String("url", raw),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "regenerate narration in the editor"),
				logging.String(logging.FieldImpact, "segment keeps its original url"),
			)
			return ttscache.Key{}, false
		}
		return key, true
	case raw == "" && strings.TrimSpace(seg.ShortText) != "":
		speed := propsSpeed
		if seg.Speed > 0 {
			speed = seg.Speed
		}
		if speed <= 0 {
			speed = 1
		}
		lang := tts.NormalizeLanguage(seg.Lang, j.cfg.TTS.DefaultLanguage)
		return ttscache.Key{Text: seg.ShortText, Language: lang, Speed: speed}, true
	default:
		return ttscache.Key{}, false
	}
}

func (j *Job) logSummary(comp timeline.Composition) {
	props := comp.Props
	j.logger.Info("composition ready",
		logging.String("composition", comp.ID),
		logging.Int("tracks", len(props.Tracks)),
		logging.Int("scenes", props.SceneCount()),
		logging.Int("csv_rows", len(props.CSVData)),
		logging.Int("audio_segments", len(props.AudioURLs)),
		logging.Int("duration_frames", comp.DurationInFrames),
		logging.Float64("duration_seconds", comp.DurationSeconds),
		logging.String("resolution", fmt.Sprintf("%dx%d", comp.Width, comp.Height)),
		logging.String(logging.FieldEventType, "render_summary"),
	)
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return 1
}
