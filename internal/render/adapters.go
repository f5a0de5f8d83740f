package render

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"

	"chartreel/internal/logging"
)

// BundleRequest describes one bundler invocation.
type BundleRequest struct {
	EntryPoint string
	PublicDir  string
	OutDir     string
}

// Bundler produces the static bundle and reports progress in [0,1].
type Bundler interface {
	Bundle(ctx context.Context, req BundleRequest, progress func(fraction float64)) (string, error)
}

// RenderRequest describes one renderer invocation.
type RenderRequest struct {
	BundleDir       string
	CompositionPath string
	OutputPath      string
	Codec           string
	TotalFrames     int
}

// Renderer turns a bundle plus composition into a video file.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest, progress func(rendered, encoded int)) error
}

// CLIBundler runs the configured bundler command. It appends
// --entry, --public-dir, and --out and reads {"progress":0.42} lines.
type CLIBundler struct {
	command []string
	logger  *slog.Logger
}

// NewCLIBundler wraps command (binary plus leading args).
func NewCLIBundler(command []string, logger *slog.Logger) *CLIBundler {
	return &CLIBundler{command: command, logger: logging.NewComponentLogger(logger, "bundler")}
}

// Bundle runs the bundler and returns the bundle directory.
func (b *CLIBundler) Bundle(ctx context.Context, req BundleRequest, progress func(float64)) (string, error) {
	argv := append(append([]string{}, b.command...),
		"--entry", req.EntryPoint,
		"--public-dir", req.PublicDir,
		"--out", req.OutDir,
	)
	bundleDir := req.OutDir
	err := runStreaming(ctx, "bundler", argv, func(line string) {
		var payload struct {
			Progress  *float64 `json:"progress"`
			BundleDir string   `json:"bundleDir"`
		}
		if json.Unmarshal([]byte(line), &payload) != nil {
			b.logger.Debug("bundler output", logging.String("line", line))
			return
		}
		if dir := strings.TrimSpace(payload.BundleDir); dir != "" {
			bundleDir = dir
		}
		if payload.Progress != nil && progress != nil {
			progress(*payload.Progress)
		}
	}, b.stderr)
	if err != nil {
		return "", err
	}
	return bundleDir, nil
}

func (b *CLIBundler) stderr(line string) {
	b.logger.Debug("bundler stderr", logging.String("line", line))
}

// CLIRenderer runs the configured renderer command. It appends --bundle,
// --composition, --output, --codec, and --frames and reads
// {"renderedFrames":n,"encodedFrames":m} lines.
type CLIRenderer struct {
	command []string
	logger  *slog.Logger
}

// NewCLIRenderer wraps command (binary plus leading args).
func NewCLIRenderer(command []string, logger *slog.Logger) *CLIRenderer {
	return &CLIRenderer{command: command, logger: logging.NewComponentLogger(logger, "renderer")}
}

// Render runs the renderer to completion.
func (r *CLIRenderer) Render(ctx context.Context, req RenderRequest, progress func(rendered, encoded int)) error {
	argv := append(append([]string{}, r.command...),
		"--bundle", req.BundleDir,
		"--composition", req.CompositionPath,
		"--output", req.OutputPath,
		"--codec", req.Codec,
		"--frames", strconv.Itoa(req.TotalFrames),
	)
	return runStreaming(ctx, "renderer", argv, func(line string) {
		var payload struct {
			RenderedFrames *int `json:"renderedFrames"`
			EncodedFrames  *int `json:"encodedFrames"`
		}
		if json.Unmarshal([]byte(line), &payload) != nil || (payload.RenderedFrames == nil && payload.EncodedFrames == nil) {
			r.logger.Debug("renderer output", logging.String("line", line))
			return
		}
		if progress == nil {
			return
		}
		rendered, encoded := 0, 0
		if payload.RenderedFrames != nil {
			rendered = *payload.RenderedFrames
		}
		if payload.EncodedFrames != nil {
			encoded = *payload.EncodedFrames
		}
		progress(rendered, encoded)
	}, func(line string) {
		r.logger.Debug("renderer stderr", logging.String("line", line))
	})
}

var (
	_ Bundler  = (*CLIBundler)(nil)
	_ Renderer = (*CLIRenderer)(nil)
)
