package materialize

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"chartreel/internal/fileutil"
	"chartreel/internal/logging"
)

// AudioDirName is the subdirectory assets land in under each root.
const AudioDirName = "audio"

// Asset is one cache file to copy.
type Asset struct {
	Source string
	Name   string
}

// Failure pairs a destination with its copy error.
type Failure struct {
	Path  string
	Error error
}

// Report summarizes a copy pass.
type Report struct {
	Copied   []string
	Skipped  []string
	Missing  []string
	Failures []Failure
}

// OK reports whether every asset is in place.
func (r Report) OK() bool {
	return len(r.Failures) == 0 && len(r.Missing) == 0
}

func (r *Report) merge(other Report) {
	r.Copied = append(r.Copied, other.Copied...)
	r.Skipped = append(r.Skipped, other.Skipped...)
	r.Missing = append(r.Missing, other.Missing...)
	r.Failures = append(r.Failures, other.Failures...)
}

// Materializer copies assets into the public and bundle-input directories.
type Materializer struct {
	publicDir       string
	bundlePublicDir string
	logger          *slog.Logger
}

// New returns a Materializer. Either directory may be empty to skip it.
func New(publicDir, bundlePublicDir string, logger *slog.Logger) *Materializer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Materializer{
		publicDir:       strings.TrimSpace(publicDir),
		bundlePublicDir: strings.TrimSpace(bundlePublicDir),
		logger:          logging.NewComponentLogger(logger, "materialize"),
	}
}

// PublicAudioDir is where the preview server reads assets.
func (m *Materializer) PublicAudioDir() string {
	if m.publicDir == "" {
		return ""
	}
	return filepath.Join(m.publicDir, AudioDirName)
}

// BundleAudioDir is where the bundler picks assets up.
func (m *Materializer) BundleAudioDir() string {
	if m.bundlePublicDir == "" {
		return ""
	}
	return filepath.Join(m.bundlePublicDir, AudioDirName)
}

// Stage copies assets into the web-servable and bundle-input audio dirs.
func (m *Materializer) Stage(assets []Asset) Report {
	var report Report
	for _, dir := range []string{m.PublicAudioDir(), m.BundleAudioDir()} {
		if dir == "" {
			continue
		}
		report.merge(m.copyAll(dir, assets))
	}
	m.logReport("staged audio assets", report)
	return report
}

// IntoBundle copies assets into <bundleDir>/audio after bundling.
func (m *Materializer) IntoBundle(bundleDir string, assets []Asset) Report {
	bundleDir = strings.TrimSpace(bundleDir)
	if bundleDir == "" {
		return Report{}
	}
	report := m.copyAll(filepath.Join(bundleDir, AudioDirName), assets)
	m.logReport("copied audio assets into bundle", report)
	return report
}

func (m *Materializer) copyAll(dir string, assets []Asset) Report {
	var report Report
	if err := os.MkdirAll(dir, 0o755); err != nil {
		report.Failures = append(report.Failures, Failure{Path: dir, Error: fmt.Errorf("create audio dir: %w", err)})
		m.warnFailure(dir, err)
		return report
	}
	seen := make(map[string]struct{}, len(assets))
	for _, asset := range assets {
		name := asset.Name
		if name == "" {
			name = filepath.Base(asset.Source)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		dst := filepath.Join(dir, name)
		if exists, err := fileutil.Exists(dst); err == nil && exists {
			report.Skipped = append(report.Skipped, dst)
			continue
		}
		if exists, err := fileutil.Exists(asset.Source); err != nil || !exists {
			report.Missing = append(report.Missing, asset.Source)
			logging.WarnWithContext(m.logger, "audio asset missing from cache", "materialize_source_missing",
				logging.String("source", asset.Source),
				logging.String(logging.FieldErrorHint, "re-run synthesis for the segment"),
				logging.String(logging.FieldImpact, "segment plays without narration"),
			)
			continue
		}
		if err := fileutil.CopyFile(asset.Source, dst); err != nil {
			report.Failures = append(report.Failures, Failure{Path: dst, Error: err})
			m.warnFailure(dst, err)
			continue
		}
		report.Copied = append(report.Copied, dst)
	}
	return report
}

func (m *Materializer) warnFailure(path string, err error) {
	logging.WarnWithContext(m.logger, "failed to materialize audio asset", "materialize_copy_failed",
		logging.String("path", path),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check public_dir and bundle_public_dir permissions"),
		logging.String(logging.FieldImpact, "segment plays without narration"),
	)
}

func (m *Materializer) logReport(msg string, report Report) {
	m.logger.Info(msg,
		logging.Int("copied", len(report.Copied)),
		logging.Int("skipped", len(report.Skipped)),
		logging.Int("missing", len(report.Missing)),
		logging.Int("failed", len(report.Failures)),
	)
}
