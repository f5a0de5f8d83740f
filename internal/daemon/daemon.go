package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"chartreel/internal/config"
	"chartreel/internal/deps"
	"chartreel/internal/history"
	"chartreel/internal/logging"
	"chartreel/internal/materialize"
	"chartreel/internal/supervisor"
	"chartreel/internal/timeline"
	"chartreel/internal/ttscache"
)

const (
	shutdownTimeout = 15 * time.Second
	// staleTempAge is how old an abandoned temp file must be before startup
	// removes it.
	staleTempAge = time.Hour
)

// RenderSupervisor is the slice of the supervisor the daemon drives.
type RenderSupervisor interface {
	Start(ctx context.Context) (supervisor.Snapshot, error)
	Status() supervisor.Snapshot
	Diagnostics() []string
	Cancel() error
	Shutdown(ctx context.Context) error
}

// HistoryStore is the run history the daemon reads and repairs.
type HistoryStore interface {
	List(ctx context.Context, limit int) ([]history.Run, error)
	Get(ctx context.Context, id string) (history.Run, error)
	MarkInterrupted(ctx context.Context) (int64, error)
	Close() error
}

// AudioCache resolves narration for the preview endpoint.
type AudioCache interface {
	Resolve(ctx context.Context, key ttscache.Key) (ttscache.Entry, error)
	Stats() (ttscache.Stats, error)
}

// Dependencies are the collaborators a Daemon coordinates.
type Dependencies struct {
	Supervisor RenderSupervisor
	History    HistoryStore
	Cache      AudioCache
	Props      *timeline.Store
}

// Daemon coordinates the HTTP surface and render supervision, and enforces
// single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	supervisor RenderSupervisor
	history    HistoryStore
	cache      AudioCache
	props      *timeline.Store
	logPath    string

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	PID           int
	APIBind       string
	LockFilePath  string
	HistoryDBPath string
	LogPath       string
	Render        supervisor.Snapshot
	Cache         ttscache.Stats
	Dependencies  []deps.Status
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, d Dependencies) (*Daemon, error) {
	if cfg == nil || d.Supervisor == nil || d.History == nil || d.Cache == nil || d.Props == nil {
		return nil, errors.New("daemon requires config, supervisor, history, cache, and props store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	daemon := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		supervisor: d.Supervisor,
		history:    d.History,
		cache:      d.Cache,
		props:      d.Props,
		logPath:    filepath.Join(cfg.Paths.LogDir, "chartreel.log"),
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	daemon.api = newAPIServer(cfg, daemon, logger)
	return daemon, nil
}

// Handler exposes the API router; used by tests and embedding callers.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// Start acquires the daemon lock, repairs stale history, and starts the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another chartreel daemon instance is already running")
	}

	d.sweepStaleTemp()

	if n, err := d.history.MarkInterrupted(ctx); err != nil {
		d.logger.Warn("failed to repair interrupted runs", logging.Error(err))
	} else if n > 0 {
		d.logger.Info("marked interrupted render runs", logging.Int64("count", n))
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start api server: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("chartreel daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api_bind", d.cfg.Paths.APIBind),
	)
	return nil
}

// sweepStaleTemp removes temp files a crashed process left behind. It runs
// only while holding the lock so another instance's in-flight writes are safe.
func (d *Daemon) sweepStaleTemp() {
	dirs := []string{d.cfg.Paths.CacheDir, d.cfg.PublicAudioDir(), d.cfg.BundleAudioDir(), d.cfg.Paths.OutDir}
	for _, dir := range dirs {
		if result := materialize.CleanStale(dir, staleTempAge, d.logger); len(result.Removed) > 0 {
			d.logger.Info("removed stale temp files",
				logging.String("dir", dir),
				logging.Int("count", len(result.Removed)),
			)
		}
	}
}

// Stop cancels any running render, stops the API server, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := d.supervisor.Shutdown(ctx); err != nil {
		d.logger.Warn("render job did not stop cleanly", logging.Error(err))
	}
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("chartreel daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.history != nil {
		return d.history.Close()
	}
	return nil
}

// Status reports daemon runtime information.
func (d *Daemon) Status() Status {
	stats, err := d.cache.Stats()
	if err != nil {
		d.logger.Warn("cache stats unavailable", logging.Error(err))
	}
	return Status{
		Running:       d.running.Load(),
		PID:           os.Getpid(),
		APIBind:       d.cfg.Paths.APIBind,
		LockFilePath:  d.lockPath,
		HistoryDBPath: d.cfg.HistoryPath(),
		LogPath:       d.logPath,
		Render:        d.supervisor.Status(),
		Cache:         stats,
		Dependencies:  deps.CheckBinaries(deps.Requirements(d.cfg)),
	}
}
