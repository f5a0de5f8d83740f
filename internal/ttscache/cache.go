package ttscache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/singleflight"

	"chartreel/internal/fileutil"
	"chartreel/internal/logging"
	"chartreel/internal/services"
	"chartreel/internal/tts"
)

const (
	lockDirName       = ".locks"
	lockRetryInterval = 50 * time.Millisecond
	// resolveTimeout bounds shared work once it is detached from the callers.
	resolveTimeout = 5 * time.Minute
)

// Filter retimes audio from src into dst.
type Filter interface {
	Retime(ctx context.Context, src, dst string, speed float64) error
}

// Prober measures audio duration in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Entry describes a resolved asset.
type Entry struct {
	Key             Key
	Digest          string
	Path            string
	FileName        string
	DurationSeconds float64
	Bytes           int64
	// Hit is true when the asset already existed.
	Hit bool
}

// Stats summarizes the cache directory.
type Stats struct {
	Dir     string `json:"dir"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
	Indexed int    `json:"indexed"`
}

// Cache resolves narration keys to audio files under a single directory.
type Cache struct {
	dir    string
	synth  tts.Synthesizer
	filter Filter
	prober Prober
	index  *index
	group  singleflight.Group
	logger *slog.Logger
}

// New prepares dir and returns a Cache over it.
func New(dir string, synth tts.Synthesizer, filter Filter, prober Prober, logger *slog.Logger) (*Cache, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrConfiguration, "ttscache", "init", "cache directory not configured", nil)
	}
	if synth == nil || filter == nil || prober == nil {
		return nil, services.Wrap(services.ErrConfiguration, "ttscache", "init", "synthesizer, filter, and prober are required", nil)
	}
	if err := os.MkdirAll(filepath.Join(dir, lockDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	logger = logging.NewComponentLogger(logger, "ttscache")
	return &Cache{
		dir:    dir,
		synth:  synth,
		filter: filter,
		prober: prober,
		index:  openIndex(dir, logger),
		logger: logger,
	}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns where key's asset lives, whether or not it exists yet.
func (c *Cache) Path(key Key) string {
	return filepath.Join(c.dir, key.FileName())
}

// Resolve returns the asset for key, producing it on a miss.
func (c *Cache) Resolve(ctx context.Context, key Key) (Entry, error) {
	if strings.TrimSpace(key.Text) == "" {
		return Entry{}, services.Wrap(services.ErrValidation, "ttscache", "resolve", "empty text", nil)
	}
	if key.Speed <= 0 {
		return Entry{}, services.Wrap(services.ErrValidation, "ttscache", "resolve", fmt.Sprintf("invalid speed %v", key.Speed), nil)
	}
	digest := key.Digest()
	ch := c.group.DoChan(digest, func() (any, error) {
		// Joined callers must not fail because the first one went away.
		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		return c.resolve(workCtx, key, digest)
	})
	select {
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, res.Err
		}
		if res.Shared {
			c.logger.Debug("joined in-flight resolution", logging.String("digest", digest))
		}
		return res.Val.(Entry), nil
	}
}

func (c *Cache) resolve(ctx context.Context, key Key, digest string) (Entry, error) {
	entry := Entry{Key: key, Digest: digest, FileName: key.FileName(), Path: c.Path(key)}

	if ok, err := fileutil.Exists(entry.Path); err != nil {
		return Entry{}, fmt.Errorf("stat cache entry: %w", err)
	} else if ok {
		entry.Hit = true
		return c.describe(ctx, entry)
	}

	lock := flock.New(filepath.Join(c.dir, lockDirName, digest+".lock"))
	locked, err := lock.TryLockContext(ctx, lockRetryInterval)
	if err != nil || !locked {
		return Entry{}, services.Wrap(services.ErrTimeout, "ttscache", "lock", "waiting for another producer", err)
	}
	defer func() { _ = lock.Unlock() }()

	// Another process may have produced it while we waited.
	if ok, _ := fileutil.Exists(entry.Path); ok {
		entry.Hit = true
		return c.describe(ctx, entry)
	}

	started := time.Now()
	if err := c.produce(ctx, key, entry.Path); err != nil {
		return Entry{}, err
	}
	entry, err = c.describe(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	c.logger.Info("cached narration audio",
		logging.String("digest", digest),
		logging.String("lang", key.Language),
		logging.Float64("speed", key.Speed),
		logging.Float64("duration_seconds", entry.DurationSeconds),
		logging.Duration("elapsed", time.Since(started)),
	)
	return entry, nil
}

func (c *Cache) produce(ctx context.Context, key Key, final string) error {
	audio, err := c.synth.Synthesize(ctx, key.Text, key.Language)
	if err != nil {
		return err
	}
	if !key.NeedsRetime() {
		if err := fileutil.WriteFileAtomic(final, audio, 0o644); err != nil {
			return services.Wrap(services.ErrTransient, "ttscache", "store", "", err)
		}
		return nil
	}

	raw := fileutil.TempPath(filepath.Join(c.dir, key.Digest()+"_raw.mp3"))
	if err := os.WriteFile(raw, audio, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "ttscache", "store raw", "", err)
	}
	defer os.Remove(raw)

	tmp := fileutil.TempPath(final)
	if err := c.filter.Retime(ctx, raw, tmp, key.Speed); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrTransient, "ttscache", "promote", "", err)
	}
	return nil
}

// describe fills size and duration, probing only when the index has no record.
func (c *Cache) describe(ctx context.Context, entry Entry) (Entry, error) {
	info, err := os.Stat(entry.Path)
	if err != nil {
		return Entry{}, fmt.Errorf("stat cache entry: %w", err)
	}
	entry.Bytes = info.Size()

	if rec, ok := c.index.lookup(entry.Digest); ok && rec.DurationSeconds > 0 && rec.Bytes == entry.Bytes {
		entry.DurationSeconds = rec.DurationSeconds
		return entry, nil
	}

	duration, err := c.prober.Duration(ctx, entry.Path)
	if err != nil {
		return Entry{}, services.Wrap(services.ErrExternalTool, "ttscache", "probe", entry.FileName, err)
	}
	entry.DurationSeconds = duration

	rec := Record{
		Digest:          entry.Digest,
		Text:            entry.Key.Text,
		Language:        entry.Key.Language,
		Speed:           entry.Key.Speed,
		DurationSeconds: duration,
		Bytes:           entry.Bytes,
		CachedAt:        info.ModTime().UTC(),
	}
	if err := c.index.store(rec); err != nil {
		logging.WarnWithContext(c.logger, "failed to persist cache index", "ttscache_index_save_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "asset will be probed again next time"),
		)
	}
	return entry, nil
}

// Records lists index metadata, newest first.
func (c *Cache) Records() []Record {
	return c.index.list()
}

// Stats counts finished assets in the cache directory.
func (c *Cache) Stats() (Stats, error) {
	stats := Stats{Dir: c.dir, Indexed: len(c.index.list())}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return stats, nil
		}
		return stats, fmt.Errorf("read cache directory: %w", err)
	}
	for _, e := range entries {
		if !isAssetName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.Entries++
		stats.Bytes += info.Size()
	}
	return stats, nil
}

// isAssetName matches "<32 hex>.mp3"; temp and raw intermediates never do.
func isAssetName(name string) bool {
	if len(name) != 36 || !strings.HasSuffix(name, ".mp3") {
		return false
	}
	for _, r := range name[:32] {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}
