package ttscache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"chartreel/internal/fileutil"
	"chartreel/internal/logging"
)

const indexFileName = "index.json"

// Record is the metadata kept for one cached asset.
type Record struct {
	Digest          string    `json:"digest"`
	Text            string    `json:"text"`
	Language        string    `json:"language"`
	Speed           float64   `json:"speed"`
	DurationSeconds float64   `json:"duration_seconds"`
	Bytes           int64     `json:"bytes"`
	CachedAt        time.Time `json:"cached_at"`
}

// index persists probed durations so cache hits skip ffprobe. It is a hint:
// an asset without a record is probed again.
type index struct {
	path    string
	lock    *flock.Flock
	logger  *slog.Logger
	mu      sync.RWMutex
	records map[string]Record
}

func openIndex(dir string, logger *slog.Logger) *index {
	idx := &index{
		path:    filepath.Join(dir, indexFileName),
		lock:    flock.New(filepath.Join(dir, lockDirName, indexFileName+".lock")),
		logger:  logger,
		records: make(map[string]Record),
	}
	records, err := idx.read()
	if err != nil {
		logging.WarnWithContext(logger, "failed to load tts cache index", "ttscache_index_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "index will be rebuilt as assets are resolved"),
			logging.String(logging.FieldImpact, "cached assets are probed again on first use"),
		)
		return idx
	}
	idx.records = records
	return idx
}

func (i *index) lookup(digest string) (Record, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	rec, ok := i.records[digest]
	return rec, ok
}

// store records rec and persists the index, merging entries other processes
// wrote since the last load.
func (i *index) store(rec Record) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.lock.Lock(); err != nil {
		return fmt.Errorf("lock cache index: %w", err)
	}
	defer func() { _ = i.lock.Unlock() }()

	onDisk, err := i.read()
	if err != nil {
		i.logger.Debug("discarding unreadable cache index", logging.Error(err))
		onDisk = map[string]Record{}
	}
	for digest, existing := range onDisk {
		if _, ok := i.records[digest]; !ok {
			i.records[digest] = existing
		}
	}
	i.records[rec.Digest] = rec
	return i.save()
}

func (i *index) list() []Record {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]Record, 0, len(i.records))
	for _, rec := range i.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(a, b int) bool {
		return out[a].CachedAt.After(out[b].CachedAt)
	})
	return out
}

func (i *index) read() (map[string]Record, error) {
	data, err := os.ReadFile(i.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]Record{}, nil
		}
		return nil, fmt.Errorf("read cache index: %w", err)
	}
	records := map[string]Record{}
	if len(data) == 0 {
		return records, nil
	}
	var list []Record
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse cache index: %w", err)
	}
	for _, rec := range list {
		if rec.Digest != "" {
			records[rec.Digest] = rec
		}
	}
	return records, nil
}

func (i *index) save() error {
	list := make([]Record, 0, len(i.records))
	for _, rec := range i.records {
		list = append(list, rec)
	}
	sort.Slice(list, func(a, b int) bool { return list[a].Digest < list[b].Digest })
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache index: %w", err)
	}
	if err := fileutil.WriteFileAtomic(i.path, data, 0o644); err != nil {
		return fmt.Errorf("persist cache index: %w", err)
	}
	return nil
}
