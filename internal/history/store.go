package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"chartreel/internal/services"
)

// Run is one render attempt.
type Run struct {
	ID             string     `json:"id"`
	Status         string     `json:"status"`
	Progress       int        `json:"progress"`
	ExitCode       *int       `json:"exitCode,omitempty"`
	Error          string     `json:"error,omitempty"`
	Artifact       string     `json:"artifact,omitempty"`
	PublishedURL   string     `json:"publishedUrl,omitempty"`
	DurationFrames int        `json:"durationFrames,omitempty"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
}

// Duration is the wall time of a finished run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store persists runs in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
	timeLayout              = "2006-01-02T15:04:05.000000000Z07:00"
)

// Open initializes or connects to the history database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "history", "open", "database path not configured", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	store := &Store{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin records a started run.
func (s *Store) Begin(ctx context.Context, id string, startedAt time.Time) error {
	return s.exec(ctx,
		"INSERT INTO render_runs (id, status, progress, started_at) VALUES (?, ?, 0, ?)",
		id, "rendering", startedAt.UTC().Format(timeLayout),
	)
}

// Finish records the terminal state of a run. Recording an artifact clears
// it from older runs.
func (s *Store) Finish(ctx context.Context, run Run) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC()
	}
	var exitCode sql.NullInt64
	if run.ExitCode != nil {
		exitCode = sql.NullInt64{Int64: int64(*run.ExitCode), Valid: true}
	}
	artifact := nullString(run.Artifact)
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()
		// Every render writes the same output file; only the newest run owns it.
		if artifact.Valid {
			if _, err := tx.ExecContext(ctx,
				"UPDATE render_runs SET artifact_path = NULL WHERE artifact_path = ? AND id != ?",
				artifact.String, run.ID,
			); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE render_runs
			    SET status = ?, progress = ?, exit_code = ?, error_message = ?, artifact_path = ?,
			        duration_frames = ?, finished_at = ?
			  WHERE id = ?`,
			run.Status, run.Progress, exitCode, nullString(run.Error), artifact,
			run.DurationFrames, finished.Format(timeLayout), run.ID,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// SetPublished stores the object storage URL for a run's artifact.
func (s *Store) SetPublished(ctx context.Context, id, url string) error {
	return s.exec(ctx, "UPDATE render_runs SET published_url = ? WHERE id = ?", url, id)
}

// Get returns a single run.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+" WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, services.Wrap(services.ErrNotFound, "history", "get", "run "+id, nil)
	}
	return run, err
}

// List returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := selectRuns + " ORDER BY started_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MarkInterrupted closes out runs left "rendering" by a daemon that died.
func (s *Store) MarkInterrupted(ctx context.Context) (int64, error) {
	var affected int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			"UPDATE render_runs SET status = 'error', error_message = 'daemon stopped during render', finished_at = ? WHERE status = 'rendering'",
			time.Now().UTC().Format(timeLayout),
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

const selectRuns = `SELECT id, status, progress, exit_code, error_message, artifact_path,
       published_url, duration_frames, started_at, finished_at
  FROM render_runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run       Run
		exitCode  sql.NullInt64
		errMsg    sql.NullString
		artifact  sql.NullString
		published sql.NullString
		frames    sql.NullInt64
		started   string
		finished  sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Status, &run.Progress, &exitCode, &errMsg, &artifact,
		&published, &frames, &started, &finished); err != nil {
		return Run{}, err
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	run.Error = errMsg.String
	run.Artifact = artifact.String
	run.PublishedURL = published.String
	run.DurationFrames = int(frames.Int64)
	if ts, err := time.Parse(timeLayout, started); err == nil {
		run.StartedAt = ts
	}
	if finished.Valid {
		if ts, err := time.Parse(timeLayout, finished.String); err == nil {
			run.FinishedAt = &ts
		}
	}
	return run, nil
}

func nullString(value string) sql.NullString {
	value = strings.TrimSpace(value)
	return sql.NullString{String: value, Valid: value != ""}
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
