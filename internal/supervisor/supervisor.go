package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chartreel/internal/history"
	"chartreel/internal/logging"
	"chartreel/internal/progress"
	"chartreel/internal/services"
)

var commandContext = exec.CommandContext

const (
	defaultTailLines = 50
	waitDelay        = 10 * time.Second
)

// Recorder persists run history.
type Recorder interface {
	Begin(ctx context.Context, id string, startedAt time.Time) error
	Finish(ctx context.Context, run history.Run) error
	SetPublished(ctx context.Context, id, url string) error
}

// Publisher uploads a finished artifact and returns where it landed.
type Publisher interface {
	Publish(ctx context.Context, jobID, artifact string) (string, error)
}

// Notifier announces finished jobs.
type Notifier interface {
	NotifyRenderCompleted(ctx context.Context, jobID string, elapsed time.Duration, location string) error
	NotifyRenderFailed(ctx context.Context, jobID, message string) error
}

// Options configures a Supervisor.
type Options struct {
	// Executable is the binary started for each job; usually os.Executable().
	Executable string
	// Args precede the job flags, e.g. ["render-job", "--config", path].
	Args         []string
	Timeout      time.Duration
	ArtifactPath string
	History      Recorder
	Publisher    Publisher
	Notifier     Notifier
	Logger       *slog.Logger
	TailLines    int
}

// Supervisor runs at most one render job at a time.
type Supervisor struct {
	opts    Options
	logger  *slog.Logger
	sampler *logging.ProgressSampler

	mu      sync.Mutex
	machine *Machine
	tail    []string
	cancel  context.CancelFunc
	done    chan struct{}
}

// New returns an idle Supervisor.
func New(opts Options) *Supervisor {
	if opts.TailLines <= 0 {
		opts.TailLines = defaultTailLines
	}
	return &Supervisor{
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "supervisor"),
		sampler: logging.NewProgressSampler(10),
		machine: NewMachine(),
	}
}

// Status returns a copy of the current job state.
func (s *Supervisor) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Snapshot()
}

// Diagnostics returns the most recent non-progress output lines.
func (s *Supervisor) Diagnostics() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.tail...)
}

// Start launches a render job. It returns ErrRenderInProgress without
// changing state while a job is rendering.
func (s *Supervisor) Start(ctx context.Context) (Snapshot, error) {
	if strings.TrimSpace(s.opts.Executable) == "" {
		return s.Status(), services.Wrap(services.ErrConfiguration, "supervisor", "start", "render executable not configured", nil)
	}
	jobID := uuid.NewString()
	now := time.Now()

	s.mu.Lock()
	if err := s.machine.Begin(jobID, now); err != nil {
		snap := s.machine.Snapshot()
		s.mu.Unlock()
		return snap, err
	}
	s.tail = nil
	s.sampler.Reset()

	jobCtx := services.WithJobID(context.WithoutCancel(ctx), jobID)
	var cancel context.CancelFunc
	if s.opts.Timeout > 0 {
		jobCtx, cancel = context.WithTimeout(jobCtx, s.opts.Timeout)
	} else {
		jobCtx, cancel = context.WithCancel(jobCtx)
	}
	s.cancel = cancel
	done := make(chan struct{})
	s.done = done
	s.mu.Unlock()

	logger := logging.WithContext(jobCtx, s.logger)
	s.recordBegin(jobCtx, jobID, now)

	args := append(append([]string{}, s.opts.Args...), "--job-id", jobID)
	cmd := commandContext(jobCtx, s.opts.Executable, args...) //nolint:gosec
	configureProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	stdout, stdoutErr := cmd.StdoutPipe()
	stderr, stderrErr := cmd.StderrPipe()
	startErr := errors.Join(stdoutErr, stderrErr)
	if startErr == nil {
		startErr = cmd.Start()
	}
	if startErr != nil {
		cancel()
		err := services.Wrap(services.ErrExternalTool, "supervisor", "start", "spawn render job", startErr)
		s.finish(jobCtx, jobID, func(m *Machine, at time.Time) bool { return m.Abort(err.Error(), at) })
		close(done)
		logging.ErrorWithContext(logger, "render job failed to start", "render_spawn_failed",
			logging.Error(startErr),
			logging.String(logging.FieldErrorHint, "check that the chartreel binary is executable"),
		)
		return s.Status(), err
	}

	logger.Info("render job started",
		logging.Int("pid", cmd.Process.Pid),
		logging.String(logging.FieldEventType, "render_started"),
	)
	go s.watch(jobCtx, jobID, cmd, stdout, stderr, done)
	return s.Status(), nil
}

// Cancel kills the running job. The slot ends in error.
func (s *Supervisor) Cancel() error {
	s.mu.Lock()
	if s.machine.Snapshot().Status != StatusRendering || s.cancel == nil {
		s.mu.Unlock()
		return ErrNotRendering
	}
	cancel := s.cancel
	s.mu.Unlock()
	cancel()
	return nil
}

// Wait blocks until the current job, if any, has been fully recorded.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels any running job and waits for it to be recorded.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	if err := s.Cancel(); err != nil && !errors.Is(err, ErrNotRendering) {
		return err
	}
	return s.Wait(ctx)
}

// OnOutput feeds one line of job output into the current job.
func (s *Supervisor) OnOutput(stream, line string) {
	s.mu.Lock()
	jobID := s.machine.Snapshot().JobID
	s.mu.Unlock()
	s.observe(jobID, stream, line)
}

// OnExit records the current job's exit code.
func (s *Supervisor) OnExit(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machine.Exit(code, time.Now())
}

func (s *Supervisor) observe(jobID, stream, line string) {
	ev, ok := progress.Parse(line)

	s.mu.Lock()
	snap := s.machine.Snapshot()
	if snap.JobID != jobID || snap.Status != StatusRendering {
		s.mu.Unlock()
		return
	}
	if !ok || ev.Type == progress.TypeError {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			s.tail = append(s.tail, trimmed)
			if len(s.tail) > s.opts.TailLines {
				s.tail = s.tail[len(s.tail)-s.opts.TailLines:]
			}
		}
	}
	if ok {
		s.machine.Observe(ev)
	}
	current := s.machine.Snapshot().Progress
	sampled := ok && ev.Type == progress.TypeProgress && s.sampler.ShouldLog(float64(current), string(ev.Phase))
	s.mu.Unlock()

	if !ok {
		return
	}
	switch ev.Type {
	case progress.TypeProgress:
		if sampled {
			s.logger.Info("render progress",
				logging.String(logging.FieldJobID, jobID),
				logging.String(logging.FieldPhase, string(ev.Phase)),
				logging.Int("progress", current),
				logging.Int("frames", ev.Frames),
				logging.Int("total_frames", ev.TotalFrames),
			)
		}
	case progress.TypeError:
		s.logger.Warn("render job reported error",
			logging.String(logging.FieldJobID, jobID),
			logging.String("stream", stream),
			logging.String("message", ev.Message),
			logging.String(logging.FieldEventType, "render_error_marker"),
			logging.String(logging.FieldErrorHint, "see render-job.log for the full trace"),
			logging.String(logging.FieldImpact, "render will likely fail"),
		)
	}
}

func (s *Supervisor) watch(ctx context.Context, jobID string, cmd *exec.Cmd, stdout, stderr io.Reader, done chan struct{}) {
	defer close(done)

	var wg sync.WaitGroup
	scan := func(stream string, r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			s.observe(jobID, stream, scanner.Text())
		}
	}
	wg.Add(2)
	go scan("stdout", stdout)
	go scan("stderr", stderr)
	wg.Wait()

	waitErr := cmd.Wait()
	code := exitCode(cmd.ProcessState)
	ctxErr := ctx.Err()

	var snap Snapshot
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		snap = s.finish(ctx, jobID, func(m *Machine, at time.Time) bool {
			return m.Abort(fmt.Sprintf("render timed out after %s", s.opts.Timeout), at)
		})
	case errors.Is(ctxErr, context.Canceled):
		snap = s.finish(ctx, jobID, func(m *Machine, at time.Time) bool { return m.Abort("render cancelled", at) })
	case cmd.ProcessState == nil:
		snap = s.finish(ctx, jobID, func(m *Machine, at time.Time) bool {
			return m.Abort(fmt.Sprintf("wait for render job: %v", waitErr), at)
		})
	default:
		snap = s.finish(ctx, jobID, func(m *Machine, at time.Time) bool { return m.Exit(code, at) })
	}

	logger := logging.WithContext(ctx, s.logger)
	if snap.Status == StatusDone {
		logger.Info("render job finished",
			logging.Duration("elapsed", snap.FinishedAt.Sub(*snap.StartedAt)),
			logging.String(logging.FieldEventType, "render_done"),
		)
		location := s.publish(context.WithoutCancel(ctx), jobID)
		if location == "" {
			location = s.opts.ArtifactPath
		}
		s.notify(ctx, jobID, func(n Notifier, nctx context.Context) error {
			return n.NotifyRenderCompleted(nctx, jobID, snap.FinishedAt.Sub(*snap.StartedAt), location)
		})
		return
	}
	logging.ErrorWithContext(logger, "render job failed", "render_failed",
		logging.Int("exit_code", code),
		logging.String("error", snap.Error),
		logging.String(logging.FieldErrorHint, "run 'chartreel render status' and check render-job.log"),
	)
	if errors.Is(ctxErr, context.Canceled) {
		return
	}
	s.notify(ctx, jobID, func(n Notifier, nctx context.Context) error {
		return n.NotifyRenderFailed(nctx, jobID, snap.Error)
	})
}

func (s *Supervisor) notify(ctx context.Context, jobID string, send func(Notifier, context.Context) error) {
	if s.opts.Notifier == nil {
		return
	}
	if err := send(s.opts.Notifier, context.WithoutCancel(ctx)); err != nil {
		logging.WarnWithContext(s.logger, "render notification failed", "notification_failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check [notifications] ntfy_topic"),
		)
	}
}

// finish applies a terminal transition for jobID and records it.
func (s *Supervisor) finish(ctx context.Context, jobID string, transition func(*Machine, time.Time) bool) Snapshot {
	s.mu.Lock()
	if s.machine.Snapshot().JobID == jobID {
		transition(s.machine, time.Now())
	}
	snap := s.machine.Snapshot()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()

	if s.opts.History == nil {
		return snap
	}
	run := history.Run{
		ID:             jobID,
		Status:         string(snap.Status),
		Progress:       snap.Progress,
		ExitCode:       snap.ExitCode,
		Error:          snap.Error,
		FinishedAt:     snap.FinishedAt,
		DurationFrames: snap.TotalFrames,
	}
	if snap.Status == StatusDone {
		run.Artifact = s.opts.ArtifactPath
	}
	if err := s.opts.History.Finish(context.WithoutCancel(ctx), run); err != nil {
		logging.WarnWithContext(s.logger, "failed to record render run", "history_write_failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "run missing from history"),
		)
	}
	return snap
}

func (s *Supervisor) recordBegin(ctx context.Context, jobID string, at time.Time) {
	if s.opts.History == nil {
		return
	}
	if err := s.opts.History.Begin(ctx, jobID, at); err != nil {
		logging.WarnWithContext(s.logger, "failed to record render start", "history_write_failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "run missing from history"),
		)
	}
}

// publish uploads the artifact and returns its remote location, or "" when
// nothing was uploaded.
func (s *Supervisor) publish(ctx context.Context, jobID string) string {
	if s.opts.Publisher == nil || s.opts.ArtifactPath == "" {
		return ""
	}
	location, err := s.opts.Publisher.Publish(ctx, jobID, s.opts.ArtifactPath)
	if err != nil {
		logging.WarnWithContext(s.logger, "artifact publish failed", "publish_failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check [storage] settings and bucket permissions"),
			logging.String(logging.FieldImpact, "video is only available from the local download endpoint"),
		)
		return ""
	}
	if location == "" || s.opts.History == nil {
		return location
	}
	if err := s.opts.History.SetPublished(ctx, jobID, location); err != nil {
		logging.WarnWithContext(s.logger, "failed to record published url", "history_write_failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err),
		)
	}
	return location
}
