package supervisor

import (
	"fmt"
	"time"

	"chartreel/internal/progress"
	"chartreel/internal/services"
)

// Status is the render slot state.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRendering Status = "rendering"
	StatusDone      Status = "done"
	StatusError     Status = "error"
)

// ErrRenderInProgress is returned by Start while a job is rendering.
var ErrRenderInProgress = fmt.Errorf("%w: render already in progress", services.ErrConflict)

// ErrNotRendering is returned by Cancel when there is nothing to cancel.
var ErrNotRendering = fmt.Errorf("%w: no render in progress", services.ErrConflict)

// Snapshot is a copy of the job state.
type Snapshot struct {
	JobID       string         `json:"jobId,omitempty"`
	Status      Status         `json:"status"`
	Progress    int            `json:"progress"`
	Phase       progress.Phase `json:"phase,omitempty"`
	Frames      int            `json:"frames,omitempty"`
	TotalFrames int            `json:"totalFrames,omitempty"`
	Error       string         `json:"error,omitempty"`
	ExitCode    *int           `json:"exitCode,omitempty"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	FinishedAt  *time.Time     `json:"finishedAt,omitempty"`
}

// Terminal reports whether the snapshot is done or error.
func (s Snapshot) Terminal() bool {
	return s.Status == StatusDone || s.Status == StatusError
}

// Machine holds one job's state and applies transitions. It is not safe for
// concurrent use.
type Machine struct {
	state   Snapshot
	pending string
	// structured is set once a versioned error event has been seen.
	structured bool
}

// NewMachine returns an idle machine.
func NewMachine() *Machine {
	return &Machine{state: Snapshot{Status: StatusIdle}}
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	out := m.state
	if m.state.ExitCode != nil {
		code := *m.state.ExitCode
		out.ExitCode = &code
	}
	return out
}

// Begin moves to rendering with progress and error reset. It fails without
// touching state if a job is already rendering.
func (m *Machine) Begin(jobID string, now time.Time) error {
	if m.state.Status == StatusRendering {
		return ErrRenderInProgress
	}
	started := now
	m.state = Snapshot{JobID: jobID, Status: StatusRendering, StartedAt: &started}
	m.pending = ""
	m.structured = false
	return nil
}

// Observe applies one parsed output event. Progress never moves backwards;
// error markers become the pending message without changing status. The
// last versioned error event wins; free-text markers only apply until one
// arrives. Events outside rendering are ignored.
func (m *Machine) Observe(ev progress.Event) bool {
	if m.state.Status != StatusRendering {
		return false
	}
	switch ev.Type {
	case progress.TypeProgress:
		if overall := ev.Overall(); overall > m.state.Progress {
			m.state.Progress = overall
		}
		m.state.Phase = ev.Phase
		if ev.TotalFrames > 0 {
			m.state.Frames = ev.Frames
			m.state.TotalFrames = ev.TotalFrames
		}
		return true
	case progress.TypeError:
		if ev.V == progress.Version {
			m.structured = true
		} else if m.structured {
			return false
		}
		m.pending = ev.Message
		return true
	}
	return false
}

// Exit records the child's exit code. Zero is done at 100%; anything else is
// error with the pending message or a generic one naming the code.
func (m *Machine) Exit(code int, now time.Time) bool {
	if m.state.Status != StatusRendering {
		return false
	}
	finished := now
	m.state.FinishedAt = &finished
	m.state.ExitCode = &code
	if code == 0 {
		m.state.Status = StatusDone
		m.state.Progress = 100
		m.state.Error = ""
		return true
	}
	m.state.Status = StatusError
	m.state.Error = m.pending
	if m.state.Error == "" {
		m.state.Error = fmt.Sprintf("process exited with code %d", code)
	}
	return true
}

// Abort ends a rendering job with reason, for cancel, timeout, or spawn failure.
func (m *Machine) Abort(reason string, now time.Time) bool {
	if m.state.Status != StatusRendering {
		return false
	}
	finished := now
	m.state.FinishedAt = &finished
	m.state.Status = StatusError
	m.state.Error = reason
	return true
}
