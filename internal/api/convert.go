package api

import (
	"time"

	"chartreel/internal/deps"
	"chartreel/internal/history"
	"chartreel/internal/supervisor"
)

// FromSnapshot converts a supervisor snapshot into the polling payload.
func FromSnapshot(snap supervisor.Snapshot) RenderStatus {
	status := RenderStatus{
		Status:      string(snap.Status),
		Progress:    snap.Progress,
		Error:       snap.Error,
		JobID:       snap.JobID,
		Phase:       string(snap.Phase),
		Frames:      snap.Frames,
		TotalFrames: snap.TotalFrames,
		ExitCode:    snap.ExitCode,
		StartedAt:   formatTime(snap.StartedAt),
		FinishedAt:  formatTime(snap.FinishedAt),
	}
	if status.Status == "" {
		status.Status = string(supervisor.StatusIdle)
	}
	return status
}

// FromRun converts a history row.
func FromRun(run history.Run) RenderRun {
	out := RenderRun{
		ID:             run.ID,
		Status:         run.Status,
		Progress:       run.Progress,
		ExitCode:       run.ExitCode,
		Error:          run.Error,
		Artifact:       run.Artifact,
		PublishedURL:   run.PublishedURL,
		DurationFrames: run.DurationFrames,
		StartedAt:      formatTime(&run.StartedAt),
		FinishedAt:     formatTime(run.FinishedAt),
	}
	if elapsed := run.Duration(); elapsed > 0 {
		out.ElapsedSeconds = elapsed.Seconds()
	}
	return out
}

// FromRuns converts history rows, keeping order.
func FromRuns(runs []history.Run) []RenderRun {
	out := make([]RenderRun, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromRun(run))
	}
	return out
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

// ParseTime parses an API timestamp; the zero time is returned on failure.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	ts, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func formatTime(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(dateTimeFormat)
}
