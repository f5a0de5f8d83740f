package api

import "chartreel/internal/timeline"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// MessageResponse carries a human-readable message, used for errors and 409s.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the generic error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SavePropsResponse acknowledges a props save.
type SavePropsResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StartResponse acknowledges a render start.
type StartResponse struct {
	Status string `json:"status"`
	JobID  string `json:"jobId"`
}

// CancelResponse acknowledges a cancel request.
type CancelResponse struct {
	Status string `json:"status"`
	JobID  string `json:"jobId,omitempty"`
}

// RenderStatus is the polling payload.
type RenderStatus struct {
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Error       string `json:"error"`
	JobID       string `json:"jobId,omitempty"`
	Phase       string `json:"phase,omitempty"`
	Frames      int    `json:"frames,omitempty"`
	TotalFrames int    `json:"totalFrames,omitempty"`
	ExitCode    *int   `json:"exitCode,omitempty"`
	StartedAt   string `json:"startedAt,omitempty"`
	FinishedAt  string `json:"finishedAt,omitempty"`
	// Diagnostics is the tail of non-progress job output, set on failure.
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// RenderRun is one history row.
type RenderRun struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	Progress       int     `json:"progress"`
	ExitCode       *int    `json:"exitCode,omitempty"`
	Error          string  `json:"error,omitempty"`
	Artifact       string  `json:"artifact,omitempty"`
	PublishedURL   string  `json:"publishedUrl,omitempty"`
	DurationFrames int     `json:"durationFrames,omitempty"`
	StartedAt      string  `json:"startedAt"`
	FinishedAt     string  `json:"finishedAt,omitempty"`
	ElapsedSeconds float64 `json:"elapsedSeconds,omitempty"`
}

// HistoryResponse wraps recent runs, newest first.
type HistoryResponse struct {
	Runs []RenderRun `json:"runs"`
}

// CompositionResponse is the computed composition for the saved props.
type CompositionResponse struct {
	Composition timeline.Composition `json:"composition"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// CacheStats summarizes the audio cache.
type CacheStats struct {
	Dir     string `json:"dir"`
	Entries int    `json:"entries"`
	Bytes   int64  `json:"bytes"`
}

// DaemonStatus aggregates daemon runtime information.
type DaemonStatus struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	APIBind       string             `json:"apiBind"`
	LockFilePath  string             `json:"lockFilePath"`
	HistoryDBPath string             `json:"historyDbPath"`
	LogPath       string             `json:"logPath,omitempty"`
	Render        RenderStatus       `json:"render"`
	Cache         CacheStats         `json:"cache"`
	Dependencies  []DependencyStatus `json:"dependencies"`
}
