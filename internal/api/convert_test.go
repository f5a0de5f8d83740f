package api

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"chartreel/internal/history"
	"chartreel/internal/supervisor"
)

func TestFromSnapshotKeepsEditorShape(t *testing.T) {
	payload, err := json.Marshal(FromSnapshot(supervisor.Snapshot{}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != `{"status":"idle","progress":0,"error":""}` {
		t.Fatalf("unexpected idle payload: %s", payload)
	}

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	code := 137
	status := FromSnapshot(supervisor.Snapshot{
		JobID:     "job",
		Status:    supervisor.StatusError,
		Progress:  42,
		Error:     "process exited with code 137",
		ExitCode:  &code,
		StartedAt: &started,
	})
	if status.Error != "process exited with code 137" {
		t.Fatalf("unexpected error field: %+v", status)
	}
	if status.StartedAt != "2026-03-01T12:00:00.000Z" || status.FinishedAt != "" {
		t.Fatalf("unexpected timestamps: %+v", status)
	}
	if !ParseTime(status.StartedAt).Equal(started) {
		t.Fatalf("ParseTime round trip failed for %q", status.StartedAt)
	}
}

func TestFromRunComputesElapsed(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(95 * time.Second)
	run := FromRun(history.Run{ID: "a", Status: "done", Progress: 100, StartedAt: started, FinishedAt: &finished})
	if run.ElapsedSeconds != 95 || run.FinishedAt == "" {
		t.Fatalf("unexpected run: %+v", run)
	}
	runs := FromRuns([]history.Run{{ID: "x"}, {ID: "y"}})
	if len(runs) != 2 || runs[1].ID != "y" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestErrorMessagePrefersStructuredFields(t *testing.T) {
	if got := errorMessage([]byte(`{"message":"Render already in progress"}`)); got != "Render already in progress" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := errorMessage([]byte(`{"error":"unauthorized"}`)); got != "unauthorized" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := errorMessage([]byte("plain text\n")); !strings.Contains(got, "plain text") {
		t.Fatalf("unexpected message %q", got)
	}
}
