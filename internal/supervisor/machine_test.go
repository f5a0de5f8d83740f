package supervisor

import (
	"errors"
	"strings"
	"testing"
	"time"

	"chartreel/internal/progress"
	"chartreel/internal/services"
)

func mustParse(t *testing.T, line string) progress.Event {
	t.Helper()
	ev, ok := progress.Parse(line)
	if !ok {
		t.Fatalf("Parse(%q) not recognized", line)
	}
	return ev
}

func TestMachineStartsIdle(t *testing.T) {
	snap := NewMachine().Snapshot()
	if snap.Status != StatusIdle || snap.Progress != 0 || snap.Error != "" {
		t.Fatalf("unexpected initial state: %+v", snap)
	}
}

func TestMachineBeginWhileRenderingLeavesStateUntouched(t *testing.T) {
	m := NewMachine()
	if err := m.Begin("a", time.Now()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	m.Observe(mustParse(t, "Rendering: 50%"))
	before := m.Snapshot()

	err := m.Begin("b", time.Now())
	if !errors.Is(err, ErrRenderInProgress) || !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	after := m.Snapshot()
	if after.JobID != "a" || after.Progress != before.Progress || after.Status != StatusRendering {
		t.Fatalf("state changed on rejected Begin: %+v", after)
	}
}

func TestMachineExitZeroForcesFullProgress(t *testing.T) {
	m := NewMachine()
	_ = m.Begin("a", time.Now())
	m.Observe(mustParse(t, "Encoding: 40% (120/300 frames)"))
	if got := m.Snapshot().Progress; got != 88 {
		t.Fatalf("progress = %d, want 88", got)
	}
	m.Exit(0, time.Now())
	snap := m.Snapshot()
	if snap.Status != StatusDone || snap.Progress != 100 || snap.Error != "" {
		t.Fatalf("unexpected done state: %+v", snap)
	}
	if snap.ExitCode == nil || *snap.ExitCode != 0 || snap.FinishedAt == nil {
		t.Fatalf("expected exit metadata: %+v", snap)
	}
}

func TestMachineNonZeroExitWithoutMarkerNamesCode(t *testing.T) {
	m := NewMachine()
	_ = m.Begin("a", time.Now())
	m.Exit(137, time.Now())
	snap := m.Snapshot()
	if snap.Status != StatusError || !strings.Contains(snap.Error, "137") {
		t.Fatalf("unexpected error state: %+v", snap)
	}
}

func TestMachineErrorMarkersLastWinsWithoutChangingStatus(t *testing.T) {
	m := NewMachine()
	_ = m.Begin("a", time.Now())
	m.Observe(mustParse(t, "Error: first"))
	m.Observe(mustParse(t, `{"v":1,"type":"error","message":"second"}`))
	if snap := m.Snapshot(); snap.Status != StatusRendering || snap.Error != "" {
		t.Fatalf("error marker must not change status: %+v", snap)
	}
	m.Exit(1, time.Now())
	if snap := m.Snapshot(); snap.Error != "second" {
		t.Fatalf("expected last error marker, got %+v", snap)
	}
}

func TestMachineStructuredErrorOutranksLaterFreeText(t *testing.T) {
	m := NewMachine()
	_ = m.Begin("a", time.Now())
	m.Observe(mustParse(t, `{"v":1,"type":"error","message":"bundle: bundler exited 2"}`))
	if m.Observe(mustParse(t, "Error: stack trace follows")) {
		t.Fatal("free-text marker after a structured error must be ignored")
	}
	m.Exit(1, time.Now())
	if snap := m.Snapshot(); snap.Error != "bundle: bundler exited 2" {
		t.Fatalf("expected structured error to win, got %+v", snap)
	}

	_ = m.Begin("b", time.Now())
	m.Observe(mustParse(t, "Error: from the new job"))
	m.Exit(1, time.Now())
	if snap := m.Snapshot(); snap.Error != "Error: from the new job" {
		t.Fatalf("Begin must reset the structured flag, got %+v", snap)
	}
}

func TestMachineProgressIsMonotonic(t *testing.T) {
	m := NewMachine()
	_ = m.Begin("a", time.Now())
	m.Observe(mustParse(t, "Rendering: 50%"))
	m.Observe(mustParse(t, "Bundling: 100%"))
	snap := m.Snapshot()
	if snap.Progress != 50 {
		t.Fatalf("progress moved backwards: %+v", snap)
	}
	if snap.Phase != progress.PhaseBundling {
		t.Fatalf("phase should follow the latest marker: %+v", snap)
	}
}

func TestMachineIgnoresEventsOutsideRendering(t *testing.T) {
	m := NewMachine()
	if m.Observe(mustParse(t, "Rendering: 50%")) || m.Exit(0, time.Now()) || m.Abort("x", time.Now()) {
		t.Fatal("idle machine accepted a transition")
	}
	_ = m.Begin("a", time.Now())
	m.Exit(0, time.Now())
	if m.Abort("late", time.Now()) {
		t.Fatal("done machine accepted Abort")
	}
	if snap := m.Snapshot(); snap.Status != StatusDone {
		t.Fatalf("terminal state changed: %+v", snap)
	}
}

func TestMachineBeginAfterTerminalResets(t *testing.T) {
	m := NewMachine()
	_ = m.Begin("a", time.Now())
	m.Observe(mustParse(t, "Error: boom"))
	m.Exit(1, time.Now())
	if err := m.Begin("b", time.Now()); err != nil {
		t.Fatalf("Begin after error: %v", err)
	}
	snap := m.Snapshot()
	if snap.JobID != "b" || snap.Progress != 0 || snap.Error != "" || snap.ExitCode != nil || snap.FinishedAt != nil {
		t.Fatalf("state not reset: %+v", snap)
	}
	m.Exit(2, time.Now())
	if got := m.Snapshot().Error; got != "process exited with code 2" {
		t.Fatalf("stale pending error leaked: %q", got)
	}
}

func TestMachineAbort(t *testing.T) {
	m := NewMachine()
	_ = m.Begin("a", time.Now())
	m.Abort("render cancelled", time.Now())
	if snap := m.Snapshot(); snap.Status != StatusError || snap.Error != "render cancelled" || !snap.Terminal() {
		t.Fatalf("unexpected aborted state: %+v", snap)
	}
}
