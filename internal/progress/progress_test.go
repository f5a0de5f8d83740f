package progress

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestOverallPhaseWeights(t *testing.T) {
	cases := []struct {
		phase   Phase
		percent float64
		want    int
	}{
		{PhaseBundling, 0, 0},
		{PhaseBundling, 50, 10},
		{PhaseBundling, 100, 20},
		{PhaseRendering, 0, 20},
		{PhaseRendering, 50, 50},
		{PhaseRendering, 100, 80},
		{PhaseEncoding, 0, 80},
		{PhaseEncoding, 100, 100},
		{PhaseEncoding, 250, 100},
		{PhaseRendering, -5, 20},
		{Phase("unknown"), 50, 0},
	}
	for _, tc := range cases {
		if got := Overall(tc.phase, tc.percent); got != tc.want {
			t.Errorf("Overall(%s, %v) = %d, want %d", tc.phase, tc.percent, got, tc.want)
		}
	}
}

func TestParseLegacyMarkers(t *testing.T) {
	cases := []struct {
		line    string
		phase   Phase
		percent float64
		frames  int
		total   int
	}{
		{"Bundling: 40%", PhaseBundling, 40, 0, 0},
		{"Rendering: 42% (126/300 frames)", PhaseRendering, 42, 126, 300},
		{"  Encoding: 99% (297/300 frames)  ", PhaseEncoding, 99, 297, 300},
		{"📊 Rendering: 7.5%", PhaseRendering, 7.5, 0, 0},
	}
	for _, tc := range cases {
		ev, ok := Parse(tc.line)
		if !ok || ev.Type != TypeProgress {
			t.Fatalf("Parse(%q) = %+v, %v", tc.line, ev, ok)
		}
		if ev.Phase != tc.phase || ev.Percent != tc.percent || ev.Frames != tc.frames || ev.TotalFrames != tc.total {
			t.Fatalf("Parse(%q) = %+v", tc.line, ev)
		}
	}
}

func TestParseStructuredEvents(t *testing.T) {
	ev, ok := Parse(`{"v":1,"type":"progress","phase":"encoding","percent":50,"frames":150,"total_frames":300}`)
	if !ok || ev.Phase != PhaseEncoding || ev.Overall() != 90 || ev.TotalFrames != 300 {
		t.Fatalf("unexpected progress event: %+v %v", ev, ok)
	}

	ev, ok = Parse(`{"v":1,"type":"error","message":"bundle failed"}`)
	if !ok || ev.Type != TypeError || ev.Message != "bundle failed" {
		t.Fatalf("unexpected error event: %+v %v", ev, ok)
	}
}

func TestParseRejectsUnknownStructuredEvents(t *testing.T) {
	for _, line := range []string{
		`{"v":2,"type":"progress","phase":"encoding","percent":50}`,
		`{"v":1,"type":"progress","phase":"uploading","percent":50}`,
		`{"v":1,"type":"heartbeat"}`,
	} {
		if ev, ok := Parse(line); ok {
			t.Fatalf("Parse(%q) accepted %+v", line, ev)
		}
	}
}

func TestParseErrorMarkers(t *testing.T) {
	for _, line := range []string{
		"Error: composition not found",
		"TypeError: cannot read properties of undefined",
		"render error while encoding",
		"❌ bundle failed",
	} {
		ev, ok := Parse(line)
		if !ok || ev.Type != TypeError || ev.Message != line {
			t.Fatalf("Parse(%q) = %+v, %v", line, ev, ok)
		}
	}
}

func TestParseIgnoresDiagnostics(t *testing.T) {
	for _, line := range []string{"", "   ", "Loaded 3 tracks", "ERROR in uppercase only"} {
		if ev, ok := Parse(line); ok {
			t.Fatalf("Parse(%q) unexpectedly classified as %+v", line, ev)
		}
	}
}

func TestLogRecordsBelowErrorAreNotMarkers(t *testing.T) {
	for _, line := range []string{
		`2026-10-19T08:00:00Z WARN materialize: audio asset missing from cache event_type=asset_missing error_hint="check logs for details"`,
		`2026-10-19T08:00:00Z INFO render: retrying after error count=1`,
		`{"ts":"2026-10-19T08:00:00Z","level":"warn","msg":"audio asset missing","error_hint":"check logs"}`,
	} {
		if IsErrorLine(line) {
			t.Fatalf("IsErrorLine(%q) = true, want false", line)
		}
		if ev, ok := Parse(line); ok {
			t.Fatalf("Parse(%q) unexpectedly classified as %+v", line, ev)
		}
	}
	for _, line := range []string{
		`2026-10-19T08:00:00Z ERROR render: bundle failed error="exit status 2"`,
		`{"ts":"2026-10-19T08:00:00Z","level":"error","msg":"bundle failed"}`,
	} {
		if !IsErrorLine(line) {
			t.Fatalf("IsErrorLine(%q) = false, want true", line)
		}
	}
}

func TestEmitterWritesParseableLinesAndDropsRepeats(t *testing.T) {
	var buf bytes.Buffer
	em := NewEmitter(&buf)
	_ = em.Progress(PhaseBundling, 10.2, 0, 0)
	_ = em.Progress(PhaseBundling, 10.9, 0, 0)
	_ = em.Progress(PhaseRendering, 10, 30, 300)
	_ = em.Error("renderer exited")

	var events []Event
	scanner := bufio.NewScanner(strings.NewReader(buf.String()))
	for scanner.Scan() {
		ev, ok := Parse(scanner.Text())
		if !ok {
			t.Fatalf("emitted line not parseable: %q", scanner.Text())
		}
		events = append(events, ev)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %s", len(events), buf.String())
	}
	if events[0].V != Version || events[0].Percent != 10 {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	if events[1].Overall() != 26 {
		t.Fatalf("unexpected rendering overall: %d", events[1].Overall())
	}
	if events[2].Type != TypeError || events[2].Message != "renderer exited" {
		t.Fatalf("unexpected error event: %+v", events[2])
	}
}
