package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chartreel/internal/history"
	"chartreel/internal/supervisor"
	"chartreel/internal/timeline"
)

func TestRenderStartConflictAndStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"render", "start"}, env.configPath)
	if err != nil {
		t.Fatalf("render start: %v", err)
	}
	requireContains(t, out, "Render started (job job-1)")

	_, _, err = runCLI(t, []string{"render", "start"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "already in progress") {
		t.Fatalf("expected conflict error, got %v", err)
	}

	out, _, err = runCLI(t, []string{"render", "status", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("render status: %v", err)
	}
	var status struct {
		Status   string `json:"status"`
		Progress int    `json:"progress"`
		JobID    string `json:"jobId"`
	}
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status %q: %v", out, err)
	}
	if status.Status != "rendering" || status.JobID != "job-1" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestRenderStartFollowUntilDone(t *testing.T) {
	env := setupCLITestEnv(t)
	env.super.script = []supervisor.Snapshot{
		{JobID: "job-1", Status: supervisor.StatusRendering, Progress: 20, Phase: "bundling"},
		{JobID: "job-1", Status: supervisor.StatusRendering, Progress: 55, Phase: "rendering", Frames: 150, TotalFrames: 300},
		{JobID: "job-1", Status: supervisor.StatusDone, Progress: 100, Phase: "encoding"},
	}

	out, _, err := runCLI(t, []string{"render", "start", "--follow", "--interval", "5ms"}, env.configPath)
	if err != nil {
		t.Fatalf("render start --follow: %v", err)
	}
	requireContains(t, out, "rendering 55%")
	requireContains(t, out, "encoding 100%")
	requireContains(t, out, "Render complete")
}

func TestRenderFollowReportsFailure(t *testing.T) {
	env := setupCLITestEnv(t)
	env.super.script = []supervisor.Snapshot{
		{JobID: "job-1", Status: supervisor.StatusError, Progress: 40, Error: "process exited with code 137"},
	}

	_, _, err := runCLI(t, []string{"render", "start", "-f", "--interval", "5ms"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "137") {
		t.Fatalf("expected failure mentioning exit code, got %v", err)
	}
}

func TestRenderCancel(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"render", "cancel"}, env.configPath)
	if err != nil {
		t.Fatalf("render cancel while idle: %v", err)
	}
	requireContains(t, out, "No render in progress")

	if _, _, err := runCLI(t, []string{"render", "start"}, env.configPath); err != nil {
		t.Fatalf("render start: %v", err)
	}
	out, _, err = runCLI(t, []string{"render", "cancel"}, env.configPath)
	if err != nil {
		t.Fatalf("render cancel: %v", err)
	}
	requireContains(t, out, "Cancelling render job-1")
}

func TestRenderSavePropsAndComposition(t *testing.T) {
	env := setupCLITestEnv(t)
	propsPath := filepath.Join(env.baseDir, "props.json")
	body := `{"tracks":[{"id":"t1","scenes":[{"id":"s1","type":"line","duration":20}]}],
		"audioUrls":[{"index":0,"url":"/audio/a.mp3","durationInSeconds":5}]}`
	if err := os.WriteFile(propsPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write props: %v", err)
	}

	out, _, err := runCLI(t, []string{"render", "save-props", propsPath}, env.configPath)
	if err != nil {
		t.Fatalf("save-props: %v", err)
	}
	requireContains(t, out, "Input props saved")

	out, _, err = runCLI(t, []string{"render", "composition", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("composition: %v", err)
	}
	var comp timeline.Composition
	if err := json.Unmarshal([]byte(out), &comp); err != nil {
		t.Fatalf("decode composition: %v", err)
	}
	if comp.DurationInFrames != 600 || comp.ID != "Infographic" {
		t.Fatalf("unexpected composition %+v", comp)
	}

	out, _, err = runCLI(t, []string{"render", "composition"}, env.configPath)
	if err != nil {
		t.Fatalf("composition table: %v", err)
	}
	requireContains(t, out, "600 frames")
}

func TestRenderSavePropsWithNarration(t *testing.T) {
	env := setupCLITestEnv(t)
	propsPath := filepath.Join(env.baseDir, "props.json")
	if err := os.WriteFile(propsPath, []byte(`{"tracks":[],"audioUrls":[{"index":0,"url":"/audio/old.mp3","durationInSeconds":3}]}`), 0o644); err != nil {
		t.Fatalf("write props: %v", err)
	}
	narrationPath := filepath.Join(env.baseDir, "narration.txt")
	text := strings.Repeat("Quarterly revenue beat the forecast. ", 8)
	if err := os.WriteFile(narrationPath, []byte(text), 0o644); err != nil {
		t.Fatalf("write narration: %v", err)
	}

	out, _, err := runCLI(t, []string{"render", "save-props", propsPath, "--narration", narrationPath, "--lang", "de", "--speed", "1.5"}, env.configPath)
	if err != nil {
		t.Fatalf("save-props: %v", err)
	}
	requireContains(t, out, "Input props saved")

	props, err := timeline.NewStore(env.cfg.PropsPath()).Load()
	if err != nil {
		t.Fatalf("load props: %v", err)
	}
	if len(props.AudioURLs) < 2 || props.TTSSpeed != 1.5 {
		t.Fatalf("unexpected saved props %+v", props)
	}
	for _, seg := range props.AudioURLs {
		if !strings.HasPrefix(seg.URL, "/api/tts?") || seg.Lang != "de" || !strings.Contains(seg.URL, "speed=1.5") {
			t.Fatalf("unexpected segment %+v", seg)
		}
	}

	empty := filepath.Join(env.baseDir, "empty.txt")
	if err := os.WriteFile(empty, []byte("  \n"), 0o644); err != nil {
		t.Fatalf("write empty narration: %v", err)
	}
	if _, _, err := runCLI(t, []string{"render", "save-props", propsPath, "--narration", empty}, env.configPath); err == nil {
		t.Fatal("expected error for empty narration")
	}
}

func TestRenderSavePropsRejectsInvalidJSON(t *testing.T) {
	env := setupCLITestEnv(t)
	propsPath := filepath.Join(env.baseDir, "broken.json")
	if err := os.WriteFile(propsPath, []byte(`{"tracks":`), 0o644); err != nil {
		t.Fatalf("write props: %v", err)
	}
	if _, _, err := runCLI(t, []string{"render", "save-props", propsPath}, env.configPath); err == nil {
		t.Fatal("expected invalid JSON error")
	}
}

func TestHistoryListsRuns(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No renders recorded")

	ctx := context.Background()
	started := time.Now().Add(-2 * time.Minute)
	if err := env.history.Begin(ctx, "0f1e2d3c-aaaa-bbbb-cccc-000000000001", started); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	finished := started.Add(90 * time.Second)
	exitCode := 0
	run := history.Run{
		ID:             "0f1e2d3c-aaaa-bbbb-cccc-000000000001",
		Status:         "done",
		Progress:       100,
		ExitCode:       &exitCode,
		DurationFrames: 300,
		FinishedAt:     &finished,
	}
	if err := env.history.Finish(ctx, run); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	out, _, err = runCLI(t, []string{"history", "--limit", "5"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "0f1e2d3c")
	requireContains(t, out, "done")
	requireContains(t, out, "1m30s")

	out, _, err = runCLI(t, []string{"history", "show", "0f1e2d3c-aaaa-bbbb-cccc-000000000001"}, env.configPath)
	if err != nil {
		t.Fatalf("history show: %v", err)
	}
	requireContains(t, out, "0f1e2d3c-aaaa-bbbb-cccc-000000000001")
	requireContains(t, out, "Exit code")
	requireContains(t, out, "300")

	if _, _, err := runCLI(t, []string{"history", "show", "missing"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestClientReportsUnavailableDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"--api", "127.0.0.1:1", "render", "status"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "chartreel serve") {
		t.Fatalf("expected unavailable daemon hint, got %v", err)
	}
}
