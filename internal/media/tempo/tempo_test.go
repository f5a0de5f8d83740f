package tempo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"chartreel/internal/services"
)

func TestClampSpeed(t *testing.T) {
	cases := map[float64]float64{0.1: 0.5, 0.5: 0.5, 1.25: 1.25, 2: 2, 3.5: 2}
	for in, want := range cases {
		if got := ClampSpeed(in); got != want {
			t.Fatalf("ClampSpeed(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestRetimePassesClampedAtempo(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	dst := filepath.Join(dir, "out.mp3")
	withHelper(t, "ok", argsFile)

	if err := NewFilter("ffmpeg").Retime(context.Background(), filepath.Join(dir, "raw.mp3"), dst, 4); err != nil {
		t.Fatalf("Retime returned error: %v", err)
	}
	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	if !strings.Contains(string(args), "atempo=2\n") {
		t.Fatalf("expected clamped atempo=2, got %q", args)
	}
	out, err := os.ReadFile(dst)
	if err != nil || string(out) != "retimed" {
		t.Fatalf("expected helper output, got %q (%v)", out, err)
	}
}

func TestRetimeFailureIsExternalToolError(t *testing.T) {
	dir := t.TempDir()
	withHelper(t, "fail", filepath.Join(dir, "args.txt"))

	err := NewFilter("").Retime(context.Background(), "in.mp3", filepath.Join(dir, "out.mp3"), 1.5)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid argument") {
		t.Fatalf("expected stderr detail, got %v", err)
	}
}

func withHelper(t *testing.T, mode, argsFile string) {
	t.Helper()
	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := []string{"-test.run=TestHelperProcess", "--", name}
		cs = append(cs, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(),
			"GO_WANT_HELPER_PROCESS=1",
			"TEMPO_HELPER_MODE="+mode,
			"TEMPO_HELPER_ARGS="+argsFile,
		)
		return cmd
	}
	t.Cleanup(func() { commandContext = orig })
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+2:]
			break
		}
	}
	_ = os.WriteFile(os.Getenv("TEMPO_HELPER_ARGS"), []byte(strings.Join(args, "\n")+"\n"), 0o644)
	if os.Getenv("TEMPO_HELPER_MODE") == "fail" {
		fmt.Fprintln(os.Stderr, "Error opening input file: Invalid argument")
		os.Exit(1)
	}
	dst := args[len(args)-1]
	if err := os.WriteFile(dst, []byte("retimed"), 0o644); err != nil {
		os.Exit(2)
	}
	os.Exit(0)
}
