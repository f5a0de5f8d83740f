package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"chartreel/internal/logging"
	"chartreel/internal/services"
)

func withHelper(t *testing.T, mode string) {
	t.Helper()
	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := []string{"-test.run=TestHelperProcess", "--", name}
		cs = append(cs, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "RENDER_HELPER_MODE="+mode)
		return cmd
	}
	t.Cleanup(func() { commandContext = orig })
}

func TestCLIBundlerReportsProgress(t *testing.T) {
	withHelper(t, "bundle")
	out := filepath.Join(t.TempDir(), "bundle")
	var fractions []float64
	dir, err := NewCLIBundler([]string{"node", "scripts/bundle.js"}, logging.NewNop()).Bundle(context.Background(), BundleRequest{
		EntryPoint: "remotion/index.js",
		PublicDir:  "remotion/public",
		OutDir:     out,
	}, func(f float64) { fractions = append(fractions, f) })
	if err != nil {
		t.Fatalf("Bundle returned error: %v", err)
	}
	if dir != out {
		t.Fatalf("Bundle() dir = %q, want %q", dir, out)
	}
	if len(fractions) != 2 || fractions[0] != 0.5 || fractions[1] != 1 {
		t.Fatalf("unexpected progress %v", fractions)
	}
	if _, err := os.Stat(filepath.Join(out, "args.txt")); err != nil {
		t.Fatalf("expected helper to write into out dir: %v", err)
	}
	args, _ := os.ReadFile(filepath.Join(out, "args.txt"))
	if !strings.Contains(string(args), "scripts/bundle.js --entry remotion/index.js --public-dir remotion/public --out "+out) {
		t.Fatalf("unexpected bundler args: %s", args)
	}
}

func TestCLIBundlerFailureCarriesErrorLine(t *testing.T) {
	withHelper(t, "fail")
	_, err := NewCLIBundler([]string{"node"}, nil).Bundle(context.Background(), BundleRequest{OutDir: t.TempDir()}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Error: Cannot find module") {
		t.Fatalf("expected stderr error line in message, got %v", err)
	}
}

func TestCLIRendererReportsFrames(t *testing.T) {
	withHelper(t, "render")
	output := filepath.Join(t.TempDir(), "video.mp4")
	type frame struct{ rendered, encoded int }
	var frames []frame
	err := NewCLIRenderer([]string{"node", "scripts/render.js"}, logging.NewNop()).Render(context.Background(), RenderRequest{
		BundleDir:       "bundle",
		CompositionPath: "composition.json",
		OutputPath:      output,
		Codec:           "h264",
		TotalFrames:     300,
	}, func(r, e int) { frames = append(frames, frame{r, e}) })
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if len(frames) != 2 || frames[0] != (frame{150, 0}) || frames[1] != (frame{300, 300}) {
		t.Fatalf("unexpected frames %v", frames)
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("expected output: %v", err)
	}
}

func TestRunStreamingRequiresCommand(t *testing.T) {
	err := runStreaming(context.Background(), "bundler", nil, nil, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestLineTailPrefersErrorLines(t *testing.T) {
	tail := newLineTail(2)
	for _, line := range []string{"one", "Error: first", "two", "three", ""} {
		tail.add(line)
	}
	if got := tail.summary(); got != "three" {
		t.Fatalf("summary() = %q, want error line evicted", got)
	}
	tail.add("❌ broken")
	tail.add("four")
	if got := tail.summary(); got != "❌ broken" {
		t.Fatalf("summary() = %q", got)
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	flag := func(name string) string {
		for i := 0; i < len(args)-1; i++ {
			if args[i] == name {
				return args[i+1]
			}
		}
		return ""
	}
	switch os.Getenv("RENDER_HELPER_MODE") {
	case "bundle":
		out := flag("--out")
		_ = os.MkdirAll(out, 0o755)
		_ = os.WriteFile(filepath.Join(out, "args.txt"), []byte(strings.Join(args, " ")), 0o644)
		fmt.Println("webpack starting")
		fmt.Println(`{"progress":0.5}`)
		fmt.Fprintln(os.Stderr, "warning: large asset")
		fmt.Println(`{"progress":1}`)
		os.Exit(0)
	case "render":
		fmt.Println(`{"renderedFrames":150,"encodedFrames":0}`)
		fmt.Println("Getting composition")
		fmt.Println(`{"renderedFrames":300,"encodedFrames":300}`)
		_ = os.WriteFile(flag("--output"), []byte("mp4"), 0o644)
		os.Exit(0)
	case "fail":
		fmt.Fprintln(os.Stderr, "Error: Cannot find module 'remotion'")
		fmt.Fprintln(os.Stderr, "    at Module._resolveFilename")
		os.Exit(1)
	}
	os.Exit(2)
}
