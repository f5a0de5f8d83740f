package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"chartreel/internal/config"
	"chartreel/internal/daemon"
	"chartreel/internal/history"
	"chartreel/internal/logging"
	"chartreel/internal/supervisor"
	"chartreel/internal/testsupport"
	"chartreel/internal/timeline"
	"chartreel/internal/ttscache"
)

// scriptedSupervisor walks through a fixed list of snapshots, one per Status call
// after Start.
type scriptedSupervisor struct {
	mu      sync.Mutex
	script  []supervisor.Snapshot
	current supervisor.Snapshot
}

func (s *scriptedSupervisor) Start(context.Context) (supervisor.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.Status == supervisor.StatusRendering {
		return s.current, supervisor.ErrRenderInProgress
	}
	s.current = supervisor.Snapshot{JobID: "job-1", Status: supervisor.StatusRendering}
	return s.current, nil
}

func (s *scriptedSupervisor) Status() supervisor.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.current
	if snap.Status == supervisor.StatusRendering && len(s.script) > 0 {
		s.current = s.script[0]
		s.script = s.script[1:]
	}
	return snap
}

func (s *scriptedSupervisor) Cancel() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current.Status != supervisor.StatusRendering {
		return supervisor.ErrNotRendering
	}
	return nil
}

func (s *scriptedSupervisor) Diagnostics() []string { return nil }

func (s *scriptedSupervisor) Shutdown(context.Context) error { return nil }

type emptyCache struct {
	dir string
}

func (c emptyCache) Resolve(context.Context, ttscache.Key) (ttscache.Entry, error) {
	return ttscache.Entry{}, fmt.Errorf("synthesis disabled in tests")
}

func (c emptyCache) Stats() (ttscache.Stats, error) {
	return ttscache.Stats{Dir: c.dir}, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	history    *history.Store
	super      *scriptedSupervisor
	server     *httptest.Server
}

func writeTestConfig(t *testing.T, base, apiBind string, extra string) string {
	t.Helper()
	path := filepath.Join(base, "chartreel.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
cache_dir = %q
public_dir = %q
bundle_public_dir = %q
out_dir = %q
log_dir = %q
api_bind = %q
%s`,
		filepath.Join(base, "data"),
		filepath.Join(base, "cache"),
		filepath.Join(base, "public"),
		filepath.Join(base, "bundle-public"),
		filepath.Join(base, "out"),
		filepath.Join(base, "logs"),
		apiBind,
		extra,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", filepath.Join(base, "home"))
	env := &cliTestEnv{baseDir: base, super: &scriptedSupervisor{}}

	// The server address is only known after it starts, so the config is
	// written twice: once to build the daemon, once with the bind.
	configPath := writeTestConfig(t, base, "", "")
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	store := testsupport.MustOpenHistory(t, cfg)
	d, err := daemon.New(cfg, logging.NewNop(), daemon.Dependencies{
		Supervisor: env.super,
		History:    store,
		Cache:      emptyCache{dir: cfg.Paths.CacheDir},
		Props:      timeline.NewStore(cfg.PropsPath()),
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = d.Close()
	})

	env.cfg = cfg
	env.history = store
	env.server = srv
	env.configPath = writeTestConfig(t, base, strings.TrimPrefix(srv.URL, "http://"), "")
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
