package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"flowops/internal/config"
	"flowops/internal/daemon"
	"flowops/internal/directory"
	"flowops/internal/logging"
	"flowops/internal/notifications"
	"flowops/internal/testsupport"
	"flowops/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t,
		testsupport.WithAPIToken("cli-token"),
		testsupport.WithDevelopers("devA", "a@example.com", "devB", "b@example.com"),
	)
	cfg.Stale.Enabled = false
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	st := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	dispatcher, err := notifications.NewFromConfig(cfg, logger)
	if err != nil {
		t.Fatalf("notifications.NewFromConfig: %v", err)
	}
	dir := directory.New(cfg)
	mgr := workflow.NewManager(st, dir, dispatcher, logger)
	detector := workflow.NewStaleDetector(st, dir, dispatcher, logger, workflow.StaleOptionsFromConfig(cfg))
	d, err := daemon.New(cfg, st, logger, mgr, detector, dispatcher)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = d.Close()
	})

	cfg.Paths.APIBind = d.Address()
	configPath := filepath.Join(testsupport.BaseDir(cfg), "flowops.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, daemon: d, configPath: configPath}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// runCLI executes the root command against env's config and returns stdout.
func runCLI(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRunCLI(t *testing.T, configPath string, args ...string) string {
	t.Helper()
	out, err := runCLI(t, configPath, args...)
	if err != nil {
		t.Fatalf("flowops %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func decodeJSON[T any](t *testing.T, raw string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return v
}
