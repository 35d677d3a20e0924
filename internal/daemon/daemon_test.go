package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"

	"github.com/gofrs/flock"

	"flowops/internal/api"
	"flowops/internal/config"
	"flowops/internal/daemon"
	"flowops/internal/directory"
	"flowops/internal/logging"
	"flowops/internal/notifications"
	"flowops/internal/release"
	"flowops/internal/testsupport"
	"flowops/internal/workflow"
)

const testToken = "secret-token"

func newTestDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	d, _ := newTestDaemonWithDispatcher(t, cfg)
	return d
}

func newTestDaemonWithDispatcher(t *testing.T, cfg *config.Config) (*daemon.Daemon, *notifications.Dispatcher) {
	t.Helper()
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
	t.Cleanup(func() { _ = d.Close() })
	return d, dispatcher
}

func testConfig(t *testing.T) *config.Config {
	return testsupport.NewConfig(t,
		testsupport.WithAPIToken(testToken),
		testsupport.WithDevelopers("devA", "a@example.com", "devB", "b@example.com"),
	)
}

type client struct {
	t    *testing.T
	base string
}

func (c client) do(method, path string, body any) (*http.Response, []byte) {
	c.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	d := newTestDaemon(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if status := d.Status(ctx); !status.Running || status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected status: %+v", status)
	}
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	other := newTestDaemon(t, cfg)
	if err := other.Start(ctx); err == nil {
		t.Fatal("expected lock contention to block a second daemon")
	}

	d.Stop()
	if status := d.Status(ctx); status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonStartFailureReleasesResources(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer occupied.Close()

	cfg := testConfig(t)
	cfg.Paths.APIBind = occupied.Addr().String()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	d, dispatcher := newTestDaemonWithDispatcher(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected start to fail on an occupied api address")
	}
	if status := d.Status(ctx); status.Running {
		t.Fatalf("daemon reported running after failed start: %+v", status)
	}

	dispatcher.Publish(ctx, notifications.TaskAssigned{
		Details: notifications.Details{DeveloperID: "devA", ReleaseID: "R", TaskID: "R-t1"},
		Source:  notifications.AssignedByStart,
	})
	if dropped := dispatcher.Stats().Dropped; dropped != 1 {
		t.Fatalf("expected dispatcher to be stopped after failed start, dropped=%d", dropped)
	}

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil || !ok {
		t.Fatalf("expected daemon lock to be released, ok=%v err=%v", ok, err)
	}
	_ = lock.Unlock()
}

func TestAPIReleaseFlow(t *testing.T) {
	cfg := testConfig(t)
	d := newTestDaemon(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	c := client{t: t, base: "http://" + d.Address()}

	resp, body := c.do(http.MethodPost, "/api/releases", api.CreateReleaseRequest{
		ID:    "R",
		Title: "Release R",
		Tasks: []api.TaskInput{{ID: "T1", Title: "Build"}, {ID: "T2", Title: "Ship"}},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	resp, body = c.do(http.MethodPost, "/api/releases/tasks/R/devs/devA/start/T2", nil)
	assertError(t, resp, body, http.StatusConflict, release.KindSequenceViolation)

	resp, body = c.do(http.MethodPost, "/api/releases/tasks/R/devs/devA/start/T1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: %d %s", resp.StatusCode, body)
	}
	var started api.TaskResponse
	if err := json.Unmarshal(body, &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if started.Task.Status != "in_progress" || started.Task.DeveloperID != "devA" {
		t.Fatalf("unexpected task: %+v", started.Task)
	}

	resp, body = c.do(http.MethodPost, "/api/releases/tasks/R/devs/devB/complete/T1", nil)
	assertError(t, resp, body, http.StatusConflict, release.KindWrongDeveloper)

	resp, body = c.do(http.MethodPost, "/api/releases/tasks/R/devs/devA/complete/T1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete: %d %s", resp.StatusCode, body)
	}

	resp, body = c.do(http.MethodPost, "/api/releases/R/tasks/T2/assign/devB", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assign: %d %s", resp.StatusCode, body)
	}

	resp, body = c.do(http.MethodPost, "/api/releases/R/hotfix", api.TaskInput{Title: "fix"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("hotfix: %d %s", resp.StatusCode, body)
	}

	resp, body = c.do(http.MethodGet, "/api/releases/R", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: %d %s", resp.StatusCode, body)
	}
	var got api.ReleaseResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Release.Tasks) != 3 || got.Release.Tasks[2].OrderIndex != 3 || got.Release.Tasks[1].DeveloperID != "devB" {
		t.Fatalf("unexpected release: %+v", got.Release)
	}

	resp, body = c.do(http.MethodGet, "/api/releases", nil)
	var list api.ReleaseListResponse
	if err := json.Unmarshal(body, &list); err != nil || resp.StatusCode != http.StatusOK || len(list.Releases) != 1 {
		t.Fatalf("list: %d %s", resp.StatusCode, body)
	}

	resp, body = c.do(http.MethodGet, "/api/releases/missing", nil)
	assertError(t, resp, body, http.StatusNotFound, release.KindNotFound)

	resp, body = c.do(http.MethodPost, "/api/releases", map[string]any{"title": "", "tasks": []any{}})
	assertError(t, resp, body, http.StatusBadRequest, release.KindValidation)

	resp, body = c.do(http.MethodPost, "/api/stale/scan", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("scan: %d %s", resp.StatusCode, body)
	}

	resp, body = c.do(http.MethodGet, "/api/status", nil)
	var status api.DaemonStatus
	if err := json.Unmarshal(body, &status); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d %s", resp.StatusCode, body)
	}
	if !status.Running || status.Store.Releases != 1 || status.Store.Tasks["completed"] != 1 || status.LastScan == nil {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	cfg := testConfig(t)
	d := newTestDaemon(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + d.Address() + "/api/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func assertError(t *testing.T, resp *http.Response, body []byte, wantStatus int, wantKind string) {
	t.Helper()
	if resp.StatusCode != wantStatus {
		t.Fatalf("expected status %d, got %d: %s", wantStatus, resp.StatusCode, body)
	}
	var payload api.ErrorResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if payload.Kind != wantKind || payload.Error == "" {
		t.Fatalf("expected kind %s, got %+v", wantKind, payload)
	}
}
