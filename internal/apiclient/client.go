// Package apiclient is the typed HTTP client the CLI uses to talk to the daemon.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"flowops/internal/api"
	"flowops/internal/config"
	"flowops/internal/release"
)

// ErrUnavailable reports that the daemon could not be reached.
var ErrUnavailable = errors.New("daemon unavailable")

// Client issues requests against the daemon HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for baseURL. A non-positive timeout defaults to 30s.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{baseURL: base, token: token, http: &http.Client{Timeout: timeout}}
}

// FromConfig targets the daemon at paths.api_bind with paths.api_token.
func FromConfig(cfg *config.Config) *Client {
	return New(cfg.Paths.APIBind, cfg.Paths.APIToken, 0)
}

// BaseURL returns the daemon address the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &out)
	return out, err
}

// CreateRelease creates a release.
func (c *Client) CreateRelease(ctx context.Context, req api.CreateReleaseRequest) (api.Release, error) {
	var out api.ReleaseResponse
	err := c.do(ctx, http.MethodPost, "/api/releases", req, &out)
	return out.Release, err
}

// ListReleases lists every release, newest first.
func (c *Client) ListReleases(ctx context.Context) ([]api.Release, error) {
	var out api.ReleaseListResponse
	err := c.do(ctx, http.MethodGet, "/api/releases", nil, &out)
	return out.Releases, err
}

// GetRelease fetches one release.
func (c *Client) GetRelease(ctx context.Context, id string) (api.Release, error) {
	var out api.ReleaseResponse
	err := c.do(ctx, http.MethodGet, "/api/releases/"+url.PathEscape(id), nil, &out)
	return out.Release, err
}

// AddHotfixTask appends a hotfix task.
func (c *Client) AddHotfixTask(ctx context.Context, releaseID string, task api.TaskInput) (api.Task, error) {
	var out api.TaskResponse
	err := c.do(ctx, http.MethodPost, "/api/releases/"+url.PathEscape(releaseID)+"/hotfix", task, &out)
	return out.Task, err
}

// StartTask starts a task for a developer.
func (c *Client) StartTask(ctx context.Context, releaseID, taskID, developerID string) (api.Task, error) {
	return c.transition(ctx, fmt.Sprintf("/api/releases/tasks/%s/devs/%s/start/%s",
		url.PathEscape(releaseID), url.PathEscape(developerID), url.PathEscape(taskID)))
}

// CompleteTask completes a task for a developer.
func (c *Client) CompleteTask(ctx context.Context, releaseID, taskID, developerID string) (api.Task, error) {
	return c.transition(ctx, fmt.Sprintf("/api/releases/tasks/%s/devs/%s/complete/%s",
		url.PathEscape(releaseID), url.PathEscape(developerID), url.PathEscape(taskID)))
}

// AssignDeveloper sets the developer on a task.
func (c *Client) AssignDeveloper(ctx context.Context, releaseID, taskID, developerID string) (api.Task, error) {
	return c.transition(ctx, fmt.Sprintf("/api/releases/%s/tasks/%s/assign/%s",
		url.PathEscape(releaseID), url.PathEscape(taskID), url.PathEscape(developerID)))
}

// ScanStale triggers one stale scan.
func (c *Client) ScanStale(ctx context.Context) (api.ScanReport, error) {
	var out api.ScanReport
	err := c.do(ctx, http.MethodPost, "/api/stale/scan", nil, &out)
	return out, err
}

// TestNotificationResult is the outcome of a test delivery.
type TestNotificationResult struct {
	Sent   bool   `json:"sent"`
	Detail string `json:"detail"`
	Error  string `json:"error,omitempty"`
}

// TestNotification asks the daemon to deliver a test record to every sink.
func (c *Client) TestNotification(ctx context.Context) (TestNotificationResult, error) {
	var out TestNotificationResult
	err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, &out)
	return out, err
}

func (c *Client) transition(ctx context.Context, path string) (api.Task, error) {
	var out api.TaskResponse
	err := c.do(ctx, http.MethodPost, path, nil, &out)
	return out.Task, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w at %s: %w", ErrUnavailable, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError rebuilds a classified error from an error body so callers can
// use errors.Is against the release sentinels.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload api.ErrorResponse
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Error == "" {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("daemon rejected credentials (check paths.api_token): %s", payload.Error)
	}
	return release.FromKind(payload.Kind, payload.Error)
}
