// Package directory resolves developer identities for the workflow engine.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"flowops/internal/config"
	"flowops/internal/release"
)

const userAgent = "FlowOps/0.1.0"

// Developer is the identity returned by a directory lookup.
type Developer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Directory resolves developer ids. Missing developers yield release.ErrNotFound.
type Directory interface {
	Resolve(ctx context.Context, id string) (Developer, error)
}

// New returns an HTTP-backed directory when directory.url is configured and a
// static directory built from directory.developers otherwise.
func New(cfg *config.Config) Directory {
	if cfg == nil {
		return NewStatic(nil)
	}
	if cfg.Directory.URL != "" {
		return NewHTTPClient(cfg.Directory.URL, cfg.Directory.APIToken, cfg.DirectoryTimeout())
	}
	devs := make([]Developer, 0, len(cfg.Directory.Developers))
	for _, entry := range cfg.Directory.Developers {
		devs = append(devs, Developer{ID: entry.ID, Email: entry.Email})
	}
	return NewStatic(devs)
}

// Static is an in-memory directory.
type Static struct {
	byID map[string]Developer
}

// NewStatic builds a directory from a fixed list.
func NewStatic(devs []Developer) *Static {
	byID := make(map[string]Developer, len(devs))
	for _, dev := range devs {
		byID[dev.ID] = dev
	}
	return &Static{byID: byID}
}

func (s *Static) Resolve(_ context.Context, id string) (Developer, error) {
	id = strings.TrimSpace(id)
	dev, ok := s.byID[id]
	if !ok || id == "" {
		return Developer{}, release.Wrap(release.ErrNotFound, "resolve developer", fmt.Sprintf("developer %q", id), nil)
	}
	return dev, nil
}

// HTTPClient queries an external user service at GET <base>/users/<id>.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a directory client. A non-positive timeout defaults to five seconds.
func NewHTTPClient(baseURL, token string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Resolve(ctx context.Context, id string) (Developer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Developer{}, release.Wrap(release.ErrNotFound, "resolve developer", "empty developer id", nil)
	}
	endpoint := c.baseURL + "/users/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Developer{}, fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Developer{}, fmt.Errorf("directory request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Developer{}, release.Wrap(release.ErrNotFound, "resolve developer", fmt.Sprintf("developer %q", id), nil)
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Developer{}, fmt.Errorf("directory returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var dev Developer
	if err := json.NewDecoder(resp.Body).Decode(&dev); err != nil {
		return Developer{}, fmt.Errorf("decode directory response: %w", err)
	}
	if dev.ID == "" {
		dev.ID = id
	}
	return dev, nil
}
