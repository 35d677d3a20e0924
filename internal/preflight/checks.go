package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"flowops/internal/config"
)

const serviceCheckTimeout = 5 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDirectoryService verifies the developer directory answers requests.
// Any response below 500 other than an auth failure counts as reachable.
func CheckDirectoryService(ctx context.Context, baseURL, token string) Result {
	const name = "Developer directory"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}
	status, err := probe(ctx, base+"/users", token)
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (check directory.api_token)"}
	case status >= 500:
		return Result{Name: name, Detail: fmt.Sprintf("server error (%d)", status)}
	default:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", base)}
	}
}

// CheckStaticDirectory reports how many developers the static directory knows.
func CheckStaticDirectory(cfg *config.Config) Result {
	const name = "Developer directory"
	n := len(cfg.Directory.Developers)
	if n == 0 {
		return Result{Name: name, Detail: "no developers configured (set directory.url or [[directory.developers]])"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("static list with %d developers", n)}
}

// CheckNtfyTopic verifies the ntfy server behind topic is reachable.
func CheckNtfyTopic(ctx context.Context, topic string) Result {
	const name = "ntfy"
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	status, err := probe(ctx, strings.TrimRight(topic, "/")+"/json?poll=1&since=none", "")
	if err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	if status >= 500 {
		return Result{Name: name, Detail: fmt.Sprintf("server error (%d)", status)}
	}
	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

func probe(ctx context.Context, endpoint, token string) (int, error) {
	checkCtx, cancel := context.WithTimeout(ctx, serviceCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: serviceCheckTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (service unreachable)"
	}
	return fmt.Sprintf("unreachable (%v)", err)
}
