package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const userAgent = "FlowOps/0.1.0"

// Sink delivers records to one outbound channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, rec Record) error
}

// NtfySink posts records to an ntfy topic URL.
type NtfySink struct {
	endpoint string
	client   *http.Client
}

// NewNtfySink creates a sink for the given topic URL.
func NewNtfySink(endpoint string, timeout time.Duration) *NtfySink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &NtfySink{endpoint: endpoint, client: &http.Client{Timeout: timeout}}
}

func (n *NtfySink) Name() string { return "ntfy" }

type pushMessage struct {
	title    string
	body     string
	tags     []string
	priority string
}

func formatPush(rec Record) pushMessage {
	var body strings.Builder
	body.WriteString(strings.TrimSpace(rec.Message))
	if rec.TaskTitle != "" {
		fmt.Fprintf(&body, "\nTask: %s", rec.TaskTitle)
	}
	if rec.ReleaseID != "" {
		fmt.Fprintf(&body, "\nRelease: %s", rec.ReleaseID)
	}
	if rec.DeveloperID != "" {
		fmt.Fprintf(&body, "\nDeveloper: %s", rec.DeveloperID)
	}

	msg := pushMessage{body: body.String()}
	switch Kind(rec.Kind) {
	case KindTaskAssigned:
		msg.title = "FlowOps - Task Assigned"
		msg.tags = []string{"flowops", "task", "assigned"}
	case KindTaskCompleted:
		msg.title = "FlowOps - Task Completed"
		msg.tags = []string{"flowops", "task", "completed"}
		if rec.Attributes["release_completed"] == "true" {
			msg.tags = append(msg.tags, "release")
		}
	case KindHotfixTaskAdded:
		msg.title = "FlowOps - Hotfix Added"
		msg.tags = []string{"flowops", "hotfix", "added"}
		msg.priority = "high"
	case KindStaleTaskDetected:
		msg.title = "FlowOps - Stale Task"
		msg.tags = []string{"flowops", "stale", "alert"}
		msg.priority = "high"
	case KindTest:
		msg.title = "FlowOps - Test"
		msg.tags = []string{"flowops", "test"}
		msg.priority = "low"
	default:
		msg.title = "FlowOps"
		msg.tags = []string{"flowops"}
	}
	return msg
}

func (n *NtfySink) Deliver(ctx context.Context, rec Record) error {
	msg := formatPush(rec)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", msg.title)
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" {
		req.Header.Set("Priority", msg.priority)
	}
	if rec.Email != "" {
		req.Header.Set("Email", rec.Email)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// EventLogSink appends records to a JSONL file.
type EventLogSink struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// NewEventLogSink opens (or creates) the JSONL file at path.
func NewEventLogSink(path string) (*EventLogSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create event log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &EventLogSink{path: path, file: f}, nil
}

func (l *EventLogSink) Name() string { return "event_log" }

func (l *EventLogSink) Deliver(_ context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return fmt.Errorf("event log %s is closed", l.path)
	}
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *EventLogSink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
