package api

import (
	"net/http"
	"strings"
	"time"

	"flowops/internal/notifications"
	"flowops/internal/release"
	"flowops/internal/workflow"
)

// FromTask converts a domain task to its API representation.
func FromTask(task release.Task) Task {
	return Task{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Status:      string(task.Status),
		DeveloperID: task.DeveloperID,
		OrderIndex:  task.OrderIndex,
		StartedAt:   formatTimePtr(task.StartedAt),
		CompletedAt: formatTimePtr(task.CompletedAt),
	}
}

// FromRelease converts a release aggregate with tasks sorted by order index.
func FromRelease(rel release.Release) Release {
	sorted := rel.SortedTasks()
	tasks := make([]Task, 0, len(sorted))
	for _, task := range sorted {
		tasks = append(tasks, FromTask(task))
	}
	return Release{
		ID:        rel.ID,
		Title:     rel.Title,
		Completed: rel.Completed,
		Version:   rel.Version,
		CreatedAt: formatTime(rel.CreatedAt),
		UpdatedAt: formatTime(rel.UpdatedAt),
		Tasks:     tasks,
	}
}

// FromReleases converts a slice of releases.
func FromReleases(rels []release.Release) []Release {
	out := make([]Release, 0, len(rels))
	for _, rel := range rels {
		out = append(out, FromRelease(rel))
	}
	return out
}

// FromScanReport converts a stale scan report.
func FromScanReport(report workflow.ScanReport) ScanReport {
	return ScanReport{
		StartedAt:  formatTime(report.StartedAt),
		FinishedAt: formatTime(report.FinishedAt),
		Cutoff:     formatTime(report.Cutoff),
		Found:      report.Found,
		Reported:   report.Reported,
		Fallbacks:  report.Fallbacks,
		Skipped:    report.Skipped,
	}
}

// FromStats converts store statistics keyed by status identifier.
func FromStats(stats release.Stats) StoreStats {
	tasks := make(map[string]int, len(stats.Tasks))
	for _, status := range release.AllStatuses() {
		tasks[string(status)] = stats.Tasks[status]
	}
	return StoreStats{
		Releases:          stats.Releases,
		CompletedReleases: stats.CompletedReleases,
		Tasks:             tasks,
	}
}

// FromDispatcherStats converts notification dispatcher counters.
func FromDispatcherStats(sinks []string, stats notifications.Stats) DispatcherStats {
	return DispatcherStats{
		Sinks:     sinks,
		Queued:    stats.Queued,
		Delivered: stats.Delivered,
		Failed:    stats.Failed,
		Dropped:   stats.Dropped,
	}
}

// ToTaskDraft converts request input into a domain task draft.
func (in TaskInput) ToTaskDraft() release.TaskDraft {
	draft := release.TaskDraft{
		ID:          in.ID,
		Title:       in.Title,
		Description: in.Description,
		DeveloperID: in.DeveloperID,
	}
	if value := strings.TrimSpace(in.Status); value != "" {
		if status, ok := release.ParseStatus(value); ok {
			draft.Status = status
		} else {
			draft.Status = release.Status(value)
		}
	}
	return draft
}

// ToDraft converts a create request into a domain release draft.
func (req CreateReleaseRequest) ToDraft() release.Draft {
	draft := release.Draft{ID: req.ID, Title: req.Title}
	for _, task := range req.Tasks {
		draft.Tasks = append(draft.Tasks, task.ToTaskDraft())
	}
	return draft
}

// NewErrorResponse classifies err for the wire.
func NewErrorResponse(err error) ErrorResponse {
	return ErrorResponse{Error: err.Error(), Kind: release.Kind(err)}
}

// HTTPStatus maps an error kind to an HTTP status code.
func HTTPStatus(kind string) int {
	switch kind {
	case release.KindValidation:
		return http.StatusBadRequest
	case release.KindNotFound:
		return http.StatusNotFound
	case release.KindInvalidState,
		release.KindDeveloperBusy,
		release.KindSequenceViolation,
		release.KindWrongDeveloper,
		release.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// ParseTime parses an API timestamp. Empty input yields the zero time.
func ParseTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
