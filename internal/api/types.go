package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Task describes a release task in a transport-friendly format.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	DeveloperID string `json:"developerId,omitempty"`
	OrderIndex  int    `json:"orderIndex"`
	StartedAt   string `json:"startedAt,omitempty"`
	CompletedAt string `json:"completedAt,omitempty"`
}

// Release describes a release aggregate.
type Release struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	Version   int64  `json:"version"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	Tasks     []Task `json:"tasks"`
}

// TaskInput is the request shape for a task on create or hotfix.
type TaskInput struct {
	ID          string `json:"id,omitempty" yaml:"id,omitempty"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Status      string `json:"status,omitempty" yaml:"status,omitempty"`
	DeveloperID string `json:"developerId,omitempty" yaml:"developer_id,omitempty"`
}

// CreateReleaseRequest is the body of POST /api/releases.
type CreateReleaseRequest struct {
	ID    string      `json:"id,omitempty" yaml:"id,omitempty"`
	Title string      `json:"title" yaml:"title"`
	Tasks []TaskInput `json:"tasks" yaml:"tasks"`
}

// ReleaseResponse wraps a single release.
type ReleaseResponse struct {
	Release Release `json:"release"`
}

// ReleaseListResponse wraps a collection of releases.
type ReleaseListResponse struct {
	Releases []Release `json:"releases"`
}

// TaskResponse wraps a single task with its owning release id.
type TaskResponse struct {
	ReleaseID string `json:"releaseId"`
	Task      Task   `json:"task"`
}

// ScanReport mirrors one stale scan.
type ScanReport struct {
	StartedAt  string `json:"startedAt,omitempty"`
	FinishedAt string `json:"finishedAt,omitempty"`
	Cutoff     string `json:"cutoff,omitempty"`
	Found      int    `json:"found"`
	Reported   int    `json:"reported"`
	Fallbacks  int    `json:"fallbacks"`
	Skipped    int    `json:"skipped"`
}

// StoreStats summarizes persisted releases and tasks.
type StoreStats struct {
	Releases          int            `json:"releases"`
	CompletedReleases int            `json:"completedReleases"`
	Tasks             map[string]int `json:"tasks"`
}

// DispatcherStats reports notification delivery counters.
type DispatcherStats struct {
	Sinks     []string `json:"sinks"`
	Queued    int      `json:"queued"`
	Delivered int64    `json:"delivered"`
	Failed    int64    `json:"failed"`
	Dropped   int64    `json:"dropped"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running       bool            `json:"running"`
	PID           int             `json:"pid"`
	StartedAt     string          `json:"startedAt,omitempty"`
	DatabasePath  string          `json:"databasePath"`
	LockFilePath  string          `json:"lockFilePath"`
	StaleEnabled  bool            `json:"staleEnabled"`
	Store         StoreStats      `json:"store"`
	Notifications DispatcherStats `json:"notifications"`
	LastScan      *ScanReport     `json:"lastScan,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
