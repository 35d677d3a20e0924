package notifications

import "time"

// Kind identifies an event variant.
type Kind string

const (
	KindTaskAssigned      Kind = "task_assigned"
	KindTaskCompleted     Kind = "task_completed"
	KindHotfixTaskAdded   Kind = "hotfix_task_added"
	KindStaleTaskDetected Kind = "stale_task_detected"
)

// AllKinds lists every event kind.
func AllKinds() []Kind {
	return []Kind{KindTaskAssigned, KindTaskCompleted, KindHotfixTaskAdded, KindStaleTaskDetected}
}

// Topic returns the outbound channel name for the kind.
func (k Kind) Topic() string {
	switch k {
	case KindTaskAssigned:
		return "task-assigned-topic"
	case KindTaskCompleted:
		return "task-completed-topic"
	case KindHotfixTaskAdded:
		return "hotfix-task-added-topic"
	case KindStaleTaskDetected:
		return "stale-task-detected-topic"
	default:
		return ""
	}
}

// Details is the payload every event carries.
type Details struct {
	DeveloperID string
	Email       string
	ReleaseID   string
	TaskID      string
	TaskTitle   string
	Message     string
}

// Payload returns the shared event payload.
func (d Details) Payload() Details { return d }

// Event is implemented only by the variants in this file.
type Event interface {
	Kind() Kind
	Payload() Details
	isEvent()
}

// AssignmentSource records which operation produced a TaskAssigned event.
type AssignmentSource string

const (
	AssignedByStart  AssignmentSource = "start"
	AssignedByDirect AssignmentSource = "assign"
)

// TaskAssigned is emitted when a developer starts a task or is assigned to one.
type TaskAssigned struct {
	Details
	Source AssignmentSource
}

// TaskCompleted is emitted when a task reaches Completed.
type TaskCompleted struct {
	Details
	CompletedAt      time.Time
	ReleaseCompleted bool
}

// HotfixTaskAdded is emitted when a hotfix with a developer is appended.
type HotfixTaskAdded struct {
	Details
	OrderIndex int
	Reopened   bool
}

// StaleTaskDetected is emitted by the stale scan for each long-running task.
type StaleTaskDetected struct {
	Details
	StartedAt time.Time
	Age       time.Duration
}

func (TaskAssigned) Kind() Kind      { return KindTaskAssigned }
func (TaskCompleted) Kind() Kind     { return KindTaskCompleted }
func (HotfixTaskAdded) Kind() Kind   { return KindHotfixTaskAdded }
func (StaleTaskDetected) Kind() Kind { return KindStaleTaskDetected }

func (TaskAssigned) isEvent()      {}
func (TaskCompleted) isEvent()     {}
func (HotfixTaskAdded) isEvent()   {}
func (StaleTaskDetected) isEvent() {}
