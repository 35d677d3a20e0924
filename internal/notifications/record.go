package notifications

import (
	"strconv"
	"time"
)

// KindTest marks the synthetic record sent by `flowops notify test`.
const KindTest = "test"

// Record is the serialized form handed to sinks.
type Record struct {
	ID          string            `json:"id"`
	Time        time.Time         `json:"time"`
	Kind        string            `json:"kind"`
	Topic       string            `json:"topic,omitempty"`
	DeveloperID string            `json:"developer_id,omitempty"`
	Email       string            `json:"email,omitempty"`
	ReleaseID   string            `json:"release_id,omitempty"`
	TaskID      string            `json:"task_id,omitempty"`
	TaskTitle   string            `json:"task_title,omitempty"`
	Message     string            `json:"message"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// NewRecord flattens ev into a Record stamped with id and at.
func NewRecord(id string, at time.Time, ev Event) Record {
	d := ev.Payload()
	rec := Record{
		ID:          id,
		Time:        at.UTC(),
		Kind:        string(ev.Kind()),
		Topic:       ev.Kind().Topic(),
		DeveloperID: d.DeveloperID,
		Email:       d.Email,
		ReleaseID:   d.ReleaseID,
		TaskID:      d.TaskID,
		TaskTitle:   d.TaskTitle,
		Message:     d.Message,
	}
	switch e := ev.(type) {
	case TaskAssigned:
		rec.Attributes = map[string]string{"source": string(e.Source)}
	case TaskCompleted:
		rec.Attributes = map[string]string{
			"completed_at":      e.CompletedAt.UTC().Format(time.RFC3339),
			"release_completed": strconv.FormatBool(e.ReleaseCompleted),
		}
	case HotfixTaskAdded:
		rec.Attributes = map[string]string{
			"order_index": strconv.Itoa(e.OrderIndex),
			"reopened":    strconv.FormatBool(e.Reopened),
		}
	case StaleTaskDetected:
		rec.Attributes = map[string]string{
			"started_at": e.StartedAt.UTC().Format(time.RFC3339),
			"age":        e.Age.Round(time.Minute).String(),
		}
	}
	return rec
}
