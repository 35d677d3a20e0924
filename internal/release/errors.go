package release

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrDeveloperBusy     = errors.New("developer busy")
	ErrSequenceViolation = errors.New("sequence violation")
	ErrWrongDeveloper    = errors.New("wrong developer")
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("concurrent modification")
)

// Error kinds are stable identifiers used on the wire and in CLI output.
const (
	KindNotFound          = "not_found"
	KindInvalidState      = "invalid_state"
	KindDeveloperBusy     = "developer_busy"
	KindSequenceViolation = "sequence_violation"
	KindWrongDeveloper    = "wrong_developer"
	KindValidation        = "validation"
	KindConflict          = "conflict"
	KindInternal          = "internal"
)

var kindMarkers = []struct {
	kind   string
	marker error
}{
	{KindNotFound, ErrNotFound},
	{KindInvalidState, ErrInvalidState},
	{KindDeveloperBusy, ErrDeveloperBusy},
	{KindSequenceViolation, ErrSequenceViolation},
	{KindWrongDeveloper, ErrWrongDeveloper},
	{KindValidation, ErrValidation},
	{KindConflict, ErrConflict},
}

// Wrap builds an error tagged with marker so callers can classify it with
// errors.Is while keeping operation context in the message.
func Wrap(marker error, operation, message string, err error) error {
	detail := buildDetail(operation, message)
	if marker == nil {
		if err != nil {
			return fmt.Errorf("%s: %w", detail, err)
		}
		return errors.New(detail)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "release failure"
	}
	return strings.Join(parts, ": ")
}

// SequenceError reports the earlier task that blocks a start.
type SequenceError struct {
	ReleaseID string
	TaskID    string
	Blocking  Task
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("sequence violation: previous task %q (order %d) is not completed", e.Blocking.Title, e.Blocking.OrderIndex)
}

func (e *SequenceError) Unwrap() error { return ErrSequenceViolation }

// Kind classifies err into one of the Kind* identifiers.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range kindMarkers {
		if errors.Is(err, entry.marker) {
			return entry.kind
		}
	}
	return KindInternal
}

// FromKind rebuilds a classified error from a wire kind and message.
func FromKind(kind, message string) error {
	for _, entry := range kindMarkers {
		if entry.kind == kind {
			return Wrap(entry.marker, "", message, nil)
		}
	}
	return errors.New(strings.TrimSpace(message))
}
