package eventlog_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"flowops/internal/eventlog"
	"flowops/internal/notifications"
)

func appendRecords(t *testing.T, path string, ids ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	for _, id := range ids {
		data, err := json.Marshal(notifications.Record{ID: id, Kind: "task_assigned", Message: "Developer started task"})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func TestTailMissingFile(t *testing.T) {
	snap, err := eventlog.Tail(filepath.Join(t.TempDir(), "missing.jsonl"), 10)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(snap.Records) != 0 || snap.Offset != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestTailLimitAndMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	appendRecords(t, path, "a", "b")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("not json\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = f.Close()
	appendRecords(t, path, "c")

	snap, err := eventlog.Tail(path, 2)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(snap.Records) != 2 || snap.Records[0].ID != "b" || snap.Records[1].ID != "c" {
		t.Fatalf("unexpected records: %+v", snap.Records)
	}
	info, _ := os.Stat(path)
	if snap.Offset != info.Size() {
		t.Fatalf("offset = %d, want %d", snap.Offset, info.Size())
	}
}

func TestReadFromSkipsPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	appendRecords(t, path, "a")
	start, err := eventlog.Tail(path, 0)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString(`{"id":"b","kind":"task_`); err != nil {
		t.Fatalf("write: %v", err)
	}

	snap, err := eventlog.ReadFrom(path, start.Offset)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(snap.Records) != 0 || snap.Offset != start.Offset {
		t.Fatalf("partial line should stay unread, got %+v", snap)
	}

	if _, err := f.WriteString(`completed","message":"done"}` + "\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = f.Close()
	snap, err = eventlog.ReadFrom(path, snap.Offset)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(snap.Records) != 1 || snap.Records[0].Kind != "task_completed" {
		t.Fatalf("expected completed record, got %+v", snap.Records)
	}
}

func TestReadFromRestartsAfterTruncation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	appendRecords(t, path, "a", "b", "c")
	snap, _ := eventlog.Tail(path, 0)

	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	appendRecords(t, path, "d")
	next, err := eventlog.ReadFrom(path, snap.Offset)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if len(next.Records) != 1 || next.Records[0].ID != "d" {
		t.Fatalf("expected restart from beginning, got %+v", next.Records)
	}
}

func TestFollowDeliversAppendedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	appendRecords(t, path, "old")
	snap, _ := eventlog.Tail(path, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan error, 1)
	go func() {
		done <- eventlog.Follow(ctx, path, snap.Offset, 10*time.Millisecond, func(rec notifications.Record) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, rec.ID)
			if len(got) == 2 {
				cancel()
			}
			return nil
		})
	}()

	appendRecords(t, path, "new1", "new2")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Follow: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for follow")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "new1" || got[1] != "new2" {
		t.Fatalf("unexpected followed records: %v", got)
	}
}
