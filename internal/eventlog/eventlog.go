// Package eventlog reads the JSONL notification event log written by the
// daemon's event_log sink, either as a snapshot of recent records or as a
// follow stream that picks up appended records.
package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"flowops/internal/notifications"
)

const (
	maxLineBytes        = 1024 * 1024
	defaultPollInterval = 250 * time.Millisecond
)

// Snapshot is a batch of records plus the byte offset just past them.
type Snapshot struct {
	Records []notifications.Record
	Offset  int64
}

// Tail returns the last limit records. A limit of zero returns every record.
// A missing file yields an empty snapshot. Malformed lines are skipped.
func Tail(path string, limit int) (Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("open event log: %w", err)
	}
	defer file.Close()

	records, err := decodeAll(file)
	if err != nil {
		return Snapshot{}, err
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return Snapshot{}, fmt.Errorf("determine event log offset: %w", err)
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return Snapshot{Records: records, Offset: offset}, nil
}

// ReadFrom returns the records appended at or after offset. An offset past
// the end of the file (after truncation) restarts from the beginning.
func ReadFrom(path string, offset int64) (Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, nil
		}
		return Snapshot{Offset: offset}, fmt.Errorf("open event log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Snapshot{Offset: offset}, fmt.Errorf("stat event log: %w", err)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Snapshot{Offset: offset}, fmt.Errorf("seek event log: %w", err)
	}

	records, err := decodeAll(file)
	if err != nil {
		return Snapshot{Offset: offset}, err
	}
	next, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return Snapshot{Offset: offset}, fmt.Errorf("determine event log offset: %w", err)
	}
	return Snapshot{Records: records, Offset: next}, nil
}

// Follow polls path from offset and calls fn for each appended record until
// ctx ends. It returns nil when ctx is cancelled.
func Follow(ctx context.Context, path string, offset int64, poll time.Duration, fn func(notifications.Record) error) error {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		snap, err := ReadFrom(path, offset)
		if err != nil {
			return err
		}
		offset = snap.Offset
		for _, rec := range snap.Records {
			if err := fn(rec); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// decodeAll reads whole lines only; a trailing partial line stays unread so
// the returned offset never splits a record being appended.
func decodeAll(file *os.File) ([]notifications.Record, error) {
	start, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("determine event log offset: %w", err)
	}
	reader := bufio.NewReader(file)
	consumed := start
	var records []notifications.Record
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read event log: %w", err)
		}
		consumed += int64(len(line))
		if len(line) > maxLineBytes {
			continue
		}
		var rec notifications.Record
		if json.Unmarshal(line, &rec) == nil && rec.Kind != "" {
			records = append(records, rec)
		}
	}
	if _, err := file.Seek(consumed, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek event log: %w", err)
	}
	return records, nil
}
