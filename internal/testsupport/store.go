package testsupport

import (
	"context"
	"strconv"
	"testing"
	"time"

	"flowops/internal/config"
	"flowops/internal/release"
	"flowops/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// MustCreateRelease persists a release whose tasks are titled in order.
// Task ids are "<releaseID>-t1", "<releaseID>-t2", ...
func MustCreateRelease(t testing.TB, st *store.Store, releaseID string, titles ...string) release.Release {
	t.Helper()

	draft := release.Draft{ID: releaseID, Title: "Release " + releaseID}
	for i, title := range titles {
		draft.Tasks = append(draft.Tasks, release.TaskDraft{ID: taskID(releaseID, i+1), Title: title})
	}
	rel, err := draft.Build(time.Now().UTC(), func() string { return releaseID + "-generated" })
	if err != nil {
		t.Fatalf("build release: %v", err)
	}
	if err := st.Create(context.Background(), &rel); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return rel
}

func taskID(releaseID string, n int) string {
	return releaseID + "-t" + strconv.Itoa(n)
}
