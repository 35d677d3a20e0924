// Package workflow implements release lifecycle operations, task transitions,
// and the periodic stale task scan.
//
// Manager serializes work per release and, for task starts, per developer
// (developer lock first, then release lock). Combined with the store's
// versioned saves this keeps the one-active-task-per-developer rule and the
// task sequencing rule intact under concurrent callers. Events are published
// only after a save succeeds; publish outcomes never affect the caller.
package workflow
