// Package release defines the Release aggregate and its Tasks, the error
// taxonomy shared by the store, workflow, and API layers, and the draft types
// used to create releases and hotfix tasks.
//
// A Release owns its tasks by value. Task order indices are a dense 1..N
// sequence and Release.Completed is derived from task statuses; helpers here
// keep both invariants checkable from any layer.
package release
