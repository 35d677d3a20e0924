// Package api defines wire-format types and converters for the HTTP API
// served by the daemon and consumed by the CLI.
//
// # Key Types
//
// Release/Task: transport representation of a release aggregate and its
// ordered tasks.
//
// CreateReleaseRequest/TaskInput: request bodies for release creation and
// hotfix appends.
//
// DaemonStatus: runtime information, store counts, dispatcher counters, and
// the last stale scan.
//
// ErrorResponse: error body carrying a message and a stable error kind.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Statuses are exposed as their lowercase
// identifiers. Timestamps use RFC3339 with milliseconds in UTC. HTTPStatus
// maps error kinds onto response codes and is the only place that mapping
// lives; the client side reverses it with release.FromKind.
package api
