// Package store persists Release aggregates in SQLite.
//
// A release and its tasks are written together in one transaction. Every save
// is a compare-and-swap on the release version, so concurrent writers cannot
// silently overwrite each other. Secondary indexes on (developer_id, status)
// and (status, started_at) serve the cross-release queries used by the
// transition engine and the stale task detector.
package store
