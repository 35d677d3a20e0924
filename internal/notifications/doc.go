// Package notifications turns workflow outcomes into outbound events.
//
// Events are a closed set of variants (TaskAssigned, TaskCompleted,
// HotfixTaskAdded, StaleTaskDetected). Publishing never blocks the caller: the
// Dispatcher buffers events and a background worker hands them to the
// configured sinks (ntfy push, JSONL event log) with bounded retry. Delivery
// failures are logged and never surface to the code that published.
package notifications
