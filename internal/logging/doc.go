// Package logging assembles structured slog loggers and formatting helpers used
// across FlowOps.
//
// It owns the console/JSON handlers, level and output plumbing, and the
// context helpers that tag log lines with release, task, developer, and
// correlation identifiers. A no-op logger is provided for tests and wiring
// code that cannot fail.
package logging
