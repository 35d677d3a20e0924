// Package preflight provides readiness checks for the filesystem paths and
// external services FlowOps depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs each result. Failures are
//     reported but do not stop the daemon.
//   - The CLI "flowops status" command renders the same results alongside
//     daemon state.
//
// Each check is gated by its config toggle; unconfigured services are skipped.
package preflight
