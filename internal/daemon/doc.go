// Package daemon coordinates the long-running FlowOps process.
//
// It wires configuration, the release store, the workflow manager, the stale
// task detector, and the notification dispatcher into a single lifecycle with
// flock-based locking to prevent multiple instances, and serves the JSON HTTP
// API the CLI talks to.
//
// Keep orchestration logic here: release and task rules live in workflow and
// release while the daemon focuses on startup, shutdown, and transport.
package daemon
