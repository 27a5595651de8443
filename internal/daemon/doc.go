// Package daemon coordinates the long-running shortsfactory process.
//
// It wires the job store, the workflow manager, the inbox watcher and the
// HTTP API into a single lifecycle guarded by a flock so only one instance
// processes a data directory. The API covers read-only observability
// (status, jobs, history) and the review actions an operator needs.
//
// Keep orchestration here; pipeline behaviour lives in workflow and the
// provider packages.
package daemon
