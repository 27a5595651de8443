// Package services defines shared utilities consumed by the pipeline workers,
// capability providers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, worker identities, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures carry a
//     consistent classification into logs and the activity log.
//
// Use these helpers when wiring new provider logic so operational behaviour
// (error handling, observability) stays uniform across the pipeline.
package services
