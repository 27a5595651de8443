// Package preflight provides readiness checks for the filesystem paths and
// external tools shortsfactory depends on.
//
// These checks run in two contexts:
//   - The workflow manager calls RunAll when it starts and logs every failure.
//     Failures do not block startup; the affected providers fail and retry.
//   - The CLI "shortsfactory health" command prints the same results.
package preflight
