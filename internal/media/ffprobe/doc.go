// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Args builds the command line and Parse decodes the JSON it prints. The
// caller runs the binary. Helper methods on Result expose duration,
// dimensions and stream counts.
package ffprobe
