// Package logs reads the daemon's JSON log file back for the CLI.
//
// Tail returns the last N matching records or everything written after a
// byte offset, and can block briefly waiting for new lines so `shortsfactory
// logs --follow` can poll without holding the whole file in memory.
// Records are decoded from the slog JSON handler output; lines that are not
// JSON are passed through untouched.
package logs
