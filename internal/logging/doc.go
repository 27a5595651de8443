// Package logging assembles structured slog loggers and formatting helpers used
// across shortsfactory services.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so workers can tag log lines with job IDs,
// pipeline stages, and correlation IDs. Per-stage level overrides from the
// [logging.stage_overrides] config table are applied through ForStage.
package logging
