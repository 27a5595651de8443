package workflow

import (
	"context"

	"shortsfactory/internal/logging"
	"shortsfactory/internal/preflight"
)

// runPreflight logs the readiness checks. Failures do not stop the manager:
// the providers that depend on a missing tool fail and retry on their own.
func (m *Manager) runPreflight(ctx context.Context) {
	for _, result := range preflight.RunAll(ctx, m.cfg) {
		if result.Passed {
			m.logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(m.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run shortsfactory health for the full report"),
			logging.String(logging.FieldImpact, "dependent stages will fail until fixed"),
		)
	}
}
