package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"shortsfactory/internal/logging"
	"shortsfactory/internal/queue"
)

// leaseRenewalInterval returns how often a held claim is refreshed while the
// provider runs. Three renewals fit inside one claim timeout.
func leaseRenewalInterval(claimTimeout time.Duration) time.Duration {
	return claimTimeout / 3
}

// keepLease refreshes the worker's claim on jobID until the returned stop
// function is called. A lost claim is logged once and renewal ends; the
// conditional Advance that follows reports the conflict.
func (w *Worker) keepLease(ctx context.Context, logger *slog.Logger, jobID string) func() {
	interval := leaseRenewalInterval(w.cfg.ClaimTimeout())
	if interval <= 0 {
		return func() {}
	}

	leaseCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-leaseCtx.Done():
				return
			case <-ticker.C:
				err := w.store.RenewClaim(leaseCtx, jobID, w.owner)
				switch {
				case err == nil:
					logger.Debug("lease renewed")
				case errors.Is(err, queue.ErrConflict):
					logging.WarnWithContext(logger, "lease lost while provider running", "lease_lost",
						logging.Error(err),
						logging.String(logging.FieldErrorHint, "raise workflow.claim_timeout if providers run longer"),
						logging.String(logging.FieldImpact, "the provider result will be discarded"),
					)
					return
				case errors.Is(err, context.Canceled):
					return
				default:
					logging.WarnWithContext(logger, "lease renewal failed", "lease_renew_failed",
						logging.Error(err),
						logging.String(logging.FieldErrorHint, "check job database access"),
					)
				}
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
