package app

import (
	"context"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// startReconcileScheduler resolves stored pending submissions on a fixed interval.
func startReconcileScheduler(ctx context.Context, trades interfaces.TradeService, logger *common.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Reconcile scheduler: stopped")
			return
		case <-ticker.C:
			reconcilePending(ctx, trades, logger)
		}
	}
}

func reconcilePending(ctx context.Context, trades interfaces.TradeService, logger *common.Logger) {
	start := time.Now()

	outcomes, err := trades.ReconcilePending(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Reconcile: failed")
		return
	}
	if len(outcomes) == 0 {
		return
	}

	recorded := 0
	for _, outcome := range outcomes {
		if outcome == models.OutcomeRecorded {
			recorded++
		}
	}

	logger.Info().
		Int("resolved", len(outcomes)).
		Int("recorded", recorded).
		Dur("elapsed", time.Since(start)).
		Msg("Reconcile: complete")
}
