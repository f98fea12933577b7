// Package interfaces defines service contracts for Folio
package interfaces

import (
	"context"
	"iter"

	"github.com/bobmcallan/folio/internal/models"
)

// AccountService owns the published account snapshot
type AccountService interface {
	// Refresh pulls balance, holdings and recent ledger entries together and
	// publishes a new snapshot only when all three succeed and reconcile.
	Refresh(ctx context.Context) (*models.AccountSnapshot, error)

	// Current returns the published snapshot (nil before the first success) and its status
	Current() (*models.AccountSnapshot, models.AccountStatus)

	// Restore publishes the last locally stored snapshot as stale
	Restore(ctx context.Context) error
}

// SnapshotRefresher is the coordinated path to a fresh snapshot
type SnapshotRefresher interface {
	// Invalidate discards any cached or in-flight result so the next Get refetches
	Invalidate()

	// Get returns a snapshot no older than the debounce window
	Get(ctx context.Context) (*models.AccountSnapshot, error)
}

// TradeService submits trades and cash movements
type TradeService interface {
	Buy(ctx context.Context, symbol string, quantity int64, price models.Money) (*models.TradeResult, error)
	Sell(ctx context.Context, symbol string, quantity int64, price models.Money) (*models.TradeResult, error)
	Deposit(ctx context.Context, amount models.Money, description string) (*models.TradeResult, error)
	Withdraw(ctx context.Context, amount models.Money, description string) (*models.TradeResult, error)

	// Preview projects a trade against the published holdings without submitting it
	Preview(side models.TradeSide, symbol string, quantity int64, price models.Money) (*models.TradePreview, error)

	// Reconcile decides whether an ambiguous submission was recorded
	Reconcile(ctx context.Context, pending models.PendingSubmission) (models.ReconcileOutcome, error)

	// ReconcilePending reconciles every stored pending submission for the account
	ReconcilePending(ctx context.Context) (map[string]models.ReconcileOutcome, error)
}

// TimeSeriesService produces chart series
type TimeSeriesService interface {
	PortfolioSeries(ctx context.Context, tf models.Timeframe) (iter.Seq[models.TimeSeriesPoint], error)
	SymbolSeries(ctx context.Context, symbol string, tf models.Timeframe) (iter.Seq[models.TimeSeriesPoint], error)
}
