// Package interfaces defines service contracts for Folio
package interfaces

import (
	"context"

	"github.com/bobmcallan/folio/internal/models"
)

// BrokerClient is the remote system of record for the account.
// Reads are idempotent and may be retried. Writes must not be.
type BrokerClient interface {
	// GetBalance returns the current cash balance
	GetBalance(ctx context.Context) (models.Money, error)

	// ListHoldings returns every open position with its last mark price
	ListHoldings(ctx context.Context) ([]models.Holding, error)

	// ListLedgerEntries returns up to limit entries, newest first. limit <= 0 means all.
	ListLedgerEntries(ctx context.Context, limit int) ([]models.LedgerEntry, error)

	// SubmitTrade records an immediate market trade at the given price.
	// A definitive refusal is returned as an error matching ErrInsufficientBalance,
	// ErrInsufficientShares or *RemoteRejectedError.
	SubmitTrade(ctx context.Context, symbol string, side models.TradeSide, quantity int64, price models.Money) (*models.TradeReceipt, error)

	// RecordCashMovement records a deposit or withdrawal.
	RecordCashMovement(ctx context.Context, entryType models.EntryType, amount models.Money, description string) (*models.TradeReceipt, error)

	// GetValuationHistory returns raw whole-portfolio valuation points, oldest first
	GetValuationHistory(ctx context.Context, hint models.Timeframe) ([]models.TimeSeriesPoint, error)

	// GetSymbolHistory returns raw value/price points for one symbol, oldest first
	GetSymbolHistory(ctx context.Context, symbol string, hint models.Timeframe) ([]models.TimeSeriesPoint, error)

	// GetUnreadSignalCount returns the number of unread trading signals
	GetUnreadSignalCount(ctx context.Context) (int, error)
}

// TokenSource supplies the auth token for each request. The core never refreshes it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// QuoteSource supplies current marks for a set of symbols. Symbols it cannot
// price are simply absent from the result.
type QuoteSource interface {
	Quotes(ctx context.Context, symbols []string) (map[string]models.Money, error)
}
