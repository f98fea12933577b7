package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// Compile-time interface check
var _ interfaces.BrokerClient = (*RetryingClient)(nil)

// RetryingClient retries idempotent reads with exponential backoff.
// Writes pass straight through and are never retried.
type RetryingClient struct {
	interfaces.BrokerClient
	maxRetries uint64
	initial    time.Duration
	logger     *common.Logger
}

// WithRetry wraps client so that reads are retried up to maxRetries times.
func WithRetry(client interfaces.BrokerClient, maxRetries int, initial time.Duration, logger *common.Logger) *RetryingClient {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &RetryingClient{
		BrokerClient: client,
		maxRetries:   uint64(maxRetries),
		initial:      initial,
		logger:       logger,
	}
}

// Retryable reports whether a read failure may succeed on a second attempt.
// Auth failures, definitive rejections and caller cancellation are final.
func Retryable(err error) bool {
	var rejected *models.RemoteRejectedError
	switch {
	case err == nil:
		return false
	case errors.Is(err, models.ErrUnauthorized),
		errors.Is(err, models.ErrInsufficientBalance),
		errors.Is(err, models.ErrInsufficientShares),
		errors.As(err, &rejected),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

func retryRead[T any](ctx context.Context, r *RetryingClient, op string, fn func(context.Context) (T, error)) (T, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initial
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, r.maxRetries), ctx)

	attempt := 0
	var lastErr error
	v, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		v, err := fn(ctx)
		lastErr = err
		if err != nil && !Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, b, func(err error, wait time.Duration) {
		r.logger.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("retry_in", wait).Msg("Broker read failed, retrying")
	})
	// backoff reports a bare context error when the caller gives up; keep the cause.
	if err != nil && lastErr != nil && err == ctx.Err() && !errors.Is(lastErr, err) {
		err = fmt.Errorf("%w: %w", err, lastErr)
	}
	return v, err
}

func (r *RetryingClient) GetBalance(ctx context.Context) (models.Money, error) {
	return retryRead(ctx, r, "balance", r.BrokerClient.GetBalance)
}

func (r *RetryingClient) ListHoldings(ctx context.Context) ([]models.Holding, error) {
	return retryRead(ctx, r, "holdings", r.BrokerClient.ListHoldings)
}

func (r *RetryingClient) ListLedgerEntries(ctx context.Context, limit int) ([]models.LedgerEntry, error) {
	return retryRead(ctx, r, "ledger", func(ctx context.Context) ([]models.LedgerEntry, error) {
		return r.BrokerClient.ListLedgerEntries(ctx, limit)
	})
}

func (r *RetryingClient) GetValuationHistory(ctx context.Context, hint models.Timeframe) ([]models.TimeSeriesPoint, error) {
	return retryRead(ctx, r, "valuation_history", func(ctx context.Context) ([]models.TimeSeriesPoint, error) {
		return r.BrokerClient.GetValuationHistory(ctx, hint)
	})
}

func (r *RetryingClient) GetSymbolHistory(ctx context.Context, symbol string, hint models.Timeframe) ([]models.TimeSeriesPoint, error) {
	return retryRead(ctx, r, "symbol_history", func(ctx context.Context) ([]models.TimeSeriesPoint, error) {
		return r.BrokerClient.GetSymbolHistory(ctx, symbol, hint)
	})
}

func (r *RetryingClient) GetUnreadSignalCount(ctx context.Context) (int, error) {
	return retryRead(ctx, r, "unread_signals", r.BrokerClient.GetUnreadSignalCount)
}
