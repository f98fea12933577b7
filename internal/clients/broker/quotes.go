package broker

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// Compile-time interface check
var _ interfaces.QuoteSource = (*HistoryQuotes)(nil)

// maxQuoteFetches bounds concurrent per-symbol history reads.
const maxQuoteFetches = 4

// HistoryQuotes marks symbols at the last price in their intraday history.
// Symbols with no history, or whose history read fails, are left out of the
// feed and keep their broker mark.
type HistoryQuotes struct {
	client interfaces.BrokerClient
	logger *common.Logger
}

// NewHistoryQuotes creates a quote source over client's symbol history
func NewHistoryQuotes(client interfaces.BrokerClient, logger *common.Logger) *HistoryQuotes {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &HistoryQuotes{client: client, logger: logger}
}

// Quotes returns the latest known price per symbol. It fails only when no
// symbol could be read at all.
func (q *HistoryQuotes) Quotes(ctx context.Context, symbols []string) (map[string]models.Money, error) {
	var (
		mu       sync.Mutex
		failed   int
		firstErr error
	)
	feed := make(map[string]models.Money, len(symbols))

	var g errgroup.Group
	g.SetLimit(maxQuoteFetches)
	for _, symbol := range symbols {
		g.Go(func() error {
			points, err := q.client.GetSymbolHistory(ctx, symbol, models.Timeframe1D)
			if err != nil {
				q.logger.Warn().Err(err).Str("symbol", symbol).Msg("Quote unavailable, keeping broker mark")
				mu.Lock()
				failed++
				if firstErr == nil {
					firstErr = fmt.Errorf("quote %s: %w", symbol, err)
				}
				mu.Unlock()
				return nil
			}
			if len(points) == 0 {
				return nil
			}
			last := points[len(points)-1]
			if last.Price == nil || !last.Price.IsPositive() {
				return nil
			}
			mu.Lock()
			feed[models.NormalizeSymbol(symbol)] = *last.Price
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	if len(symbols) > 0 && failed == len(symbols) {
		return nil, firstErr
	}
	return feed, nil
}
