package timeseries

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

// Compile-time interface check
var _ interfaces.TimeSeriesService = (*Service)(nil)

// Service fetches raw history from the broker and resamples it. Every call
// re-derives the series from the full raw history; nothing is cached.
type Service struct {
	broker interfaces.BrokerClient
	opts   Options
	logger *common.Logger
	now    func() time.Time
}

// NewService creates a new time series service
func NewService(broker interfaces.BrokerClient, config common.TimeSeriesConfig, logger *common.Logger) *Service {
	return &Service{
		broker: broker,
		opts:   Options{Location: config.GetLocation(), MaxPoints: config.MaxPoints}.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// PortfolioSeries returns the whole-portfolio valuation series for tf
func (s *Service) PortfolioSeries(ctx context.Context, tf models.Timeframe) (iter.Seq[models.TimeSeriesPoint], error) {
	tf, err := models.ParseTimeframe(string(tf))
	if err != nil {
		return nil, err
	}

	history, err := s.broker.GetValuationHistory(ctx, tf)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch valuation history: %w", err)
	}
	return s.resample(history, tf, "")
}

// SymbolSeries returns the value/price series of one holding for tf
func (s *Service) SymbolSeries(ctx context.Context, symbol string, tf models.Timeframe) (iter.Seq[models.TimeSeriesPoint], error) {
	tf, err := models.ParseTimeframe(string(tf))
	if err != nil {
		return nil, err
	}
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	history, err := s.broker.GetSymbolHistory(ctx, symbol, tf)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s history: %w", symbol, err)
	}
	return s.resample(history, tf, symbol)
}

func (s *Service) resample(history []models.TimeSeriesPoint, tf models.Timeframe, symbol string) (iter.Seq[models.TimeSeriesPoint], error) {
	now := s.now()
	start, bucket, err := Plan(history, tf, now, s.opts)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("timeframe", string(tf)).
		Str("symbol", symbol).
		Int("raw_points", len(history)).
		Time("window_start", start).
		Str("bucket", string(bucket)).
		Msg("Resampling history")

	return Resample(history, tf, now, s.opts)
}
