// Package account assembles and publishes the account snapshot
package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/holdings"
	"github.com/bobmcallan/folio/internal/services/ledger"
)

// Compile-time interface check
var _ interfaces.AccountService = (*Service)(nil)

// Service is the single owner of the published AccountSnapshot. A snapshot is
// replaced wholesale, and only when balance, holdings and the ledger window
// were all fetched and reconcile with each other.
type Service struct {
	broker  interfaces.BrokerClient
	quotes  interfaces.QuoteSource
	store   interfaces.SnapshotStore
	account string
	window  int
	timeout time.Duration
	logger  *common.Logger
	now     func() time.Time

	seq atomic.Uint64

	mu           sync.Mutex
	published    *models.AccountSnapshot
	publishedSeq uint64
	status       models.AccountStatus

	saveMu   sync.Mutex
	savedSeq uint64
}

// Option configures the service
type Option func(*Service)

// WithQuoteSource marks holdings from live quotes after each fetch
func WithQuoteSource(quotes interfaces.QuoteSource) Option {
	return func(s *Service) {
		s.quotes = quotes
	}
}

// WithSnapshotStore persists each published snapshot as the last known-good one
func WithSnapshotStore(store interfaces.SnapshotStore) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new account service
func NewService(broker interfaces.BrokerClient, config *common.Config, logger *common.Logger, opts ...Option) *Service {
	s := &Service{
		broker:  broker,
		account: config.Account,
		window:  config.Refresh.LedgerWindow,
		timeout: config.Refresh.GetRequestTimeout(),
		logger:  logger,
		now:     time.Now,
		status:  models.AccountStatus{Stale: true},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the published snapshot and its status. The snapshot is nil
// until the first successful refresh or restore. Callers must not modify it.
func (s *Service) Current() (*models.AccountSnapshot, models.AccountStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published, s.status
}

// Refresh fetches balance, holdings and recent ledger entries concurrently and
// publishes a new snapshot when all three succeed and reconcile. On failure
// the previous snapshot stays published and the status is marked stale.
//
// Each call takes a sequence number. A call that completes after a newer call
// has already published neither publishes nor reports its own outcome: it
// returns the currently published snapshot.
func (s *Service) Refresh(ctx context.Context) (*models.AccountSnapshot, error) {
	seq := s.seq.Add(1)
	attempt := s.now()

	snap, err := s.assemble(ctx, seq)

	s.mu.Lock()
	if seq < s.publishedSeq {
		current := s.published
		s.mu.Unlock()
		s.logger.Debug().Uint64("seq", seq).Uint64("published", current.Seq).Msg("Refresh superseded by newer snapshot")
		return current, nil
	}

	s.status.LastAttempt = attempt
	if err != nil {
		s.status.Stale = true
		s.status.LastErr = err
		s.status.LastError = err.Error()
		s.mu.Unlock()
		s.logger.Warn().Err(err).Uint64("seq", seq).Msg("Refresh failed, keeping last snapshot")
		return nil, err
	}

	if prev := s.published; prev != nil {
		snap.Delta = models.SnapshotDelta{
			NetWorth:   snap.NetWorth.Sub(prev.NetWorth),
			ProfitLoss: snap.TotalProfitLoss.Sub(prev.TotalProfitLoss),
			Cash:       snap.CashBalance.Sub(prev.CashBalance),
		}
	}
	s.published = snap
	s.publishedSeq = seq
	s.status = models.AccountStatus{LastAttempt: attempt, LastSuccess: snap.AsOf}
	s.mu.Unlock()

	s.logger.Info().
		Uint64("seq", seq).
		Str("cash", snap.CashBalance.String()).
		Str("net_worth", snap.NetWorth.String()).
		Int("holdings", len(snap.Holdings)).
		Int("entries", len(snap.RecentEntries)).
		Msg("Snapshot published")

	s.persist(ctx, snap)
	return snap, nil
}

// assemble performs the three reads and builds a snapshot without publishing it.
func (s *Service) assemble(ctx context.Context, seq uint64) (*models.AccountSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		balance models.Money
		rows    []models.Holding
		entries []models.LedgerEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := s.broker.GetBalance(gctx)
		if err != nil {
			return fmt.Errorf("balance: %w", err)
		}
		balance = b
		return nil
	})
	g.Go(func() error {
		h, err := s.broker.ListHoldings(gctx)
		if err != nil {
			return fmt.Errorf("holdings: %w", err)
		}
		rows = h
		return nil
	})
	g.Go(func() error {
		e, err := s.broker.ListLedgerEntries(gctx, s.window)
		if err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
		entries = e
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, models.ErrTimeout) {
			err = fmt.Errorf("%w: %w", models.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %w", models.ErrPartialStateUnavailable, err)
	}

	book, err := holdings.FromHoldings(rows)
	if err != nil {
		return nil, err
	}
	led, err := ledger.FromRemote(entries)
	if err != nil {
		return nil, err
	}
	if led.Len() > 0 && !led.Balance().Equal(balance) {
		// The reads straddled a write.
		return nil, fmt.Errorf("%w: cash balance %s does not match ledger tail balance %s",
			models.ErrLedgerInconsistency, balance, led.Balance())
	}

	if s.quotes != nil && book.Len() > 0 {
		feed, err := s.quotes.Quotes(ctx, book.Symbols())
		if err != nil {
			s.logger.Warn().Err(err).Msg("Quote fetch failed, keeping broker marks")
		} else {
			marked := book.MarkAll(feed)
			s.logger.Debug().Int("marked", marked).Int("holdings", book.Len()).Msg("Holdings marked")
		}
	}

	totals := book.Totals()
	best, worst := book.Performers()
	return &models.AccountSnapshot{
		Account:           s.account,
		CashBalance:       balance,
		TotalInvested:     totals.Invested,
		TotalCurrentValue: totals.CurrentValue,
		TotalProfitLoss:   totals.ProfitLoss,
		NetWorth:          balance.Add(totals.CurrentValue),
		Holdings:          book.All(),
		RecentEntries:     led.Entries(),
		Best:              best,
		Worst:             worst,
		Seq:               seq,
		AsOf:              s.now(),
	}, nil
}

// persist stores snap unless a newer snapshot has already been stored.
func (s *Service) persist(ctx context.Context, snap *models.AccountSnapshot) {
	if s.store == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if snap.Seq < s.savedSeq {
		return
	}
	if err := s.store.SaveSnapshot(context.WithoutCancel(ctx), snap); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist snapshot")
		return
	}
	s.savedSeq = snap.Seq
}

// Restore publishes the last stored snapshot as stale, unless a refresh has
// already published. It is a no-op without a snapshot store.
func (s *Service) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	snap, err := s.store.LoadSnapshot(ctx, s.account)
	if err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	if snap == nil {
		return nil
	}
	snap.Seq = 0
	snap.Delta = models.SnapshotDelta{}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.published != nil {
		return nil
	}
	s.published = snap
	s.status.Stale = true
	s.status.LastSuccess = snap.AsOf

	s.logger.Info().Str("account", s.account).Time("as_of", snap.AsOf).Msg("Restored last known-good snapshot")
	return nil
}
