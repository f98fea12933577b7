package account

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/interfaces"
	"github.com/bobmcallan/folio/internal/models"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// accountState is one consistent remote view.
type accountState struct {
	balance  models.Money
	holdings []models.Holding
	entries  []models.LedgerEntry // newest first
}

// stubBroker serves reads from per-call hooks so tests can block or fail them.
type stubBroker struct {
	interfaces.BrokerClient

	mu       sync.Mutex
	state    accountState
	balance  func(ctx context.Context) (models.Money, error)
	holdings func(ctx context.Context) ([]models.Holding, error)
	ledger   func(ctx context.Context, limit int) ([]models.LedgerEntry, error)
}

func (s *stubBroker) set(state accountState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *stubBroker) snapshot() accountState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *stubBroker) GetBalance(ctx context.Context) (models.Money, error) {
	if s.balance != nil {
		return s.balance(ctx)
	}
	return s.snapshot().balance, nil
}

func (s *stubBroker) ListHoldings(ctx context.Context) ([]models.Holding, error) {
	if s.holdings != nil {
		return s.holdings(ctx)
	}
	return s.snapshot().holdings, nil
}

func (s *stubBroker) ListLedgerEntries(ctx context.Context, limit int) ([]models.LedgerEntry, error) {
	if s.ledger != nil {
		return s.ledger(ctx, limit)
	}
	return s.snapshot().entries, nil
}

// funded returns a state with one deposit and one AAPL buy.
func funded() accountState {
	deposit := models.LedgerEntry{ID: "1", Type: models.EntryDeposit, Credit: models.Dollars(10000), BalanceAfter: models.Dollars(10000), Timestamp: t0}
	buy := models.LedgerEntry{ID: "2", Type: models.EntryBuy, Debit: models.Dollars(1500), BalanceAfter: models.Dollars(8500), Timestamp: t0.Add(time.Minute)}
	return accountState{
		balance:  models.Dollars(8500),
		holdings: []models.Holding{{Symbol: "AAPL", Quantity: 10, AverageCost: models.Dollars(150), MarkPrice: models.Dollars(160)}},
		entries:  []models.LedgerEntry{buy, deposit},
	}
}

// afterSell extends funded with a sale of 5 AAPL at 180.
func afterSell() accountState {
	s := funded()
	sell := models.LedgerEntry{ID: "3", Type: models.EntrySell, Credit: models.Dollars(900), BalanceAfter: models.Dollars(9400), Timestamp: t0.Add(2 * time.Minute)}
	s.balance = models.Dollars(9400)
	s.holdings = []models.Holding{{Symbol: "AAPL", Quantity: 5, AverageCost: models.Dollars(150), MarkPrice: models.Dollars(180)}}
	s.entries = append([]models.LedgerEntry{sell}, s.entries...)
	return s
}

func newTestService(broker interfaces.BrokerClient, opts ...Option) *Service {
	cfg := common.NewDefaultConfig()
	cfg.Refresh.RequestTimeout = "2s"
	return NewService(broker, cfg, common.NewSilentLogger(), opts...)
}

func TestRefresh_AssemblesSnapshot(t *testing.T) {
	broker := &stubBroker{}
	broker.set(funded())
	svc := newTestService(broker)

	snap, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "8500.00", snap.CashBalance.String())
	assert.Equal(t, "1500.00", snap.TotalInvested.String())
	assert.Equal(t, "1600.00", snap.TotalCurrentValue.String())
	assert.Equal(t, "100.00", snap.TotalProfitLoss.String())
	assert.Equal(t, "10100.00", snap.NetWorth.String())
	require.Len(t, snap.RecentEntries, 2)
	assert.Equal(t, "2", snap.RecentEntries[0].ID)
	require.NotNil(t, snap.Best)
	assert.Equal(t, "AAPL", snap.Best.Symbol)

	current, status := svc.Current()
	assert.Same(t, snap, current)
	assert.False(t, status.Degraded())
}

func TestRefresh_PartialFailureKeepsPrevious(t *testing.T) {
	fetchErr := errors.New("connection reset")
	for _, failing := range []string{"balance", "holdings", "ledger"} {
		t.Run(failing, func(t *testing.T) {
			broker := &stubBroker{}
			broker.set(funded())
			svc := newTestService(broker)
			first, err := svc.Refresh(context.Background())
			require.NoError(t, err)

			broker.set(afterSell())
			switch failing {
			case "balance":
				broker.balance = func(context.Context) (models.Money, error) { return models.Money{}, fetchErr }
			case "holdings":
				broker.holdings = func(context.Context) ([]models.Holding, error) { return nil, fetchErr }
			case "ledger":
				broker.ledger = func(context.Context, int) ([]models.LedgerEntry, error) { return nil, fetchErr }
			}

			snap, err := svc.Refresh(context.Background())
			assert.Nil(t, snap)
			assert.ErrorIs(t, err, models.ErrPartialStateUnavailable)
			assert.ErrorIs(t, err, fetchErr)

			current, status := svc.Current()
			assert.Same(t, first, current, "previous snapshot must stay published")
			assert.Equal(t, "8500.00", current.CashBalance.String())
			assert.True(t, status.Stale)
			assert.ErrorIs(t, status.LastErr, models.ErrPartialStateUnavailable)
		})
	}
}

func TestRefresh_TimeoutMapsToErrTimeout(t *testing.T) {
	broker := &stubBroker{}
	broker.set(funded())
	broker.holdings = func(ctx context.Context) ([]models.Holding, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	cfg := common.NewDefaultConfig()
	cfg.Refresh.RequestTimeout = "20ms"
	svc := NewService(broker, cfg, common.NewSilentLogger())

	_, err := svc.Refresh(context.Background())
	assert.ErrorIs(t, err, models.ErrTimeout)
	assert.ErrorIs(t, err, models.ErrPartialStateUnavailable)
}

func TestRefresh_BalanceLedgerMismatch(t *testing.T) {
	broker := &stubBroker{}
	state := funded()
	state.balance = models.Dollars(9400) // balance read after a sale the ledger read missed
	broker.set(state)
	svc := newTestService(broker)

	_, err := svc.Refresh(context.Background())
	assert.ErrorIs(t, err, models.ErrLedgerInconsistency)
	current, _ := svc.Current()
	assert.Nil(t, current)
}

func TestRefresh_OlderCompletionDiscarded(t *testing.T) {
	broker := &stubBroker{}
	release := make(chan struct{})
	firstStarted := make(chan struct{})

	// Before secondPhase is set every read returns the funded state, after it the
	// post-sale state. The first call's balance read blocks until released.
	var secondPhase atomic.Bool
	view := func() accountState {
		if secondPhase.Load() {
			return afterSell()
		}
		return funded()
	}
	broker.balance = func(ctx context.Context) (models.Money, error) {
		if !secondPhase.Load() {
			close(firstStarted)
			<-release
			return funded().balance, nil
		}
		return view().balance, nil
	}
	broker.holdings = func(context.Context) ([]models.Holding, error) { return view().holdings, nil }
	broker.ledger = func(context.Context, int) ([]models.LedgerEntry, error) { return view().entries, nil }
	svc := newTestService(broker)

	type result struct {
		snap *models.AccountSnapshot
		err  error
	}
	older := make(chan result, 1)
	go func() {
		snap, err := svc.Refresh(context.Background())
		older <- result{snap, err}
	}()
	<-firstStarted
	// Let the first call's holdings and ledger reads finish before switching views.
	time.Sleep(20 * time.Millisecond)
	secondPhase.Store(true)

	newer, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9400.00", newer.CashBalance.String())

	close(release)
	late := <-older
	require.NoError(t, late.err)
	assert.Same(t, newer, late.snap, "late completion resolves with the current snapshot")

	current, _ := svc.Current()
	assert.Equal(t, "9400.00", current.CashBalance.String())
	assert.Equal(t, int64(5), current.HeldQuantity("AAPL"))
}

func TestRefresh_Delta(t *testing.T) {
	broker := &stubBroker{}
	broker.set(funded())
	svc := newTestService(broker)
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	broker.set(afterSell())
	snap, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	// net worth 9400 + 5×180 = 10300, previously 10100
	assert.Equal(t, "200.00", snap.Delta.NetWorth.String())
	assert.Equal(t, "900.00", snap.Delta.Cash.String())
}

type stubQuotes struct {
	feed map[string]models.Money
	err  error
}

func (q *stubQuotes) Quotes(context.Context, []string) (map[string]models.Money, error) {
	return q.feed, q.err
}

func TestRefresh_QuoteSource(t *testing.T) {
	broker := &stubBroker{}
	broker.set(funded())

	svc := newTestService(broker, WithQuoteSource(&stubQuotes{feed: map[string]models.Money{"AAPL": models.Dollars(170)}}))
	snap, err := svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1700.00", snap.TotalCurrentValue.String())

	failing := newTestService(broker, WithQuoteSource(&stubQuotes{err: errors.New("quote feed down")}))
	snap, err = failing.Refresh(context.Background())
	require.NoError(t, err, "quote failure is not fatal")
	assert.Equal(t, "1600.00", snap.TotalCurrentValue.String())
}

type memoryStore struct {
	mu    sync.Mutex
	saved map[string]models.AccountSnapshot
}

func (m *memoryStore) SaveSnapshot(_ context.Context, snap *models.AccountSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		m.saved = map[string]models.AccountSnapshot{}
	}
	m.saved[snap.Account] = *snap
	return nil
}

func (m *memoryStore) LoadSnapshot(_ context.Context, account string) (*models.AccountSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.saved[account]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func TestRestore_PublishesStaleUntilRefresh(t *testing.T) {
	store := &memoryStore{}
	broker := &stubBroker{}
	broker.set(funded())

	first := newTestService(broker, WithSnapshotStore(store))
	_, err := first.Refresh(context.Background())
	require.NoError(t, err)

	// A new process starts while the broker is unreachable.
	down := &stubBroker{balance: func(context.Context) (models.Money, error) { return models.Money{}, errors.New("offline") }}
	second := newTestService(down, WithSnapshotStore(store))
	require.NoError(t, second.Restore(context.Background()))

	current, status := second.Current()
	require.NotNil(t, current)
	assert.Equal(t, "8500.00", current.CashBalance.String())
	assert.True(t, status.Stale)

	_, err = second.Refresh(context.Background())
	require.Error(t, err)
	current, _ = second.Current()
	assert.Equal(t, "8500.00", current.CashBalance.String())

	// Nothing stored is not an error.
	empty := newTestService(broker, WithSnapshotStore(&memoryStore{}))
	require.NoError(t, empty.Restore(context.Background()))
	current, _ = empty.Current()
	assert.Nil(t, current)
}
