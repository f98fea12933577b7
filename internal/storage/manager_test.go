package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Path = t.TempDir()
	m, err := NewManager(common.NewSilentLogger(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestSnapshotRoundTrip(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	store := m.SnapshotStore()

	missing, err := store.LoadSnapshot(ctx, "default")
	require.NoError(t, err)
	assert.Nil(t, missing)

	asOf := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	snap := &models.AccountSnapshot{
		Account:           "default",
		CashBalance:       models.NewMoney(940025),
		TotalInvested:     models.Dollars(2250),
		TotalCurrentValue: models.Dollars(2700),
		TotalProfitLoss:   models.Dollars(450),
		NetWorth:          models.NewMoney(1210025),
		Holdings: []models.Holding{
			{Symbol: "AAPL", Quantity: 15, AverageCost: models.Dollars(150), MarkPrice: models.Dollars(180)},
		},
		RecentEntries: []models.LedgerEntry{
			{ID: "9", Type: models.EntrySell, Credit: models.Dollars(900), BalanceAfter: models.NewMoney(940025), Timestamp: asOf},
		},
		Best:  &models.Performer{Symbol: "AAPL", ProfitLoss: models.Dollars(450), ProfitLossPct: decimal.NewFromInt(20)},
		Worst: &models.Performer{Symbol: "AAPL", ProfitLoss: models.Dollars(450), ProfitLossPct: decimal.NewFromInt(20)},
		Seq:   7,
		AsOf:  asOf,
	}
	require.NoError(t, store.SaveSnapshot(ctx, snap))

	got, err := store.LoadSnapshot(ctx, "default")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "9400.25", got.CashBalance.String())
	assert.Equal(t, snap.Holdings, got.Holdings)
	assert.Equal(t, "900.00", got.RecentEntries[0].Credit.String())
	assert.True(t, got.RecentEntries[0].Timestamp.Equal(asOf))
	require.NotNil(t, got.Best)
	assert.True(t, got.Best.ProfitLossPct.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, uint64(7), got.Seq)

	// Upsert replaces the previous snapshot.
	snap.Seq = 8
	snap.CashBalance = models.Dollars(1)
	require.NoError(t, store.SaveSnapshot(ctx, snap))
	got, err = store.LoadSnapshot(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, uint64(8), got.Seq)
	assert.Equal(t, "1.00", got.CashBalance.String())

	assert.Error(t, store.SaveSnapshot(ctx, &models.AccountSnapshot{}))
}

func TestPendingCRUD(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	store := m.PendingStore()

	t0 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	later := &models.PendingSubmission{ID: "b", Account: "default", Kind: models.SubmissionSell, Symbol: "AAPL", Quantity: 5, Price: models.Dollars(180), SubmittedAt: t0.Add(time.Minute)}
	earlier := &models.PendingSubmission{ID: "a", Account: "default", Kind: models.SubmissionDeposit, Amount: models.Dollars(100), SubmittedAt: t0}
	other := &models.PendingSubmission{ID: "c", Account: "isa", Kind: models.SubmissionBuy, SubmittedAt: t0}

	for _, p := range []*models.PendingSubmission{later, earlier, other} {
		require.NoError(t, store.SavePending(ctx, p))
	}

	list, err := store.ListPending(ctx, "default")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.Equal(t, "180.00", list[1].Price.String())
	assert.Equal(t, "100.00", list[0].Amount.String())

	require.NoError(t, store.DeletePending(ctx, "a"))
	require.NoError(t, store.DeletePending(ctx, "missing"))

	list, err = store.ListPending(ctx, "default")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)

	assert.Error(t, store.SavePending(ctx, &models.PendingSubmission{}))
}
