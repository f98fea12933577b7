package holdings

import (
	"math/rand/v2"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/models"
)

func TestApplyBuy_WeightedAverage(t *testing.T) {
	b := NewBook()

	_, err := b.ApplyBuy("AAPL", 10, models.Dollars(100))
	require.NoError(t, err)
	h, err := b.ApplyBuy("aapl", 10, models.Dollars(200))
	require.NoError(t, err)

	assert.Equal(t, "AAPL", h.Symbol)
	assert.Equal(t, int64(20), h.Quantity)
	assert.Equal(t, "150.00", h.AverageCost.String())
	assert.Equal(t, "200.00", h.MarkPrice.String())
}

func TestApplySell_AfterWeightedBuys(t *testing.T) {
	b := NewBook()
	_, _ = b.ApplyBuy("AAPL", 10, models.Dollars(100))
	_, _ = b.ApplyBuy("AAPL", 10, models.Dollars(200))

	realized, err := b.ApplySell("AAPL", 5, models.Dollars(180))
	require.NoError(t, err)

	h, ok := b.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, int64(15), h.Quantity)
	assert.Equal(t, "150.00", h.AverageCost.String())
	assert.Equal(t, "150.00", realized.String())
}

func TestApplySell_Insufficient(t *testing.T) {
	b := NewBook()
	_, _ = b.ApplyBuy("MSFT", 3, models.Dollars(300))
	before := b.All()

	_, err := b.ApplySell("MSFT", 4, models.Dollars(310))
	assert.ErrorIs(t, err, models.ErrInsufficientShares)
	assert.Equal(t, before, b.All(), "book must be unchanged")

	_, err = b.ApplySell("TSLA", 1, models.Dollars(1))
	assert.ErrorIs(t, err, models.ErrInsufficientShares)
}

func TestApplySell_RemovesAtZero(t *testing.T) {
	b := NewBook()
	_, _ = b.ApplyBuy("NVDA", 2, models.Dollars(400))

	realized, err := b.ApplySell("NVDA", 2, models.Dollars(350))
	require.NoError(t, err)
	assert.Equal(t, "-100.00", realized.String())

	_, ok := b.Get("NVDA")
	assert.False(t, ok)
	assert.Equal(t, 0, b.Len())
}

func TestApply_InvalidInputs(t *testing.T) {
	tests := []struct {
		name     string
		symbol   string
		quantity int64
		price    models.Money
	}{
		{"zero quantity", "AAPL", 0, models.Dollars(1)},
		{"negative quantity", "AAPL", -1, models.Dollars(1)},
		{"zero price", "AAPL", 1, models.Money{}},
		{"negative price", "AAPL", 1, models.Dollars(-1)},
		{"empty symbol", "  ", 1, models.Dollars(1)},
	}
	for _, tt := range tests {
		b := NewBook()
		_, _ = b.ApplyBuy("AAPL", 1, models.Dollars(10))
		if _, err := b.ApplyBuy(tt.symbol, tt.quantity, tt.price); !assert.ErrorIs(t, err, models.ErrInvalidQuantity, tt.name) {
			continue
		}
		_, err := b.ApplySell(tt.symbol, tt.quantity, tt.price)
		assert.ErrorIs(t, err, models.ErrInvalidQuantity, tt.name)
		assert.Equal(t, int64(1), b.Quantity("AAPL"), tt.name)
	}
}

func TestQuantityNeverNegative(t *testing.T) {
	for seed := uint64(1); seed <= 30; seed++ {
		rng := rand.New(rand.NewPCG(seed, 99))
		b := NewBook()
		var held int64
		for range 200 {
			qty := rng.Int64N(20) + 1
			price := models.NewMoney(rng.Int64N(50000) + 1)
			if rng.IntN(2) == 0 {
				_, err := b.ApplyBuy("SPY", qty, price)
				require.NoError(t, err)
				held += qty
				continue
			}
			_, err := b.ApplySell("SPY", qty, price)
			if qty > held {
				require.ErrorIs(t, err, models.ErrInsufficientShares)
			} else {
				require.NoError(t, err)
				held -= qty
			}
			require.GreaterOrEqual(t, b.Quantity("SPY"), int64(0))
			require.Equal(t, held, b.Quantity("SPY"))
		}
	}
}

func TestMarkAll_MissingKeepsLastMark(t *testing.T) {
	b := NewBook()
	_, _ = b.ApplyBuy("AAPL", 1, models.Dollars(100))
	_, _ = b.ApplyBuy("MSFT", 1, models.Dollars(200))
	_, _ = b.ApplyBuy("GOOG", 1, models.Dollars(300))

	n := b.MarkAll(map[string]models.Money{
		"aapl": models.Dollars(110),
		"GOOG": models.Money{},
		"TSLA": models.Dollars(999),
	})

	assert.Equal(t, 1, n)
	h, _ := b.Get("AAPL")
	assert.Equal(t, "110.00", h.MarkPrice.String())
	h, _ = b.Get("MSFT")
	assert.Equal(t, "200.00", h.MarkPrice.String())
	h, _ = b.Get("GOOG")
	assert.Equal(t, "300.00", h.MarkPrice.String())
	_, ok := b.Get("TSLA")
	assert.False(t, ok)
}

func TestFromHoldings(t *testing.T) {
	b, err := FromHoldings([]models.Holding{
		{Symbol: " msft", Quantity: 4, AverageCost: models.Dollars(300), MarkPrice: models.Dollars(330)},
		{Symbol: "AAPL", Quantity: 0, AverageCost: models.Dollars(1)},
		{Symbol: "AAPL2", Quantity: 1, AverageCost: models.Dollars(10), MarkPrice: models.Dollars(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL2", "MSFT"}, b.Symbols())

	_, err = FromHoldings([]models.Holding{{Symbol: "X", Quantity: -1}})
	assert.ErrorIs(t, err, models.ErrLedgerInconsistency)

	_, err = FromHoldings([]models.Holding{{Symbol: "X", Quantity: 1}, {Symbol: "x", Quantity: 2}})
	assert.ErrorIs(t, err, models.ErrLedgerInconsistency)
}

func TestClone_IsIndependent(t *testing.T) {
	b := NewBook()
	_, _ = b.ApplyBuy("AAPL", 5, models.Dollars(100))

	c := b.Clone()
	_, err := c.ApplySell("AAPL", 5, models.Dollars(100))
	require.NoError(t, err)

	assert.Equal(t, int64(5), b.Quantity("AAPL"))
	assert.Equal(t, int64(0), c.Quantity("AAPL"))
}

func TestTotalsFiltersAndPerformers(t *testing.T) {
	b, err := FromHoldings([]models.Holding{
		{Symbol: "AAPL", Quantity: 10, AverageCost: models.Dollars(100), MarkPrice: models.Dollars(120)}, // +20%
		{Symbol: "MSFT", Quantity: 5, AverageCost: models.Dollars(200), MarkPrice: models.Dollars(190)},  // -5%
		{Symbol: "TSLA", Quantity: 2, AverageCost: models.Dollars(250), MarkPrice: models.Dollars(250)},  // 0%
	})
	require.NoError(t, err)

	totals := b.Totals()
	assert.Equal(t, "2500.00", totals.Invested.String())
	assert.Equal(t, "2650.00", totals.CurrentValue.String())
	assert.Equal(t, "150.00", totals.ProfitLoss.String())
	assert.True(t, totals.ProfitLossPct.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, 3, totals.Count)

	profitable := b.Profitable()
	require.Len(t, profitable, 1)
	assert.Equal(t, "AAPL", profitable[0].Symbol)
	losing := b.Losing()
	require.Len(t, losing, 1)
	assert.Equal(t, "MSFT", losing[0].Symbol)

	best, worst := b.Performers()
	require.NotNil(t, best)
	require.NotNil(t, worst)
	assert.Equal(t, "AAPL", best.Symbol)
	assert.Equal(t, "MSFT", worst.Symbol)

	best, worst = NewBook().Performers()
	assert.Nil(t, best)
	assert.Nil(t, worst)
}
