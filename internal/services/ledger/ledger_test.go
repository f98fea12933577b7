package ledger

import (
	"errors"
	"math/rand/v2"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/folio/internal/models"
)

var t0 = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

// entry builds a ledger line continuing from prev.
func entry(id string, typ models.EntryType, amount models.Money, prev models.Money, at time.Time) models.LedgerEntry {
	e := models.LedgerEntry{ID: id, Type: typ, Timestamp: at}
	if models.IsCreditType(typ) {
		e.Credit = amount
	} else {
		e.Debit = amount
	}
	e.BalanceAfter = prev.Add(e.Credit).Sub(e.Debit)
	return e
}

func TestAppend_Continuity(t *testing.T) {
	l := New(models.Money{})

	require.NoError(t, l.Append(entry("1", models.EntryDeposit, models.Dollars(10000), l.Balance(), t0)))
	require.NoError(t, l.Append(entry("2", models.EntryBuy, models.Dollars(1000), l.Balance(), t0.Add(time.Minute))))
	require.NoError(t, l.Append(entry("3", models.EntryFee, models.NewMoney(99), l.Balance(), t0.Add(2*time.Minute))))

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, "8999.01", l.Balance().String())

	bad := entry("4", models.EntryDeposit, models.Dollars(5), l.Balance(), t0.Add(3*time.Minute))
	bad.BalanceAfter = bad.BalanceAfter.Add(models.NewMoney(1))
	err := l.Append(bad)
	assert.ErrorIs(t, err, models.ErrLedgerInconsistency)
	assert.Equal(t, 3, l.Len(), "rejected entry must not be appended")
}

func TestAppend_RejectsDoubleSided(t *testing.T) {
	l := New(models.Money{})
	e := models.LedgerEntry{
		ID: "1", Type: models.EntryDeposit,
		Credit: models.Dollars(10), Debit: models.Dollars(1),
		BalanceAfter: models.Dollars(9), Timestamp: t0,
	}
	assert.ErrorIs(t, l.Append(e), models.ErrLedgerInconsistency)
}

func TestAppend_RejectsOutOfOrder(t *testing.T) {
	l := New(models.Money{})
	require.NoError(t, l.Append(entry("1", models.EntryDeposit, models.Dollars(10), l.Balance(), t0)))
	err := l.Append(entry("2", models.EntryDeposit, models.Dollars(10), l.Balance(), t0.Add(-time.Hour)))
	assert.ErrorIs(t, err, models.ErrLedgerInconsistency)
}

func TestBalanceEqualsCreditsMinusDebits(t *testing.T) {
	types := []models.EntryType{
		models.EntryDeposit, models.EntryWithdrawal, models.EntryBuy,
		models.EntrySell, models.EntryDividend, models.EntryFee,
	}
	for seed := uint64(1); seed <= 50; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*7))
		l := New(models.Money{})
		credits, debits := models.Money{}, models.Money{}
		n := rng.IntN(40) + 1
		for i := range n {
			typ := types[rng.IntN(len(types))]
			amount := models.NewMoney(rng.Int64N(1_000_000) + 1)
			e := entry(string(rune('a'+i%26)), typ, amount, l.Balance(), t0.Add(time.Duration(i)*time.Second))
			require.NoError(t, l.Append(e))
			credits = credits.Add(e.Credit)
			debits = debits.Add(e.Debit)
		}
		tail, ok := l.Tail()
		require.True(t, ok)
		if !tail.BalanceAfter.Equal(credits.Sub(debits)) {
			t.Errorf("seed %d: tail balance %s, want %s", seed, tail.BalanceAfter, credits.Sub(debits))
		}
	}
}

func TestRecent_NewestFirstAndRestartable(t *testing.T) {
	l := New(models.Money{})
	for i := range 5 {
		require.NoError(t, l.Append(entry(string(rune('1'+i)), models.EntryDeposit, models.Dollars(1), l.Balance(), t0.Add(time.Duration(i)*time.Hour))))
	}

	seq := l.Recent(3)
	first := slices.Collect(seq)
	second := slices.Collect(seq)

	ids := func(es []models.LedgerEntry) []string {
		out := make([]string, len(es))
		for i, e := range es {
			out[i] = e.ID
		}
		return out
	}
	assert.Equal(t, []string{"5", "4", "3"}, ids(first))
	assert.Equal(t, ids(first), ids(second))
	assert.Len(t, slices.Collect(l.Recent(100)), 5)
	assert.Empty(t, slices.Collect(l.Recent(0)))

	// Early break stops the walk.
	count := 0
	for range l.Recent(5) {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)

	// Entries appended after the sequence was taken are not visible to it.
	require.NoError(t, l.Append(entry("6", models.EntryDeposit, models.Dollars(1), l.Balance(), t0.Add(6*time.Hour))))
	assert.Equal(t, []string{"5", "4", "3"}, ids(slices.Collect(seq)))
	assert.Equal(t, "6", slices.Collect(l.Recent(1))[0].ID)
}

func TestFromRemote_InfersOpeningBalance(t *testing.T) {
	// A window of the three newest entries of a longer history.
	e1 := entry("7", models.EntryBuy, models.Dollars(1500), models.Dollars(10000), t0)
	e2 := entry("8", models.EntryDividend, models.NewMoney(1250), e1.BalanceAfter, t0.Add(time.Hour))
	e3 := entry("9", models.EntrySell, models.Dollars(900), e2.BalanceAfter, t0.Add(2*time.Hour))

	l, err := FromRemote([]models.LedgerEntry{e3, e2, e1})
	require.NoError(t, err)

	assert.Equal(t, "10000.00", l.Opening().String())
	assert.Equal(t, "9412.50", l.Balance().String())
	tail, _ := l.Tail()
	assert.Equal(t, "9", tail.ID)

	// Oldest-first input gives the same ledger.
	asc, err := FromRemote([]models.LedgerEntry{e1, e2, e3})
	require.NoError(t, err)
	assert.Equal(t, l.Entries(), asc.Entries())
}

func TestFromRemote_DetectsGap(t *testing.T) {
	e1 := entry("1", models.EntryDeposit, models.Dollars(100), models.Money{}, t0)
	e2 := entry("2", models.EntryDeposit, models.Dollars(100), e1.BalanceAfter, t0.Add(time.Hour))
	e3 := entry("3", models.EntryDeposit, models.Dollars(100), e2.BalanceAfter, t0.Add(2*time.Hour))

	_, err := FromRemote([]models.LedgerEntry{e3, e1})
	assert.True(t, errors.Is(err, models.ErrLedgerInconsistency))

	empty, err := FromRemote(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
	assert.True(t, empty.Balance().IsZero())
}

func TestSummaryAndByType(t *testing.T) {
	l := New(models.Money{})
	require.NoError(t, l.Append(entry("1", models.EntryDeposit, models.Dollars(1000), l.Balance(), t0)))
	require.NoError(t, l.Append(entry("2", models.EntryBuy, models.Dollars(600), l.Balance(), t0.Add(time.Minute))))
	require.NoError(t, l.Append(entry("3", models.EntryDeposit, models.Dollars(50), l.Balance(), t0.Add(2*time.Minute))))
	require.NoError(t, l.Append(entry("4", models.EntryFee, models.Dollars(5), l.Balance(), t0.Add(3*time.Minute))))

	s := l.Summary()
	assert.Equal(t, "605.00", s.TotalDebits.String())
	assert.Equal(t, "1050.00", s.TotalCredits.String())
	assert.Equal(t, "445.00", s.Net.String())
	assert.Equal(t, 4, s.Count)
	assert.Equal(t, "445.00", s.Balance.String())

	var deposits []string
	for e := range l.ByType(models.EntryDeposit) {
		deposits = append(deposits, e.ID)
	}
	assert.Equal(t, []string{"3", "1"}, deposits)
}
