// Package holdings maintains per-symbol positions and their cost basis
package holdings

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/bobmcallan/folio/internal/models"
)

// Book is the set of open positions keyed by normalised symbol.
// Zero-quantity holdings are never kept. A Book is not safe for concurrent
// mutation; published snapshots hold copies.
type Book struct {
	holdings map[string]models.Holding
}

// NewBook returns an empty book.
func NewBook() *Book {
	return &Book{holdings: make(map[string]models.Holding)}
}

// FromHoldings builds a book from remote rows, rejecting negative or
// duplicate positions. Zero-quantity rows are dropped.
func FromHoldings(rows []models.Holding) (*Book, error) {
	b := NewBook()
	for _, h := range rows {
		h.Symbol = models.NormalizeSymbol(h.Symbol)
		if h.Symbol == "" {
			return nil, fmt.Errorf("%w: holding with empty symbol", models.ErrLedgerInconsistency)
		}
		if h.Quantity < 0 {
			return nil, fmt.Errorf("%w: %s has negative quantity %d", models.ErrLedgerInconsistency, h.Symbol, h.Quantity)
		}
		if h.AverageCost.IsNegative() || h.MarkPrice.IsNegative() {
			return nil, fmt.Errorf("%w: %s has a negative price", models.ErrLedgerInconsistency, h.Symbol)
		}
		if _, dup := b.holdings[h.Symbol]; dup {
			return nil, fmt.Errorf("%w: duplicate holding for %s", models.ErrLedgerInconsistency, h.Symbol)
		}
		if h.Quantity == 0 {
			continue
		}
		b.holdings[h.Symbol] = h
	}
	return b, nil
}

func validateTrade(symbol string, quantity int64, price models.Money) (string, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return "", fmt.Errorf("%w: symbol is required", models.ErrInvalidQuantity)
	}
	if quantity <= 0 {
		return "", fmt.Errorf("%w: quantity must be positive, got %d", models.ErrInvalidQuantity, quantity)
	}
	if !price.IsPositive() {
		return "", fmt.Errorf("%w: price must be positive, got %s", models.ErrInvalidQuantity, price)
	}
	return symbol, nil
}

// ApplyBuy adds quantity at price, recomputing the weighted average cost:
// (oldQty×oldAvg + qty×price) / (oldQty+qty). The mark moves to the trade price.
func (b *Book) ApplyBuy(symbol string, quantity int64, price models.Money) (models.Holding, error) {
	symbol, err := validateTrade(symbol, quantity, price)
	if err != nil {
		return models.Holding{}, err
	}

	h, ok := b.holdings[symbol]
	if !ok {
		h = models.Holding{Symbol: symbol, Quantity: quantity, AverageCost: price, MarkPrice: price}
		b.holdings[symbol] = h
		return h, nil
	}

	total := h.Quantity + quantity
	cost := h.AverageCost.Mul(h.Quantity).Add(price.Mul(quantity))
	h.Quantity = total
	h.AverageCost = cost.DivQuantity(total)
	h.MarkPrice = price
	b.holdings[symbol] = h
	return h, nil
}

// ApplySell removes quantity at price and returns the realized P/L,
// qty × (price − averageCost). Average cost is unchanged. Selling more than
// is held fails with ErrInsufficientShares and leaves the book untouched.
func (b *Book) ApplySell(symbol string, quantity int64, price models.Money) (models.Money, error) {
	symbol, err := validateTrade(symbol, quantity, price)
	if err != nil {
		return models.Money{}, err
	}

	h := b.holdings[symbol]
	if quantity > h.Quantity {
		return models.Money{}, fmt.Errorf("%w: selling %d %s, holding %d",
			models.ErrInsufficientShares, quantity, symbol, h.Quantity)
	}

	realized := price.Sub(h.AverageCost).Mul(quantity)
	h.Quantity -= quantity
	if h.Quantity == 0 {
		delete(b.holdings, symbol)
		return realized, nil
	}
	h.MarkPrice = price
	b.holdings[symbol] = h
	return realized, nil
}

// MarkAll sets the mark price of every holding present in feed. Holdings
// missing from the feed, or quoted at a non-positive price, keep their last
// mark. Returns the number of holdings marked.
func (b *Book) MarkAll(feed map[string]models.Money) int {
	normalised := make(map[string]models.Money, len(feed))
	for symbol, price := range feed {
		normalised[models.NormalizeSymbol(symbol)] = price
	}

	marked := 0
	for symbol, h := range b.holdings {
		price, ok := normalised[symbol]
		if !ok || !price.IsPositive() {
			continue
		}
		h.MarkPrice = price
		b.holdings[symbol] = h
		marked++
	}
	return marked
}

// Get returns the holding for symbol.
func (b *Book) Get(symbol string) (models.Holding, bool) {
	h, ok := b.holdings[models.NormalizeSymbol(symbol)]
	return h, ok
}

// Quantity returns the held quantity, zero when absent.
func (b *Book) Quantity(symbol string) int64 {
	return b.holdings[models.NormalizeSymbol(symbol)].Quantity
}

// Len returns the number of open positions.
func (b *Book) Len() int { return len(b.holdings) }

// Symbols returns the held symbols in sorted order.
func (b *Book) Symbols() []string {
	return slices.Sorted(maps.Keys(b.holdings))
}

// All returns a copy of every holding sorted by symbol.
func (b *Book) All() []models.Holding {
	out := make([]models.Holding, 0, len(b.holdings))
	for _, symbol := range b.Symbols() {
		out = append(out, b.holdings[symbol])
	}
	return out
}

// Clone returns an independent copy of the book.
func (b *Book) Clone() *Book {
	return &Book{holdings: maps.Clone(b.holdings)}
}

// Totals sums invested, current value and P/L over the book.
func (b *Book) Totals() models.HoldingTotals {
	var t models.HoldingTotals
	for _, h := range b.holdings {
		t.Invested = t.Invested.Add(h.Invested())
		t.CurrentValue = t.CurrentValue.Add(h.CurrentValue())
	}
	t.ProfitLoss = t.CurrentValue.Sub(t.Invested)
	t.ProfitLossPct = models.PercentOf(t.ProfitLoss, t.Invested)
	t.Count = len(b.holdings)
	return t
}

// Profitable returns holdings with a positive P/L, sorted by symbol.
func (b *Book) Profitable() []models.Holding {
	return b.filter(func(h models.Holding) bool { return h.ProfitLoss().IsPositive() })
}

// Losing returns holdings with a negative P/L, sorted by symbol.
func (b *Book) Losing() []models.Holding {
	return b.filter(func(h models.Holding) bool { return h.ProfitLoss().IsNegative() })
}

func (b *Book) filter(keep func(models.Holding) bool) []models.Holding {
	var out []models.Holding
	for _, h := range b.All() {
		if keep(h) {
			out = append(out, h)
		}
	}
	return out
}

// Performers returns the best and worst holdings by P/L percentage.
// Both are nil for an empty book. Ties resolve to the earlier symbol.
func (b *Book) Performers() (best, worst *models.Performer) {
	for _, h := range b.All() {
		p := &models.Performer{Symbol: h.Symbol, ProfitLoss: h.ProfitLoss(), ProfitLossPct: h.ProfitLossPct()}
		if best == nil || p.ProfitLossPct.GreaterThan(best.ProfitLossPct) {
			best = p
		}
		if worst == nil || p.ProfitLossPct.LessThan(worst.ProfitLossPct) {
			worst = p
		}
	}
	return best, worst
}

// String renders the book for debug logging.
func (b *Book) String() string {
	parts := make([]string, 0, len(b.holdings))
	for _, h := range b.All() {
		parts = append(parts, fmt.Sprintf("%s:%d@%s", h.Symbol, h.Quantity, h.AverageCost))
	}
	return "[" + strings.Join(parts, " ") + "]"
}
