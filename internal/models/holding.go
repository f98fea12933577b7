package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Holding is an open position in one symbol.
type Holding struct {
	Symbol      string `json:"stock"`
	Quantity    int64  `json:"quantity"`
	AverageCost Money  `json:"buying_price"`
	MarkPrice   Money  `json:"current_price"`
}

// Invested returns quantity × average cost.
func (h Holding) Invested() Money {
	return h.AverageCost.Mul(h.Quantity)
}

// CurrentValue returns quantity × mark price.
func (h Holding) CurrentValue() Money {
	return h.MarkPrice.Mul(h.Quantity)
}

// ProfitLoss returns current value minus invested.
func (h Holding) ProfitLoss() Money {
	return h.CurrentValue().Sub(h.Invested())
}

// ProfitLossPct returns profit/loss as a percentage of invested, for display.
func (h Holding) ProfitLossPct() decimal.Decimal {
	return PercentOf(h.ProfitLoss(), h.Invested())
}

// NormalizeSymbol upper-cases and trims a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// HoldingTotals sums a set of holdings.
type HoldingTotals struct {
	Invested      Money           `json:"total_invested"`
	CurrentValue  Money           `json:"total_current_value"`
	ProfitLoss    Money           `json:"total_profit_loss"`
	ProfitLossPct decimal.Decimal `json:"total_profit_loss_percentage"`
	Count         int             `json:"holdings_count"`
}

// Performer names a holding and its return, for best/worst reporting.
type Performer struct {
	Symbol        string          `json:"stock"`
	ProfitLoss    Money           `json:"profit_loss"`
	ProfitLossPct decimal.Decimal `json:"profit_loss_percentage"`
}
