package models

import (
	"time"
)

// AccountSnapshot is a consistent point-in-time read model of the account.
// It is replaced wholesale on refresh and never mutated after publication.
type AccountSnapshot struct {
	Account           string        `json:"account"`
	CashBalance       Money         `json:"cash_balance"`
	TotalInvested     Money         `json:"total_invested"`
	TotalCurrentValue Money         `json:"total_current_value"`
	TotalProfitLoss   Money         `json:"total_profit_loss"`
	NetWorth          Money         `json:"net_worth"`
	Holdings          []Holding     `json:"holdings"`
	RecentEntries     []LedgerEntry `json:"recent_entries"`
	Best              *Performer    `json:"best_performer,omitempty"`
	Worst             *Performer    `json:"worst_performer,omitempty"`
	Delta             SnapshotDelta `json:"delta"`
	Seq               uint64        `json:"seq"`
	AsOf              time.Time     `json:"as_of"`
}

// SnapshotDelta is the change versus the previously published snapshot.
type SnapshotDelta struct {
	NetWorth   Money `json:"net_worth"`
	ProfitLoss Money `json:"profit_loss"`
	Cash       Money `json:"cash"`
}

// Holding returns the holding for symbol, if present.
func (s *AccountSnapshot) Holding(symbol string) (Holding, bool) {
	symbol = NormalizeSymbol(symbol)
	for _, h := range s.Holdings {
		if h.Symbol == symbol {
			return h, true
		}
	}
	return Holding{}, false
}

// HeldQuantity returns the quantity held for symbol, zero when absent.
func (s *AccountSnapshot) HeldQuantity(symbol string) int64 {
	h, _ := s.Holding(symbol)
	return h.Quantity
}

// Tail returns the newest ledger entry in the snapshot.
func (s *AccountSnapshot) Tail() (LedgerEntry, bool) {
	if len(s.RecentEntries) == 0 {
		return LedgerEntry{}, false
	}
	return s.RecentEntries[0], true
}

// AccountStatus reports the freshness of the published snapshot.
type AccountStatus struct {
	Stale       bool      `json:"stale"`
	LastErr     error     `json:"-"`
	LastError   string    `json:"last_error,omitempty"`
	LastAttempt time.Time `json:"last_attempt"`
	LastSuccess time.Time `json:"last_success"`
}

// Degraded returns true when the last refresh failed or nothing has been published yet.
func (s AccountStatus) Degraded() bool {
	return s.Stale || s.LastErr != nil
}
