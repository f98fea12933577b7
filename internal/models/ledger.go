package models

import (
	"fmt"
	"time"
)

// EntryType categorizes a cash-affecting ledger event.
type EntryType string

const (
	EntryDeposit    EntryType = "deposit"
	EntryWithdrawal EntryType = "withdrawal"
	EntryBuy        EntryType = "buy"
	EntrySell       EntryType = "sell"
	EntryDividend   EntryType = "dividend"
	EntryFee        EntryType = "fee"
)

// ValidEntryType returns true if t is one of the six ledger entry types.
func ValidEntryType(t EntryType) bool {
	switch t {
	case EntryDeposit, EntryWithdrawal, EntryBuy, EntrySell, EntryDividend, EntryFee:
		return true
	default:
		return false
	}
}

// IsCreditType returns true if the entry type moves cash into the account.
// Credits: deposit, dividend, sell. Debits: withdrawal, fee, buy.
func IsCreditType(t EntryType) bool {
	switch t {
	case EntryDeposit, EntryDividend, EntrySell:
		return true
	default:
		return false
	}
}

// LedgerEntry is one immutable line of the cash ledger.
type LedgerEntry struct {
	ID           string    `json:"id"`
	Type         EntryType `json:"transaction_type"`
	Debit        Money     `json:"debit"`
	Credit       Money     `json:"credit"`
	Description  string    `json:"description"`
	Timestamp    time.Time `json:"date"`
	BalanceAfter Money     `json:"balance_after"`
}

// Net returns credit minus debit, the entry's effect on the cash balance.
func (e LedgerEntry) Net() Money {
	return e.Credit.Sub(e.Debit)
}

// Amount returns the non-zero side of the entry.
func (e LedgerEntry) Amount() Money {
	if IsCreditType(e.Type) {
		return e.Credit
	}
	return e.Debit
}

// ValidateSides checks that exactly the side implied by the type is non-zero.
func (e LedgerEntry) ValidateSides() error {
	if !ValidEntryType(e.Type) {
		return fmt.Errorf("%w: entry %s has unknown type %q", ErrLedgerInconsistency, e.ID, e.Type)
	}
	if e.Debit.IsNegative() || e.Credit.IsNegative() {
		return fmt.Errorf("%w: entry %s has a negative side (debit %s, credit %s)",
			ErrLedgerInconsistency, e.ID, e.Debit, e.Credit)
	}
	if IsCreditType(e.Type) {
		if !e.Credit.IsPositive() || !e.Debit.IsZero() {
			return fmt.Errorf("%w: %s entry %s must have credit>0 and debit=0 (debit %s, credit %s)",
				ErrLedgerInconsistency, e.Type, e.ID, e.Debit, e.Credit)
		}
		return nil
	}
	if !e.Debit.IsPositive() || !e.Credit.IsZero() {
		return fmt.Errorf("%w: %s entry %s must have debit>0 and credit=0 (debit %s, credit %s)",
			ErrLedgerInconsistency, e.Type, e.ID, e.Debit, e.Credit)
	}
	return nil
}

// LedgerSummary aggregates a ledger the way the transactions summary view does.
type LedgerSummary struct {
	TotalDebits  Money `json:"total_debits"`
	TotalCredits Money `json:"total_credits"`
	Net          Money `json:"net_amount"`
	Count        int   `json:"transaction_count"`
	Balance      Money `json:"current_balance"`
}
