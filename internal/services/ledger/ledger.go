// Package ledger holds the append-only cash ledger and its reconciliation rules
package ledger

import (
	"fmt"
	"iter"
	"slices"

	"github.com/bobmcallan/folio/internal/models"
)

// Ledger is an append-only sequence of entries with a running balance.
// Entries are held oldest first. A Ledger is not safe for concurrent Append;
// once published inside a snapshot it is only read.
type Ledger struct {
	opening models.Money
	entries []models.LedgerEntry
}

// New returns an empty ledger starting at the given opening balance.
// A ledger holding the full account history opens at zero.
func New(opening models.Money) *Ledger {
	return &Ledger{opening: opening}
}

// FromRemote builds a ledger from a window of remote entries. The window is
// taken as newest first unless its first entry is older than its last, and
// need not start at account opening: the opening balance is inferred from the
// oldest entry.
func FromRemote(entries []models.LedgerEntry) (*Ledger, error) {
	if len(entries) == 0 {
		return New(models.Money{}), nil
	}

	ordered := slices.Clone(entries)
	if len(ordered) > 1 && !ordered[0].Timestamp.Before(ordered[len(ordered)-1].Timestamp) {
		// newest first
		slices.Reverse(ordered)
	}

	oldest := ordered[0]
	if err := oldest.ValidateSides(); err != nil {
		return nil, err
	}
	l := New(oldest.BalanceAfter.Sub(oldest.Net()))
	for _, e := range ordered {
		if err := l.Append(e); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// Append adds an entry after validating the single-sided rule and that
// BalanceAfter continues arithmetically from the current tail.
func (l *Ledger) Append(e models.LedgerEntry) error {
	if err := e.ValidateSides(); err != nil {
		return err
	}
	want := l.Balance().Add(e.Credit).Sub(e.Debit)
	if !e.BalanceAfter.Equal(want) {
		return fmt.Errorf("%w: entry %s balance_after %s, expected %s (previous %s, net %s)",
			models.ErrLedgerInconsistency, e.ID, e.BalanceAfter, want, l.Balance(), e.Net())
	}
	if n := len(l.entries); n > 0 && e.Timestamp.Before(l.entries[n-1].Timestamp) {
		return fmt.Errorf("%w: entry %s at %s precedes tail %s at %s",
			models.ErrLedgerInconsistency, e.ID, e.Timestamp, l.entries[n-1].ID, l.entries[n-1].Timestamp)
	}
	l.entries = append(l.entries, e)
	return nil
}

// Opening returns the balance before the first entry.
func (l *Ledger) Opening() models.Money { return l.opening }

// Len returns the number of entries.
func (l *Ledger) Len() int { return len(l.entries) }

// Balance returns the tail's BalanceAfter, or the opening balance when empty.
func (l *Ledger) Balance() models.Money {
	if len(l.entries) == 0 {
		return l.opening
	}
	return l.entries[len(l.entries)-1].BalanceAfter
}

// Tail returns the newest entry.
func (l *Ledger) Tail() (models.LedgerEntry, bool) {
	if len(l.entries) == 0 {
		return models.LedgerEntry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// Recent yields up to n entries, newest first. The sequence is lazy and can be
// ranged over repeatedly; entries appended later are not included.
func (l *Ledger) Recent(n int) iter.Seq[models.LedgerEntry] {
	entries := l.entries[:len(l.entries):len(l.entries)]
	return func(yield func(models.LedgerEntry) bool) {
		stop := max(len(entries)-n, 0)
		for i := len(entries) - 1; i >= stop; i-- {
			if !yield(entries[i]) {
				return
			}
		}
	}
}

// ByType yields entries of one type, newest first.
func (l *Ledger) ByType(t models.EntryType) iter.Seq[models.LedgerEntry] {
	entries := l.entries[:len(l.entries):len(l.entries)]
	return func(yield func(models.LedgerEntry) bool) {
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].Type != t {
				continue
			}
			if !yield(entries[i]) {
				return
			}
		}
	}
}

// Entries returns a copy of all entries, newest first.
func (l *Ledger) Entries() []models.LedgerEntry {
	return slices.Collect(l.Recent(len(l.entries)))
}

// Summary totals the ledger.
func (l *Ledger) Summary() models.LedgerSummary {
	var s models.LedgerSummary
	for _, e := range l.entries {
		s.TotalDebits = s.TotalDebits.Add(e.Debit)
		s.TotalCredits = s.TotalCredits.Add(e.Credit)
	}
	s.Net = s.TotalCredits.Sub(s.TotalDebits)
	s.Count = len(l.entries)
	s.Balance = l.Balance()
	return s
}
