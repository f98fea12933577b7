package main

import (
	"fmt"
	"io"
	"iter"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/bobmcallan/folio/internal/models"
)

const timeLayout = "2006-01-02 15:04"

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
}

// signed prefixes non-negative amounts with "+".
func signed(m models.Money, locale string) string {
	if m.IsNegative() {
		return m.DisplayString(locale)
	}
	return "+" + m.DisplayString(locale)
}

// take limits seq to its first n values. n <= 0 means no limit.
func take[T any](seq iter.Seq[T], n int) iter.Seq[T] {
	if n <= 0 {
		return seq
	}
	return func(yield func(T) bool) {
		i := 0
		for v := range seq {
			if !yield(v) {
				return
			}
			i++
			if i == n {
				return
			}
		}
	}
}

func writeSummary(w io.Writer, snap *models.AccountSnapshot, status models.AccountStatus, unreadSignals int, locale string) {
	header := fmt.Sprintf("Account %s as of %s", snap.Account, snap.AsOf.Local().Format(timeLayout))
	if status.Stale {
		header += " (stale)"
	}
	fmt.Fprintln(w, header)

	t := newTable(w)
	fmt.Fprintf(t, "Cash\t%s\t\n", snap.CashBalance.DisplayString(locale))
	fmt.Fprintf(t, "Invested\t%s\t\n", snap.TotalInvested.DisplayString(locale))
	fmt.Fprintf(t, "Current value\t%s\t\n", snap.TotalCurrentValue.DisplayString(locale))
	fmt.Fprintf(t, "Profit/loss\t%s\t%s%%\n", signed(snap.TotalProfitLoss, locale),
		models.PercentOf(snap.TotalProfitLoss, snap.TotalInvested).StringFixed(2))
	fmt.Fprintf(t, "Net worth\t%s\t%s\n", snap.NetWorth.DisplayString(locale), signed(snap.Delta.NetWorth, locale))
	t.Flush()

	if snap.Best != nil {
		fmt.Fprintf(w, "Best:  %s %s%%\n", snap.Best.Symbol, snap.Best.ProfitLossPct.StringFixed(2))
	}
	if snap.Worst != nil && (snap.Best == nil || snap.Worst.Symbol != snap.Best.Symbol) {
		fmt.Fprintf(w, "Worst: %s %s%%\n", snap.Worst.Symbol, snap.Worst.ProfitLossPct.StringFixed(2))
	}
	if unreadSignals > 0 {
		fmt.Fprintf(w, "Unread signals: %d\n", unreadSignals)
	}
	if status.LastError != "" {
		fmt.Fprintf(w, "Last refresh failed: %s\n", status.LastError)
	}
}

func writeHoldings(w io.Writer, rows []models.Holding, totals models.HoldingTotals, locale string) {
	t := newTable(w)
	fmt.Fprintln(t, "Symbol\tQty\tAvg cost\tPrice\tValue\tP/L\tP/L %\t")
	for _, h := range rows {
		fmt.Fprintf(t, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t\n",
			h.Symbol, h.Quantity,
			h.AverageCost.DisplayString(locale),
			h.MarkPrice.DisplayString(locale),
			h.CurrentValue().DisplayString(locale),
			signed(h.ProfitLoss(), locale),
			h.ProfitLossPct().StringFixed(2))
	}
	fmt.Fprintf(t, "Total\t\t%s\t\t%s\t%s\t%s\t\n",
		totals.Invested.DisplayString(locale),
		totals.CurrentValue.DisplayString(locale),
		signed(totals.ProfitLoss, locale),
		totals.ProfitLossPct.StringFixed(2))
	t.Flush()
}

func writeEntries(w io.Writer, entries iter.Seq[models.LedgerEntry], locale string) {
	t := newTable(w)
	fmt.Fprintln(t, "Date\tType\tDebit\tCredit\tBalance\tDescription")
	for e := range entries {
		debit, credit := "", ""
		if e.Debit.IsPositive() {
			debit = e.Debit.DisplayString(locale)
		}
		if e.Credit.IsPositive() {
			credit = e.Credit.DisplayString(locale)
		}
		fmt.Fprintf(t, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Timestamp.Local().Format(timeLayout), e.Type, debit, credit,
			e.BalanceAfter.DisplayString(locale), e.Description)
	}
	t.Flush()
}

func writeLedgerSummary(w io.Writer, s models.LedgerSummary, locale string) {
	fmt.Fprintf(w, "\n%d entries: debits %s, credits %s, net %s, balance %s\n",
		s.Count,
		s.TotalDebits.DisplayString(locale),
		s.TotalCredits.DisplayString(locale),
		signed(s.Net, locale),
		s.Balance.DisplayString(locale))
}

func writePreview(w io.Writer, p *models.TradePreview, locale string) {
	fmt.Fprintf(w, "Projection only, nothing was submitted.\n")
	t := newTable(w)
	fmt.Fprintln(t, "\tQty\tAvg cost\t")
	fmt.Fprintf(t, "Before\t%d\t%s\t\n", p.Before.Quantity, p.Before.AverageCost.DisplayString(locale))
	fmt.Fprintf(t, "After\t%d\t%s\t\n", p.After.Quantity, p.After.AverageCost.DisplayString(locale))
	t.Flush()
	fmt.Fprintf(w, "Cash change: %s\n", signed(p.CashChange, locale))
	if p.Side == models.SideSell {
		fmt.Fprintf(w, "Realized P/L: %s\n", signed(p.RealizedPL, locale))
	}
}

func writeReceipt(w io.Writer, r *models.TradeResult, locale string) {
	msg := r.Receipt.Message
	if msg == "" {
		msg = "Recorded"
	}
	fmt.Fprintf(w, "%s (transaction %s, total %s)\n", msg, r.Receipt.TransactionID, r.Receipt.Total.DisplayString(locale))
	if r.RefreshErr != nil {
		fmt.Fprintf(w, "Refresh after submission failed: %v\n", r.RefreshErr)
		fmt.Fprintf(w, "Broker reports new balance %s\n", r.Receipt.NewBalance.DisplayString(locale))
		return
	}
	fmt.Fprintf(w, "Cash %s, net worth %s\n",
		r.Snapshot.CashBalance.DisplayString(locale), r.Snapshot.NetWorth.DisplayString(locale))
}

func writeOutcomes(w io.Writer, outcomes map[string]models.ReconcileOutcome) {
	for _, id := range slices.Sorted(maps.Keys(outcomes)) {
		verdict := "not recorded, safe to resubmit"
		switch outcomes[id] {
		case models.OutcomeRecorded:
			verdict = "recorded"
		case models.OutcomeUnknown:
			verdict = "still unknown, do not resubmit"
		}
		fmt.Fprintf(w, "%s  %s\n", id, verdict)
	}
}

func writeSeries(w io.Writer, series iter.Seq[models.TimeSeriesPoint], locale string) {
	t := newTable(w)
	fmt.Fprintln(t, "Time\tValue\tPrice\t")
	for p := range series {
		price := ""
		if p.Price != nil {
			price = p.Price.DisplayString(locale)
		}
		fmt.Fprintf(t, "%s\t%s\t%s\t\n", p.Timestamp.Local().Format(timeLayout), p.Value.DisplayString(locale), price)
	}
	t.Flush()
}
