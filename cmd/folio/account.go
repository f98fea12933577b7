package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/bobmcallan/folio/internal/app"
	"github.com/bobmcallan/folio/internal/common"
	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/holdings"
	"github.com/bobmcallan/folio/internal/services/ledger"
)

// loadSnapshot refreshes through the coordinator, falling back to the
// published snapshot when the remote is unreachable.
func loadSnapshot(ctx context.Context, a *app.App) (*models.AccountSnapshot, models.AccountStatus, error) {
	if _, err := a.Coordinator.Snapshot.Get(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Refresh failed, showing last known snapshot")
	}
	snap, status := a.AccountService.Current()
	if snap == nil {
		return nil, status, fmt.Errorf("no snapshot available: %v", status.LastErr)
	}
	return snap, status, nil
}

type summaryCmd struct{}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "show cash, invested and net worth" }
func (*summaryCmd) Usage() string {
	return `folio summary

  Refreshes the account and prints the portfolio summary.
`
}
func (*summaryCmd) SetFlags(*flag.FlagSet) {}

func (*summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	snap, status, err := loadSnapshot(ctx, a)
	if err != nil {
		return fail("%v", err)
	}
	signals, _ := a.Coordinator.Signals.Get(ctx)
	writeSummary(os.Stdout, snap, status, signals, *locale)
	return subcommands.ExitSuccess
}

type holdingsCmd struct {
	filter string
}

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "list open positions" }
func (*holdingsCmd) Usage() string {
	return `folio holdings [-f all|profitable|losing]

  Lists holdings with average cost, mark price and profit/loss.
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.filter, "f", "all", "Filter: all, profitable or losing")
}

func (c *holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.filter != "all" && c.filter != "profitable" && c.filter != "losing" {
		fmt.Fprintf(os.Stderr, "Error: unknown filter %q\n", c.filter)
		return subcommands.ExitUsageError
	}

	a, err := openApp(ctx)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	snap, _, err := loadSnapshot(ctx, a)
	if err != nil {
		return fail("%v", err)
	}
	book, err := holdings.FromHoldings(snap.Holdings)
	if err != nil {
		return fail("%v", err)
	}

	rows := book.All()
	switch c.filter {
	case "profitable":
		rows = book.Profitable()
	case "losing":
		rows = book.Losing()
	}
	writeHoldings(os.Stdout, rows, book.Totals(), *locale)
	return subcommands.ExitSuccess
}

type ledgerCmd struct {
	limit     int
	entryType string
	summary   bool
}

func (*ledgerCmd) Name() string     { return "ledger" }
func (*ledgerCmd) Synopsis() string { return "list recent ledger entries" }
func (*ledgerCmd) Usage() string {
	return `folio ledger [-n <count>] [-t <type>] [-s]

  Lists the most recent cash ledger entries, newest first.
`
}

func (c *ledgerCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", 20, "Number of entries to show")
	f.StringVar(&c.entryType, "t", "", "Only show entries of this type (deposit, withdrawal, buy, sell, dividend, fee)")
	f.BoolVar(&c.summary, "s", false, "Print debit/credit totals for the window")
}

func (c *ledgerCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.entryType != "" && !models.ValidEntryType(models.EntryType(c.entryType)) {
		fmt.Fprintf(os.Stderr, "Error: unknown entry type %q\n", c.entryType)
		return subcommands.ExitUsageError
	}

	a, err := openApp(ctx)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	snap, _, err := loadSnapshot(ctx, a)
	if err != nil {
		return fail("%v", err)
	}
	led, err := ledger.FromRemote(snap.RecentEntries)
	if err != nil {
		return fail("%v", err)
	}

	entries := led.Recent(c.limit)
	if c.entryType != "" {
		entries = take(led.ByType(models.EntryType(c.entryType)), c.limit)
	}
	writeEntries(os.Stdout, entries, *locale)
	if c.summary {
		writeLedgerSummary(os.Stdout, led.Summary(), *locale)
	}
	return subcommands.ExitSuccess
}

type versionCmd struct{}

func (*versionCmd) Name() string           { return "version" }
func (*versionCmd) Synopsis() string       { return "print the folio version" }
func (*versionCmd) Usage() string          { return "folio version\n" }
func (*versionCmd) SetFlags(*flag.FlagSet) {}
func (*versionCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	fmt.Println(common.GetFullVersion())
	return subcommands.ExitSuccess
}
