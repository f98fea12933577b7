package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/google/subcommands"

	"github.com/bobmcallan/folio/internal/models"
)

// tradeCmd implements both buy and sell.
type tradeCmd struct {
	side   string
	dryRun bool
}

func (c *tradeCmd) Name() string { return c.side }
func (c *tradeCmd) Synopsis() string {
	return fmt.Sprintf("%s shares at a given price", c.side)
}
func (c *tradeCmd) Usage() string {
	return fmt.Sprintf(`folio %s [-n] <symbol> <quantity> <price>

  Submits a market %s to the broker. With -n, projects the resulting
  holding locally without submitting.
`, c.side, c.side)
}

func (c *tradeCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.dryRun, "n", false, "Preview the trade without submitting it")
}

func (c *tradeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 3 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	symbol := f.Arg(0)
	quantity, err := strconv.ParseInt(f.Arg(1), 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid quantity %q\n", f.Arg(1))
		return subcommands.ExitUsageError
	}
	price, err := models.ParseMoney(f.Arg(2))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	a, err := openApp(ctx)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	side := models.TradeSide(c.side)
	if c.dryRun {
		preview, err := a.TradeService.Preview(side, symbol, quantity, price)
		if err != nil {
			return fail("%v", err)
		}
		writePreview(os.Stdout, preview, *locale)
		return subcommands.ExitSuccess
	}

	// The advisory checks need a fresh snapshot.
	if _, err := a.Coordinator.Snapshot.Get(ctx); err != nil {
		a.Logger.Debug().Err(err).Msg("Pre-trade refresh failed, deferring checks to the broker")
	}

	var result *models.TradeResult
	if side == models.SideSell {
		result, err = a.TradeService.Sell(ctx, symbol, quantity, price)
	} else {
		result, err = a.TradeService.Buy(ctx, symbol, quantity, price)
	}
	return reportSubmission(result, err)
}

// cashCmd implements deposit and withdraw.
type cashCmd struct {
	kind        string
	description string
}

func (c *cashCmd) Name() string { return c.kind }
func (c *cashCmd) Synopsis() string {
	return fmt.Sprintf("%s cash", c.kind)
}
func (c *cashCmd) Usage() string {
	return fmt.Sprintf(`folio %s [-m <description>] <amount>

  Records a cash %s in the ledger.
`, c.kind, c.kind)
}

func (c *cashCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.description, "m", "", "Ledger description")
}

func (c *cashCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	amount, err := models.ParseMoney(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	a, err := openApp(ctx)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	if _, err := a.Coordinator.Snapshot.Get(ctx); err != nil {
		a.Logger.Debug().Err(err).Msg("Pre-submit refresh failed, deferring checks to the broker")
	}

	var result *models.TradeResult
	if c.kind == "withdraw" {
		result, err = a.TradeService.Withdraw(ctx, amount, c.description)
	} else {
		result, err = a.TradeService.Deposit(ctx, amount, c.description)
	}
	return reportSubmission(result, err)
}

// reportSubmission prints the outcome of a write and picks the exit status.
func reportSubmission(result *models.TradeResult, err error) subcommands.ExitStatus {
	var ambiguous *models.AmbiguousSubmissionError
	switch {
	case errors.As(err, &ambiguous):
		fmt.Fprintf(os.Stderr, "Outcome unknown: %v\n", ambiguous.Cause)
		fmt.Fprintf(os.Stderr, "Pending submission %s was stored. Run 'folio reconcile' before resubmitting.\n", ambiguous.Pending.ID)
		return subcommands.ExitFailure
	case err != nil:
		return fail("%v", err)
	}

	writeReceipt(os.Stdout, result, *locale)
	return subcommands.ExitSuccess
}

type reconcileCmd struct{}

func (*reconcileCmd) Name() string     { return "reconcile" }
func (*reconcileCmd) Synopsis() string { return "resolve submissions whose outcome is unknown" }
func (*reconcileCmd) Usage() string {
	return `folio reconcile

  Refreshes the ledger and decides, for every stored pending submission,
  whether the broker recorded it.
`
}
func (*reconcileCmd) SetFlags(*flag.FlagSet) {}

func (*reconcileCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	outcomes, err := a.TradeService.ReconcilePending(ctx)
	if err != nil {
		return fail("%v", err)
	}
	if len(outcomes) == 0 {
		fmt.Println("No pending submissions.")
		return subcommands.ExitSuccess
	}
	writeOutcomes(os.Stdout, outcomes)
	return subcommands.ExitSuccess
}
