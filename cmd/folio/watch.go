package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/bobmcallan/folio/internal/common"
)

type watchCmd struct{}

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "poll the account and print every change" }
func (*watchCmd) Usage() string {
	return `folio watch

  Runs the background pollers and prints the summary whenever a new
  snapshot is published, until interrupted.
`
}
func (*watchCmd) SetFlags(*flag.FlagSet) {}

func (*watchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	common.PrintBanner(os.Stdout, a.Config, a.Logger)

	snapshots, stopSnapshots := a.Coordinator.Snapshot.Subscribe()
	defer stopSnapshots()
	signals, stopSignals := a.Coordinator.Signals.Subscribe()
	defer stopSignals()

	a.StartBackground()
	if _, err := a.Coordinator.Snapshot.Get(ctx); err != nil {
		a.Logger.Warn().Err(err).Msg("Initial refresh failed")
		if snap, status := a.AccountService.Current(); snap != nil {
			writeSummary(os.Stdout, snap, status, 0, *locale)
		}
	}

	unread := 0
	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			a.Logger.Info().Msg("Watch stopped")
			return subcommands.ExitSuccess
		case snap, ok := <-snapshots:
			if !ok {
				return subcommands.ExitSuccess
			}
			_, status := a.AccountService.Current()
			writeSummary(os.Stdout, snap, status, unread, *locale)
		case n, ok := <-signals:
			if !ok {
				return subcommands.ExitSuccess
			}
			if n != unread {
				fmt.Printf("Unread signals: %d\n", n)
			}
			unread = n
		}
	}
}
