package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"

	"github.com/bobmcallan/folio/internal/app"
)

var (
	configPath = flag.String("config", "", "Path to folio.toml. Defaults to $FOLIO_CONFIG, then folio.toml next to the binary")
	locale     = flag.String("locale", "en-US", "Locale used to display amounts (en-US, en-GB, en-AU, de-DE, fr-FR)")
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&versionCmd{}, "")

	commander.Register(&summaryCmd{}, "account")
	commander.Register(&holdingsCmd{}, "account")
	commander.Register(&ledgerCmd{}, "account")
	commander.Register(&chartCmd{}, "account")
	commander.Register(&watchCmd{}, "account")

	commander.Register(&tradeCmd{side: "buy"}, "trading")
	commander.Register(&tradeCmd{side: "sell"}, "trading")
	commander.Register(&cashCmd{kind: "deposit"}, "trading")
	commander.Register(&cashCmd{kind: "withdraw"}, "trading")
	commander.Register(&reconcileCmd{}, "trading")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := commander.Execute(ctx)
	stop()
	os.Exit(int(status))
}

// openApp initializes the application and publishes the last stored snapshot.
func openApp(ctx context.Context) (*app.App, error) {
	a, err := app.NewApp(*configPath)
	if err != nil {
		return nil, err
	}
	a.Restore(ctx)
	return a, nil
}

func fail(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	return subcommands.ExitFailure
}
