package main

import (
	"context"
	"flag"
	"fmt"
	"iter"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/bobmcallan/folio/internal/models"
	"github.com/bobmcallan/folio/internal/services/timeseries"
)

type chartCmd struct {
	timeframe string
	symbol    string
	output    string
	table     bool
}

func (*chartCmd) Name() string     { return "chart" }
func (*chartCmd) Synopsis() string { return "render portfolio or symbol value over time" }
func (*chartCmd) Usage() string {
	return `folio chart [-tf 1D|1W|1M|3M|1Y|5Y] [-symbol <symbol>] [-o <file.png>] [-table]

  Resamples valuation history into the timeframe's buckets and writes a PNG
  chart, or prints the points with -table.
`
}

func (c *chartCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.timeframe, "tf", "1M", "Timeframe")
	f.StringVar(&c.symbol, "symbol", "", "Chart one holding instead of the whole portfolio")
	f.StringVar(&c.output, "o", "", "Output PNG path. Defaults to folio-<symbol|portfolio>-<tf>.png")
	f.BoolVar(&c.table, "table", false, "Print the points instead of rendering a chart")
}

func (c *chartCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	tf, err := models.ParseTimeframe(c.timeframe)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	a, err := openApp(ctx)
	if err != nil {
		return fail("%v", err)
	}
	defer a.Close()

	var series iter.Seq[models.TimeSeriesPoint]
	title := "Portfolio value"
	name := "portfolio"
	if c.symbol != "" {
		name = models.NormalizeSymbol(c.symbol)
		title = name + " position value"
		series, err = a.TimeSeriesService.SymbolSeries(ctx, c.symbol, tf)
	} else {
		series, err = a.TimeSeriesService.PortfolioSeries(ctx, tf)
	}
	if err != nil {
		return fail("%v", err)
	}

	if c.table {
		writeSeries(os.Stdout, series, *locale)
		return subcommands.ExitSuccess
	}

	out := c.output
	if out == "" {
		out = fmt.Sprintf("folio-%s-%s.png", strings.ToLower(name), strings.ToLower(string(tf)))
	}
	file, err := os.Create(out)
	if err != nil {
		return fail("%v", err)
	}
	defer file.Close()

	if err := timeseries.RenderChart(file, fmt.Sprintf("%s (%s)", title, tf), tf, series); err != nil {
		return fail("%v", err)
	}
	fmt.Printf("Wrote %s\n", out)
	return subcommands.ExitSuccess
}
