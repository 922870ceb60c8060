package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/etnz/cryptotax/renderer"
	"github.com/google/subcommands"
)

// exportCmd holds the flags for the 'export' subcommand.
type exportCmd struct {
	start  string
	end    string
	output string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export all taxable events as CSV" }
func (*exportCmd) Usage() string {
	return `ctax export [-s <start>] [-d <end>] [-o <file>]

  Processes the whole action history and exports every event of the
  reporting window as CSV, one row per buy, sell, settlement, fee,
  gas cost, loan or ledger action.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.start, "s", "", "Start of the reporting window (unix seconds or YYYY-MM-DD). Empty means since the beginning.")
	f.StringVar(&c.end, "d", "", "End of the reporting window (unix seconds or YYYY-MM-DD). Empty means now.")
	f.StringVar(&c.output, "o", "", "File to write to. Empty means stdout.")
}

func (c *exportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	report, status := run(ctx, c.start, c.end)
	if status != subcommands.ExitSuccess {
		return status
	}

	out := os.Stdout
	if c.output != "" {
		f, err := os.Create(c.output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %q: %v\n", c.output, err)
			return subcommands.ExitFailure
		}
		defer f.Close()
		out = f
	}

	if err := renderer.EventsCSV(out, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error exporting events: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
