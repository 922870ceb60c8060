package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/etnz/cryptotax/renderer"
	"github.com/google/subcommands"
)

// reportCmd holds the flags for the 'report' subcommand.
type reportCmd struct {
	start  string
	end    string
	format string
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "profit/loss report over a reporting window" }
func (*reportCmd) Usage() string {
	return `ctax report [-s <start>] [-d <end>] [-format <format>]

  Processes the whole action history and prints the profit/loss
  overview for the reporting window.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.start, "s", "", "Start of the reporting window (unix seconds or YYYY-MM-DD). Empty means since the beginning.")
	f.StringVar(&c.end, "d", "", "End of the reporting window (unix seconds or YYYY-MM-DD). Empty means now.")
	f.StringVar(&c.format, "format", "markdown", "Output format (markdown, term, json)")
}

func (c *reportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	report, status := run(ctx, c.start, c.end)
	if status != subcommands.ExitSuccess {
		return status
	}

	switch c.format {
	case "markdown":
		fmt.Print(renderer.OverviewMarkdown(report))
	case "term":
		out, err := glamour.Render(renderer.OverviewMarkdown(report), "auto")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error rendering report: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Print(out)
	case "json":
		if err := renderer.ReportJSON(os.Stdout, report); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
			return subcommands.ExitFailure
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown format %q\n", c.format)
		return subcommands.ExitUsageError
	}
	return subcommands.ExitSuccess
}
