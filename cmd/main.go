// Package cmd implements the ctax subcommands.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/etnz/cryptotax"
	"github.com/google/subcommands"
)

// Register the subcommands.
func Register(c *subcommands.Commander) {
	c.Register(&reportCmd{}, "accounting")
	c.Register(&exportCmd{}, "accounting")
}

var settingsFile = flag.String("settings-file", "settings.yaml", "Path to the accounting settings file (YAML format)")
var historyFile = flag.String("history-file", "history.json", "Path to the action history file (JSON format)")
var ratesFile = flag.String("rates-file", "rates.csv", "Path to the historical rates file (CSV format)")

// OpenSettings loads the settings file, falling back to defaults when
// it does not exist.
func OpenSettings() (cryptotax.Settings, error) {
	s, err := cryptotax.LoadSettings(*settingsFile)
	if errors.Is(err, fs.ErrNotExist) {
		log.Println("warning, settings file does not exist, using defaults instead")
		return cryptotax.DefaultSettings(), nil
	}
	return s, err
}

// OpenHistory loads the action history file.
func OpenHistory() (cryptotax.History, error) {
	f, err := os.Open(*historyFile)
	if err != nil {
		return cryptotax.History{}, fmt.Errorf("cannot open history file %q: %w", *historyFile, err)
	}
	defer f.Close()
	return cryptotax.DecodeHistory(f)
}

// parseTimestamp accepts unix seconds or a calendar date.
func parseTimestamp(s string) (cryptotax.Timestamp, error) {
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return cryptotax.Timestamp(unix), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, fmt.Errorf("%q is neither unix seconds nor a YYYY-MM-DD date", s)
	}
	return cryptotax.TS(t), nil
}

// parseWindow resolves the -s and -d flags into a reporting window.
// An empty start means "since the beginning", an empty end means now.
func parseWindow(start, end string) (cryptotax.Window, error) {
	var w cryptotax.Window
	if start != "" {
		ts, err := parseTimestamp(start)
		if err != nil {
			return w, fmt.Errorf("start: %w", err)
		}
		w.Start = ts
	}
	if end == "" {
		w.End = cryptotax.TS(time.Now())
		return w, nil
	}
	ts, err := parseTimestamp(end)
	if err != nil {
		return w, fmt.Errorf("end: %w", err)
	}
	w.End = ts
	return w, nil
}

// run wires an accountant from the shared flags and processes the
// history for the window. Shared by the report and export subcommands.
func run(ctx context.Context, start, end string) (*cryptotax.Report, subcommands.ExitStatus) {
	window, err := parseWindow(start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing reporting window: %v\n", err)
		return nil, subcommands.ExitUsageError
	}

	settings, err := OpenSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading settings %q: %v\n", *settingsFile, err)
		return nil, subcommands.ExitFailure
	}
	history, err := OpenHistory()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading history: %v\n", err)
		return nil, subcommands.ExitFailure
	}
	var oracle cryptotax.RateOracle
	oracle, err = cryptotax.LoadRates(*ratesFile)
	if errors.Is(err, fs.ErrNotExist) {
		log.Println("warning, rates file does not exist, querying the price API instead")
		oracle, err = cryptotax.NewPriceProvider(), nil
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading rates %q: %v\n", *ratesFile, err)
		return nil, subcommands.ExitFailure
	}

	accountant, err := cryptotax.NewAccountant(settings, oracle, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in settings: %v\n", err)
		return nil, subcommands.ExitFailure
	}
	accountant.OnProgress(func(processed int) {
		log.Printf("processed %d actions of %d", processed, history.Len())
	})

	report, err := accountant.ProcessHistory(ctx, window, history)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error processing history: %v\n", err)
		return nil, subcommands.ExitFailure
	}
	return report, subcommands.ExitSuccess
}
