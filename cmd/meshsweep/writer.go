package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"meshsweep/internal/report"
)

// consoleMode selects what is printed while the sweep runs.
type consoleMode int

const (
	consoleText consoleMode = iota
	consoleJSON
	consoleTUI
	consoleNone
)

// writerOptions collects everything newWriters needs from flags and config.
type writerOptions struct {
	outputDir  string
	suffix     string
	console    consoleMode
	color      bool
	flowLog    string
	resultsLog string
	// greptimeEndpoint enables the GreptimeDB sink when not empty.
	greptimeEndpoint string
	greptimeDatabase string
	title            string
	planned          []int
}

// stdoutIsTerminal reports whether colours and the TUI can be used.
func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// newWriters sets up the CSV series plus the console, log and database sinks
// selected by opts. Closing the returned writer closes every sink.
func newWriters(opts writerOptions, runID string, log logrus.FieldLogger) (*report.MultiWriter, error) {
	mw := report.NewMultiWriter()
	fail := func(err error) (*report.MultiWriter, error) {
		_ = mw.Close()
		return nil, err
	}

	csv, err := report.NewCSVWriter(opts.outputDir, opts.suffix)
	if err != nil {
		return fail(err)
	}
	mw.Add(csv)

	switch opts.console {
	case consoleText:
		mw.Add(report.NewStdoutWriter(opts.color))
	case consoleJSON:
		mw.Add(report.NewJSONStdoutWriter())
	case consoleTUI:
		mw.Add(report.NewTUIWriter(opts.title, opts.planned))
	}

	if opts.flowLog != "" || opts.resultsLog != "" {
		fw, err := report.NewFileWriter(opts.flowLog, opts.resultsLog, runID)
		if err != nil {
			return fail(err)
		}
		mw.Add(fw)
	}

	if opts.greptimeEndpoint != "" {
		gw, err := report.NewGreptimeDBWriter(opts.greptimeEndpoint, opts.greptimeDatabase, runID)
		if err != nil {
			return fail(err)
		}
		log.WithField("endpoint", opts.greptimeEndpoint).Info("writing results to GreptimeDB")
		mw.Add(gw)
	}
	return mw, nil
}
