package main

import (
	"errors"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"meshsweep/internal/config"
	"meshsweep/internal/engine"
	"meshsweep/internal/logging"
	"meshsweep/internal/sweep"
)

var (
	replayInput     string
	replayOutputDir string
	replaySuffix    string
	replayJSON      bool
	replayPrintOnly bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Aggregate a recorded flow log again",
	Long: "replay reads the flow tables of a JSONL flow log, aggregates every recorded node count " +
		"and writes the CSV series, optionally storing the results in GreptimeDB.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logging.FromContext(ctx).WithField("input", replayInput)

		rp, err := engine.OpenReplay(replayInput)
		if err != nil {
			return err
		}
		counts := rp.NodeCounts()
		if len(counts) == 0 {
			return errors.New("flow log holds no snapshots")
		}

		console := consoleText
		if replayJSON {
			console = consoleJSON
		}
		endpoint := os.Getenv("GREPTIMEDB_ENDPOINT")
		if replayPrintOnly {
			endpoint = ""
		}
		database := os.Getenv("GREPTIMEDB_DATABASE")
		if database == "" {
			database = "public"
		}

		runID := uuid.NewString()
		mw, err := newWriters(writerOptions{
			outputDir:        replayOutputDir,
			suffix:           replaySuffix,
			console:          console,
			color:            stdoutIsTerminal(),
			greptimeEndpoint: endpoint,
			greptimeDatabase: database,
		}, runID, log)
		if err != nil {
			return err
		}

		// positions printed per scenario come from the default grid
		base := config.Defaults()
		runner := sweep.NewRunner(rp, mw, sweep.Options{
			Preset:     base.Plan,
			NodeCounts: counts,
			RunID:      runID,
		})
		log.WithField("nodes", counts).Info("replaying flow log")
		_, runErr := runner.Run(ctx)
		closeErr := mw.Close()
		if runErr != nil {
			return runErr
		}
		return closeErr
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to flow log (JSONL)")
	replayCmd.Flags().StringVar(&replayOutputDir, "output-dir", ".", "Directory for the CSV series")
	replayCmd.Flags().StringVar(&replaySuffix, "suffix", "replay", "Suffix of the CSV series file names")
	replayCmd.Flags().BoolVar(&replayJSON, "json", false, "Print results as JSON lines instead of text")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Do not write to GreptimeDB even if GREPTIMEDB_ENDPOINT is set")
	replayCmd.MarkFlagRequired("input")
}
