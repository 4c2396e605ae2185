package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"meshsweep/internal/admin"
	"meshsweep/internal/config"
	"meshsweep/internal/engine"
	"meshsweep/internal/logging"
	"meshsweep/internal/sweep"
)

var (
	runConfigPath string
	runSchemaPath string
	runPreset     string
	runOutputDir  string
	runJSON       bool
	runQuiet      bool
	runTUI        bool
	runPrintOnly  bool
	runFlowLog    string
	runResultsLog string
	runAdminAddr  string
	runHold       bool
	runOnError    string
	runSeed       int64
	runMaxNodes   int
	runDriver     string
	runReplayFile string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the node-count sweep",
	Long: "run builds one grid scenario per node count, runs it through the configured driver and " +
		"appends the averaged throughput, delay and loss to three CSV series.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRunConfig(cmd)
		if err != nil {
			return err
		}
		return runSweep(cmd.Context(), cfg, consoleFor(runJSON, runQuiet, runTUI))
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runConfigPath, "config", "", "Path to sweep configuration YAML (built-in preset when empty)")
	f.StringVar(&runSchemaPath, "schema", "", "Path to CUE schema file (built-in schema when empty)")
	f.StringVar(&runPreset, "preset", "", "Built-in preset to sweep (see the presets command)")
	f.StringVar(&runOutputDir, "output-dir", "", "Directory for the CSV series")
	f.BoolVar(&runJSON, "json", false, "Print results as JSON lines instead of text")
	f.BoolVar(&runQuiet, "quiet", false, "Print nothing to STDOUT")
	f.BoolVar(&runTUI, "tui", false, "Show an interactive dashboard while the sweep runs")
	f.BoolVar(&runPrintOnly, "print-only", false, "Do not write to GreptimeDB even if an endpoint is configured")
	f.StringVar(&runFlowLog, "flow-log", "", "Path to export per-scenario flow tables (JSONL)")
	f.StringVar(&runResultsLog, "results-log", "", "Path to export scenario results (JSONL)")
	f.StringVar(&runAdminAddr, "admin-addr", "", "Serve sweep status over HTTP on this address (e.g. :8080)")
	f.BoolVar(&runHold, "hold", false, "Keep the status server up after the sweep until interrupted")
	f.StringVar(&runOnError, "on-error", "", "Driver failure policy: abort or skip")
	f.Int64Var(&runSeed, "seed", 0, "Seed of the synthetic driver")
	f.IntVar(&runMaxNodes, "max-nodes", 0, "Largest node count to sweep")
	f.StringVar(&runDriver, "driver", "", "Simulation driver: synthetic or replay")
	f.StringVar(&runReplayFile, "replay-file", "", "Flow log served by the replay driver")
}

// loadRunConfig loads the configuration and applies explicitly set flags on top.
func loadRunConfig(cmd *cobra.Command) (*config.SweepConfig, error) {
	cfg, err := config.Load(runConfigPath, runSchemaPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("preset") {
		base, err := config.FromPreset(runPreset)
		if err != nil {
			return nil, err
		}
		if cfg.Output.SeriesSuffix == cfg.PresetName {
			cfg.Output.SeriesSuffix = runPreset
		}
		cfg.PresetName = runPreset
		cfg.Plan = base.Plan
	}
	if flags.Changed("output-dir") {
		cfg.Output.Dir = runOutputDir
	}
	if flags.Changed("flow-log") {
		cfg.Output.FlowLog = runFlowLog
	}
	if flags.Changed("results-log") {
		cfg.Output.ResultsLog = runResultsLog
	}
	if flags.Changed("on-error") {
		cfg.OnDriverError = runOnError
	}
	if flags.Changed("seed") {
		cfg.Engine.Seed = runSeed
	}
	if flags.Changed("max-nodes") {
		cfg.Plan.Sweep.MaxNodes = runMaxNodes
	}
	if flags.Changed("replay-file") {
		cfg.Engine.ReplayFile = runReplayFile
		cfg.Engine.Driver = engine.DriverReplay
	}
	if flags.Changed("driver") {
		cfg.Engine.Driver = runDriver
	}
	if runPrintOnly {
		cfg.Greptime.Endpoint = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// consoleFor picks the console output. The TUI needs a terminal and falls
// back to text without one.
func consoleFor(jsonOut, quiet, tui bool) consoleMode {
	switch {
	case quiet:
		return consoleNone
	case tui && stdoutIsTerminal():
		return consoleTUI
	case jsonOut:
		return consoleJSON
	default:
		return consoleText
	}
}

func newDriver(cfg *config.SweepConfig) (engine.Driver, error) {
	switch cfg.Engine.Driver {
	case engine.DriverSynthetic:
		return engine.NewSynthetic(cfg.Engine.Synthetic()), nil
	case engine.DriverReplay:
		return engine.OpenReplay(cfg.Engine.ReplayFile)
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.Engine.Driver)
	}
}

func runSweep(ctx context.Context, cfg *config.SweepConfig, console consoleMode) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := logging.FromContext(ctx)

	driver, err := newDriver(cfg)
	if err != nil {
		return err
	}
	if console == consoleTUI && logger != nil {
		// the alt screen owns the terminal
		logger.SetOutput(io.Discard)
	}

	runID := uuid.NewString()
	mw, err := newWriters(writerOptions{
		outputDir:        cfg.Output.Dir,
		suffix:           cfg.Output.SeriesSuffix,
		console:          console,
		color:            stdoutIsTerminal(),
		flowLog:          cfg.Output.FlowLog,
		resultsLog:       cfg.Output.ResultsLog,
		greptimeEndpoint: cfg.Greptime.Endpoint,
		greptimeDatabase: cfg.Greptime.Database,
		title:            fmt.Sprintf("meshsweep %s (%s driver)", cfg.PresetName, cfg.Engine.Driver),
		planned:          cfg.Plan.NodeCounts(),
	}, runID, log)
	if err != nil {
		return err
	}

	runner := sweep.NewRunner(driver, mw, sweep.Options{
		Preset:     cfg.Plan,
		SkipFailed: cfg.OnDriverError == config.OnErrorSkip,
		RunID:      runID,
	})
	if runAdminAddr != "" {
		startAdmin(ctx, runner, log)
	}

	_, runErr := runner.Run(ctx)
	closeErr := mw.Close()
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return closeErr
	}
	if runAdminAddr != "" && runHold {
		log.Info("sweep finished, serving status until interrupted")
		<-ctx.Done()
	}
	return nil
}

func startAdmin(ctx context.Context, runner *sweep.Runner, log logrus.FieldLogger) {
	srv := admin.NewServer(runner, log)
	go func() {
		if err := srv.Start(ctx, runAdminAddr); err != nil {
			log.WithError(err).Error("admin server failed")
		}
	}()
}
