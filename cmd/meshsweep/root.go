package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"meshsweep/internal/logging"
)

var (
	logLevel string
	logger   *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "meshsweep",
	Short: "Ad-hoc wireless node-count sweep",
	Long: "meshsweep runs a full-mesh UDP workload over a growing grid of ad-hoc wireless nodes " +
		"and records average throughput, delay and packet loss per node count.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logging.New(logLevel)
		cmd.SetContext(logging.NewContext(cmd.Context(), logger))
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(presetsCmd)
}
