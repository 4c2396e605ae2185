package main

import (
	"github.com/spf13/cobra"

	"meshsweep/internal/dashboard"
	"meshsweep/internal/logging"
)

var (
	dashboardOut   string
	dashboardTitle string
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Generate the Grafana dashboard for GreptimeDB results",
	Long:  "dashboard renders sweep-dashboard.json. GREPTIMEDB_DATASOURCE_UID must name the Grafana datasource.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := dashboard.DefaultParams()
		if dashboardTitle != "" {
			p.Title = dashboardTitle
		}
		if err := dashboard.Render(dashboardOut, p); err != nil {
			return err
		}
		logging.FromContext(cmd.Context()).WithField("dir", dashboardOut).Info("dashboard written")
		return nil
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Output directory")
	dashboardCmd.Flags().StringVar(&dashboardTitle, "title", "", "Dashboard title")
}
