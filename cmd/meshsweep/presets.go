package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"meshsweep/internal/scenario"
)

var presetShow string

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List the built-in sweeps",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		presets := scenario.BuiltIn()

		if presetShow != "" {
			p, ok := presets[presetShow]
			if !ok {
				return fmt.Errorf("unknown preset %q", presetShow)
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(p); err != nil {
				return err
			}
			return enc.Close()
		}

		names := make([]string, 0, len(presets))
		for name := range presets {
			names = append(names, name)
		}
		sort.Strings(names)

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tNODES\tDISTANCE\tDESCRIPTION")
		for _, name := range names {
			p := presets[name]
			marker := ""
			if name == scenario.DefaultPreset {
				marker = " (default)"
			}
			fmt.Fprintf(tw, "%s%s\t%v\t%gm\t%s\n", name, marker, p.NodeCounts(), p.Grid.DistanceM, p.Description)
		}
		return tw.Flush()
	},
}

func init() {
	presetsCmd.Flags().StringVar(&presetShow, "show", "", "Print one preset as YAML")
}
