// Writer implementation printing sweep diagnostics to STDOUT
package report

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"

	"meshsweep/internal/metrics"
	"meshsweep/internal/scenario"
)

var (
	summaryStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	flowStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// StdoutWriter prints node placement, sampled flow statistics and the
// per-scenario summary block in plain text. With colorize set, headings are
// styled for a terminal.
type StdoutWriter struct {
	out      io.Writer
	colorize bool
}

// NewStdoutWriter creates a StdoutWriter writing to os.Stdout.
func NewStdoutWriter(colorize bool) *StdoutWriter {
	return &StdoutWriter{out: os.Stdout, colorize: colorize}
}

func (w *StdoutWriter) style(s lipgloss.Style, text string) string {
	if !w.colorize {
		return text
	}
	return s.Render(text)
}

// WriteScenario prints the position of every node.
func (w *StdoutWriter) WriteScenario(sc scenario.Scenario) error {
	for i, p := range sc.Positions {
		if _, err := fmt.Fprintf(w.out, "Node %d position: x=%s, y=%s\n", i, formatFloat(p.X), formatFloat(p.Y)); err != nil {
			return err
		}
	}
	return nil
}

// WriteResult prints the sampled flows followed by the summary block.
func (w *StdoutWriter) WriteResult(r metrics.ScenarioResult) error {
	for _, s := range r.Samples {
		rec := s.Record
		head := fmt.Sprintf("Nodes = %d, Flow %d (%s -> %s)", r.Nodes, rec.ID, rec.Source, rec.Destination)
		fmt.Fprintln(w.out, w.style(flowStyle, head))
		fmt.Fprintf(w.out, "  Tx Packets: %d\n", rec.TxPackets)
		fmt.Fprintf(w.out, "  Rx Packets: %d\n", rec.RxPackets)
		fmt.Fprintf(w.out, "  Throughput: %s Kbps\n", formatFloat(s.ThroughputKbps))
		fmt.Fprintf(w.out, "  Mean Delay: %s ms\n", formatFloat(s.DelayMs))
		fmt.Fprintf(w.out, "  Packet Loss Ratio: %s\n\n", formatFloat(s.LossRatio))
	}

	fmt.Fprintln(w.out, w.style(summaryStyle, fmt.Sprintf("=== SUMMARY FOR %d NODES ===", r.Nodes)))
	if r.Degenerate {
		fmt.Fprintln(w.out, w.style(warnStyle, "No valid flows detected"))
	} else {
		fmt.Fprintf(w.out, "Total Flows: %d\n", r.TotalFlows)
		fmt.Fprintf(w.out, "Valid Flows (with rx packets): %d\n", r.ValidFlows)
		fmt.Fprintf(w.out, "Average Throughput: %s Kbps\n", formatFloat(r.AvgThroughputKbps))
		fmt.Fprintf(w.out, "Average Delay: %s ms\n", formatFloat(r.AvgDelayMs))
		fmt.Fprintf(w.out, "Average Packet Loss Ratio: %s\n", formatFloat(r.AvgLossRatio))
	}
	if r.WallClock > 0 {
		fmt.Fprintln(w.out, w.style(mutedStyle, fmt.Sprintf("Elapsed: %s", r.WallClock.Round(time.Millisecond))))
	}
	_, err := fmt.Fprintln(w.out)
	return err
}

// WriteSummary prints the wall-clock time of the whole sweep.
func (w *StdoutWriter) WriteSummary(total time.Duration) error {
	_, err := fmt.Fprintln(w.out, w.style(summaryStyle, fmt.Sprintf("Total elapsed: %s", total.Round(time.Millisecond))))
	return err
}
