// Package report delivers sweep results to CSV series, consoles, JSONL logs,
// GreptimeDB and the terminal dashboard.
package report

import (
	"strconv"
	"time"

	"meshsweep/internal/flow"
	"meshsweep/internal/metrics"
	"meshsweep/internal/scenario"
)

// ResultWriter receives one result per sweep point, in sweep order.
type ResultWriter interface {
	WriteResult(metrics.ScenarioResult) error
}

// ScenarioWriter is implemented by writers that show the generated layout
// before a scenario runs.
type ScenarioWriter interface {
	WriteScenario(scenario.Scenario) error
}

// FlowWriter is implemented by writers that keep the raw flow table.
type FlowWriter interface {
	WriteFlows(nodes int, t flow.Table) error
}

// SummaryWriter is implemented by writers that report the total elapsed time
// once the sweep is over.
type SummaryWriter interface {
	WriteSummary(total time.Duration) error
}

// formatFloat prints a value with six significant digits and no trailing
// zeros, so 1150 stays "1150" and 0.1 stays "0.1".
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}
