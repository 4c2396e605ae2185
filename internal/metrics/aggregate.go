// Package metrics reduces a scenario's flow table to the averages written per sweep point.
package metrics

import (
	"time"

	"github.com/montanaflynn/stats"

	"meshsweep/internal/flow"
)

// ScenarioResult is the reduced outcome of one sweep point.
type ScenarioResult struct {
	Nodes             int           `json:"nodes"`
	TotalFlows        int           `json:"total_flows"`
	ValidFlows        int           `json:"valid_flows"`
	ZeroDurationFlows int           `json:"zero_duration_flows,omitempty"`
	AvgThroughputKbps float64       `json:"avg_throughput_kbps"`
	AvgDelayMs        float64       `json:"avg_delay_ms"`
	AvgLossRatio      float64       `json:"avg_loss_ratio"`
	DelayP50Ms        float64       `json:"delay_p50_ms"`
	DelayP95Ms        float64       `json:"delay_p95_ms"`
	Degenerate        bool          `json:"degenerate"`
	Samples           []FlowStats   `json:"samples,omitempty"`
	WallClock         time.Duration `json:"wall_clock_ns,omitempty"`
}

// FlowStats are the derived figures of one flow that delivered packets.
type FlowStats struct {
	Record         flow.Record `json:"record"`
	ThroughputKbps float64     `json:"throughput_kbps"`
	DelayMs        float64     `json:"delay_ms"`
	LossRatio      float64     `json:"loss_ratio"`
}

// Degenerate returns the result emitted when no flow delivered a packet.
func Degenerate(nodes, totalFlows int) ScenarioResult {
	return ScenarioResult{
		Nodes:        nodes,
		TotalFlows:   totalFlows,
		AvgLossRatio: 1,
		Degenerate:   true,
	}
}

// LossRatio is (tx - rx) / tx. It is negative when the driver reports more
// received than transmitted packets; the value is not clamped.
func LossRatio(r flow.Record) float64 {
	return (float64(r.TxPackets) - float64(r.RxPackets)) / float64(r.TxPackets)
}

// ThroughputKbps is rxBytes*8 / (lastRx - firstTx) / 1024. A flow whose last
// reception does not come after its first transmission yields 0 and ok=false.
func ThroughputKbps(r flow.Record) (kbps float64, ok bool) {
	d := r.Duration().Seconds()
	if d <= 0 {
		return 0, false
	}
	return float64(r.RxBytes) * 8.0 / d / 1024, true
}

// DelayMs is the mean one-way delay of the received packets in milliseconds.
func DelayMs(r flow.Record) float64 {
	return r.DelaySum.Seconds() / float64(r.RxPackets) * 1000
}

// Aggregate folds the flow table of one scenario into its result.
//
// Loss is averaged over every flow in the table while throughput and delay
// are averaged over the flows that received at least one packet. A table with
// no such flow, including an empty table, yields the degenerate result.
// Flows whose id is a multiple of nodes are kept as samples.
func Aggregate(nodes int, table flow.Table) ScenarioResult {
	var (
		totalLoss   float64
		throughputs []float64
		delays      []float64
		zeroSpan    int
		samples     []FlowStats
	)
	for _, r := range table.Records() {
		if r.TxPackets == 0 {
			continue
		}
		loss := LossRatio(r)
		totalLoss += loss
		if r.RxPackets == 0 {
			continue
		}
		tput, ok := ThroughputKbps(r)
		if !ok {
			zeroSpan++
		}
		delay := DelayMs(r)
		throughputs = append(throughputs, tput)
		delays = append(delays, delay)
		if nodes > 0 && int(r.ID)%nodes == 0 {
			samples = append(samples, FlowStats{Record: r, ThroughputKbps: tput, DelayMs: delay, LossRatio: loss})
		}
	}

	totalFlows := len(table)
	if len(throughputs) == 0 {
		return Degenerate(nodes, totalFlows)
	}

	res := ScenarioResult{
		Nodes:             nodes,
		TotalFlows:        totalFlows,
		ValidFlows:        len(throughputs),
		ZeroDurationFlows: zeroSpan,
		AvgThroughputKbps: mean(throughputs),
		AvgDelayMs:        mean(delays),
		AvgLossRatio:      totalLoss / float64(totalFlows),
		Samples:           samples,
	}
	res.DelayP50Ms = percentile(delays, 50)
	res.DelayP95Ms = percentile(delays, 95)
	return res
}

func percentile(xs []float64, p float64) float64 {
	v, err := stats.Percentile(xs, p)
	if err != nil {
		return 0
	}
	return v
}

// mean is sum/len; the callers never pass an empty slice.
func mean(xs []float64) float64 {
	sum, _ := stats.Sum(xs)
	return sum / float64(len(xs))
}
