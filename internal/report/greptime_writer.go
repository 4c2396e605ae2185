package report

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
	"github.com/sirupsen/logrus"

	"meshsweep/internal/flow"
	"meshsweep/internal/metrics"
)

const (
	defaultGreptimePort = 4001
	resultsTableName    = "sweep_results"
	flowsTableName      = "flow_stats"
)

// greptimeClient is the subset of the ingester client used here.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter stores results and flow tables in GreptimeDB. Every row is
// tagged with the run id so several sweeps can share the tables.
type GreptimeDBWriter struct {
	client       greptimeClient
	runID        string
	resultsTable string
	flowsTable   string
	now          func() time.Time
	log          logrus.FieldLogger
}

// NewGreptimeDBWriter connects to the gRPC endpoint ("host" or "host:port").
func NewGreptimeDBWriter(endpoint, database, runID string) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptimedb client: %w", err)
	}
	return &GreptimeDBWriter{
		client:       client,
		runID:        runID,
		resultsTable: resultsTableName,
		flowsTable:   flowsTableName,
		now:          time.Now,
		log:          logrus.WithField("sink", "greptimedb"),
	}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// no port given
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid greptimedb port %q: %w", portStr, err)
	}
	return host, port, nil
}

func (w *GreptimeDBWriter) timestamp() time.Time {
	if w.now == nil {
		return time.Now()
	}
	return w.now()
}

func (w *GreptimeDBWriter) logger() logrus.FieldLogger {
	if w.log == nil {
		return logrus.StandardLogger()
	}
	return w.log
}

func (w *GreptimeDBWriter) write(name string, tbl *table.Table, rows int) error {
	resp, err := w.client.Write(context.Background(), tbl)
	if err != nil {
		w.logger().WithError(err).Error("write failed")
		return err
	}
	w.logger().WithFields(logrus.Fields{
		"table":    name,
		"rows":     rows,
		"affected": resp.GetAffectedRows().GetValue(),
	}).Debug("wrote rows")
	return nil
}

// WriteResult inserts one row into sweep_results.
func (w *GreptimeDBWriter) WriteResult(r metrics.ScenarioResult) error {
	tbl, err := table.New(w.resultsTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddFieldColumn("nodes", types.INT64)
	tbl.AddFieldColumn("total_flows", types.INT64)
	tbl.AddFieldColumn("valid_flows", types.INT64)
	tbl.AddFieldColumn("avg_throughput_kbps", types.FLOAT64)
	tbl.AddFieldColumn("avg_delay_ms", types.FLOAT64)
	tbl.AddFieldColumn("avg_loss_ratio", types.FLOAT64)
	tbl.AddFieldColumn("delay_p50_ms", types.FLOAT64)
	tbl.AddFieldColumn("delay_p95_ms", types.FLOAT64)
	tbl.AddFieldColumn("degenerate", types.BOOLEAN)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	err = tbl.AddRow(
		w.runID,
		int64(r.Nodes),
		int64(r.TotalFlows),
		int64(r.ValidFlows),
		r.AvgThroughputKbps,
		r.AvgDelayMs,
		r.AvgLossRatio,
		r.DelayP50Ms,
		r.DelayP95Ms,
		r.Degenerate,
		w.timestamp(),
	)
	if err != nil {
		return err
	}
	return w.write(w.resultsTable, tbl, 1)
}

// WriteFlows inserts the flow table of one scenario into flow_stats.
func (w *GreptimeDBWriter) WriteFlows(nodes int, t flow.Table) error {
	if len(t) == 0 {
		return nil
	}
	tbl, err := table.New(w.flowsTable)
	if err != nil {
		return err
	}
	tbl.AddTagColumn("run_id", types.STRING)
	tbl.AddTagColumn("src", types.STRING)
	tbl.AddTagColumn("dst", types.STRING)
	tbl.AddFieldColumn("nodes", types.INT64)
	tbl.AddFieldColumn("flow_id", types.INT64)
	tbl.AddFieldColumn("tx_packets", types.INT64)
	tbl.AddFieldColumn("rx_packets", types.INT64)
	tbl.AddFieldColumn("tx_bytes", types.INT64)
	tbl.AddFieldColumn("rx_bytes", types.INT64)
	tbl.AddFieldColumn("delay_sum_ms", types.FLOAT64)
	tbl.AddFieldColumn("first_tx_s", types.FLOAT64)
	tbl.AddFieldColumn("last_rx_s", types.FLOAT64)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	ts := w.timestamp()
	for _, rec := range t.Records() {
		err := tbl.AddRow(
			w.runID,
			rec.Source.String(),
			rec.Destination.String(),
			int64(nodes),
			int64(rec.ID),
			int64(rec.TxPackets),
			int64(rec.RxPackets),
			int64(rec.TxBytes),
			int64(rec.RxBytes),
			float64(rec.DelaySum)/float64(time.Millisecond),
			rec.TimeFirstTxPacket.Seconds(),
			rec.TimeLastRxPacket.Seconds(),
			ts,
		)
		if err != nil {
			return err
		}
	}
	return w.write(w.flowsTable, tbl, len(t))
}
