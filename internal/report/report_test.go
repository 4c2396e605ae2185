package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshsweep/internal/engine"
	"meshsweep/internal/flow"
	"meshsweep/internal/metrics"
	"meshsweep/internal/scenario"
)

func sampleTable() flow.Table {
	return flow.Table{
		1: {
			ID:                1,
			Source:            netip.MustParseAddr("10.1.1.1"),
			Destination:       netip.MustParseAddr("10.1.1.2"),
			TxPackets:         10,
			RxPackets:         10,
			TxBytes:           14720,
			RxBytes:           14720,
			DelaySum:          time.Millisecond,
			TimeFirstTxPacket: 2 * time.Second,
			TimeLastRxPacket:  2100 * time.Millisecond,
		},
		2: {
			ID:                2,
			Source:            netip.MustParseAddr("10.1.1.2"),
			Destination:       netip.MustParseAddr("10.1.1.1"),
			TxPackets:         10,
			RxPackets:         10,
			TxBytes:           14720,
			RxBytes:           14720,
			DelaySum:          time.Millisecond,
			TimeFirstTxPacket: 2 * time.Second,
			TimeLastRxPacket:  2100 * time.Millisecond,
		},
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestCSVWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w, err := NewCSVWriter(dir, "high-contention")
	require.NoError(t, err)

	require.NoError(t, w.WriteResult(metrics.Aggregate(2, sampleTable())))
	require.NoError(t, w.WriteResult(metrics.Degenerate(4, 12)))
	require.NoError(t, w.Close())

	paths := SeriesPaths(dir, "high-contention")
	assert.Equal(t, filepath.Join(dir, "throughput-vs-nodes-high-contention.csv"), paths[0])
	assert.Equal(t, "Nodes,AvgThroughput(Kbps)\n2,1150\n4,0\n", readFile(t, paths[0]))
	assert.Equal(t, "Nodes,AvgDelay(ms)\n2,0.1\n4,0\n", readFile(t, paths[1]))
	assert.Equal(t, "Nodes,AvgPacketLossRatio\n2,0\n4,1\n", readFile(t, paths[2]))
}

func TestCSVWriterHeaderOnlyWhenNoResults(t *testing.T) {
	dir := t.TempDir()
	w, err := NewCSVWriter(dir, "smoke")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, "Nodes,AvgDelay(ms)\n", readFile(t, SeriesPaths(dir, "smoke")[1]))
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "1150", formatFloat(1150))
	assert.Equal(t, "0.1", formatFloat(0.1))
	assert.Equal(t, "-0.5", formatFloat(-0.5))
	assert.Equal(t, "333.333", formatFloat(1000.0/3))
	assert.Equal(t, "1e+06", formatFloat(1e6))
}

func TestStdoutWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &StdoutWriter{out: buf}

	sc := scenario.New(2, scenario.BuiltIn()["smoke"])
	require.NoError(t, w.WriteScenario(sc))
	assert.Equal(t, "Node 0 position: x=0, y=0\nNode 1 position: x=5, y=0\n", buf.String())

	buf.Reset()
	r := metrics.Aggregate(2, sampleTable())
	r.WallClock = 1500 * time.Millisecond
	require.NoError(t, w.WriteResult(r))
	out := buf.String()
	assert.Contains(t, out, "Nodes = 2, Flow 2 (10.1.1.2 -> 10.1.1.1)\n  Tx Packets: 10\n  Rx Packets: 10\n")
	assert.Contains(t, out, "  Throughput: 1150 Kbps\n  Mean Delay: 0.1 ms\n  Packet Loss Ratio: 0\n\n")
	assert.NotContains(t, out, "Flow 1 ")
	assert.Contains(t, out, "=== SUMMARY FOR 2 NODES ===\nTotal Flows: 2\nValid Flows (with rx packets): 2\n")
	assert.Contains(t, out, "Average Throughput: 1150 Kbps\nAverage Delay: 0.1 ms\nAverage Packet Loss Ratio: 0\n")
	assert.Contains(t, out, "Elapsed: 1.5s")

	buf.Reset()
	require.NoError(t, w.WriteResult(metrics.Degenerate(4, 12)))
	assert.Equal(t, "=== SUMMARY FOR 4 NODES ===\nNo valid flows detected\n\n", buf.String())

	buf.Reset()
	require.NoError(t, w.WriteSummary(2*time.Second))
	assert.Equal(t, "Total elapsed: 2s\n", buf.String())
}

func TestStdoutWriterColorizedKeepsText(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &StdoutWriter{out: buf, colorize: true}
	require.NoError(t, w.WriteResult(metrics.Degenerate(6, 30)))
	assert.Contains(t, buf.String(), "SUMMARY FOR 6 NODES")
	assert.Contains(t, buf.String(), "No valid flows detected")
}

func TestJSONStdoutWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	w := &JSONStdoutWriter{out: buf}
	require.NoError(t, w.WriteResult(metrics.Degenerate(4, 12)))

	var got metrics.ScenarioResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 4, got.Nodes)
	assert.True(t, got.Degenerate)
	assert.Equal(t, 1.0, got.AvgLossRatio)
}

func TestFileWriterFlowLogReplays(t *testing.T) {
	dir := t.TempDir()
	flowPath := filepath.Join(dir, "flows.jsonl")
	resultsPath := filepath.Join(dir, "results.jsonl")

	w, err := NewFileWriter(flowPath, resultsPath, "run-1")
	require.NoError(t, err)
	require.NoError(t, w.WriteFlows(2, sampleTable()))
	require.NoError(t, w.WriteResult(metrics.Aggregate(2, sampleTable())))
	require.NoError(t, w.Close())

	rp, err := engine.OpenReplay(flowPath)
	require.NoError(t, err)
	got, err := rp.Run(context.Background(), scenario.Scenario{NodeCount: 2})
	require.NoError(t, err)
	assert.Equal(t, sampleTable(), got)

	var line struct {
		RunID string `json:"run_id"`
		Nodes int    `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal([]byte(readFile(t, resultsPath)), &line))
	assert.Equal(t, "run-1", line.RunID)
	assert.Equal(t, 2, line.Nodes)
}

func TestFileWriterOptionalLogs(t *testing.T) {
	_, err := NewFileWriter("", "", "run")
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "results.jsonl")
	w, err := NewFileWriter("", path, "run")
	require.NoError(t, err)
	require.NoError(t, w.WriteFlows(2, sampleTable()))
	require.NoError(t, w.Close())
}

type mockGreptimeClient struct {
	tables []*table.Table
}

func (m *mockGreptimeClient) Write(_ context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error) {
	m.tables = append(m.tables, tables...)
	return &gpb.GreptimeResponse{}, nil
}

func TestGreptimeWriterResults(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, runID: "run-1", resultsTable: resultsTableName}

	require.NoError(t, w.WriteResult(metrics.Aggregate(2, sampleTable())))
	require.Len(t, m.tables, 1)

	rows := m.tables[0].GetRows()
	require.Len(t, rows.Rows, 1)
	assert.Equal(t, "run_id", rows.Schema[0].ColumnName)
	vals := rows.Rows[0].Values
	assert.Equal(t, "run-1", vals[0].GetStringValue())
	assert.Equal(t, int64(2), vals[1].GetI64Value())
	assert.InDelta(t, 1150, vals[4].GetF64Value(), 1e-9)
	assert.False(t, vals[9].GetBoolValue())
}

func TestGreptimeWriterFlows(t *testing.T) {
	m := &mockGreptimeClient{}
	w := &GreptimeDBWriter{client: m, runID: "run-1", flowsTable: flowsTableName}

	require.NoError(t, w.WriteFlows(2, sampleTable()))
	require.Len(t, m.tables, 1)
	rows := m.tables[0].GetRows().Rows
	require.Len(t, rows, 2)
	assert.Equal(t, "10.1.1.1", rows[0].Values[1].GetStringValue())
	assert.Equal(t, int64(1), rows[0].Values[4].GetI64Value())
	assert.Equal(t, int64(2), rows[1].Values[4].GetI64Value())

	require.NoError(t, w.WriteFlows(2, flow.Table{}))
	assert.Len(t, m.tables, 1)
}

func TestSplitEndpoint(t *testing.T) {
	host, port, err := splitEndpoint("db.local:4101")
	require.NoError(t, err)
	assert.Equal(t, "db.local", host)
	assert.Equal(t, 4101, port)

	host, port, err = splitEndpoint("db.local")
	require.NoError(t, err)
	assert.Equal(t, "db.local", host)
	assert.Equal(t, defaultGreptimePort, port)

	_, _, err = splitEndpoint("db.local:grpc")
	require.Error(t, err)
}

type fakeProgram struct{ msgs []tea.Msg }

func (f *fakeProgram) Send(msg tea.Msg) { f.msgs = append(f.msgs, msg) }

func TestTUIWriterMessages(t *testing.T) {
	p := &fakeProgram{}
	w := &TUIWriter{program: p}

	require.NoError(t, w.WriteScenario(scenario.New(2, scenario.BuiltIn()["smoke"])))
	require.Len(t, p.msgs, 2)
	assert.IsType(t, scenarioMsg{}, p.msgs[0])
	assert.IsType(t, logMsg{}, p.msgs[1])

	require.NoError(t, w.WriteResult(metrics.Aggregate(2, sampleTable())))
	require.Len(t, p.msgs, 4)
	assert.IsType(t, logMsg{}, p.msgs[2])
	assert.IsType(t, resultMsg{}, p.msgs[3])

	require.NoError(t, w.WriteSummary(time.Second))
	assert.IsType(t, summaryMsg{}, p.msgs[4])
}

func TestTUIModelTracksProgress(t *testing.T) {
	m := newTUIModel("sweep", []int{2, 4})
	mi, _ := m.Update(scenarioMsg{nodes: 2, flows: 2})
	m = mi.(tuiModel)
	assert.Contains(t, m.renderHeader(), "0/2 scenarios, running 2 nodes (2 flows)")

	mi, _ = m.Update(resultMsg{metrics.Aggregate(2, sampleTable())})
	m = mi.(tuiModel)
	require.Len(t, m.table.Rows(), 1)
	assert.Equal(t, "1150", m.table.Rows()[0][3])

	mi, _ = m.Update(summaryMsg{total: 3 * time.Second})
	m = mi.(tuiModel)
	assert.Contains(t, m.renderHeader(), "1/2 scenarios, done in 3s")
}

func TestTUIWrapToggle(t *testing.T) {
	m := newTUIModel("sweep", []int{2})
	mi, _ := m.Update(tea.WindowSizeMsg{Width: 20, Height: 40})
	m = mi.(tuiModel)
	mi, _ = m.Update(logMsg{line: "one two three four five six seven"})
	m = mi.(tuiModel)
	assert.Equal(t, 1, m.vp.TotalLineCount())

	mi, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'w'}})
	m = mi.(tuiModel)
	require.True(t, m.wrap)
	assert.Greater(t, m.vp.TotalLineCount(), 1)
	assert.True(t, strings.Contains(m.View(), "q quit"))
}

type recordingWriter struct {
	results   []int
	scenarios int
	flows     int
	summaries int
	closed    bool
	err       error
}

func (r *recordingWriter) WriteResult(res metrics.ScenarioResult) error {
	r.results = append(r.results, res.Nodes)
	return r.err
}
func (r *recordingWriter) WriteScenario(scenario.Scenario) error { r.scenarios++; return nil }
func (r *recordingWriter) WriteFlows(int, flow.Table) error      { r.flows++; return nil }
func (r *recordingWriter) WriteSummary(time.Duration) error      { r.summaries++; return nil }
func (r *recordingWriter) Close() error                          { r.closed = true; return nil }

type resultsOnly struct{ n int }

func (r *resultsOnly) WriteResult(metrics.ScenarioResult) error { r.n++; return nil }

func TestMultiWriterFanOut(t *testing.T) {
	failing := &recordingWriter{err: errors.New("disk full")}
	rec := &recordingWriter{}
	plain := &resultsOnly{}
	mw := NewMultiWriter(failing, rec)
	mw.Add(plain)
	assert.Equal(t, 3, mw.Len())

	err := mw.WriteResult(metrics.Degenerate(2, 2))
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, []int{2}, rec.results)
	assert.Equal(t, 1, plain.n)

	require.NoError(t, mw.WriteScenario(scenario.Scenario{}))
	require.NoError(t, mw.WriteFlows(2, flow.Table{}))
	require.NoError(t, mw.WriteSummary(time.Second))
	require.NoError(t, mw.Close())
	assert.Equal(t, 1, rec.scenarios)
	assert.Equal(t, 1, rec.flows)
	assert.Equal(t, 1, rec.summaries)
	assert.True(t, rec.closed)
	assert.True(t, failing.closed)
}
