package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hashicorp/go-multierror"

	"meshsweep/internal/metrics"
)

// Series file name prefixes and their header rows.
var seriesHeaders = [3][2]string{
	{"throughput-vs-nodes", "AvgThroughput(Kbps)"},
	{"delay-vs-nodes", "AvgDelay(ms)"},
	{"packetloss-vs-nodes", "AvgPacketLossRatio"},
}

// SeriesPaths returns the throughput, delay and loss series paths in dir.
func SeriesPaths(dir, suffix string) [3]string {
	var paths [3]string
	for i, h := range seriesHeaders {
		paths[i] = filepath.Join(dir, fmt.Sprintf("%s-%s.csv", h[0], suffix))
	}
	return paths
}

// CSVWriter appends one row per sweep point to the three result series.
// Each file starts with a "Nodes,<metric>" header.
type CSVWriter struct {
	files   [3]*os.File
	writers [3]*csv.Writer
}

// NewCSVWriter creates (truncating) the three series files in dir and writes
// their headers.
func NewCSVWriter(dir, suffix string) (*CSVWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	w := &CSVWriter{}
	for i, path := range SeriesPaths(dir, suffix) {
		f, err := os.Create(path)
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		w.files[i] = f
		w.writers[i] = csv.NewWriter(f)
		if err := w.writeRow(i, "Nodes", seriesHeaders[i][1]); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	return w, nil
}

// WriteResult appends the result to every series. A degenerate result comes
// out as n,0 / n,0 / n,1.
func (w *CSVWriter) WriteResult(r metrics.ScenarioResult) error {
	nodes := strconv.Itoa(r.Nodes)
	values := [3]float64{r.AvgThroughputKbps, r.AvgDelayMs, r.AvgLossRatio}
	if r.Degenerate {
		values = [3]float64{0, 0, 1}
	}
	for i, v := range values {
		if err := w.writeRow(i, nodes, formatFloat(v)); err != nil {
			return err
		}
	}
	return nil
}

// writeRow flushes immediately so completed sweep points survive an abort.
func (w *CSVWriter) writeRow(i int, fields ...string) error {
	cw := w.writers[i]
	if err := cw.Write(fields); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// Close closes all series files.
func (w *CSVWriter) Close() error {
	var result *multierror.Error
	for _, f := range w.files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
