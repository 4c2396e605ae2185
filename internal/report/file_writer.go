package report

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/hashicorp/go-multierror"

	"meshsweep/internal/flow"
	"meshsweep/internal/metrics"
)

// FileWriter writes flow tables and results to JSONL files. The flow log
// holds one flow.Snapshot per line and can be fed back through the replay
// driver.
type FileWriter struct {
	runID      string
	flowFile   *os.File
	resultFile *os.File
	flowEnc    *json.Encoder
	resultEnc  *json.Encoder
}

// resultLine tags a result with the run that produced it.
type resultLine struct {
	RunID string `json:"run_id"`
	metrics.ScenarioResult
}

// NewFileWriter creates a FileWriter. Either path may be empty to skip that
// log, but not both.
func NewFileWriter(flowPath, resultsPath, runID string) (*FileWriter, error) {
	if flowPath == "" && resultsPath == "" {
		return nil, errors.New("file writer needs a flow log or a results log path")
	}
	fw := &FileWriter{runID: runID}
	if flowPath != "" {
		f, err := os.Create(flowPath)
		if err != nil {
			return nil, err
		}
		fw.flowFile = f
		fw.flowEnc = json.NewEncoder(f)
	}
	if resultsPath != "" {
		f, err := os.Create(resultsPath)
		if err != nil {
			_ = fw.Close()
			return nil, err
		}
		fw.resultFile = f
		fw.resultEnc = json.NewEncoder(f)
	}
	return fw, nil
}

// WriteFlows logs the flow table of one scenario, if enabled.
func (f *FileWriter) WriteFlows(nodes int, t flow.Table) error {
	if f.flowEnc == nil {
		return nil
	}
	return f.flowEnc.Encode(flow.Snapshot{RunID: f.runID, Nodes: nodes, Flows: t.Records()})
}

// WriteResult logs a scenario result, if enabled.
func (f *FileWriter) WriteResult(r metrics.ScenarioResult) error {
	if f.resultEnc == nil {
		return nil
	}
	return f.resultEnc.Encode(resultLine{RunID: f.runID, ScenarioResult: r})
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var result *multierror.Error
	for _, file := range []*os.File{f.flowFile, f.resultFile} {
		if file == nil {
			continue
		}
		if err := file.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
