package report

import (
	"io"
	"time"

	"github.com/hashicorp/go-multierror"

	"meshsweep/internal/flow"
	"meshsweep/internal/metrics"
	"meshsweep/internal/scenario"
)

// MultiWriter fans results out to several writers. Optional capabilities are
// forwarded only to the writers that implement them. A failing writer does
// not stop delivery to the others; all errors are returned together.
type MultiWriter struct {
	writers []ResultWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(writers ...ResultWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Add appends a writer.
func (mw *MultiWriter) Add(w ResultWriter) {
	mw.writers = append(mw.writers, w)
}

// Len reports how many writers are attached.
func (mw *MultiWriter) Len() int { return len(mw.writers) }

// WriteResult sends a result to all writers.
func (mw *MultiWriter) WriteResult(r metrics.ScenarioResult) error {
	var result *multierror.Error
	for _, w := range mw.writers {
		if err := w.WriteResult(r); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// WriteScenario forwards the scenario to writers implementing ScenarioWriter.
func (mw *MultiWriter) WriteScenario(sc scenario.Scenario) error {
	var result *multierror.Error
	for _, w := range mw.writers {
		if sw, ok := w.(ScenarioWriter); ok {
			if err := sw.WriteScenario(sc); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}

// WriteFlows forwards the flow table to writers implementing FlowWriter.
func (mw *MultiWriter) WriteFlows(nodes int, t flow.Table) error {
	var result *multierror.Error
	for _, w := range mw.writers {
		if fw, ok := w.(FlowWriter); ok {
			if err := fw.WriteFlows(nodes, t); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}

// WriteSummary forwards the total elapsed time to writers implementing SummaryWriter.
func (mw *MultiWriter) WriteSummary(total time.Duration) error {
	var result *multierror.Error
	for _, w := range mw.writers {
		if sw, ok := w.(SummaryWriter); ok {
			if err := sw.WriteSummary(total); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}

// Close closes every writer implementing io.Closer.
func (mw *MultiWriter) Close() error {
	var result *multierror.Error
	for _, w := range mw.writers {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
	}
	return result.ErrorOrNil()
}
