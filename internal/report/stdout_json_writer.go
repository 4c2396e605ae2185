package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"meshsweep/internal/metrics"
)

// JSONStdoutWriter prints each result as one JSON line to STDOUT.
type JSONStdoutWriter struct {
	out io.Writer
}

// NewJSONStdoutWriter creates a JSONStdoutWriter writing to os.Stdout.
func NewJSONStdoutWriter() *JSONStdoutWriter {
	return &JSONStdoutWriter{out: os.Stdout}
}

// WriteResult outputs a result in JSON format.
func (w *JSONStdoutWriter) WriteResult(r metrics.ScenarioResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w.out, string(data))
	return err
}
