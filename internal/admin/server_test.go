package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshsweep/internal/engine"
	"meshsweep/internal/flow"
	"meshsweep/internal/metrics"
	"meshsweep/internal/scenario"
	"meshsweep/internal/sweep"
)

type stubSource struct {
	progress sweep.Progress
	results  []metrics.ScenarioResult
}

func (s *stubSource) Progress() sweep.Progress          { return s.progress }
func (s *stubSource) Results() []metrics.ScenarioResult { return s.results }

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestServer(src StatusSource) *Server {
	return NewServer(src, quietLogger())
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func sampleSource() *stubSource {
	return &stubSource{
		progress: sweep.Progress{
			RunID:     "run-1",
			Preset:    "smoke",
			State:     sweep.StateRunning,
			Planned:   []int{2, 4},
			Completed: []int{2},
			Current:   4,
		},
		results: []metrics.ScenarioResult{
			{Nodes: 2, TotalFlows: 2, ValidFlows: 2, AvgThroughputKbps: 1150, AvgDelayMs: 0.1},
		},
	}
}

func TestHandleProgress(t *testing.T) {
	s := newTestServer(sampleSource())
	w := serve(s, http.MethodGet, "/progress")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var p sweep.Progress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, "run-1", p.RunID)
	assert.Equal(t, 4, p.Current)
	assert.Equal(t, []int{2}, p.Completed)
}

func TestHandleResults(t *testing.T) {
	s := newTestServer(sampleSource())
	w := serve(s, http.MethodGet, "/results")
	require.Equal(t, http.StatusOK, w.Code)

	var rs []metrics.ScenarioResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rs))
	require.Len(t, rs, 1)
	assert.Equal(t, 1150.0, rs[0].AvgThroughputKbps)

	w = serve(newTestServer(&stubSource{}), http.MethodGet, "/results")
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestHandleSingleResult(t *testing.T) {
	s := newTestServer(sampleSource())
	w := serve(s, http.MethodGet, "/results/2")
	require.Equal(t, http.StatusOK, w.Code)

	var r metrics.ScenarioResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	assert.Equal(t, 2, r.Nodes)

	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/results/4").Code)
	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/results/four").Code)
}

func TestHandleIndex(t *testing.T) {
	s := newTestServer(sampleSource())
	w := serve(s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Sweep smoke")
	assert.Contains(t, body, "1 of 2 scenarios complete")
	assert.Contains(t, body, "running 4 nodes")
	assert.Contains(t, body, "1150.000")
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(sampleSource())
	assert.Equal(t, http.StatusMethodNotAllowed, serve(s, http.MethodPost, "/progress").Code)
}

func TestServesLiveRunner(t *testing.T) {
	driver := engine.DriverFunc(func(context.Context, scenario.Scenario) (flow.Table, error) {
		return flow.Table{}, nil
	})
	preset := scenario.BuiltIn()["smoke"]
	runner := sweep.NewRunner(driver, nopWriter{}, sweep.Options{Preset: preset, RunID: "live"})
	_, err := runner.Run(context.Background())
	require.NoError(t, err)

	w := serve(newTestServer(runner), http.MethodGet, "/progress")
	var p sweep.Progress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, sweep.StateDone, p.State)
	assert.Equal(t, []int{2, 4}, p.Completed)
}

type nopWriter struct{}

func (nopWriter) WriteResult(metrics.ScenarioResult) error { return nil }
