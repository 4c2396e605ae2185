// Package sweep runs one scenario per node count and reports each result as
// soon as it is known.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"meshsweep/internal/engine"
	"meshsweep/internal/logging"
	"meshsweep/internal/metrics"
	"meshsweep/internal/report"
	"meshsweep/internal/scenario"
)

// Run states reported by Progress.
const (
	StatePending   = "pending"
	StateRunning   = "running"
	StateDone      = "done"
	StateFailed    = "failed"
	StateCancelled = "cancelled"
)

// Options configure a sweep.
type Options struct {
	Preset scenario.Preset
	// NodeCounts overrides the preset range when set.
	NodeCounts []int
	// SkipFailed continues past a failing driver run instead of aborting.
	// The failed node count then has no result row.
	SkipFailed bool
	// RunID tags every output of the sweep; a random id is used when empty.
	RunID string
}

// Progress is a point-in-time view of a running sweep.
type Progress struct {
	RunID     string    `json:"run_id"`
	Preset    string    `json:"preset"`
	State     string    `json:"state"`
	Planned   []int     `json:"planned"`
	Completed []int     `json:"completed"`
	Skipped   []int     `json:"skipped,omitempty"`
	Current   int       `json:"current,omitempty"`
	Started   time.Time `json:"started,omitempty"`
	ElapsedS  float64   `json:"elapsed_s"`
	Error     string    `json:"error,omitempty"`
}

// Runner drives the sweep sequentially: scenarios never overlap, and results
// reach the writer in ascending node-count order.
type Runner struct {
	driver engine.Driver
	writer report.ResultWriter
	opts   Options
	counts []int

	mu       sync.RWMutex
	progress Progress
	results  []metrics.ScenarioResult
	finished time.Time
}

// NewRunner creates a runner. The writer may additionally implement the
// optional report interfaces to receive scenarios, flow tables and the
// final summary.
func NewRunner(driver engine.Driver, writer report.ResultWriter, opts Options) *Runner {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	counts := opts.NodeCounts
	if len(counts) == 0 {
		counts = opts.Preset.NodeCounts()
	}
	return &Runner{
		driver: driver,
		writer: writer,
		opts:   opts,
		counts: counts,
		progress: Progress{
			RunID:   opts.RunID,
			Preset:  opts.Preset.Name,
			State:   StatePending,
			Planned: append([]int(nil), counts...),
		},
	}
}

// RunID returns the id tagging this sweep.
func (r *Runner) RunID() string { return r.opts.RunID }

// Run executes every scenario and returns the results produced so far. On
// abort or cancellation the rows already written stay in place.
func (r *Runner) Run(ctx context.Context) ([]metrics.ScenarioResult, error) {
	if len(r.counts) == 0 {
		return nil, errors.New("sweep has no node counts")
	}
	log := logging.FromContext(ctx).WithFields(logrus.Fields{
		"run_id": r.opts.RunID,
		"preset": r.opts.Preset.Name,
	})
	start := time.Now()
	r.update(func(p *Progress) {
		p.State = StateRunning
		p.Started = start
	})
	log.WithField("nodes", r.counts).Info("sweep started")

	for _, n := range r.counts {
		if err := ctx.Err(); err != nil {
			return r.stop(StateCancelled, err)
		}
		res, err := r.runScenario(ctx, log, n)
		if err != nil {
			if ctx.Err() != nil {
				return r.stop(StateCancelled, ctx.Err())
			}
			var derr *driverError
			if r.opts.SkipFailed && errors.As(err, &derr) {
				log.WithError(err).WithField("nodes", n).Warn("scenario failed, skipping")
				r.update(func(p *Progress) {
					p.Skipped = append(p.Skipped, n)
					p.Current = 0
				})
				continue
			}
			return r.stop(StateFailed, err)
		}
		r.mu.Lock()
		r.results = append(r.results, res)
		r.progress.Completed = append(r.progress.Completed, n)
		r.progress.Current = 0
		r.mu.Unlock()
	}

	total := time.Since(start)
	if sw, ok := r.writer.(report.SummaryWriter); ok {
		if err := sw.WriteSummary(total); err != nil {
			return r.stop(StateFailed, err)
		}
	}
	r.mu.Lock()
	r.progress.State = StateDone
	r.finished = time.Now()
	r.mu.Unlock()
	log.WithField("elapsed", total.Round(time.Millisecond)).Info("sweep finished")
	return r.Results(), nil
}

// driverError marks a failure of the simulation driver itself, the only kind
// of failure the skip policy applies to.
type driverError struct {
	nodes int
	err   error
}

func (e *driverError) Error() string {
	return fmt.Sprintf("scenario with %d nodes: %v", e.nodes, e.err)
}

func (e *driverError) Unwrap() error { return e.err }

func (r *Runner) runScenario(ctx context.Context, log logrus.FieldLogger, n int) (metrics.ScenarioResult, error) {
	sc := scenario.New(n, r.opts.Preset)
	r.update(func(p *Progress) { p.Current = n })
	log = log.WithField("nodes", n)
	log.WithFields(logrus.Fields{"grid": sc.GridSize, "flows": len(sc.Traffic)}).Debug("scenario built")

	if sw, ok := r.writer.(report.ScenarioWriter); ok {
		if err := sw.WriteScenario(sc); err != nil {
			return metrics.ScenarioResult{}, err
		}
	}

	began := time.Now()
	table, err := r.driver.Run(ctx, sc)
	if err != nil {
		return metrics.ScenarioResult{}, &driverError{nodes: n, err: err}
	}
	if fw, ok := r.writer.(report.FlowWriter); ok {
		if err := fw.WriteFlows(n, table); err != nil {
			return metrics.ScenarioResult{}, err
		}
	}

	res := metrics.Aggregate(n, table)
	res.WallClock = time.Since(began)
	if res.ZeroDurationFlows > 0 {
		log.WithField("flows", res.ZeroDurationFlows).Warn("flows with zero reception span counted with zero throughput")
	}
	if err := r.writer.WriteResult(res); err != nil {
		return metrics.ScenarioResult{}, err
	}
	log.WithFields(logrus.Fields{
		"valid":      res.ValidFlows,
		"total":      res.TotalFlows,
		"throughput": res.AvgThroughputKbps,
		"delay_ms":   res.AvgDelayMs,
		"loss":       res.AvgLossRatio,
		"elapsed":    res.WallClock.Round(time.Millisecond),
	}).Info("scenario complete")
	return res, nil
}

func (r *Runner) stop(state string, err error) ([]metrics.ScenarioResult, error) {
	r.mu.Lock()
	r.progress.State = state
	r.progress.Current = 0
	r.progress.Error = err.Error()
	r.finished = time.Now()
	r.mu.Unlock()
	return r.Results(), err
}

func (r *Runner) update(fn func(*Progress)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.progress)
}

// Progress returns a copy of the current progress.
func (r *Runner) Progress() Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p := r.progress
	p.Planned = append([]int(nil), p.Planned...)
	p.Completed = append([]int{}, p.Completed...)
	p.Skipped = append([]int(nil), p.Skipped...)
	switch {
	case !r.finished.IsZero():
		p.ElapsedS = r.finished.Sub(p.Started).Seconds()
	case !p.Started.IsZero():
		p.ElapsedS = time.Since(p.Started).Seconds()
	}
	return p
}

// Results returns a copy of the results produced so far.
func (r *Runner) Results() []metrics.ScenarioResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]metrics.ScenarioResult(nil), r.results...)
}
