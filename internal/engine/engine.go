// Package engine holds the simulation drivers a sweep can run scenarios on.
package engine

import (
	"context"
	"fmt"
	"hash/fnv"

	"meshsweep/internal/flow"
	"meshsweep/internal/scenario"
)

// Driver runs one scenario to completion and reports per-flow statistics.
// Run blocks until the simulated timeline has been executed.
type Driver interface {
	Run(ctx context.Context, sc scenario.Scenario) (flow.Table, error)
}

// DriverFunc adapts a function to the Driver interface.
type DriverFunc func(ctx context.Context, sc scenario.Scenario) (flow.Table, error)

// Run calls f.
func (f DriverFunc) Run(ctx context.Context, sc scenario.Scenario) (flow.Table, error) {
	return f(ctx, sc)
}

// Driver names accepted in configuration.
const (
	DriverSynthetic = "synthetic"
	DriverReplay    = "replay"
)

// scenarioSeed derives the RNG seed of one scenario so that every sweep point
// is reproducible on its own: seed XOR fnv1a64("scenario_<n>").
func scenarioSeed(seed int64, nodes int) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fmt.Sprintf("scenario_%d", nodes)))
	return seed ^ int64(h.Sum64())
}
