package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"meshsweep/internal/flow"
	"meshsweep/internal/scenario"
)

// ErrNoSnapshot is returned when a flow log holds no table for a node count.
var ErrNoSnapshot = errors.New("no recorded flow table")

// Replay serves flow tables recorded in a JSONL flow log, one snapshot per
// line. It lets a previous run, or statistics exported from another
// simulator or a testbed, go through the aggregation again.
type Replay struct {
	tables map[int]flow.Table
}

// ReadReplay decodes snapshots from r. A later snapshot for the same node
// count replaces an earlier one.
func ReadReplay(r io.Reader) (*Replay, error) {
	dec := json.NewDecoder(r)
	rp := &Replay{tables: make(map[int]flow.Table)}
	for {
		var snap flow.Snapshot
		if err := dec.Decode(&snap); err != nil {
			if err == io.EOF {
				return rp, nil
			}
			return nil, fmt.Errorf("decode flow log: %w", err)
		}
		rp.tables[snap.Nodes] = snap.Table()
	}
}

// OpenReplay opens a flow log file and reads all of its snapshots.
func OpenReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadReplay(f)
}

// NodeCounts returns the recorded node counts in ascending order.
func (r *Replay) NodeCounts() []int {
	counts := make([]int, 0, len(r.tables))
	for n := range r.tables {
		counts = append(counts, n)
	}
	sort.Ints(counts)
	return counts
}

// Run implements Driver.
func (r *Replay) Run(_ context.Context, sc scenario.Scenario) (flow.Table, error) {
	t, ok := r.tables[sc.NodeCount]
	if !ok {
		return nil, fmt.Errorf("%w for %d nodes", ErrNoSnapshot, sc.NodeCount)
	}
	return t, nil
}
