package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshsweep/internal/flow"
	"meshsweep/internal/scenario"
)

func TestEventHeapOrdering(t *testing.T) {
	h := newEventHeap()
	h.schedule(event{at: 100, kind: eventPacket, source: 1})
	h.schedule(event{at: 50, kind: eventPacket, source: 2})
	h.schedule(event{at: 100, kind: eventTxComplete, source: 3})
	h.schedule(event{at: 100, kind: eventPacket, source: 4})

	var order []int
	for {
		ev, ok := h.next()
		if !ok {
			break
		}
		order = append(order, ev.source)
	}
	// time first, then kind, then scheduling order
	assert.Equal(t, []int{2, 3, 1, 4}, order)
}

func smokeScenario(nodes int) scenario.Scenario {
	return scenario.New(nodes, scenario.BuiltIn()["smoke"])
}

func TestSyntheticDeterministic(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.Seed = 42
	sc := smokeScenario(4)

	a, err := NewSynthetic(cfg).Run(context.Background(), sc)
	require.NoError(t, err)
	b, err := NewSynthetic(cfg).Run(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	cfg.Seed = 43
	c, err := NewSynthetic(cfg).Run(context.Background(), sc)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestSyntheticFlowInvariants(t *testing.T) {
	sc := smokeScenario(4)
	tbl, err := NewSynthetic(DefaultSyntheticConfig()).Run(context.Background(), sc)
	require.NoError(t, err)

	require.Len(t, tbl, 12)
	tl := sc.Timeline
	for id, r := range tbl {
		assert.Equal(t, id, r.ID)
		assert.NotZero(t, r.TxPackets)
		assert.LessOrEqual(t, r.RxPackets, r.TxPackets)
		assert.Equal(t, r.TxPackets*uint64(sc.Profile.PacketSize), r.TxBytes)
		assert.GreaterOrEqual(t, r.TimeFirstTxPacket, tl.SourceStart())
		assert.Less(t, r.TimeFirstTxPacket, tl.SourceStop())
		assert.NotEqual(t, r.Source, r.Destination)
		if r.RxPackets > 0 {
			assert.LessOrEqual(t, r.TimeLastRxPacket, tl.SinkStop())
			assert.Greater(t, r.TimeLastRxPacket, r.TimeFirstTxPacket)
			assert.Positive(t, r.DelaySum)
		}
	}
	assert.Equal(t, []flow.ID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, tbl.IDs())
}

func TestSyntheticLosslessChannelDeliversEverything(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.LossProbability = 0
	tbl, err := NewSynthetic(cfg).Run(context.Background(), smokeScenario(2))
	require.NoError(t, err)
	require.Len(t, tbl, 2)
	for _, r := range tbl {
		assert.Equal(t, r.TxPackets, r.RxPackets, "flow %d", r.ID)
	}
}

func TestSyntheticQueueDropsUnderOverload(t *testing.T) {
	cfg := DefaultSyntheticConfig()
	cfg.LossProbability = 0
	cfg.ChannelRateBps = 1_000_000
	cfg.QueueLimit = 2
	tbl, err := NewSynthetic(cfg).Run(context.Background(), smokeScenario(4))
	require.NoError(t, err)

	var tx, rx uint64
	for _, r := range tbl {
		tx += r.TxPackets
		rx += r.RxPackets
	}
	assert.Less(t, rx, tx)
}

func TestSyntheticRejectsBadProfile(t *testing.T) {
	sc := smokeScenario(2)
	sc.Profile.DataRateBps = 0
	_, err := NewSynthetic(DefaultSyntheticConfig()).Run(context.Background(), sc)
	require.Error(t, err)
}

func TestSyntheticHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sc := scenario.New(12, scenario.BuiltIn()[scenario.DefaultPreset])
	_, err := NewSynthetic(DefaultSyntheticConfig()).Run(ctx, sc)
	require.ErrorIs(t, err, context.Canceled)
}

const flowLog = `{"nodes":2,"flows":[{"flow_id":1,"src":"10.1.1.1","dst":"10.1.1.2","tx_packets":10,"rx_packets":9,"tx_bytes":14720,"rx_bytes":13248,"delay_sum_s":0.009,"time_first_tx_s":2,"time_last_rx_s":3}]}
{"nodes":4,"flows":[]}
{"nodes":2,"flows":[{"flow_id":1,"tx_packets":5,"rx_packets":5,"rx_bytes":7360,"delay_sum_s":0.005,"time_first_tx_s":2,"time_last_rx_s":2.5}]}
`

func TestReplay(t *testing.T) {
	rp, err := ReadReplay(strings.NewReader(flowLog))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, rp.NodeCounts())

	tbl, err := rp.Run(context.Background(), scenario.Scenario{NodeCount: 2})
	require.NoError(t, err)
	require.Len(t, tbl, 1)
	// the later snapshot wins
	assert.Equal(t, uint64(5), tbl[1].TxPackets)
	assert.Equal(t, 500*time.Millisecond, tbl[1].Duration())

	tbl, err = rp.Run(context.Background(), scenario.Scenario{NodeCount: 4})
	require.NoError(t, err)
	assert.Empty(t, tbl)

	_, err = rp.Run(context.Background(), scenario.Scenario{NodeCount: 6})
	assert.True(t, errors.Is(err, ErrNoSnapshot))
}

func TestReplayMalformed(t *testing.T) {
	_, err := ReadReplay(strings.NewReader(`{"nodes":`))
	require.Error(t, err)
}

func TestDriverFunc(t *testing.T) {
	var got int
	d := DriverFunc(func(_ context.Context, sc scenario.Scenario) (flow.Table, error) {
		got = sc.NodeCount
		return flow.Table{}, nil
	})
	_, err := d.Run(context.Background(), scenario.Scenario{NodeCount: 8})
	require.NoError(t, err)
	assert.Equal(t, 8, got)
}
