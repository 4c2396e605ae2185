package engine

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"meshsweep/internal/flow"
	"meshsweep/internal/logging"
	"meshsweep/internal/scenario"
)

// SyntheticConfig tunes the shared-medium queueing model.
type SyntheticConfig struct {
	Seed int64
	// ChannelRateBps is the rate at which the shared channel drains packets.
	ChannelRateBps float64
	// PacketOverhead is added to every transmission.
	PacketOverhead time.Duration
	// MaxBackoff bounds the uniform random wait drawn per transmission.
	MaxBackoff time.Duration
	// QueueLimit is the per-node transmit queue length; arrivals beyond it are dropped.
	QueueLimit int
	// LossProbability is the chance that a transmitted packet is not received.
	LossProbability float64
}

// DefaultSyntheticConfig returns the model parameters used when none are configured.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Seed:            1,
		ChannelRateBps:  54_000_000,
		PacketOverhead:  50 * time.Microsecond,
		MaxBackoff:      135 * time.Microsecond,
		QueueLimit:      100,
		LossProbability: 0.01,
	}
}

// Synthetic is a discrete-event driver in which every node's on/off sources
// feed a bounded per-node queue and all nodes share one channel served
// round-robin. It is a queueing approximation used in place of a full
// wireless simulator; it is deterministic for a given seed and scenario.
type Synthetic struct {
	cfg SyntheticConfig
}

// NewSynthetic creates a synthetic driver.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	return &Synthetic{cfg: cfg}
}

// ctxCheckInterval is how many events are processed between cancellation checks.
const ctxCheckInterval = 4096

// Run implements Driver.
func (s *Synthetic) Run(ctx context.Context, sc scenario.Scenario) (flow.Table, error) {
	if sc.Profile.PacketSize <= 0 || sc.Profile.DataRateBps <= 0 {
		return nil, errors.New("synthetic: traffic profile needs a positive packet size and data rate")
	}
	if s.cfg.ChannelRateBps <= 0 {
		return nil, errors.New("synthetic: channel rate must be positive")
	}
	r := newRun(s.cfg, sc)
	r.start()

	stop := sc.Timeline.Stop()
	processed := 0
	for {
		ev, ok := r.events.next()
		if !ok || ev.at > stop {
			break
		}
		r.handle(ev)
		processed++
		if processed%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	logging.FromContext(ctx).WithField("events", processed).Debug("synthetic run finished")
	return r.table(), nil
}

type packet struct {
	source  int
	created time.Duration
}

type source struct {
	pair   scenario.Pair
	on     bool
	gen    uint64
	record flow.Record
}

type run struct {
	cfg      SyntheticConfig
	sc       scenario.Scenario
	rng      *rand.Rand
	events   *eventHeap
	sources  []source
	queues   [][]packet
	backlog  int
	busy     bool
	inFlight packet
	rr       int
	nextID   flow.ID
	interval time.Duration
}

func newRun(cfg SyntheticConfig, sc scenario.Scenario) *run {
	r := &run{
		cfg:      cfg,
		sc:       sc,
		rng:      rand.New(rand.NewSource(scenarioSeed(cfg.Seed, sc.NodeCount))),
		events:   newEventHeap(),
		sources:  make([]source, len(sc.Traffic)),
		queues:   make([][]packet, sc.NodeCount),
		interval: sc.Profile.PacketInterval(),
	}
	for i, p := range sc.Traffic {
		r.sources[i] = source{pair: p}
	}
	return r
}

// start schedules the first on period of every source, each shifted by a
// random phase within one packet interval.
func (r *run) start() {
	begin := r.sc.Timeline.SourceStart()
	for i := range r.sources {
		jitter := time.Duration(r.rng.Int63n(int64(r.interval) + 1))
		r.events.schedule(event{at: begin + jitter, kind: eventSourceOn, source: i})
	}
}

func (r *run) handle(ev event) {
	switch ev.kind {
	case eventSourceOn:
		r.sourceOn(ev)
	case eventSourceOff:
		r.sourceOff(ev)
	case eventPacket:
		r.emit(ev)
	case eventTxComplete:
		r.complete(ev)
	}
}

func (r *run) sourceOn(ev event) {
	stopAt := r.sc.Timeline.SourceStop()
	if ev.at >= stopAt {
		return
	}
	src := &r.sources[ev.source]
	src.on = true
	src.gen++
	r.events.schedule(event{at: ev.at, kind: eventPacket, source: ev.source, gen: src.gen})
	off := ev.at + r.sc.Profile.OnTime()
	if off > stopAt {
		off = stopAt
	}
	r.events.schedule(event{at: off, kind: eventSourceOff, source: ev.source})
}

func (r *run) sourceOff(ev event) {
	r.sources[ev.source].on = false
	next := ev.at + r.sc.Profile.OffTime()
	if next < r.sc.Timeline.SourceStop() {
		r.events.schedule(event{at: next, kind: eventSourceOn, source: ev.source})
	}
}

// emit generates one packet and schedules the next one of the same on period.
func (r *run) emit(ev event) {
	src := &r.sources[ev.source]
	if !src.on || ev.gen != src.gen {
		return
	}
	if src.record.TxPackets == 0 {
		r.nextID++
		src.record.ID = r.nextID
		src.record.Source = r.sc.Addresses[src.pair.Src]
		src.record.Destination = r.sc.Addresses[src.pair.Dst]
		src.record.TimeFirstTxPacket = ev.at
	}
	src.record.TxPackets++
	src.record.TxBytes += uint64(r.sc.Profile.PacketSize)

	node := src.pair.Src
	if len(r.queues[node]) < r.cfg.QueueLimit {
		r.queues[node] = append(r.queues[node], packet{source: ev.source, created: ev.at})
		r.backlog++
		if !r.busy {
			r.transmit(ev.at)
		}
	}
	r.events.schedule(event{at: ev.at + r.interval, kind: eventPacket, source: ev.source, gen: ev.gen})
}

// transmit puts the head of the next non-empty node queue on the channel.
func (r *run) transmit(now time.Duration) {
	n := len(r.queues)
	for i := 0; i < n; i++ {
		node := (r.rr + i) % n
		if len(r.queues[node]) == 0 {
			continue
		}
		r.inFlight = r.queues[node][0]
		r.queues[node] = r.queues[node][1:]
		r.backlog--
		r.rr = (node + 1) % n
		r.busy = true
		r.events.schedule(event{at: now + r.serviceTime(), kind: eventTxComplete, source: r.inFlight.source})
		return
	}
}

func (r *run) serviceTime() time.Duration {
	bits := float64(r.sc.Profile.PacketSize * 8)
	airtime := time.Duration(bits / r.cfg.ChannelRateBps * float64(time.Second))
	var backoff time.Duration
	if r.cfg.MaxBackoff > 0 {
		backoff = time.Duration(r.rng.Int63n(int64(r.cfg.MaxBackoff) + 1))
	}
	return airtime + r.cfg.PacketOverhead + backoff
}

func (r *run) complete(ev event) {
	r.busy = false
	pkt := r.inFlight
	delivered := r.rng.Float64() >= r.cfg.LossProbability
	tl := r.sc.Timeline
	if delivered && ev.at >= tl.SinkStart() && ev.at <= tl.SinkStop() {
		rec := &r.sources[pkt.source].record
		rec.RxPackets++
		rec.RxBytes += uint64(r.sc.Profile.PacketSize)
		rec.DelaySum += ev.at - pkt.created
		rec.TimeLastRxPacket = ev.at
	}
	if r.backlog > 0 {
		r.transmit(ev.at)
	}
}

// table returns the records of every source that transmitted at least once.
func (r *run) table() flow.Table {
	t := make(flow.Table, len(r.sources))
	for _, src := range r.sources {
		if src.record.TxPackets == 0 {
			continue
		}
		t[src.record.ID] = src.record
	}
	return t
}
