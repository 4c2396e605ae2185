// Per-flow statistics as reported by a simulation driver.
package flow

import (
	"encoding/json"
	"math"
	"net/netip"
	"sort"
	"time"
)

// ID identifies one source to destination flow within a scenario.
type ID uint32

// Record holds the counters a driver collected for one flow. Times are
// offsets on the simulation clock.
type Record struct {
	ID                ID
	Source            netip.Addr
	Destination       netip.Addr
	TxPackets         uint64
	RxPackets         uint64
	TxBytes           uint64
	RxBytes           uint64
	DelaySum          time.Duration
	TimeFirstTxPacket time.Duration
	TimeLastRxPacket  time.Duration
}

// Duration is the span from the first transmitted to the last received packet.
func (r Record) Duration() time.Duration {
	return r.TimeLastRxPacket - r.TimeFirstTxPacket
}

// recordJSON is the wire form used in flow logs; durations are in seconds so
// that exports from other tools can be fed back without conversion.
type recordJSON struct {
	ID                ID         `json:"flow_id"`
	Source            netip.Addr `json:"src"`
	Destination       netip.Addr `json:"dst"`
	TxPackets         uint64     `json:"tx_packets"`
	RxPackets         uint64     `json:"rx_packets"`
	TxBytes           uint64     `json:"tx_bytes"`
	RxBytes           uint64     `json:"rx_bytes"`
	DelaySum          float64    `json:"delay_sum_s"`
	TimeFirstTxPacket float64    `json:"time_first_tx_s"`
	TimeLastRxPacket  float64    `json:"time_last_rx_s"`
}

// MarshalJSON implements json.Marshaler.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		ID:                r.ID,
		Source:            r.Source,
		Destination:       r.Destination,
		TxPackets:         r.TxPackets,
		RxPackets:         r.RxPackets,
		TxBytes:           r.TxBytes,
		RxBytes:           r.RxBytes,
		DelaySum:          r.DelaySum.Seconds(),
		TimeFirstTxPacket: r.TimeFirstTxPacket.Seconds(),
		TimeLastRxPacket:  r.TimeLastRxPacket.Seconds(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Record) UnmarshalJSON(b []byte) error {
	var w recordJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*r = Record{
		ID:                w.ID,
		Source:            w.Source,
		Destination:       w.Destination,
		TxPackets:         w.TxPackets,
		RxPackets:         w.RxPackets,
		TxBytes:           w.TxBytes,
		RxBytes:           w.RxBytes,
		DelaySum:          fromSeconds(w.DelaySum),
		TimeFirstTxPacket: fromSeconds(w.TimeFirstTxPacket),
		TimeLastRxPacket:  fromSeconds(w.TimeLastRxPacket),
	}
	return nil
}

func fromSeconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// Table maps flow ids to their records for one scenario run.
type Table map[ID]Record

// IDs returns the flow ids in ascending order.
func (t Table) IDs() []ID {
	ids := make([]ID, 0, len(t))
	for id := range t {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Records returns the records ordered by flow id.
func (t Table) Records() []Record {
	out := make([]Record, 0, len(t))
	for _, id := range t.IDs() {
		out = append(out, t[id])
	}
	return out
}

// Snapshot is one scenario's flow table as written to a flow log.
type Snapshot struct {
	RunID string   `json:"run_id,omitempty"`
	Nodes int      `json:"nodes"`
	Flows []Record `json:"flows"`
}

// Table rebuilds the flow table of the snapshot.
func (s Snapshot) Table() Table {
	t := make(Table, len(s.Flows))
	for _, r := range s.Flows {
		t[r.ID] = r
	}
	return t
}
