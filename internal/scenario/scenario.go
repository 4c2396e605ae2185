// Scenario generation for one sweep point: grid placement and full-mesh traffic.
package scenario

import (
	"fmt"
	"math"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Preset describes a whole sweep: which node counts to visit and how every
// scenario in it is laid out and loaded.
type Preset struct {
	Name        string   `yaml:"name,omitempty"`
	Description string   `yaml:"description,omitempty"`
	Sweep       Range    `yaml:"sweep"`
	Grid        Grid     `yaml:"grid"`
	Traffic     Traffic  `yaml:"traffic"`
	Timeline    Timeline `yaml:"timeline"`
}

// Range is the inclusive node count range of a sweep.
type Range struct {
	MinNodes int `yaml:"min_nodes"`
	MaxNodes int `yaml:"max_nodes"`
	Step     int `yaml:"step"`
}

// Grid holds the placement geometry.
type Grid struct {
	DistanceM float64 `yaml:"distance_m"`
}

// Traffic is the on/off UDP profile installed on every source.
type Traffic struct {
	PacketSize  int     `yaml:"packet_size"`
	DataRateBps float64 `yaml:"data_rate_bps"`
	OnTimeS     float64 `yaml:"on_time_s"`
	OffTimeS    float64 `yaml:"off_time_s"`
	Port        int     `yaml:"port"`
}

// PacketInterval is the gap between packets while a source is on.
func (t Traffic) PacketInterval() time.Duration {
	return seconds(float64(t.PacketSize*8) / t.DataRateBps)
}

// OnTime returns the length of an on period.
func (t Traffic) OnTime() time.Duration { return seconds(t.OnTimeS) }

// OffTime returns the length of an off period.
func (t Traffic) OffTime() time.Duration { return seconds(t.OffTimeS) }

// Timeline is the simulated schedule, in seconds from simulation start.
type Timeline struct {
	SinkStartS   float64 `yaml:"sink_start_s"`
	SinkStopS    float64 `yaml:"sink_stop_s"`
	SourceStartS float64 `yaml:"source_start_s"`
	SourceStopS  float64 `yaml:"source_stop_s"`
	StopS        float64 `yaml:"stop_s"`
}

func (t Timeline) SinkStart() time.Duration   { return seconds(t.SinkStartS) }
func (t Timeline) SinkStop() time.Duration    { return seconds(t.SinkStopS) }
func (t Timeline) SourceStart() time.Duration { return seconds(t.SourceStartS) }
func (t Timeline) SourceStop() time.Duration  { return seconds(t.SourceStopS) }
func (t Timeline) Stop() time.Duration        { return seconds(t.StopS) }

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// Position is a node's fixed coordinate on the grid.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pair is one directed traffic stream of the mesh.
type Pair struct {
	Src int `json:"src"`
	Dst int `json:"dst"`
}

// Scenario is the configuration of one sweep point. It is not modified after New.
type Scenario struct {
	NodeCount int
	GridSize  int
	Distance  float64
	Positions []Position
	Addresses []netip.Addr
	Traffic   []Pair
	Profile   Traffic
	Timeline  Timeline
}

// baseAddress is the network the nodes are numbered from; node i gets .i+1.
var baseAddress = netip.MustParseAddr("10.1.1.0")

// New builds the scenario for nodeCount nodes using the geometry, traffic and
// timeline of p. Nodes are placed row by row on a square-ish grid and every
// node sends to every other node.
func New(nodeCount int, p Preset) Scenario {
	grid := GridSize(nodeCount)
	s := Scenario{
		NodeCount: nodeCount,
		GridSize:  grid,
		Distance:  p.Grid.DistanceM,
		Positions: make([]Position, nodeCount),
		Addresses: make([]netip.Addr, nodeCount),
		Traffic:   make([]Pair, 0, nodeCount*(nodeCount-1)),
		Profile:   p.Traffic,
		Timeline:  p.Timeline,
	}
	addr := baseAddress
	for i := 0; i < nodeCount; i++ {
		s.Positions[i] = Position{
			X: float64(i%grid) * p.Grid.DistanceM,
			Y: float64(i/grid) * p.Grid.DistanceM,
		}
		addr = addr.Next()
		s.Addresses[i] = addr
	}
	for src := 0; src < nodeCount; src++ {
		for dst := 0; dst < nodeCount; dst++ {
			if src == dst {
				continue
			}
			s.Traffic = append(s.Traffic, Pair{Src: src, Dst: dst})
		}
	}
	return s
}

// GridSize returns the grid width used for n nodes: ceil(sqrt(n)).
func GridSize(n int) int {
	return int(math.Ceil(math.Sqrt(float64(n))))
}

// Sweep returns the ascending node counts min, min+step, ... up to max inclusive.
func Sweep(min, max, step int) []int {
	if step <= 0 || max < min {
		return nil
	}
	counts := make([]int, 0, (max-min)/step+1)
	for n := min; n <= max; n += step {
		counts = append(counts, n)
	}
	return counts
}

// NodeCounts returns the sweep of the preset.
func (p Preset) NodeCounts() []int {
	return Sweep(p.Sweep.MinNodes, p.Sweep.MaxNodes, p.Sweep.Step)
}

// Load reads a YAML preset definition from disk.
func Load(path string) (*Preset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset: %w", err)
	}
	var p Preset
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse preset: %w", err)
	}
	return &p, nil
}
