// YAML config loader with CUE validation integration
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"meshsweep/internal/engine"
	"meshsweep/internal/scenario"
)

// Driver failure policies.
const (
	OnErrorAbort = "abort"
	OnErrorSkip  = "skip"
)

// EngineConfig selects and tunes the simulation driver.
type EngineConfig struct {
	Driver           string  `yaml:"driver"`
	Seed             int64   `yaml:"seed"`
	ChannelRateBps   float64 `yaml:"channel_rate_bps"`
	PacketOverheadUs float64 `yaml:"packet_overhead_us"`
	MaxBackoffUs     float64 `yaml:"max_backoff_us"`
	QueueLimit       int     `yaml:"queue_limit"`
	LossProbability  float64 `yaml:"loss_probability"`
	ReplayFile       string  `yaml:"replay_file"`
}

// Synthetic converts the engine section into synthetic driver parameters.
func (e EngineConfig) Synthetic() engine.SyntheticConfig {
	return engine.SyntheticConfig{
		Seed:            e.Seed,
		ChannelRateBps:  e.ChannelRateBps,
		PacketOverhead:  micros(e.PacketOverheadUs),
		MaxBackoff:      micros(e.MaxBackoffUs),
		QueueLimit:      e.QueueLimit,
		LossProbability: e.LossProbability,
	}
}

func micros(us float64) time.Duration {
	return time.Duration(us * float64(time.Microsecond))
}

// OutputConfig says where result series and logs go.
type OutputConfig struct {
	Dir          string `yaml:"dir"`
	SeriesSuffix string `yaml:"series_suffix"`
	FlowLog      string `yaml:"flow_log"`
	ResultsLog   string `yaml:"results_log"`
}

// GreptimeConfig enables the GreptimeDB sink when Endpoint is set.
type GreptimeConfig struct {
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
}

// SweepConfig is the root configuration of a sweep run.
type SweepConfig struct {
	PresetName    string          `yaml:"preset"`
	Plan          scenario.Preset `yaml:",inline"`
	Engine        EngineConfig    `yaml:"engine"`
	Output        OutputConfig    `yaml:"output"`
	OnDriverError string          `yaml:"on_driver_error"`
	Greptime      GreptimeConfig  `yaml:"greptime"`
}

// FromPreset returns the configuration of a built-in preset with default
// engine and output settings.
func FromPreset(name string) (SweepConfig, error) {
	p, ok := scenario.BuiltIn()[name]
	if !ok {
		return SweepConfig{}, fmt.Errorf("unknown preset %q", name)
	}
	syn := engine.DefaultSyntheticConfig()
	return SweepConfig{
		PresetName: name,
		Plan:       p,
		Engine: EngineConfig{
			Driver:           engine.DriverSynthetic,
			Seed:             syn.Seed,
			ChannelRateBps:   syn.ChannelRateBps,
			PacketOverheadUs: float64(syn.PacketOverhead) / float64(time.Microsecond),
			MaxBackoffUs:     float64(syn.MaxBackoff) / float64(time.Microsecond),
			QueueLimit:       syn.QueueLimit,
			LossProbability:  syn.LossProbability,
		},
		Output:        OutputConfig{Dir: ".", SeriesSuffix: name},
		OnDriverError: OnErrorAbort,
		Greptime:      GreptimeConfig{Database: "public"},
	}, nil
}

// Defaults returns the configuration used when no file is given.
func Defaults() SweepConfig {
	cfg, _ := FromPreset(scenario.DefaultPreset)
	return cfg
}

// Load reads the YAML configuration at configPath, validates it against the
// CUE schema at cueSchemaPath (built-in schema when empty) and overlays it on
// the preset it names. An empty configPath yields the defaults. Environment
// overrides are applied last.
func Load(configPath, cueSchemaPath string) (*SweepConfig, error) {
	cfg := Defaults()
	if configPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg, err = decode(data)
		if err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"preset": cfg.PresetName,
		"nodes":  cfg.Plan.NodeCounts(),
		"driver": cfg.Engine.Driver,
	}).Debug("loaded configuration")

	return &cfg, nil
}

// decode starts from the preset named in data and overlays the document on it
// with strict field checking.
func decode(data []byte) (SweepConfig, error) {
	var head struct {
		Preset string `yaml:"preset"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return SweepConfig{}, fmt.Errorf("parse config: %w", err)
	}
	name := head.Preset
	if name == "" {
		name = scenario.DefaultPreset
	}
	cfg, err := FromPreset(name)
	if err != nil {
		return SweepConfig{}, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return SweepConfig{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.PresetName = name
	return cfg, nil
}

func applyEnv(cfg *SweepConfig) error {
	if v := os.Getenv("GREPTIMEDB_ENDPOINT"); v != "" {
		cfg.Greptime.Endpoint = v
	}
	if v := os.Getenv("GREPTIMEDB_DATABASE"); v != "" {
		cfg.Greptime.Database = v
	}
	if v := os.Getenv("SWEEP_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SWEEP_SEED: %w", err)
		}
		cfg.Engine.Seed = seed
	}
	return nil
}

// Validate reports every inconsistency in the configuration.
func (c *SweepConfig) Validate() error {
	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	r := c.Plan.Sweep
	if r.MinNodes < 2 {
		add("sweep.min_nodes must be at least 2, got %d", r.MinNodes)
	}
	if r.MaxNodes < r.MinNodes {
		add("sweep.max_nodes %d is below min_nodes %d", r.MaxNodes, r.MinNodes)
	}
	if r.Step < 1 {
		add("sweep.step must be positive, got %d", r.Step)
	}
	if c.Plan.Grid.DistanceM <= 0 {
		add("grid.distance_m must be positive")
	}

	tr := c.Plan.Traffic
	if tr.PacketSize <= 0 || tr.DataRateBps <= 0 || tr.OnTimeS <= 0 {
		add("traffic needs a positive packet_size, data_rate_bps and on_time_s")
	}

	tl := c.Plan.Timeline
	if tl.SinkStartS > tl.SinkStopS {
		add("timeline: sinks stop before they start")
	}
	if tl.SourceStartS > tl.SourceStopS {
		add("timeline: sources stop before they start")
	}
	if tl.StopS <= 0 {
		add("timeline.stop_s must be positive")
	}

	switch c.Engine.Driver {
	case engine.DriverSynthetic:
		if c.Engine.ChannelRateBps <= 0 {
			add("engine.channel_rate_bps must be positive")
		}
		if c.Engine.QueueLimit < 1 {
			add("engine.queue_limit must be at least 1")
		}
		if c.Engine.LossProbability < 0 || c.Engine.LossProbability > 1 {
			add("engine.loss_probability must be within [0,1]")
		}
	case engine.DriverReplay:
		if c.Engine.ReplayFile == "" {
			add("engine.replay_file is required for the replay driver")
		}
	default:
		add("unknown engine.driver %q", c.Engine.Driver)
	}

	switch c.OnDriverError {
	case OnErrorAbort, OnErrorSkip:
	default:
		add("on_driver_error must be %q or %q, got %q", OnErrorAbort, OnErrorSkip, c.OnDriverError)
	}
	return result.ErrorOrNil()
}
