package scenario

// DefaultPreset names the sweep used when no preset is configured.
const DefaultPreset = "high-contention"

// BuiltIn returns the predefined sweeps.
func BuiltIn() map[string]Preset {
	return map[string]Preset{
		"high-contention": {
			Name:        "high-contention",
			Description: "Full-mesh 1 Mbps UDP bursts between closely spaced nodes; every node contends with every other.",
			Sweep:       Range{MinNodes: 2, MaxNodes: 12, Step: 2},
			Grid:        Grid{DistanceM: 5.0},
			Traffic:     defaultTraffic(),
			Timeline:    defaultTimeline(),
		},
		"sparse": {
			Name:        "sparse",
			Description: "Same traffic as high-contention on a wider grid, stepping one node at a time.",
			Sweep:       Range{MinNodes: 2, MaxNodes: 9, Step: 1},
			Grid:        Grid{DistanceM: 25.0},
			Traffic:     defaultTraffic(),
			Timeline:    defaultTimeline(),
		},
		"smoke": {
			Name:        "smoke",
			Description: "Two short scenarios for checking an installation.",
			Sweep:       Range{MinNodes: 2, MaxNodes: 4, Step: 2},
			Grid:        Grid{DistanceM: 5.0},
			Traffic:     defaultTraffic(),
			Timeline:    Timeline{SinkStartS: 1, SinkStopS: 5, SourceStartS: 2, SourceStopS: 4, StopS: 6},
		},
	}
}

func defaultTraffic() Traffic {
	return Traffic{
		PacketSize:  1472,
		DataRateBps: 1_000_000,
		OnTimeS:     0.5,
		OffTimeS:    0.1,
		Port:        5000,
	}
}

func defaultTimeline() Timeline {
	return Timeline{SinkStartS: 1, SinkStopS: 30, SourceStartS: 2, SourceStopS: 29, StopS: 35}
}
