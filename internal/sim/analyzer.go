package sim

import "sort"

// Classification is the traffic state of an edge or zone.
type Classification string

const (
	ClassFreeFlow  Classification = "free_flow"
	ClassCongested Classification = "congested"
	ClassGridlock  Classification = "gridlock"
)

// EdgeSample is one tick's aggregate reading for an edge, produced by
// the engine after the apply phase.
type EdgeSample struct {
	Edge       EdgeID
	Zone       Zone
	Occupancy  int
	Capacity   int
	MeanSpeed  float64
	SpeedLimit float64
}

// Density is the occupancy/capacity ratio of the sample.
func (s EdgeSample) Density() float64 {
	if s.Capacity <= 0 {
		return 0
	}
	return float64(s.Occupancy) / float64(s.Capacity)
}

// CongestionAnalyzer classifies edges from noisy occupancy and speed
// readings. Gridlock needs a sustained window of qualifying samples so
// a single spike never flips the state; events fire only on
// classification changes.
type CongestionAnalyzer struct {
	cfg AnalyzerConfig

	state   map[EdgeID]Classification
	history map[EdgeID][]bool // gridlock-qualifying flags, bounded window
	zones   map[EdgeID]Zone   // last reported zone per tracked edge
}

func NewCongestionAnalyzer(cfg AnalyzerConfig) *CongestionAnalyzer {
	return &CongestionAnalyzer{
		cfg:     cfg,
		state:   make(map[EdgeID]Classification),
		history: make(map[EdgeID][]bool),
		zones:   make(map[EdgeID]Zone),
	}
}

// Sample ingests one tick of per-edge readings (sorted by edge ID) and
// returns the classification-change events. Tracked edges absent from
// the reading drained since last tick: their streak breaks and they
// return to free flow.
func (a *CongestionAnalyzer) Sample(tick int64, samples []EdgeSample) []CongestionEvent {
	var events []CongestionEvent
	seen := make(map[EdgeID]bool, len(samples))
	for _, s := range samples {
		seen[s.Edge] = true
		a.zones[s.Edge] = s.Zone
		qualifies := s.Density() >= a.cfg.HighDensity && s.MeanSpeed <= a.cfg.GridlockSpeed
		h := append(a.history[s.Edge], qualifies)
		if len(h) > a.cfg.GridlockWindow {
			h = h[1:] // evict the oldest sample
		}
		a.history[s.Edge] = h

		next := a.classify(s, h)
		prev, ok := a.state[s.Edge]
		if !ok {
			prev = ClassFreeFlow
		}
		if next != prev {
			a.state[s.Edge] = next
			events = append(events, CongestionEvent{
				Tick:           tick,
				Edge:           s.Edge,
				Zone:           s.Zone,
				Classification: next,
				Severity:       severity(s),
			})
		}
	}

	for _, id := range a.drained(seen) {
		delete(a.history, id)
		if prev, ok := a.state[id]; ok && prev != ClassFreeFlow {
			events = append(events, CongestionEvent{
				Tick:           tick,
				Edge:           id,
				Zone:           a.zones[id],
				Classification: ClassFreeFlow,
			})
		}
		delete(a.state, id)
		delete(a.zones, id)
	}
	return events
}

// drained lists tracked edges missing from this tick's reading, sorted.
func (a *CongestionAnalyzer) drained(seen map[EdgeID]bool) []EdgeID {
	var out []EdgeID
	for id := range a.history {
		if !seen[id] {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (a *CongestionAnalyzer) classify(s EdgeSample, h []bool) Classification {
	if len(h) >= a.cfg.GridlockWindow && allTrue(h) {
		return ClassGridlock
	}
	d := s.Density()
	slow := s.Occupancy > 0 && s.MeanSpeed < a.cfg.SlowSpeedFraction*s.SpeedLimit
	if d < a.cfg.LowDensity && !slow {
		return ClassFreeFlow
	}
	return ClassCongested
}

// Classification returns the current state of an edge.
func (a *CongestionAnalyzer) Classification(edge EdgeID) Classification {
	if c, ok := a.state[edge]; ok {
		return c
	}
	return ClassFreeFlow
}

func severity(s EdgeSample) float64 {
	d := s.Density()
	if d > 1 {
		d = 1
	}
	return d
}

func allTrue(h []bool) bool {
	for _, q := range h {
		if !q {
			return false
		}
	}
	return true
}
