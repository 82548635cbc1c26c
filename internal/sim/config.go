package sim

import (
	"errors"
	"fmt"
)

// Sentinel errors used across the engine.
var (
	ErrBadConfig = errors.New("invalid configuration")
	ErrNoRoute   = errors.New("no route")
	ErrInvariant = errors.New("invariant violation")
)

// Archetype identifies a vehicle category with its own behaviour rules.
type Archetype string

const (
	ArchetypeCar        Archetype = "car"
	ArchetypeMinibus    Archetype = "minibus"
	ArchetypeMotorcycle Archetype = "motorcycle"
	ArchetypeTaxi       Archetype = "taxi"
)

// ArchetypeParams holds the per-category tunables.
type ArchetypeParams struct {
	MaxSpeed float64 `json:"maxSpeed"` // m/s
	Length   float64 `json:"length"`   // m, blocks one slot plus this
}

// ArchetypeWeight is one entry of a spawn mix.
type ArchetypeWeight struct {
	Archetype Archetype `json:"archetype"`
	Weight    float64   `json:"weight"`
}

// SpawnWindow describes traffic demand during a slice of the day.
// Windows may wrap midnight (From > To).
type SpawnWindow struct {
	Name   string            `json:"name"`
	From   float64           `json:"from"` // hour, inclusive
	To     float64           `json:"to"`   // hour, exclusive
	Factor float64           `json:"factor"`
	Mix    []ArchetypeWeight `json:"mix"`
}

// Contains reports whether hour falls inside the window.
func (w SpawnWindow) Contains(hour float64) bool {
	if w.From <= w.To {
		return hour >= w.From && hour < w.To
	}
	return hour >= w.From || hour < w.To
}

// SignalTiming bounds the phase machine dwell times, in sim seconds.
type SignalTiming struct {
	MinGreen            float64 `json:"minGreen"`
	MaxGreen            float64 `json:"maxGreen"`
	Amber               float64 `json:"amber"`
	AllRed              float64 `json:"allRed"`
	QueueGain           float64 `json:"queueGain"`           // extra green seconds per queued vehicle
	PrincipalGreenBonus float64 `json:"principalGreenBonus"` // added to both green bounds at principal intersections
}

// AnalyzerConfig holds the congestion classification thresholds.
type AnalyzerConfig struct {
	LowDensity        float64 `json:"lowDensity"`        // occupancy/capacity below this = free flow
	HighDensity       float64 `json:"highDensity"`       // at/above this, gridlock candidate
	SlowSpeedFraction float64 `json:"slowSpeedFraction"` // of edge limit, below = congested
	GridlockSpeed     float64 `json:"gridlockSpeed"`     // m/s, "near zero"
	GridlockWindow    int     `json:"gridlockWindow"`    // consecutive qualifying samples required
}

// NarratorConfig tunes the narration feed.
type NarratorConfig struct {
	Cooldown       float64 `json:"cooldown"`       // sim seconds between messages
	ReportInterval float64 `json:"reportInterval"` // sim seconds between periodic reports
	MaxMessages    int     `json:"maxMessages"`
}

// Merge tie-break modes for conflicting intents (see Engine resolve phase).
const (
	TieBreakArrival    = "arrival"     // vehicle closer to the intersection wins
	TieBreakSpawnOrder = "spawn-order" // earlier spawned vehicle wins
)

// Config is the full static parameter set consumed at engine init.
// There is no runtime reconfiguration.
type Config struct {
	Seed         int64   `json:"seed"`
	DT           float64 `json:"dt"`           // sim seconds per tick
	HoursPerTick float64 `json:"hoursPerTick"` // simulated clock advance per tick
	StartHour    float64 `json:"startHour"`
	MaxVehicles  int     `json:"maxVehicles"`

	MinGap           float64 `json:"minGap"`           // m, bumper-to-bumper minimum
	SlotLength       float64 `json:"slotLength"`       // m per capacity slot
	StoppingDistance float64 `json:"stoppingDistance"` // m, signal reaction range
	StopLineMargin   float64 `json:"stopLineMargin"`   // m short of the edge end
	QueueDistance    float64 `json:"queueDistance"`    // m, counts toward signal queues

	SpawnIntervalMin float64 `json:"spawnIntervalMin"` // sim seconds
	SpawnIntervalMax float64 `json:"spawnIntervalMax"`

	Archetypes map[Archetype]ArchetypeParams `json:"archetypes"`
	Windows    []SpawnWindow                 `json:"windows"`

	Signals  SignalTiming   `json:"signals"`
	Analyzer AnalyzerConfig `json:"analyzer"`
	Narrator NarratorConfig `json:"narrator"`

	MergeTieBreak string `json:"mergeTieBreak"`

	// Archetype behaviour modifiers.
	MinibusStopChance     float64 `json:"minibusStopChance"` // probability per sim second
	MinibusDwellMin       float64 `json:"minibusDwellMin"`   // sim seconds
	MinibusDwellMax       float64 `json:"minibusDwellMax"`
	MotoLaneChangeDensity float64 `json:"motoLaneChangeDensity"` // occupancy/capacity trigger
	TaxiPickupRate        float64 `json:"taxiPickupRate"`        // probability per sim second while seeking
	TaxiSeekFactor        float64 `json:"taxiSeekFactor"`        // cruise fraction while scanning for fares
}

// DefaultConfig mirrors the tuning the simulation ships with.
func DefaultConfig() Config {
	return Config{
		Seed:         1,
		DT:           0.1,
		HoursPerTick: 0.001,
		StartHour:    8,
		MaxVehicles:  120,

		MinGap:           6,
		SlotLength:       8,
		StoppingDistance: 35,
		StopLineMargin:   2,
		QueueDistance:    50,

		SpawnIntervalMin: 1.0,
		SpawnIntervalMax: 3.0,

		Archetypes: map[Archetype]ArchetypeParams{
			ArchetypeCar:        {MaxSpeed: 12.0, Length: 4.5},
			ArchetypeMinibus:    {MaxSpeed: 9.0, Length: 7.0},
			ArchetypeMotorcycle: {MaxSpeed: 15.0, Length: 2.2},
			ArchetypeTaxi:       {MaxSpeed: 10.0, Length: 4.5},
		},
		Windows: []SpawnWindow{
			{Name: "morning", From: 6, To: 12, Factor: 1.2, Mix: []ArchetypeWeight{
				{ArchetypeCar, 3}, {ArchetypeMinibus, 2}, {ArchetypeTaxi, 2},
			}},
			{Name: "afternoon", From: 12, To: 18, Factor: 1.5, Mix: []ArchetypeWeight{
				{ArchetypeMinibus, 3}, {ArchetypeCar, 2}, {ArchetypeTaxi, 2},
			}},
			{Name: "evening", From: 18, To: 22, Factor: 0.8, Mix: []ArchetypeWeight{
				{ArchetypeCar, 3}, {ArchetypeMotorcycle, 2},
			}},
			{Name: "night", From: 22, To: 6, Factor: 0.4, Mix: []ArchetypeWeight{
				{ArchetypeTaxi, 3}, {ArchetypeCar, 1},
			}},
		},

		Signals: SignalTiming{
			MinGreen:            5,
			MaxGreen:            15,
			Amber:               3,
			AllRed:              1,
			QueueGain:           0.8,
			PrincipalGreenBonus: 3,
		},
		Analyzer: AnalyzerConfig{
			LowDensity:        0.3,
			HighDensity:       0.85,
			SlowSpeedFraction: 0.5,
			GridlockSpeed:     0.5,
			GridlockWindow:    5,
		},
		Narrator: NarratorConfig{
			Cooldown:       2,
			ReportInterval: 15,
			MaxMessages:    10,
		},

		MergeTieBreak: TieBreakArrival,

		MinibusStopChance:     0.02,
		MinibusDwellMin:       1,
		MinibusDwellMax:       3,
		MotoLaneChangeDensity: 0.5,
		TaxiPickupRate:        0.05,
		TaxiSeekFactor:        0.8,
	}
}

// Validate checks the configuration at startup. Any failure is fatal.
func (c Config) Validate() error {
	if c.DT <= 0 {
		return fmt.Errorf("%w: dt must be positive, got %v", ErrBadConfig, c.DT)
	}
	if c.MaxVehicles <= 0 {
		return fmt.Errorf("%w: maxVehicles must be positive", ErrBadConfig)
	}
	if c.MinGap <= 0 || c.SlotLength < c.MinGap {
		return fmt.Errorf("%w: need 0 < minGap <= slotLength (gap=%v slot=%v)", ErrBadConfig, c.MinGap, c.SlotLength)
	}
	if c.SpawnIntervalMin <= 0 || c.SpawnIntervalMax < c.SpawnIntervalMin {
		return fmt.Errorf("%w: bad spawn interval range [%v, %v]", ErrBadConfig, c.SpawnIntervalMin, c.SpawnIntervalMax)
	}
	if len(c.Archetypes) == 0 {
		return fmt.Errorf("%w: no archetypes configured", ErrBadConfig)
	}
	for a, p := range c.Archetypes {
		if p.MaxSpeed <= 0 {
			return fmt.Errorf("%w: archetype %s has non-positive max speed", ErrBadConfig, a)
		}
		// Conflict resolution admits at most one merge per lane per
		// tick, which holds only while nothing can cover a full gap in
		// a single step.
		if p.MaxSpeed*c.DT > c.MinGap {
			return fmt.Errorf("%w: archetype %s moves %.2fm per tick, more than the %vm minimum gap",
				ErrBadConfig, a, p.MaxSpeed*c.DT, c.MinGap)
		}
	}
	if len(c.Windows) == 0 {
		return fmt.Errorf("%w: no spawn windows configured", ErrBadConfig)
	}
	for _, w := range c.Windows {
		if w.Factor <= 0 {
			return fmt.Errorf("%w: window %q has non-positive factor", ErrBadConfig, w.Name)
		}
		if len(w.Mix) == 0 {
			return fmt.Errorf("%w: window %q has an empty archetype mix", ErrBadConfig, w.Name)
		}
		for _, m := range w.Mix {
			if _, ok := c.Archetypes[m.Archetype]; !ok {
				return fmt.Errorf("%w: window %q references unknown archetype %s", ErrBadConfig, w.Name, m.Archetype)
			}
			if m.Weight <= 0 {
				return fmt.Errorf("%w: window %q has non-positive weight for %s", ErrBadConfig, w.Name, m.Archetype)
			}
		}
	}
	s := c.Signals
	if s.MinGreen <= 0 || s.MaxGreen < s.MinGreen {
		return fmt.Errorf("%w: need 0 < minGreen <= maxGreen (min=%v max=%v)", ErrBadConfig, s.MinGreen, s.MaxGreen)
	}
	if s.Amber <= 0 || s.AllRed < 0 || s.QueueGain < 0 {
		return fmt.Errorf("%w: bad signal timing", ErrBadConfig)
	}
	a := c.Analyzer
	if a.LowDensity <= 0 || a.HighDensity <= a.LowDensity {
		return fmt.Errorf("%w: need 0 < lowDensity < highDensity (low=%v high=%v)", ErrBadConfig, a.LowDensity, a.HighDensity)
	}
	if a.SlowSpeedFraction <= 0 || a.SlowSpeedFraction >= 1 {
		return fmt.Errorf("%w: slowSpeedFraction must be in (0,1)", ErrBadConfig)
	}
	if a.GridlockWindow < 1 {
		return fmt.Errorf("%w: gridlockWindow must be at least 1", ErrBadConfig)
	}
	switch c.MergeTieBreak {
	case TieBreakArrival, TieBreakSpawnOrder:
	default:
		return fmt.Errorf("%w: unknown merge tie-break %q", ErrBadConfig, c.MergeTieBreak)
	}
	if c.MinibusDwellMin <= 0 || c.MinibusDwellMax < c.MinibusDwellMin {
		return fmt.Errorf("%w: bad minibus dwell range", ErrBadConfig)
	}
	return nil
}

// WindowFor returns the spawn window covering the given hour.
func (c Config) WindowFor(hour float64) SpawnWindow {
	for _, w := range c.Windows {
		if w.Contains(hour) {
			return w
		}
	}
	// Validate guarantees at least one window; fall back to the first.
	return c.Windows[0]
}
