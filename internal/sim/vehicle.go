package sim

import (
	"math/rand"
)

// BehaviorState tags what a vehicle is currently doing. Most vehicles
// just cruise; minibuses pause for passengers, taxis alternate between
// scanning for fares and carrying one.
type BehaviorState string

const (
	StateCruising BehaviorState = "cruising"
	StateBoarding BehaviorState = "boarding"
	StateSeeking  BehaviorState = "seeking"
	StateOccupied BehaviorState = "occupied"
)

// Vehicle is one simulated entity. It is owned by the engine's active
// set; its route is computed once at spawn and replaced only by an
// explicit re-route.
type Vehicle struct {
	ID        string
	Seq       int64
	Archetype Archetype

	Edge   EdgeID
	Offset float64
	Lane   int
	Speed  float64

	Route      []EdgeID
	RouteIndex int

	State     BehaviorState
	DwellLeft float64 // remaining passenger-stop time

	params ArchetypeParams
}

// RemainingRoute reports how many edges are left, current one included.
func (v *Vehicle) RemainingRoute() int { return len(v.Route) - v.RouteIndex }

// NeighborView is the read-only slice of another vehicle a decision may
// look at.
type NeighborView struct {
	Seq    int64
	Offset float64
	Speed  float64
	Lane   int
}

// TickContext is the read-only world view handed to Decide. The engine
// fills one per vehicle per tick; nothing here may be written.
type TickContext struct {
	Cfg  *Config
	Net  *Network
	Edge *Edge

	HasSignal     bool
	RightOfWay    bool
	DistanceToEnd float64

	Leader  *NeighborView // nearest vehicle ahead on the same lane
	Density float64       // occupancy / capacity of the current edge

	// LaneClear reports whether the given lane has no vehicle within
	// the minimum gap window around this vehicle's offset.
	LaneClear func(lane int) bool

	DT   float64
	Rand *rand.Rand
}

// Intent is the ephemeral per-tick motion request a vehicle produces.
// The engine resolves all intents before any of them takes effect.
type Intent struct {
	Seq        int64
	Delta      float64 // desired forward movement, never negative
	Speed      float64 // implied speed after the move
	LaneChange int     // -1, 0, +1
	BeginDwell float64 // >0 starts a passenger stop of this length
	Pickup     bool    // taxi found a fare
}

// archetypeRule is one row of the behaviour table: a cruise-speed
// modifier plus the archetype's special move.
type archetypeRule struct {
	cruise  func(cfg *Config, v *Vehicle, desired float64) float64
	special func(cfg *Config, v *Vehicle, ctx *TickContext, in *Intent)
}

// behaviorTable replaces the original's per-type subclassing: adding an
// archetype is a new row, not a new type.
var behaviorTable = map[Archetype]archetypeRule{
	ArchetypeCar: {},
	ArchetypeMinibus: {
		special: func(cfg *Config, v *Vehicle, ctx *TickContext, in *Intent) {
			// Scheduled passenger stops: probabilistic, bounded dwell.
			if ctx.Rand.Float64() < cfg.MinibusStopChance*ctx.DT {
				in.BeginDwell = cfg.MinibusDwellMin +
					ctx.Rand.Float64()*(cfg.MinibusDwellMax-cfg.MinibusDwellMin)
			}
		},
	},
	ArchetypeMotorcycle: {
		special: func(cfg *Config, v *Vehicle, ctx *TickContext, in *Intent) {
			// Zigzag through dense traffic when an adjacent lane has a
			// safe gap.
			if ctx.Density < cfg.MotoLaneChangeDensity || ctx.Edge.Lanes < 2 {
				return
			}
			for _, dl := range []int{1, -1} {
				target := v.Lane + dl
				if target < 0 || target >= ctx.Edge.Lanes {
					continue
				}
				if ctx.LaneClear(target) {
					in.LaneChange = dl
					return
				}
			}
		},
	},
	ArchetypeTaxi: {
		cruise: func(cfg *Config, v *Vehicle, desired float64) float64 {
			if v.State == StateSeeking {
				return desired * cfg.TaxiSeekFactor // scanning the kerb
			}
			return desired
		},
		special: func(cfg *Config, v *Vehicle, ctx *TickContext, in *Intent) {
			if v.State == StateSeeking && ctx.Rand.Float64() < cfg.TaxiPickupRate*ctx.DT {
				in.Pickup = true
			}
		},
	},
}

// Decide computes the vehicle's motion intent for this tick. It reads
// the context and the vehicle's own state and mutates neither.
func (v *Vehicle) Decide(ctx *TickContext) Intent {
	cfg := ctx.Cfg
	in := Intent{Seq: v.Seq}

	// A vehicle mid passenger-stop stays put.
	if v.DwellLeft > 0 {
		return in
	}

	rule := behaviorTable[v.Archetype]

	desired := ctx.Edge.SpeedLimit
	if v.params.MaxSpeed < desired {
		desired = v.params.MaxSpeed
	}
	if rule.cruise != nil {
		desired = rule.cruise(cfg, v, desired)
	}

	delta := desired * ctx.DT

	// Signal handling: with no right of way the stop line is a hard
	// limit. The stopping-distance threshold only matters for longer
	// braking curves; at these tick sizes the clamp covers both.
	if ctx.HasSignal && !ctx.RightOfWay {
		limit := ctx.DistanceToEnd - cfg.StopLineMargin
		if limit < 0 {
			limit = 0
		}
		if delta > limit {
			delta = limit
		}
	}

	// Safe following distance to the leader. No safe gap means hold,
	// never a negative delta.
	if ctx.Leader != nil {
		headway := ctx.Leader.Offset - v.Offset - cfg.MinGap
		if headway < 0 {
			headway = 0
		}
		if delta > headway {
			delta = headway
		}
	}

	in.Delta = delta
	in.Speed = delta / ctx.DT

	if rule.special != nil {
		rule.special(cfg, v, ctx, &in)
	}
	if in.BeginDwell > 0 {
		in.Delta, in.Speed = 0, 0
	}
	return in
}
