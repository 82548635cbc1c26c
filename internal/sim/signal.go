package sim

import (
	"fmt"

	"github.com/anggasct/fluo"
)

// Phase is the signal phase exposed to vehicles and snapshots.
type Phase string

const (
	PhaseNSGreen  Phase = "ns_green"
	PhaseNSAmber  Phase = "ns_amber"
	PhaseAllRedNS Phase = "all_red_ns"
	PhaseEWGreen  Phase = "ew_green"
	PhaseEWAmber  Phase = "ew_amber"
	PhaseAllRedEW Phase = "all_red_ew"
)

// ApproachGroup buckets an intersection's incoming edges by heading.
type ApproachGroup string

const (
	ApproachNS ApproachGroup = "ns"
	ApproachEW ApproachGroup = "ew"
)

const signalAdvanceEvent = "advance"

// signalMachine is the shared phase-cycle definition; every signal runs
// its own instance. The cycle is fixed: green, amber, all-red, then the
// crossing group.
var signalMachine = buildSignalMachine()

func buildSignalMachine() fluo.MachineDefinition {
	b := fluo.NewMachine()
	b.State(string(PhaseNSGreen)).Initial().To(string(PhaseNSAmber)).On(signalAdvanceEvent)
	b.State(string(PhaseNSAmber)).To(string(PhaseAllRedNS)).On(signalAdvanceEvent)
	b.State(string(PhaseAllRedNS)).To(string(PhaseEWGreen)).On(signalAdvanceEvent)
	b.State(string(PhaseEWGreen)).To(string(PhaseEWAmber)).On(signalAdvanceEvent)
	b.State(string(PhaseEWAmber)).To(string(PhaseAllRedEW)).On(signalAdvanceEvent)
	b.State(string(PhaseAllRedEW)).To(string(PhaseNSGreen)).On(signalAdvanceEvent)
	return b.Build()
}

// TrafficSignal owns the phase state of one intersection. It is created
// at engine init and mutated only by the engine's signal update step.
type TrafficSignal struct {
	Intersection NodeID

	machine fluo.Machine
	timing  SignalTiming

	timer     float64 // elapsed in the current phase
	dwell     float64 // current phase duration
	nextGreen map[ApproachGroup]float64
	queues    map[ApproachGroup]int
	changes   int64
}

// NewTrafficSignal builds the signal for an intersection. Principal
// intersections receive the configured green bonus on both bounds.
func NewTrafficSignal(node *Node, timing SignalTiming) (*TrafficSignal, error) {
	if node.Principal {
		timing.MinGreen += timing.PrincipalGreenBonus
		timing.MaxGreen += timing.PrincipalGreenBonus
	}
	m := signalMachine.CreateInstance()
	if err := m.Start(); err != nil {
		return nil, fmt.Errorf("signal %s: %w", node.ID, err)
	}
	if Phase(m.CurrentState()) != PhaseNSGreen {
		return nil, fmt.Errorf("%w: signal %s started in phase %q", ErrInvariant, node.ID, m.CurrentState())
	}
	s := &TrafficSignal{
		Intersection: node.ID,
		machine:      m,
		timing:       timing,
		dwell:        timing.MinGreen,
		nextGreen: map[ApproachGroup]float64{
			ApproachNS: timing.MinGreen,
			ApproachEW: timing.MinGreen,
		},
		queues: map[ApproachGroup]int{},
	}
	return s, nil
}

// Phase returns the current phase.
func (s *TrafficSignal) Phase() Phase { return Phase(s.machine.CurrentState()) }

// Remaining returns the time left in the current phase.
func (s *TrafficSignal) Remaining() float64 {
	if r := s.dwell - s.timer; r > 0 {
		return r
	}
	return 0
}

// ReportQueue feeds the approach queue length observed by the engine.
// The adaptive dwell for the group's next green is recomputed here:
// monotonic in queue length, clamped to [MinGreen, MaxGreen].
func (s *TrafficSignal) ReportQueue(group ApproachGroup, length int) {
	s.queues[group] = length
	d := s.timing.MinGreen + s.timing.QueueGain*float64(length)
	if d > s.timing.MaxGreen {
		d = s.timing.MaxGreen
	}
	s.nextGreen[group] = d
}

// Advance moves the phase timer by dt, firing as many transitions as
// the elapsed time covers, and returns the resulting phase. A refused
// transition means the machine is corrupt; the cycle has a transition
// out of every phase, so that is an invariant violation.
func (s *TrafficSignal) Advance(dt float64) (Phase, error) {
	s.timer += dt
	for s.timer >= s.dwell {
		s.timer -= s.dwell
		res := s.machine.SendEvent(signalAdvanceEvent, nil)
		if res == nil || !res.Success() {
			return s.Phase(), fmt.Errorf("%w: signal %s rejected advance from %q",
				ErrInvariant, s.Intersection, s.machine.CurrentState())
		}
		s.changes++
		s.dwell = s.dwellFor(s.Phase())
	}
	return s.Phase(), nil
}

func (s *TrafficSignal) dwellFor(p Phase) float64 {
	switch p {
	case PhaseNSGreen:
		return s.nextGreen[ApproachNS]
	case PhaseEWGreen:
		return s.nextGreen[ApproachEW]
	case PhaseNSAmber, PhaseEWAmber:
		return s.timing.Amber
	default:
		if s.timing.AllRed > 0 {
			return s.timing.AllRed
		}
		return 0.001 // zero-length all-red still needs a positive dwell
	}
}

// RightOfWay reports whether the given approach group may proceed.
// Amber and all-red grant no one the right of way.
func (s *TrafficSignal) RightOfWay(group ApproachGroup) bool {
	switch s.Phase() {
	case PhaseNSGreen:
		return group == ApproachNS
	case PhaseEWGreen:
		return group == ApproachEW
	default:
		return false
	}
}

// Changes returns how many phase transitions have fired.
func (s *TrafficSignal) Changes() int64 { return s.changes }

// approachGroupFor classifies an incoming edge by its heading.
func approachGroupFor(net *Network, e *Edge) ApproachGroup {
	f, _ := net.Node(e.From)
	t, _ := net.Node(e.To)
	dx, dy := t.X-f.X, t.Y-f.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	if dy >= dx {
		return ApproachNS
	}
	return ApproachEW
}
