package sim

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// command is a user-input request relayed by the renderer. Commands are
// queued and applied only at tick boundaries so snapshots stay
// internally consistent.
type command struct {
	kind string // "pause", "resume", "reset", "spawn", "set_hour"
	hour float64
}

// TickResult is what one tick publishes: the immutable snapshot plus
// the drained event list.
type TickResult struct {
	Snapshot *Snapshot
	Events   []Event
}

// Engine owns the authoritative world state and runs the per-tick
// update. All mutation happens inside Tick; external callers only
// enqueue commands and read published results.
type Engine struct {
	cfg Config
	net *Network
	log *slog.Logger
	rng *rand.Rand

	signals  []*TrafficSignal
	signalAt map[NodeID]*TrafficSignal
	groupOf  map[EdgeID]ApproachGroup

	vehicles []*Vehicle // ascending spawn order
	seq      int64

	tick       int64
	hour       float64
	paused     bool
	untilSpawn float64

	analyzer *CongestionAnalyzer
	stats    Stats

	mu      sync.Mutex
	pending []command
}

// New builds an engine over a finalized network. Configuration errors
// and unconstructable signals are fatal here, never later.
func New(cfg Config, net *Network, log *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		cfg: cfg,
		net: net,
		log: log,
	}
	if err := e.initWorld(); err != nil {
		return nil, err
	}
	e.log.Info("engine initialized",
		"edges", len(net.Edges()), "signals", len(e.signals), "seed", cfg.Seed)
	return e, nil
}

// initWorld (re)creates all mutable state from the static config and
// network. Also used by the reset command.
func (e *Engine) initWorld() error {
	e.rng = rand.New(rand.NewSource(e.cfg.Seed))
	e.signals = nil
	e.signalAt = make(map[NodeID]*TrafficSignal)
	e.groupOf = make(map[EdgeID]ApproachGroup)
	e.vehicles = nil
	e.seq = 0
	e.tick = 0
	e.hour = e.cfg.StartHour
	e.paused = false
	e.untilSpawn = e.nextSpawnInterval()
	e.analyzer = NewCongestionAnalyzer(e.cfg.Analyzer)
	e.stats = Stats{ByType: make(map[Archetype]int64)}

	for _, edge := range e.net.Edges() {
		e.groupOf[edge.ID] = approachGroupFor(e.net, edge)
	}
	for _, node := range e.net.Nodes() {
		in := e.net.Incoming(node.ID)
		var ns, ew bool
		for _, edge := range in {
			if e.groupOf[edge.ID] == ApproachNS {
				ns = true
			} else {
				ew = true
			}
		}
		if !ns || !ew {
			continue // nothing to arbitrate
		}
		sig, err := NewTrafficSignal(node, e.cfg.Signals)
		if err != nil {
			return fmt.Errorf("init signals: %w", err)
		}
		e.signals = append(e.signals, sig)
		e.signalAt[node.ID] = sig
	}
	return nil
}

// Hour returns the simulated clock, for tests and diagnostics.
func (e *Engine) Hour() float64 { return e.hour }

// ActiveVehicles returns the size of the active set.
func (e *Engine) ActiveVehicles() int { return len(e.vehicles) }

// Pause, Resume, Reset, SpawnVehicle and SetHour enqueue user commands;
// they take effect at the next tick boundary.
func (e *Engine) Pause()        { e.enqueue(command{kind: "pause"}) }
func (e *Engine) Resume()       { e.enqueue(command{kind: "resume"}) }
func (e *Engine) Reset()        { e.enqueue(command{kind: "reset"}) }
func (e *Engine) SpawnVehicle() { e.enqueue(command{kind: "spawn"}) }
func (e *Engine) SetHour(h float64) {
	e.enqueue(command{kind: "set_hour", hour: h})
}

func (e *Engine) enqueue(c command) {
	e.mu.Lock()
	e.pending = append(e.pending, c)
	e.mu.Unlock()
}

// Tick advances the world by one fixed step and publishes the result.
// The order is fixed: commands, clock, signals, spawning, decisions,
// resolution, apply, analysis, snapshot. A returned error is an
// invariant violation and the simulation must stop.
func (e *Engine) Tick() (*TickResult, error) {
	var events []Event

	if err := e.applyCommands(&events); err != nil {
		return nil, err
	}
	if e.paused {
		return &TickResult{Snapshot: e.snapshot(), Events: events}, nil
	}

	e.tick++
	e.hour += e.cfg.HoursPerTick
	if e.hour >= 24 {
		e.hour -= 24
	}

	// 1. Signals.
	if err := e.advanceSignals(&events); err != nil {
		return nil, err
	}

	// 2. Spawn policy.
	e.runSpawns(&events)

	// 3. Collect intents. No vehicle state changes until all decisions
	// are in.
	intents := e.collectIntents()

	// 4+5. Resolve conflicts and apply.
	if err := e.applyIntents(intents, &events); err != nil {
		return nil, err
	}

	// 6. Congestion analysis.
	samples := e.edgeSamples()
	for _, ev := range e.analyzer.Sample(e.tick, samples) {
		events = append(events, ev)
	}

	// 7. Publish.
	e.refreshStats()
	return &TickResult{Snapshot: e.snapshotWith(samples), Events: events}, nil
}

func (e *Engine) applyCommands(events *[]Event) error {
	e.mu.Lock()
	cmds := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, c := range cmds {
		switch c.kind {
		case "pause":
			e.paused = true
			e.log.Info("simulation paused")
		case "resume":
			e.paused = false
			e.log.Info("simulation resumed")
		case "reset":
			if err := e.initWorld(); err != nil {
				return err
			}
			e.log.Info("simulation reset")
		case "spawn":
			e.trySpawn(events, true)
		case "set_hour":
			if c.hour >= 0 && c.hour < 24 {
				e.hour = c.hour
				e.log.Info("simulated hour changed", "hour", c.hour)
			} else {
				e.log.Warn("ignoring out-of-range hour", "hour", c.hour)
			}
		}
	}
	return nil
}

func (e *Engine) advanceSignals(events *[]Event) error {
	queues := e.queueLengths()
	for _, sig := range e.signals {
		q := queues[sig.Intersection]
		sig.ReportQueue(ApproachNS, q[ApproachNS])
		sig.ReportQueue(ApproachEW, q[ApproachEW])

		before := sig.Phase()
		after, err := sig.Advance(e.cfg.DT)
		if err != nil {
			return err
		}
		if after != before {
			*events = append(*events, SignalPhaseChanged{
				Tick: e.tick, Intersection: sig.Intersection, Phase: after,
			})
		}
	}
	return nil
}

// queueLengths counts slow vehicles near the stop line per approach
// group of every signalled intersection.
func (e *Engine) queueLengths() map[NodeID]map[ApproachGroup]int {
	out := make(map[NodeID]map[ApproachGroup]int, len(e.signals))
	for _, sig := range e.signals {
		out[sig.Intersection] = map[ApproachGroup]int{}
	}
	for _, v := range e.vehicles {
		edge, _ := e.net.Edge(v.Edge)
		q, ok := out[edge.To]
		if !ok {
			continue
		}
		if edge.Length-v.Offset <= e.cfg.QueueDistance && v.Speed < 1 {
			q[e.groupOf[edge.ID]]++
		}
	}
	return out
}

// nextSpawnInterval draws the time until the next spawn attempt,
// shortened or stretched by the current time-of-day factor.
func (e *Engine) nextSpawnInterval() float64 {
	base := e.cfg.SpawnIntervalMin +
		e.rng.Float64()*(e.cfg.SpawnIntervalMax-e.cfg.SpawnIntervalMin)
	return base / e.cfg.WindowFor(e.hour).Factor
}

func (e *Engine) runSpawns(events *[]Event) {
	e.untilSpawn -= e.cfg.DT
	for e.untilSpawn <= 0 {
		e.untilSpawn += e.nextSpawnInterval()
		e.trySpawn(events, false)
	}
}

// trySpawn attempts one spawn under the current time-of-day pattern.
// Failures are warnings, never fatal. Manual spawns (user command)
// ignore the population cap check only in logging, not in effect.
func (e *Engine) trySpawn(events *[]Event, manual bool) {
	if len(e.vehicles) >= e.cfg.MaxVehicles {
		if manual {
			e.log.Warn("spawn rejected: population cap reached", "active", len(e.vehicles))
		}
		return
	}
	window := e.cfg.WindowFor(e.hour)
	archetype := e.pickArchetype(window.Mix)

	entries := e.net.Entries()
	entry := entries[e.rng.Intn(len(entries))]
	exit := e.pickDestination(archetype)

	route, err := e.net.ShortestPath(entry, exit)
	if err != nil {
		e.stats.Rejected++
		*events = append(*events, SpawnRejected{
			Tick: e.tick, Entry: entry, Exit: exit, Reason: "no route",
		})
		e.log.Warn("spawn rejected: no route", "entry", entry, "exit", exit)
		return
	}

	lane, ok := e.freeEntryLane(entry)
	if !ok {
		e.stats.Rejected++
		*events = append(*events, SpawnRejected{
			Tick: e.tick, Entry: entry, Exit: exit, Reason: "entry at capacity",
		})
		e.log.Warn("spawn rejected: entry at capacity", "entry", entry)
		return
	}

	id, err := uuid.NewRandomFromReader(e.rng)
	if err != nil {
		// rng.Read never fails; treat defensively as a rejected spawn.
		e.stats.Rejected++
		return
	}
	e.seq++
	v := &Vehicle{
		ID:        id.String(),
		Seq:       e.seq,
		Archetype: archetype,
		Edge:      entry,
		Lane:      lane,
		Route:     route,
		State:     StateCruising,
		params:    e.cfg.Archetypes[archetype],
	}
	if archetype == ArchetypeTaxi {
		v.State = StateSeeking
	}
	e.vehicles = append(e.vehicles, v)

	e.stats.Spawned++
	e.stats.ByType[archetype]++
	if len(e.vehicles) > e.stats.Peak {
		e.stats.Peak = len(e.vehicles)
	}
	*events = append(*events, VehicleSpawned{
		Tick: e.tick, ID: v.ID, Seq: v.Seq, Archetype: archetype,
		Edge: entry, RouteLen: len(route),
	})
}

func (e *Engine) pickArchetype(mix []ArchetypeWeight) Archetype {
	var total float64
	for _, m := range mix {
		total += m.Weight
	}
	r := e.rng.Float64() * total
	for _, m := range mix {
		r -= m.Weight
		if r < 0 {
			return m.Archetype
		}
	}
	return mix[len(mix)-1].Archetype
}

// pickDestination chooses a route terminus: seeking taxis head for the
// high-demand centre, everything else leaves through a random exit.
func (e *Engine) pickDestination(a Archetype) EdgeID {
	if a == ArchetypeTaxi {
		if centro := e.net.ZoneEdges(ZoneCentro); len(centro) > 0 {
			return centro[e.rng.Intn(len(centro))]
		}
	}
	exits := e.net.Exits()
	return exits[e.rng.Intn(len(exits))]
}

// freeEntryLane finds a lane whose first stretch is clear for a new
// vehicle at offset zero.
func (e *Engine) freeEntryLane(entry EdgeID) (int, bool) {
	edge, _ := e.net.Edge(entry)
	occupied := make([]bool, edge.Lanes)
	count := 0
	for _, v := range e.vehicles {
		if v.Edge != entry {
			continue
		}
		count++
		if v.Offset < e.cfg.MinGap+e.cfg.SlotLength {
			occupied[v.Lane] = true
		}
	}
	if count >= edge.Capacity {
		return 0, false
	}
	for lane := 0; lane < edge.Lanes; lane++ {
		if !occupied[lane] {
			return lane, true
		}
	}
	return 0, false
}

// laneIndex maps every occupied edge to its vehicles sorted far-to-near
// (descending offset, ties by spawn order).
func (e *Engine) laneIndex() map[EdgeID][]*Vehicle {
	idx := make(map[EdgeID][]*Vehicle)
	for _, v := range e.vehicles {
		idx[v.Edge] = append(idx[v.Edge], v)
	}
	for _, vs := range idx {
		sort.Slice(vs, func(i, j int) bool {
			if vs[i].Offset != vs[j].Offset {
				return vs[i].Offset > vs[j].Offset
			}
			return vs[i].Seq < vs[j].Seq
		})
	}
	return idx
}

// collectIntents runs every vehicle's decision against a frozen view of
// the world. Nothing is mutated here, so collection order cannot
// influence the outcome; the fixed order matters only for the shared
// random stream.
func (e *Engine) collectIntents() []Intent {
	idx := e.laneIndex()
	intents := make([]Intent, 0, len(e.vehicles))
	for _, v := range e.vehicles {
		intents = append(intents, v.Decide(e.tickContext(v, idx)))
	}
	return intents
}

func (e *Engine) tickContext(v *Vehicle, idx map[EdgeID][]*Vehicle) *TickContext {
	edge, _ := e.net.Edge(v.Edge)
	ctx := &TickContext{
		Cfg:           &e.cfg,
		Net:           e.net,
		Edge:          edge,
		DistanceToEnd: edge.Length - v.Offset,
		DT:            e.cfg.DT,
		Rand:          e.rng,
	}
	if ctx.DistanceToEnd < 0 {
		ctx.DistanceToEnd = 0
	}

	if sig, ok := e.signalAt[edge.To]; ok {
		ctx.HasSignal = true
		ctx.RightOfWay = sig.RightOfWay(e.groupOf[edge.ID])
	}

	ctx.Density = float64(len(idx[v.Edge])) / float64(edge.Capacity)

	// Nearest leader on the same lane; if the stretch ahead is clear,
	// look a bounded distance into the next route edge.
	for i := len(idx[v.Edge]) - 1; i >= 0; i-- {
		o := idx[v.Edge][i]
		if o == v || o.Lane != v.Lane || o.Offset <= v.Offset {
			continue
		}
		if ctx.Leader == nil || o.Offset < ctx.Leader.Offset {
			ctx.Leader = &NeighborView{Seq: o.Seq, Offset: o.Offset, Speed: o.Speed, Lane: o.Lane}
		}
	}
	if ctx.Leader == nil && ctx.DistanceToEnd <= e.cfg.StoppingDistance && v.RouteIndex+1 < len(v.Route) {
		next := v.Route[v.RouteIndex+1]
		var tail *Vehicle
		for _, o := range idx[next] {
			if o.Lane != v.Lane {
				continue
			}
			if tail == nil || o.Offset < tail.Offset {
				tail = o
			}
		}
		if tail != nil && tail.Offset <= e.cfg.StoppingDistance {
			ctx.Leader = &NeighborView{
				Seq:    tail.Seq,
				Offset: v.Offset + ctx.DistanceToEnd + tail.Offset,
				Speed:  tail.Speed,
				Lane:   tail.Lane,
			}
		}
	}

	ctx.LaneClear = func(lane int) bool {
		for _, o := range idx[v.Edge] {
			if o == v || o.Lane != lane {
				continue
			}
			d := o.Offset - v.Offset
			if d < 0 {
				d = -d
			}
			if d < e.cfg.MinGap {
				return false
			}
		}
		return true
	}
	return ctx
}

// pendingMove is a resolved-in-progress intent.
type pendingMove struct {
	v       *Vehicle
	intent  Intent
	edge    EdgeID // final edge
	offset  float64
	lane    int
	moved   float64
	despawn bool
	crossed bool
	distEnd float64 // distance to intersection at decision time
}

// applyIntents resolves all intents against gap, capacity and merge
// constraints, then writes the results back. This is the only place
// vehicle state changes.
func (e *Engine) applyIntents(intents []Intent, events *[]Event) error {
	moves := make([]*pendingMove, 0, len(e.vehicles))

	// Tentative positions.
	for i, v := range e.vehicles {
		in := intents[i]
		edge, _ := e.net.Edge(v.Edge)
		distEnd := edge.Length - v.Offset
		m := &pendingMove{v: v, intent: in, edge: v.Edge, lane: v.Lane, distEnd: distEnd}

		if in.Delta >= distEnd {
			if v.RouteIndex+1 < len(v.Route) {
				m.crossed = true
				m.edge = v.Route[v.RouteIndex+1]
				carry := in.Delta - distEnd
				if next, _ := e.net.Edge(m.edge); carry > next.Length {
					carry = next.Length
				}
				m.offset = carry
				m.moved = distEnd + carry
				if next, _ := e.net.Edge(m.edge); m.lane >= next.Lanes {
					m.lane = next.Lanes - 1
				}
			} else if v.State == StateSeeking {
				// A seeking taxi's cruise route ending is not a
				// despawn; it waits at the line and re-routes below.
				m.offset = edge.Length - e.cfg.StopLineMargin
				if m.offset < v.Offset {
					m.offset = v.Offset
				}
				m.moved = m.offset - v.Offset
			} else {
				// Route exhausted: the vehicle reaches its terminus.
				m.despawn = true
				m.offset = edge.Length
				m.moved = distEnd
			}
		} else {
			m.offset = v.Offset + in.Delta
			m.moved = in.Delta
		}
		moves = append(moves, m)
	}

	// Lane changes, in spawn order, re-checked against already granted
	// changes so two movers never claim the same slot.
	for _, m := range moves {
		if m.intent.LaneChange == 0 || m.crossed || m.despawn {
			continue
		}
		edge, _ := e.net.Edge(m.edge)
		target := m.v.Lane + m.intent.LaneChange
		if target < 0 || target >= edge.Lanes {
			continue
		}
		clear := true
		for _, o := range moves {
			if o == m || o.despawn {
				continue
			}
			if o.edge == m.edge && o.lane == target {
				d := o.offset - m.offset
				if d < 0 {
					d = -d
				}
				if d < e.cfg.MinGap {
					clear = false
					break
				}
			}
			// A crossing out of the target lane may still be reverted
			// to a hold at the stop line; its hold position is never
			// behind its pre-tick offset, so keep that gap too.
			if o.crossed && o.v.Edge == m.edge && o.v.Lane == target {
				d := o.v.Offset - m.offset
				if d < 0 {
					d = -d
				}
				if d < e.cfg.MinGap {
					clear = false
					break
				}
			}
		}
		if clear {
			m.lane = target
		}
	}

	// Merge admission: crossings contend for the target edge's spare
	// capacity. Priority is the configured tie-break; losers hold at
	// the stop line.
	e.resolveMerges(moves)

	// Per-lane gap enforcement, front to back. A follower may be pushed
	// back to its pre-tick position but never behind it.
	e.enforceGaps(moves)

	// Write-back.
	kept := e.vehicles[:0]
	for _, m := range moves {
		v := m.v
		if m.despawn {
			e.stats.Despawned++
			e.stats.ByType[v.Archetype]--
			*events = append(*events, VehicleDespawned{
				Tick: e.tick, ID: v.ID, Seq: v.Seq, Archetype: v.Archetype, Edge: v.Edge,
			})
			continue
		}
		if m.crossed && m.edge != v.Edge {
			v.RouteIndex++
		}
		v.Edge = m.edge
		v.Offset = m.offset
		v.Lane = m.lane
		v.Speed = m.moved / e.cfg.DT

		// Passenger stops.
		if m.intent.BeginDwell > 0 && v.DwellLeft == 0 {
			v.DwellLeft = m.intent.BeginDwell
			v.State = StateBoarding
		} else if v.DwellLeft > 0 {
			v.DwellLeft -= e.cfg.DT
			if v.DwellLeft <= 0 {
				v.DwellLeft = 0
				v.State = StateCruising
			}
		}

		// Taxi fare pickup: re-route to a drop-off and switch state.
		if m.intent.Pickup && v.State == StateSeeking {
			e.reroute(v, "pickup", events)
		} else if v.State == StateSeeking && v.RouteIndex == len(v.Route)-1 &&
			v.Offset >= mustEdge(e.net, v.Edge).Length-e.cfg.StopLineMargin {
			// Seeking taxi at its cruise terminus keeps wandering.
			e.reroute(v, "seek", events)
		}

		kept = append(kept, v)
	}
	e.vehicles = kept

	return e.checkInvariants()
}

func mustEdge(n *Network, id EdgeID) *Edge {
	e, _ := n.Edge(id)
	return e
}

// reroute recomputes a taxi's route from its current edge. A pickup
// heads for an exit; continued seeking heads back into the centre. A
// routing failure just retires the vehicle at its next terminus.
func (e *Engine) reroute(v *Vehicle, cause string, events *[]Event) {
	var dest EdgeID
	if cause == "pickup" {
		exits := e.net.Exits()
		dest = exits[e.rng.Intn(len(exits))]
	} else {
		centro := e.net.ZoneEdges(ZoneCentro)
		if len(centro) == 0 {
			return
		}
		dest = centro[e.rng.Intn(len(centro))]
	}
	route, err := e.net.ShortestPath(v.Edge, dest)
	if err != nil {
		e.log.Warn("reroute failed", "vehicle", v.ID, "dest", dest)
		return
	}
	v.Route = route
	v.RouteIndex = 0
	if cause == "pickup" {
		v.State = StateOccupied
	}
	*events = append(*events, VehicleRerouted{
		Tick: e.tick, ID: v.ID, Seq: v.Seq, Edge: v.Edge, Cause: cause,
	})
}

// resolveMerges admits edge-crossing moves while the target edge has
// spare capacity and downgrades the rest to hold at the stop line.
func (e *Engine) resolveMerges(moves []*pendingMove) {
	byTarget := make(map[EdgeID][]*pendingMove)
	staying := make(map[EdgeID]int)
	for _, m := range moves {
		if m.despawn {
			continue
		}
		if m.crossed {
			byTarget[m.edge] = append(byTarget[m.edge], m)
		} else {
			staying[m.edge]++
		}
	}

	targets := make([]EdgeID, 0, len(byTarget))
	for id := range byTarget {
		targets = append(targets, id)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	for _, target := range targets {
		cands := byTarget[target]
		sort.Slice(cands, func(i, j int) bool {
			a, b := cands[i], cands[j]
			if e.cfg.MergeTieBreak == TieBreakArrival && a.distEnd != b.distEnd {
				return a.distEnd < b.distEnd // closer to the junction wins
			}
			return a.v.Seq < b.v.Seq
		})
		edge, _ := e.net.Edge(target)
		room := edge.Capacity - staying[target]
		for _, m := range cands {
			if room > 0 {
				room--
				continue
			}
			e.holdAtLine(m) // the loser waits at the line
		}
	}
}

// enforceGaps clamps followers so no two vehicles end the tick within
// the minimum gap on the same lane of the same edge. A crossing whose
// clamp would land before the edge start is reverted to a hold at the
// stop line instead; the merge candidate's own followers were limited
// by its pre-tick position, so the revert cannot create an overlap.
func (e *Engine) enforceGaps(moves []*pendingMove) {
	type key struct {
		edge EdgeID
		lane int
	}
	groups := make(map[key][]*pendingMove)
	for _, m := range moves {
		if m.despawn {
			continue
		}
		groups[key{m.edge, m.lane}] = append(groups[key{m.edge, m.lane}], m)
	}
	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].edge != keys[j].edge {
			return keys[i].edge < keys[j].edge
		}
		return keys[i].lane < keys[j].lane
	})

	for _, k := range keys {
		g := groups[k]
		sort.Slice(g, func(i, j int) bool {
			if g[i].offset != g[j].offset {
				return g[i].offset > g[j].offset
			}
			// Same landing offset: the earlier arrival keeps the front.
			return g[i].v.Seq < g[j].v.Seq
		})
		var lead *pendingMove
		for _, m := range g {
			if lead == nil {
				lead = m
				continue
			}
			limit := lead.offset - e.cfg.MinGap
			if m.offset <= limit {
				lead = m
				continue
			}
			if m.edge != m.v.Edge && limit < 0 {
				e.holdAtLine(m)
				continue // no longer in this lane group
			}
			m.offset = limit
			if m.edge == m.v.Edge && m.offset < m.v.Offset {
				m.offset = m.v.Offset
			}
			if m.offset < 0 {
				m.offset = 0
			}
			if m.edge == m.v.Edge {
				m.moved = m.offset - m.v.Offset
			} else {
				cur, _ := e.net.Edge(m.v.Edge)
				m.moved = (cur.Length - m.v.Offset) + m.offset
			}
			if m.moved < 0 {
				m.moved = 0
			}
			lead = m
		}
	}
}

// holdAtLine downgrades a move to waiting at the stop line of the
// vehicle's current edge.
func (e *Engine) holdAtLine(m *pendingMove) {
	cur, _ := e.net.Edge(m.v.Edge)
	m.crossed = false
	m.edge = m.v.Edge
	m.lane = m.v.Lane
	m.offset = cur.Length - e.cfg.StopLineMargin
	if m.offset < m.v.Offset {
		m.offset = m.v.Offset
	}
	m.moved = m.offset - m.v.Offset
}

// checkInvariants validates post-apply positions. A violation is a
// logic defect, so it halts the simulation.
func (e *Engine) checkInvariants() error {
	for _, v := range e.vehicles {
		edge, ok := e.net.Edge(v.Edge)
		if !ok {
			return fmt.Errorf("%w: vehicle %s on unknown edge %s", ErrInvariant, v.ID, v.Edge)
		}
		if v.Offset < 0 || v.Offset > edge.Length+1e-6 {
			return fmt.Errorf("%w: vehicle %s offset %.2f outside edge %s (len %.2f)",
				ErrInvariant, v.ID, v.Offset, v.Edge, edge.Length)
		}
		if v.Lane < 0 || v.Lane >= edge.Lanes {
			return fmt.Errorf("%w: vehicle %s in lane %d of %d-lane edge %s",
				ErrInvariant, v.ID, v.Lane, edge.Lanes, v.Edge)
		}
	}
	return nil
}

// edgeSamples aggregates post-apply occupancy and speed per edge,
// sorted by edge ID.
func (e *Engine) edgeSamples() []EdgeSample {
	occ := make(map[EdgeID]int)
	speed := make(map[EdgeID]float64)
	for _, v := range e.vehicles {
		occ[v.Edge]++
		speed[v.Edge] += v.Speed
	}
	samples := make([]EdgeSample, 0, len(occ))
	for _, edge := range e.net.Edges() {
		n := occ[edge.ID]
		if n == 0 {
			continue // empty edges carry no signal worth analyzing
		}
		samples = append(samples, EdgeSample{
			Edge:       edge.ID,
			Zone:       edge.Zone,
			Occupancy:  n,
			Capacity:   edge.Capacity,
			MeanSpeed:  speed[edge.ID] / float64(n),
			SpeedLimit: edge.SpeedLimit,
		})
	}
	return samples
}

func (e *Engine) refreshStats() {
	e.stats.Active = len(e.vehicles)
	if len(e.vehicles) == 0 {
		e.stats.MeanSpeed = 0
		e.stats.Congestion = 0
		return
	}
	var total float64
	slow := 0
	for _, v := range e.vehicles {
		total += v.Speed
		if v.Speed < 0.5*v.params.MaxSpeed {
			slow++
		}
	}
	e.stats.MeanSpeed = total / float64(len(e.vehicles))
	e.stats.Congestion = float64(slow) / float64(len(e.vehicles)) * 100
}

// snapshot builds the immutable published copy of the world.
func (e *Engine) snapshot() *Snapshot { return e.snapshotWith(e.edgeSamples()) }

func (e *Engine) snapshotWith(samples []EdgeSample) *Snapshot {
	snap := &Snapshot{
		Tick:   e.tick,
		Hour:   e.hour,
		Paused: e.paused,
		Stats:  e.stats,
	}
	snap.Stats.ByType = make(map[Archetype]int64, len(e.stats.ByType))
	for k, n := range e.stats.ByType {
		snap.Stats.ByType[k] = n
	}

	snap.Vehicles = make([]VehicleState, len(e.vehicles))
	for i, v := range e.vehicles {
		snap.Vehicles[i] = VehicleState{
			ID: v.ID, Seq: v.Seq, Archetype: v.Archetype,
			Edge: v.Edge, Offset: v.Offset, Lane: v.Lane,
			Speed: v.Speed, State: v.State,
		}
	}
	snap.Signals = make([]SignalState, len(e.signals))
	for i, s := range e.signals {
		snap.Signals[i] = SignalState{
			Intersection: s.Intersection, Phase: s.Phase(), Remaining: s.Remaining(),
		}
	}
	snap.Edges = make([]EdgeCondition, len(samples))
	for i, s := range samples {
		snap.Edges[i] = EdgeCondition{
			Edge: s.Edge, Zone: s.Zone, Occupancy: s.Occupancy,
			MeanSpeed: s.MeanSpeed, Classification: e.analyzer.Classification(s.Edge),
		}
	}
	snap.Zones = e.zoneConditions()
	return snap
}

func (e *Engine) zoneConditions() []ZoneCondition {
	zones := []Zone{ZoneCentro, ZoneNorte, ZoneSur, ZoneEste, ZoneOeste}
	count := make(map[Zone]int)
	speed := make(map[Zone]float64)
	slow := make(map[Zone]int)
	for _, v := range e.vehicles {
		edge, _ := e.net.Edge(v.Edge)
		count[edge.Zone]++
		speed[edge.Zone] += v.Speed
		if v.Speed < 0.5*v.params.MaxSpeed {
			slow[edge.Zone]++
		}
	}
	out := make([]ZoneCondition, len(zones))
	for i, z := range zones {
		zc := ZoneCondition{Zone: z, Vehicles: count[z]}
		if count[z] > 0 {
			zc.MeanSpeed = speed[z] / float64(count[z])
			zc.CongestionPct = float64(slow[z]) / float64(count[z]) * 100
		}
		out[i] = zc
	}
	return out
}
