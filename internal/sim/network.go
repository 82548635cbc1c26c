package sim

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
)

// EdgeID names a directed road segment.
type EdgeID string

// NodeID names an intersection.
type NodeID string

// Zone groups edges for congestion analysis and narration.
type Zone string

const (
	ZoneCentro Zone = "CENTRO"
	ZoneNorte  Zone = "NORTE"
	ZoneSur    Zone = "SUR"
	ZoneEste   Zone = "ESTE"
	ZoneOeste  Zone = "OESTE"
)

// StreetClass scales the effective speed limit of a segment.
type StreetClass string

const (
	StreetPrincipal StreetClass = "principal"
	StreetSecondary StreetClass = "secondary"
	StreetCobbled   StreetClass = "cobbled"
)

// Node is an intersection of the static road graph.
type Node struct {
	ID        NodeID
	X, Y      float64
	Principal bool // principal intersections run longer signal cycles
}

// Edge is a directed road segment between two intersections.
type Edge struct {
	ID         EdgeID
	From, To   NodeID
	Length     float64 // m
	Lanes      int
	SpeedLimit float64 // m/s, already scaled by street class
	Class      StreetClass
	Zone       Zone
	Entry      bool // vehicles may spawn here
	Exit       bool // routes may terminate here
	Capacity   int  // vehicles the segment can hold, all lanes
}

// Network is the static road graph. It never changes after Build and is
// read-only to every component but the map builder.
type Network struct {
	nodes map[NodeID]*Node
	edges map[EdgeID]*Edge
	out   map[NodeID][]*Edge // outgoing edges, sorted by ID
	in    map[NodeID][]*Edge // incoming edges, sorted by ID

	entries []EdgeID // sorted
	exits   []EdgeID // sorted
}

// NewNetwork returns an empty graph.
func NewNetwork() *Network {
	return &Network{
		nodes: make(map[NodeID]*Node),
		edges: make(map[EdgeID]*Edge),
		out:   make(map[NodeID][]*Edge),
		in:    make(map[NodeID][]*Edge),
	}
}

// AddNode inserts an intersection.
func (n *Network) AddNode(id NodeID, x, y float64, principal bool) {
	n.nodes[id] = &Node{ID: id, X: x, Y: y, Principal: principal}
}

// AddEdge inserts a directed segment between existing nodes.
func (n *Network) AddEdge(e Edge) error {
	if _, ok := n.nodes[e.From]; !ok {
		return fmt.Errorf("edge %s: unknown node %s", e.ID, e.From)
	}
	if _, ok := n.nodes[e.To]; !ok {
		return fmt.Errorf("edge %s: unknown node %s", e.ID, e.To)
	}
	if _, ok := n.edges[e.ID]; ok {
		return fmt.Errorf("duplicate edge %s", e.ID)
	}
	if e.Length <= 0 || e.Lanes < 1 || e.SpeedLimit <= 0 {
		return fmt.Errorf("edge %s: bad geometry", e.ID)
	}
	cp := e
	n.edges[cp.ID] = &cp
	n.out[cp.From] = append(n.out[cp.From], &cp)
	n.in[cp.To] = append(n.in[cp.To], &cp)
	if cp.Entry {
		n.entries = append(n.entries, cp.ID)
	}
	if cp.Exit {
		n.exits = append(n.exits, cp.ID)
	}
	return nil
}

// Finalize sorts adjacency for deterministic iteration and checks that
// every edge has a successor or is a terminal.
func (n *Network) Finalize() error {
	for id := range n.out {
		es := n.out[id]
		sort.Slice(es, func(i, j int) bool { return es[i].ID < es[j].ID })
	}
	for id := range n.in {
		es := n.in[id]
		sort.Slice(es, func(i, j int) bool { return es[i].ID < es[j].ID })
	}
	sort.Slice(n.entries, func(i, j int) bool { return n.entries[i] < n.entries[j] })
	sort.Slice(n.exits, func(i, j int) bool { return n.exits[i] < n.exits[j] })
	for _, e := range n.edges {
		if len(n.out[e.To]) == 0 && !e.Exit {
			return fmt.Errorf("edge %s dead-ends at %s without being an exit", e.ID, e.To)
		}
	}
	if len(n.entries) == 0 || len(n.exits) == 0 {
		return fmt.Errorf("network needs at least one entry and one exit edge")
	}
	return nil
}

// Edge looks up a segment by ID.
func (n *Network) Edge(id EdgeID) (*Edge, bool) {
	e, ok := n.edges[id]
	return e, ok
}

// Node looks up an intersection by ID.
func (n *Network) Node(id NodeID) (*Node, bool) {
	nd, ok := n.nodes[id]
	return nd, ok
}

// Neighbors returns the IDs of edges reachable after traversing edge.
func (n *Network) Neighbors(edge EdgeID) []EdgeID {
	e, ok := n.edges[edge]
	if !ok {
		return nil
	}
	succ := n.out[e.To]
	ids := make([]EdgeID, len(succ))
	for i, s := range succ {
		ids[i] = s.ID
	}
	return ids
}

// IntersectionFor returns the intersection an edge runs into.
func (n *Network) IntersectionFor(edge EdgeID) (NodeID, bool) {
	e, ok := n.edges[edge]
	if !ok {
		return "", false
	}
	return e.To, true
}

// Incoming returns the edges feeding an intersection, sorted by ID.
func (n *Network) Incoming(node NodeID) []*Edge { return n.in[node] }

// Outgoing returns the edges leaving an intersection, sorted by ID.
func (n *Network) Outgoing(node NodeID) []*Edge { return n.out[node] }

// Entries returns spawn-capable edges, sorted.
func (n *Network) Entries() []EdgeID { return n.entries }

// Exits returns despawn-capable edges, sorted.
func (n *Network) Exits() []EdgeID { return n.exits }

// Nodes returns all intersections sorted by ID.
func (n *Network) Nodes() []*Node {
	out := make([]*Node, 0, len(n.nodes))
	for _, nd := range n.nodes {
		out = append(out, nd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Edges returns all segments sorted by ID.
func (n *Network) Edges() []*Edge {
	out := make([]*Edge, 0, len(n.edges))
	for _, e := range n.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ShortestPath runs Dijkstra over the edge graph and returns the ordered
// edge sequence from start to end, both included. Returns ErrNoRoute
// when the edges are not connected.
func (n *Network) ShortestPath(start, end EdgeID) ([]EdgeID, error) {
	se, ok := n.edges[start]
	if !ok {
		return nil, fmt.Errorf("%w: unknown start edge %s", ErrNoRoute, start)
	}
	if _, ok := n.edges[end]; !ok {
		return nil, fmt.Errorf("%w: unknown end edge %s", ErrNoRoute, end)
	}
	if start == end {
		return []EdgeID{start}, nil
	}

	dist := map[EdgeID]float64{start: se.Length}
	prev := map[EdgeID]EdgeID{}
	pq := &edgeQueue{{id: start, cost: se.Length}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(edgeItem)
		if cur.id == end {
			break
		}
		if cur.cost > dist[cur.id] {
			continue // stale entry
		}
		for _, succ := range n.out[n.edges[cur.id].To] {
			alt := cur.cost + succ.Length
			if d, seen := dist[succ.ID]; !seen || alt < d {
				dist[succ.ID] = alt
				prev[succ.ID] = cur.id
				heap.Push(pq, edgeItem{id: succ.ID, cost: alt})
			}
		}
	}

	if _, ok := dist[end]; !ok || math.IsInf(dist[end], 1) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoute, start, end)
	}
	var path []EdgeID
	for cur := end; ; {
		path = append([]EdgeID{cur}, path...)
		if cur == start {
			break
		}
		cur = prev[cur]
	}
	return path, nil
}

type edgeItem struct {
	id   EdgeID
	cost float64
}

type edgeQueue []edgeItem

func (q edgeQueue) Len() int { return len(q) }
func (q edgeQueue) Less(i, j int) bool {
	if q[i].cost != q[j].cost {
		return q[i].cost < q[j].cost
	}
	return q[i].id < q[j].id // stable tie-break keeps routes deterministic
}
func (q edgeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *edgeQueue) Push(x interface{}) { *q = append(*q, x.(edgeItem)) }
func (q *edgeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
