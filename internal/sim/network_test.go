package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortestPathPrefersShorterRoute(t *testing.T) {
	n := NewNetwork()
	n.AddNode("A", 0, 0, false)
	n.AddNode("B", 100, 0, false)
	n.AddNode("C", 200, 0, false)
	addEdge(t, n, Edge{ID: "ab", From: "A", To: "B", Length: 100, Entry: true})
	addEdge(t, n, Edge{ID: "bc", From: "B", To: "C", Length: 100, Exit: true})
	addEdge(t, n, Edge{ID: "ac", From: "A", To: "C", Length: 500, Exit: true}) // the long way round
	require.NoError(t, n.Finalize())

	path, err := n.ShortestPath("ab", "bc")
	require.NoError(t, err)
	assert.Equal(t, []EdgeID{"ab", "bc"}, path)

	path, err = n.ShortestPath("ab", "ab")
	require.NoError(t, err)
	assert.Equal(t, []EdgeID{"ab"}, path)
}

func TestShortestPathDisconnected(t *testing.T) {
	n := splitNetwork(t)
	_, err := n.ShortestPath("ab", "xy")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestShortestPathUnknownEdge(t *testing.T) {
	n := lineNetwork(t)
	_, err := n.ShortestPath("nope", "e3")
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestNeighborsAndIntersectionFor(t *testing.T) {
	n := crossNetwork(t)

	succ := n.Neighbors("in_w")
	assert.Equal(t, []EdgeID{"out_e", "out_s"}, succ)

	node, ok := n.IntersectionFor("in_n")
	require.True(t, ok)
	assert.Equal(t, NodeID("C"), node)
}

func TestFinalizeRejectsDeadEnd(t *testing.T) {
	n := NewNetwork()
	n.AddNode("A", 0, 0, false)
	n.AddNode("B", 100, 0, false)
	addEdge(t, n, Edge{ID: "ab", From: "A", To: "B", Length: 100, Entry: true})
	// B has no outgoing edge and ab is not an exit.
	require.Error(t, n.Finalize())
}

func TestAddEdgeValidation(t *testing.T) {
	n := NewNetwork()
	n.AddNode("A", 0, 0, false)
	n.AddNode("B", 100, 0, false)
	assert.Error(t, n.AddEdge(Edge{ID: "x", From: "A", To: "missing", Length: 10, Lanes: 1, SpeedLimit: 5}))
	assert.Error(t, n.AddEdge(Edge{ID: "x", From: "A", To: "B", Length: -1, Lanes: 1, SpeedLimit: 5}))
	require.NoError(t, n.AddEdge(Edge{ID: "x", From: "A", To: "B", Length: 10, Lanes: 1, SpeedLimit: 5}))
	assert.Error(t, n.AddEdge(Edge{ID: "x", From: "A", To: "B", Length: 10, Lanes: 1, SpeedLimit: 5}), "duplicate id")
}

func TestCuscoNetworkBuilds(t *testing.T) {
	n, err := BuildCuscoNetwork()
	require.NoError(t, err)

	assert.NotEmpty(t, n.Entries())
	assert.NotEmpty(t, n.Exits())
	assert.NotEmpty(t, n.ZoneEdges(ZoneCentro), "historic centre must have streets")

	// Every entry must reach at least one exit; otherwise the spawn
	// policy would spin on rejections.
	for _, entry := range n.Entries() {
		reachable := false
		for _, exit := range n.Exits() {
			if _, err := n.ShortestPath(entry, exit); err == nil {
				reachable = true
				break
			}
		}
		assert.True(t, reachable, "entry %s reaches no exit", entry)
	}

	// Cobbled streets are slower than the avenues.
	var cobbled, principal *Edge
	for _, e := range n.Edges() {
		switch e.Class {
		case StreetCobbled:
			cobbled = e
		case StreetPrincipal:
			principal = e
		}
	}
	require.NotNil(t, cobbled)
	require.NotNil(t, principal)
	assert.Less(t, cobbled.SpeedLimit, principal.SpeedLimit)
}
