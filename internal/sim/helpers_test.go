package sim

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// quietConfig disables automatic spawning and narrows the mix to cars,
// so tests control the population explicitly.
func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.SpawnIntervalMin = 1e6
	cfg.SpawnIntervalMax = 2e6
	cfg.Windows = []SpawnWindow{
		{Name: "allday", From: 0, To: 24, Factor: 1, Mix: []ArchetypeWeight{{ArchetypeCar, 1}}},
	}
	return cfg
}

func addEdge(t *testing.T, n *Network, e Edge) {
	t.Helper()
	if e.Lanes == 0 {
		e.Lanes = 1
	}
	if e.SpeedLimit == 0 {
		e.SpeedLimit = 10
	}
	if e.Capacity == 0 {
		e.Capacity = e.Lanes * int(e.Length/8)
	}
	if e.Zone == "" {
		e.Zone = ZoneCentro
	}
	require.NoError(t, n.AddEdge(e))
}

// lineNetwork is three 100m edges in a row with no signalled
// intersections: e1 (entry) -> e2 -> e3 (exit).
func lineNetwork(t *testing.T) *Network {
	t.Helper()
	n := NewNetwork()
	n.AddNode("N0", 0, 0, false)
	n.AddNode("N1", 100, 0, false)
	n.AddNode("N2", 200, 0, false)
	n.AddNode("N3", 300, 0, false)
	addEdge(t, n, Edge{ID: "e1", From: "N0", To: "N1", Length: 100, Entry: true})
	addEdge(t, n, Edge{ID: "e2", From: "N1", To: "N2", Length: 100})
	addEdge(t, n, Edge{ID: "e3", From: "N2", To: "N3", Length: 100, Exit: true})
	require.NoError(t, n.Finalize())
	return n
}

// crossNetwork is a single signalled intersection C fed from the west
// and the north, draining east and south.
func crossNetwork(t *testing.T) *Network {
	t.Helper()
	n := NewNetwork()
	n.AddNode("W", -100, 0, false)
	n.AddNode("N", 0, -100, false)
	n.AddNode("C", 0, 0, false)
	n.AddNode("E", 100, 0, false)
	n.AddNode("S", 0, 100, false)
	addEdge(t, n, Edge{ID: "in_w", From: "W", To: "C", Length: 100, Entry: true})
	addEdge(t, n, Edge{ID: "in_n", From: "N", To: "C", Length: 100, Entry: true})
	addEdge(t, n, Edge{ID: "out_e", From: "C", To: "E", Length: 100, Exit: true})
	addEdge(t, n, Edge{ID: "out_s", From: "C", To: "S", Length: 100, Exit: true})
	require.NoError(t, n.Finalize())
	return n
}

// splitNetwork has an entry loop that cannot reach the only exit.
func splitNetwork(t *testing.T) *Network {
	t.Helper()
	n := NewNetwork()
	n.AddNode("A", 0, 0, false)
	n.AddNode("B", 100, 0, false)
	n.AddNode("X", 0, 500, false)
	n.AddNode("Y", 100, 500, false)
	addEdge(t, n, Edge{ID: "ab", From: "A", To: "B", Length: 100, Entry: true})
	addEdge(t, n, Edge{ID: "ba", From: "B", To: "A", Length: 100})
	addEdge(t, n, Edge{ID: "xy", From: "X", To: "Y", Length: 100, Exit: true})
	require.NoError(t, n.Finalize())
	return n
}

func newTestEngine(t *testing.T, cfg Config, n *Network) *Engine {
	t.Helper()
	e, err := New(cfg, n, testLogger())
	require.NoError(t, err)
	return e
}
