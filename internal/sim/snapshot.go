package sim

// Snapshot is the immutable per-tick copy of the world handed to the
// renderer and the narrator. Every slice is freshly allocated and every
// element a value copy; nothing aliases engine-owned state.
type Snapshot struct {
	Tick     int64           `json:"tick"`
	Hour     float64         `json:"hour"`
	Paused   bool            `json:"paused"`
	Vehicles []VehicleState  `json:"vehicles"`
	Signals  []SignalState   `json:"signals"`
	Edges    []EdgeCondition `json:"edges"`
	Zones    []ZoneCondition `json:"zones"`
	Stats    Stats           `json:"stats"`
}

type VehicleState struct {
	ID        string        `json:"id"`
	Seq       int64         `json:"seq"`
	Archetype Archetype     `json:"archetype"`
	Edge      EdgeID        `json:"edge"`
	Offset    float64       `json:"offset"`
	Lane      int           `json:"lane"`
	Speed     float64       `json:"speed"`
	State     BehaviorState `json:"state"`
}

type SignalState struct {
	Intersection NodeID  `json:"intersection"`
	Phase        Phase   `json:"phase"`
	Remaining    float64 `json:"remaining"`
}

type EdgeCondition struct {
	Edge           EdgeID         `json:"edge"`
	Zone           Zone           `json:"zone"`
	Occupancy      int            `json:"occupancy"`
	MeanSpeed      float64        `json:"meanSpeed"`
	Classification Classification `json:"classification"`
}

type ZoneCondition struct {
	Zone          Zone    `json:"zone"`
	Vehicles      int     `json:"vehicles"`
	MeanSpeed     float64 `json:"meanSpeed"`
	CongestionPct float64 `json:"congestionPct"` // share of slow vehicles, 0..100
}

// Stats carries the running counters shown by the renderer HUD.
type Stats struct {
	Spawned    int64               `json:"spawned"`
	Despawned  int64               `json:"despawned"`
	Rejected   int64               `json:"rejected"`
	Active     int                 `json:"active"`
	Peak       int                 `json:"peak"`
	MeanSpeed  float64             `json:"meanSpeed"`
	Congestion float64             `json:"congestion"` // 0..100
	ByType     map[Archetype]int64 `json:"byType"`
}
