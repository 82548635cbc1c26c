package sim

// Event kinds published on the per-tick event list. The narrator and
// the websocket feed treat the list as a drained queue; the engine
// never re-emits a consumed event.
const (
	EventVehicleSpawned   = "vehicle_spawned"
	EventVehicleDespawned = "vehicle_despawned"
	EventSpawnRejected    = "spawn_rejected"
	EventVehicleRerouted  = "vehicle_rerouted"
	EventSignalPhase      = "signal_phase"
	EventCongestion       = "congestion"
)

// Event is one entry of the tick's event list.
type Event interface {
	Kind() string
}

type VehicleSpawned struct {
	Tick      int64     `json:"tick"`
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	Archetype Archetype `json:"archetype"`
	Edge      EdgeID    `json:"edge"`
	RouteLen  int       `json:"routeLen"`
}

func (VehicleSpawned) Kind() string { return EventVehicleSpawned }

type VehicleDespawned struct {
	Tick      int64     `json:"tick"`
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	Archetype Archetype `json:"archetype"`
	Edge      EdgeID    `json:"edge"`
}

func (VehicleDespawned) Kind() string { return EventVehicleDespawned }

// SpawnRejected is the warning emitted when a spawn request cannot be
// honoured (no route, entry at capacity). Never fatal.
type SpawnRejected struct {
	Tick   int64  `json:"tick"`
	Entry  EdgeID `json:"entry"`
	Exit   EdgeID `json:"exit"`
	Reason string `json:"reason"`
}

func (SpawnRejected) Kind() string { return EventSpawnRejected }

type VehicleRerouted struct {
	Tick  int64  `json:"tick"`
	ID    string `json:"id"`
	Seq   int64  `json:"seq"`
	Edge  EdgeID `json:"edge"`
	Cause string `json:"cause"` // "pickup" or "seek"
}

func (VehicleRerouted) Kind() string { return EventVehicleRerouted }

type SignalPhaseChanged struct {
	Tick         int64  `json:"tick"`
	Intersection NodeID `json:"intersection"`
	Phase        Phase  `json:"phase"`
}

func (SignalPhaseChanged) Kind() string { return EventSignalPhase }

// CongestionEvent is emitted by the analyzer when an edge changes
// classification, never on every sample.
type CongestionEvent struct {
	Tick           int64          `json:"tick"`
	Edge           EdgeID         `json:"edge"`
	Zone           Zone           `json:"zone"`
	Classification Classification `json:"classification"`
	Severity       float64        `json:"severity"` // 0..1
}

func (CongestionEvent) Kind() string { return EventCongestion }
