package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cyan512/connnnt/internal/sim"
)

// recordingController captures the engine calls the dispatcher makes.
type recordingController struct {
	calls []string
	hour  float64
}

func (c *recordingController) SpawnVehicle() { c.calls = append(c.calls, "spawn") }
func (c *recordingController) Pause()        { c.calls = append(c.calls, "pause") }
func (c *recordingController) Resume()       { c.calls = append(c.calls, "resume") }
func (c *recordingController) Reset()        { c.calls = append(c.calls, "reset") }
func (c *recordingController) SetHour(h float64) {
	c.calls = append(c.calls, "set_hour")
	c.hour = h
}

// newTestServer builds a server without running the hub pump, so tests
// can read the broadcast channel directly.
func newTestServer(ctrl Controller) *Server {
	return &Server{
		hub:  newHub(),
		ctrl: ctrl,
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestDispatchRelaysCommands(t *testing.T) {
	ctrl := &recordingController{}
	s := newTestServer(ctrl)

	for _, action := range []string{ActionSpawn, ActionPause, ActionResume, ActionReset} {
		s.dispatch("c1", Envelope{Type: action})
	}
	payload, err := json.Marshal(SetHourPayload{Hour: 17.5})
	require.NoError(t, err)
	s.dispatch("c1", Envelope{Type: ActionSetHour, Payload: payload})

	assert.Equal(t, []string{"spawn", "pause", "resume", "reset", "set_hour"}, ctrl.calls)
	assert.InDelta(t, 17.5, ctrl.hour, 1e-9)
}

func TestDispatchDropsBadInput(t *testing.T) {
	ctrl := &recordingController{}
	s := newTestServer(ctrl)

	s.dispatch("c1", Envelope{Type: "teleport"})
	s.dispatch("c1", Envelope{Type: ActionSetHour, Payload: json.RawMessage(`"noon"`)})

	assert.Empty(t, ctrl.calls, "unknown and malformed commands never reach the engine")
}

func TestPublishFramesTickResults(t *testing.T) {
	s := newTestServer(&recordingController{})

	res := &sim.TickResult{
		Snapshot: &sim.Snapshot{Tick: 7},
		Events: []sim.Event{
			sim.VehicleSpawned{Tick: 7, ID: "v1", Archetype: sim.ArchetypeCar},
		},
	}
	msgs := []sim.Message{{Tick: 7, Hour: "08:00", Kind: "event", Text: "ok"}}
	s.Publish(res, msgs)

	readFrame := func() Envelope {
		select {
		case b := <-s.hub.broadcast:
			var env Envelope
			require.NoError(t, json.Unmarshal(b, &env))
			return env
		default:
			t.Fatal("expected a broadcast frame")
			return Envelope{}
		}
	}

	snap := readFrame()
	assert.Equal(t, FrameSnapshot, snap.Type)
	events := readFrame()
	assert.Equal(t, FrameEvents, events.Type)
	var frames []struct {
		Kind string `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(events.Payload, &frames))
	require.Len(t, frames, 1)
	assert.Equal(t, sim.EventVehicleSpawned, frames[0].Kind)
	narration := readFrame()
	assert.Equal(t, FrameNarration, narration.Type)
}

func TestPublishSkipsEmptyFrames(t *testing.T) {
	s := newTestServer(&recordingController{})

	s.Publish(&sim.TickResult{Snapshot: &sim.Snapshot{Tick: 1}}, nil)

	assert.Len(t, s.hub.broadcast, 1, "only the snapshot frame goes out")
}

func TestAnnounceDropsWhenSaturated(t *testing.T) {
	s := newTestServer(&recordingController{})

	for i := 0; i < cap(s.hub.broadcast); i++ {
		s.hub.broadcast <- []byte("x")
	}
	// Must not block, must not exceed the buffer.
	s.announce(FrameSnapshot, &sim.Snapshot{})
	assert.Len(t, s.hub.broadcast, cap(s.hub.broadcast))
}
