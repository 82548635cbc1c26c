// Package server exposes the simulation over a websocket: a one-way
// snapshot/event/narration feed out, and user-input commands in. The
// server never holds a mutable reference to engine state; commands are
// relayed through the engine's API and applied at tick boundaries.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Cyan512/connnnt/internal/sim"
)

// Envelope wraps every frame in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Inbound command types.
const (
	ActionSpawn   = "spawn"
	ActionPause   = "pause"
	ActionResume  = "resume"
	ActionReset   = "reset"
	ActionSetHour = "set_hour"
)

// Outbound frame types.
const (
	FrameSnapshot  = "snapshot"
	FrameEvents    = "events"
	FrameNarration = "narration"
)

type SetHourPayload struct {
	Hour float64 `json:"hour"`
}

// eventFrame pairs an event's kind with its payload so consumers can
// switch without inspecting field shapes.
type eventFrame struct {
	Kind  string    `json:"kind"`
	Event sim.Event `json:"event"`
}

// Controller is the engine surface user input may reach. No direct
// state writes pass through here.
type Controller interface {
	SpawnVehicle()
	Pause()
	Resume()
	Reset()
	SetHour(h float64)
}

// Server owns the hub and the websocket endpoint.
type Server struct {
	hub      *Hub
	ctrl     Controller
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func New(ctrl Controller, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		hub:  newHub(),
		ctrl: ctrl,
		log:  log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	go s.hub.run()
	return s
}

// ServeHTTP upgrades the connection and starts the client pumps.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &Client{id: uuid.New().String(), conn: conn, send: make(chan []byte, 128)}
	s.hub.register <- c
	go c.writer()
	go s.reader(c)
	s.log.Info("client connected", "client", c.id)
}

func (s *Server) reader(c *Client) {
	defer func() {
		s.hub.unregister <- c
		c.conn.Close()
		s.log.Info("client disconnected", "client", c.id)
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env Envelope
		if json.Unmarshal(data, &env) != nil {
			s.log.Warn("dropping malformed frame", "client", c.id)
			continue
		}
		s.dispatch(c.id, env)
	}
}

// dispatch relays one inbound command envelope to the controller.
func (s *Server) dispatch(client string, env Envelope) {
	switch env.Type {
	case ActionSpawn:
		s.ctrl.SpawnVehicle()
	case ActionPause:
		s.ctrl.Pause()
	case ActionResume:
		s.ctrl.Resume()
	case ActionReset:
		s.ctrl.Reset()
	case ActionSetHour:
		var p SetHourPayload
		if json.Unmarshal(env.Payload, &p) == nil {
			s.ctrl.SetHour(p.Hour)
		} else {
			s.log.Warn("dropping malformed set_hour payload", "client", client)
		}
	default:
		s.log.Warn("dropping unknown command", "type", env.Type, "client", client)
	}
}

// Publish broadcasts one tick's results. Events and narration frames
// are sent only when non-empty; the snapshot goes out every tick.
func (s *Server) Publish(res *sim.TickResult, msgs []sim.Message) {
	s.announce(FrameSnapshot, res.Snapshot)
	if len(res.Events) > 0 {
		frames := make([]eventFrame, len(res.Events))
		for i, ev := range res.Events {
			frames[i] = eventFrame{Kind: ev.Kind(), Event: ev}
		}
		s.announce(FrameEvents, frames)
	}
	if len(msgs) > 0 {
		s.announce(FrameNarration, msgs)
	}
}

func (s *Server) announce(t string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		s.log.Warn("marshal failed", "type", t, "err", err)
		return
	}
	b, _ := json.Marshal(Envelope{Type: t, Payload: payload})
	select {
	case s.hub.broadcast <- b:
	default:
		// Feed saturated: drop the frame rather than stall the loop.
	}
}
