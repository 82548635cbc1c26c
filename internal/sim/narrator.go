package sim

import (
	"fmt"
	"math"
)

// Message is one narration line for the ticker panel.
type Message struct {
	Tick int64  `json:"tick"`
	Hour string `json:"hour"`
	Kind string `json:"kind"` // "event", "analysis", "report"
	Text string `json:"text"`
}

// Narrator turns the engine's event feed into readable commentary. It
// is a pure consumer: it drains the per-tick event list and reads the
// snapshot, and never touches engine state. A cooldown keeps the feed
// from flooding; a periodic report summarizes the district.
type Narrator struct {
	cfg NarratorConfig

	sinceMessage float64
	sinceReport  float64
	recent       []Message
}

func NewNarrator(cfg NarratorConfig) *Narrator {
	return &Narrator{cfg: cfg, sinceMessage: cfg.Cooldown}
}

// Recent returns the bounded message log, oldest first.
func (n *Narrator) Recent() []Message {
	out := make([]Message, len(n.recent))
	copy(out, n.recent)
	return out
}

// Observe consumes one tick's snapshot and events and returns the
// messages produced this tick.
func (n *Narrator) Observe(dt float64, snap *Snapshot, events []Event) []Message {
	n.sinceMessage += dt
	n.sinceReport += dt

	var out []Message
	for _, ev := range events {
		if n.sinceMessage < n.cfg.Cooldown {
			break
		}
		if text, kind, ok := n.describe(ev); ok {
			out = append(out, n.emit(snap, kind, text))
		}
	}

	if n.sinceReport >= n.cfg.ReportInterval {
		n.sinceReport = 0
		out = append(out, n.emit(snap, "report", n.report(snap)))
	}
	return out
}

func (n *Narrator) emit(snap *Snapshot, kind, text string) Message {
	m := Message{Tick: snap.Tick, Hour: clockString(snap.Hour), Kind: kind, Text: text}
	n.sinceMessage = 0
	n.recent = append(n.recent, m)
	if len(n.recent) > n.cfg.MaxMessages {
		n.recent = n.recent[len(n.recent)-n.cfg.MaxMessages:]
	}
	return m
}

// describe composes the narration line for an event. Routine spawns and
// despawns are too noisy to narrate one by one; they show up in the
// periodic report instead.
func (n *Narrator) describe(ev Event) (string, string, bool) {
	switch e := ev.(type) {
	case CongestionEvent:
		switch e.Classification {
		case ClassGridlock:
			return fmt.Sprintf("Gridlock on %s: traffic in %s has stopped moving.", e.Edge, e.Zone), "analysis", true
		case ClassCongested:
			return fmt.Sprintf("Traffic is backing up on %s (%s).", e.Edge, e.Zone), "analysis", true
		default:
			return fmt.Sprintf("Traffic on %s is flowing freely again.", e.Edge), "analysis", true
		}
	case SpawnRejected:
		return fmt.Sprintf("A vehicle could not enter at %s: %s.", e.Entry, e.Reason), "event", true
	case VehicleRerouted:
		if e.Cause == "pickup" {
			return "A taxi picked up a fare and is heading out of the centre.", "event", true
		}
		return "An empty taxi circles back toward the Plaza de Armas.", "event", true
	default:
		return "", "", false
	}
}

func (n *Narrator) report(snap *Snapshot) string {
	busiest := ZoneCondition{}
	for _, z := range snap.Zones {
		if z.Vehicles > busiest.Vehicles {
			busiest = z
		}
	}
	if busiest.Vehicles == 0 {
		return fmt.Sprintf("%s — the streets are quiet, no traffic to report.", clockString(snap.Hour))
	}
	return fmt.Sprintf("%s — %d vehicles on the streets, mean speed %.1f m/s, congestion %.0f%%. Busiest zone: %s (%d vehicles).",
		clockString(snap.Hour), snap.Stats.Active, snap.Stats.MeanSpeed,
		snap.Stats.Congestion, busiest.Zone, busiest.Vehicles)
}

func clockString(hour float64) string {
	h := int(hour) % 24
	m := int(math.Mod(hour, 1) * 60)
	return fmt.Sprintf("%02d:%02d", h, m)
}
