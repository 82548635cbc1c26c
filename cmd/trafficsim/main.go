// Traffic simulation of Cusco's historic district. Runs the engine on
// a fixed tick and serves snapshots, events and narration over a
// websocket at /ws; connected clients may send spawn/pause/resume/
// reset/set_hour commands.
package main

import (
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Cyan512/connnnt/internal/server"
	"github.com/Cyan512/connnnt/internal/sim"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address for the websocket feed")
	seed := flag.Int64("seed", 1, "simulation random seed")
	hour := flag.Float64("hour", 8, "initial simulated hour of day")
	maxVehicles := flag.Int("max-vehicles", 120, "active vehicle cap")
	tickMS := flag.Int("tick", 100, "wall-clock tick period in milliseconds")
	headless := flag.Bool("headless", false, "run without the websocket feed")
	quiet := flag.Bool("quiet", false, "suppress narration on stdout")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	net, err := sim.BuildCuscoNetwork()
	if err != nil {
		log.Error("building road network", "err", err)
		os.Exit(1)
	}

	cfg := sim.DefaultConfig()
	cfg.Seed = *seed
	cfg.StartHour = *hour
	cfg.MaxVehicles = *maxVehicles

	engine, err := sim.New(cfg, net, log)
	if err != nil {
		log.Error("engine init", "err", err)
		os.Exit(1)
	}
	narrator := sim.NewNarrator(cfg.Narrator)

	var srv *server.Server
	if !*headless {
		srv = server.New(engine, log)
		mux := http.NewServeMux()
		mux.Handle("/ws", srv)
		go func() {
			log.Info("serving feed", "addr", *addr)
			if err := http.ListenAndServe(*addr, mux); err != nil {
				log.Error("http server", "err", err)
				os.Exit(1)
			}
		}()
	}

	ticker := time.NewTicker(time.Duration(*tickMS) * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		res, err := engine.Tick()
		if err != nil {
			if errors.Is(err, sim.ErrInvariant) {
				log.Error("simulation halted", "err", err)
				os.Exit(1)
			}
			log.Error("tick failed", "err", err)
			os.Exit(1)
		}
		msgs := narrator.Observe(cfg.DT, res.Snapshot, res.Events)
		if srv != nil {
			srv.Publish(res, msgs)
		}
		if !*quiet {
			for _, m := range msgs {
				log.Info("narrator", "at", m.Hour, "text", m.Text)
			}
		}
	}
}
