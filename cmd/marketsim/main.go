// Command marketsim runs the bread market simulation server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/api"
	"github.com/talgya/mini-market/internal/config"
	"github.com/talgya/mini-market/internal/economy"
	"github.com/talgya/mini-market/internal/engine"
	"github.com/talgya/mini-market/internal/eventlog"
	"github.com/talgya/mini-market/internal/hub"
	"github.com/talgya/mini-market/internal/persistence"
)

func main() {
	var (
		configPath = flag.String("config", "market.yaml", "path to YAML config (optional)")
		addr       = flag.String("addr", "", "listen address (overrides config)")
		dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))
	slog.SetDefault(logger)

	slog.Info("mini-market starting", "seed", cfg.Seed, "tick_ms", cfg.TickMs, "speed", cfg.Speed)

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DBPath)

	// ── Observers ─────────────────────────────────────────────────────
	observers := engine.Observers{engine.LogObserver{ReportEvery: 100}}
	if cfg.EventLogDir != "" {
		rec := eventlog.NewRecorder(cfg.EventLogDir)
		defer func() {
			if err := rec.Close(); err != nil {
				slog.Error("event log close failed", "error", err)
			}
		}()
		observers = append(observers, rec)
		slog.Info("event log enabled", "dir", cfg.EventLogDir)
	}

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(engine.Config{Seed: cfg.Seed, Bounds: cfg.Bounds()}, hub.New(), observers)
	eng := engine.NewEngine(sim, db, cfg.TickInterval())
	if err := eng.SetSpeed(cfg.Speed); err != nil {
		slog.Error("invalid speed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		slog.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.AdminKey == "" {
		slog.Warn("admin_key not set, POST endpoints are open")
	}
	apiServer := &api.Server{
		Eng:         eng,
		Store:       db,
		Addr:        cfg.Addr,
		AdminKey:    cfg.AdminKey,
		CORSOrigins: cfg.CORSOrigins,
		ShopLimiter: api.NewRateLimiter(30, time.Hour),
	}
	apiServer.Start()

	fmt.Printf("Market is open: http://localhost%s/ (realtime at /realtime)\n", cfg.Addr)
	fmt.Println("Simulation running... (Ctrl+C to stop)")

	<-ctx.Done()
	slog.Info("received signal, shutting down")
	eng.Stop()
	eng.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}

	// Final save on shutdown.
	state := sim.InitialState()
	agentList := make([]*agents.Agent, len(state.Agents))
	for i := range state.Agents {
		agentList[i] = &state.Agents[i]
	}
	shops := make([]*economy.Shop, len(state.Shops))
	for i := range state.Shops {
		shops[i] = &state.Shops[i]
	}
	if err := db.SaveWorld(shutdownCtx, agentList, shops, eng.CurrentTick()); err != nil {
		slog.Error("final save failed", "error", err)
	}

	fmt.Println("Simulation stopped. World state saved.")
}
