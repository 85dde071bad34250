// Command seed wipes the database and generates a fresh market: shops
// named "Shop N" and a population of agents, all drawn from one seeded
// stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/mini-market/internal/agents"
	"github.com/talgya/mini-market/internal/config"
	"github.com/talgya/mini-market/internal/economy"
	"github.com/talgya/mini-market/internal/persistence"
	"github.com/talgya/mini-market/internal/world"
)

const shopBalance = 1000.0

func main() {
	var (
		configPath = flag.String("config", "market.yaml", "path to YAML config (optional)")
		seed       = flag.Int64("seed", 12345, "random seed")
		agentCount = flag.Int("agents", 200, "number of agents")
		shopCount  = flag.Int("shops", 10, "number of shops")
		dbPath     = flag.String("db", "", "SQLite database path (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()})))

	if *agentCount < 0 || *shopCount < 0 {
		slog.Error("counts must not be negative", "agents", *agentCount, "shops", *shopCount)
		os.Exit(2)
	}

	if err := run(context.Background(), cfg, *seed, *agentCount, *shopCount); err != nil {
		slog.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, seed int64, agentCount, shopCount int) error {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return err
	}
	db, err := persistence.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	placeCfg := world.DefaultPlaceConfig(seed)
	placeCfg.Bounds = cfg.Bounds()
	placer := world.NewPlacer(placeCfg)

	shops, err := generateShops(placer, shopCount)
	if err != nil {
		return fmt.Errorf("generate shops: %w", err)
	}
	population, err := agents.NewSpawner(placer).SpawnPopulation(agentCount)
	if err != nil {
		return fmt.Errorf("spawn agents: %w", err)
	}

	if err := db.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := db.SaveShops(ctx, shops); err != nil {
		return fmt.Errorf("save shops: %w", err)
	}
	if err := db.SaveAgents(ctx, population); err != nil {
		return fmt.Errorf("save agents: %w", err)
	}
	if err := db.SaveMeta(ctx, "seed", fmt.Sprint(seed)); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	workers := 0
	var wealth float64
	for _, a := range population {
		if a.Role == agents.RoleWorker {
			workers++
		}
		wealth += a.Wallet
	}
	var capital float64
	for _, s := range shops {
		capital += s.Balance
	}

	slog.Info("market seeded",
		"seed", seed,
		"db", cfg.DBPath,
		"shops", humanize.Comma(int64(len(shops))),
		"agents", humanize.Comma(int64(len(population))),
		"workers", workers,
		"agent_wealth", humanize.CommafWithDigits(wealth, 2),
		"shop_capital", humanize.CommafWithDigits(capital, 2),
	)
	return nil
}

// generateShops places count shops, drawing IDs and positions from the
// placer's stream. Shops start with no stock: the first tick adds the
// bread line and spends the balance on the opening restock.
func generateShops(placer *world.Placer, count int) ([]*economy.Shop, error) {
	shops := make([]*economy.Shop, 0, count)
	for i := 0; i < count; i++ {
		id, err := uuid.NewRandomFromReader(placer.Rand())
		if err != nil {
			return nil, err
		}
		x, y := placer.Point()
		shops = append(shops, &economy.Shop{
			ID:      id.String(),
			Name:    fmt.Sprintf("Shop %d", i+1),
			Type:    "general",
			X:       x,
			Y:       y,
			Balance: shopBalance,
		})
	}
	return shops, nil
}
