package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "market.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	def := Default()
	if cfg.Seed != def.Seed || cfg.TickInterval() != 500*time.Millisecond || cfg.Addr != def.Addr {
		t.Errorf("cfg = %+v", cfg)
	}
	// The web client dials localhost:3001 for both REST and /realtime.
	if cfg.Addr != ":3001" {
		t.Errorf("default addr = %q, want :3001", cfg.Addr)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
seed: 7
tick_ms: 250
speed: 2.5
world_width: 1000
log_level: debug
cors_origins: [http://localhost:5173]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Seed != 7 || cfg.TickMs != 250 || cfg.Speed != 2.5 {
		t.Errorf("cfg = %+v", cfg)
	}
	if b := cfg.Bounds(); b.Width != 1000 || b.Height != Default().WorldHeight {
		t.Errorf("bounds = %+v", b)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("level = %v", cfg.Level())
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:5173" {
		t.Errorf("cors = %v", cfg.CORSOrigins)
	}
}

func TestLoadBadYAML(t *testing.T) {
	if _, err := Load(writeFile(t, "seed: [not a number")); err == nil {
		t.Error("malformed yaml accepted")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MARKET_SEED", "99")
	t.Setenv("MARKET_ADDR", ":9000")
	t.Setenv("MARKET_SPEED", "4")
	t.Setenv("MARKET_CORS_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load(writeFile(t, "seed: 7\naddr: \":8000\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Seed != 99 || cfg.Addr != ":9000" || cfg.Speed != 4 {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Errorf("cors = %q", cfg.CORSOrigins)
	}
}

func TestEnvOverrideParseError(t *testing.T) {
	t.Setenv("MARKET_TICK_MS", "fast")
	if _, err := Load(""); err == nil {
		t.Error("unparseable MARKET_TICK_MS accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tick", func(c *Config) { c.TickMs = 0 }},
		{"negative speed", func(c *Config) { c.Speed = -1 }},
		{"zero width", func(c *Config) { c.WorldWidth = 0 }},
		{"no db", func(c *Config) { c.DBPath = "" }},
		{"bad level", func(c *Config) { c.LogLevel = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted invalid config")
			}
		})
	}
	if err := Default().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}
