// Package config loads server settings from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/mini-market/internal/world"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "MARKET_"

// Config holds every tunable of the server.
type Config struct {
	Seed        int64    `yaml:"seed"`
	DBPath      string   `yaml:"db_path"`
	Addr        string   `yaml:"addr"`
	TickMs      int      `yaml:"tick_ms"`
	Speed       float64  `yaml:"speed"`
	WorldWidth  float64  `yaml:"world_width"`
	WorldHeight float64  `yaml:"world_height"`
	EventLogDir string   `yaml:"event_log_dir"` // Empty disables the event log
	LogLevel    string   `yaml:"log_level"`
	AdminKey    string   `yaml:"admin_key"` // Empty leaves POST endpoints open
	CORSOrigins []string `yaml:"cors_origins"`
}

// Default returns the reference settings.
func Default() Config {
	return Config{
		Seed:        12345,
		DBPath:      "data/market.db",
		Addr:        ":3001",
		TickMs:      500,
		Speed:       1,
		WorldWidth:  world.DefaultWidth,
		WorldHeight: world.DefaultHeight,
		LogLevel:    "info",
		CORSOrigins: []string{"*"},
	}
}

// Load reads path over the defaults, then applies MARKET_* environment
// overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("config file not found, using defaults", "path", path)
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, set func(string) error) {
		if v := getenv(EnvPrefix + key); v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			}
		}
	}

	str("DB_PATH", &c.DBPath)
	str("ADDR", &c.Addr)
	str("EVENT_LOG_DIR", &c.EventLogDir)
	str("LOG_LEVEL", &c.LogLevel)
	str("ADMIN_KEY", &c.AdminKey)
	if v := getenv(EnvPrefix + "CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
	num("SEED", func(v string) (err error) { c.Seed, err = strconv.ParseInt(v, 10, 64); return })
	num("TICK_MS", func(v string) (err error) { c.TickMs, err = strconv.Atoi(v); return })
	num("SPEED", func(v string) (err error) { c.Speed, err = strconv.ParseFloat(v, 64); return })
	num("WORLD_WIDTH", func(v string) (err error) { c.WorldWidth, err = strconv.ParseFloat(v, 64); return })
	num("WORLD_HEIGHT", func(v string) (err error) { c.WorldHeight, err = strconv.ParseFloat(v, 64); return })

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate reports settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.TickMs <= 0 {
		errs = append(errs, fmt.Errorf("tick_ms must be positive, got %d", c.TickMs))
	}
	if !(c.Speed > 0) {
		errs = append(errs, fmt.Errorf("speed must be positive, got %v", c.Speed))
	}
	if c.WorldWidth <= 0 || c.WorldHeight <= 0 {
		errs = append(errs, fmt.Errorf("world size must be positive, got %vx%v", c.WorldWidth, c.WorldHeight))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TickInterval is the base tick period at speed 1.
func (c Config) TickInterval() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// Bounds returns the world plane size.
func (c Config) Bounds() world.Bounds {
	return world.Bounds{Width: c.WorldWidth, Height: c.WorldHeight}
}

// Level returns the configured slog level.
func (c Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
