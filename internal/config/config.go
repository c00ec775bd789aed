package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/toll-telemetry/ingester/internal/ingest"
)

// Config holds all configuration for the ingester
type Config struct {
	// Local store (raw and aggregated tables)
	DatabasePath string

	// Upstream transit store
	SourceDatabaseURL string
	SourceStationID   int
	SourceMaxLane     int

	// Continuous mode
	PollInterval    time.Duration
	WindowRetention int

	// Status server, continuous mode only. Empty address disables it.
	StatusAddr           string
	StatusAllowedOrigins []string
}

// Load reads configuration from .env files, environment variables and,
// when given, command line flags. Flags win over the environment.
func Load(flags *pflag.FlagSet) (*Config, error) {
	// Base .env first, then .env.local overrides for local development
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("SQLITE_DATABASE", "./data/toll.db")
	v.SetDefault("SOURCE_DATABASE_URL", "")
	v.SetDefault("SOURCE_STATION_ID", 6)
	v.SetDefault("SOURCE_MAX_LANE", 20)
	v.SetDefault("POLL_INTERVAL", int(ingest.DefaultPollInterval/time.Second))
	v.SetDefault("WINDOW_RETENTION", ingest.DefaultRetention)
	v.SetDefault("STATUS_ADDR", "")
	v.SetDefault("STATUS_ALLOWED_ORIGINS", "*")

	if flags != nil {
		bindings := map[string]string{
			"SQLITE_DATABASE":     "database",
			"SOURCE_DATABASE_URL": "source-url",
			"POLL_INTERVAL":       "poll-interval",
			"WINDOW_RETENTION":    "retention",
			"STATUS_ADDR":         "status-addr",
		}
		for key, name := range bindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		DatabasePath:         v.GetString("SQLITE_DATABASE"),
		SourceDatabaseURL:    v.GetString("SOURCE_DATABASE_URL"),
		SourceStationID:      v.GetInt("SOURCE_STATION_ID"),
		SourceMaxLane:        v.GetInt("SOURCE_MAX_LANE"),
		PollInterval:         time.Duration(v.GetInt("POLL_INTERVAL")) * time.Second,
		WindowRetention:      v.GetInt("WINDOW_RETENTION"),
		StatusAddr:           v.GetString("STATUS_ADDR"),
		StatusAllowedOrigins: splitList(v.GetString("STATUS_ALLOWED_ORIGINS")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would make the ingestion loop misbehave.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("SQLITE_DATABASE must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %v", c.PollInterval)
	}
	// Retention only applies to continuous mode, where 0 would flush windows
	// that are still receiving transits.
	if c.WindowRetention < 1 {
		return fmt.Errorf("WINDOW_RETENTION must be at least 1, got %d", c.WindowRetention)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
