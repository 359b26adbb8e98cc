package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

type StorageConfig struct {
	// Driver selects the run store backend: "duckdb" (embedded, default)
	// or "postgres".
	Driver string `mapstructure:"driver"`
	// Path is the DuckDB database file.
	Path string `mapstructure:"path"`
	// DSN is the Postgres connection string.
	DSN string `mapstructure:"dsn"`
}

type RateLimitConfig struct {
	Capacity          int     `mapstructure:"capacity"`
	RefillPerSec      float64 `mapstructure:"refill_per_sec"`
	IdleEvictionHours int     `mapstructure:"idle_eviction_hours"`
}

func (c RateLimitConfig) IdleEviction() time.Duration {
	return time.Duration(c.IdleEvictionHours) * time.Hour
}

type Config struct {
	Server       ServerConfig    `mapstructure:"server"`
	Storage      StorageConfig   `mapstructure:"storage"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
	PolicyFile   string          `mapstructure:"policy_file"`
	ProfilesFile string          `mapstructure:"profiles_file"`
	TrendDays    int             `mapstructure:"trend_days"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("storage.driver", "duckdb")
	v.SetDefault("storage.path", "auditgate.db")
	v.SetDefault("rate_limit.capacity", 20)
	v.SetDefault("rate_limit.refill_per_sec", 1.0)
	v.SetDefault("rate_limit.idle_eviction_hours", 24)
	v.SetDefault("trend_days", 30)
}

// Load reads the service configuration file. An empty path yields the
// built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	switch cfg.Storage.Driver {
	case "duckdb", "postgres":
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	return &cfg, nil
}
