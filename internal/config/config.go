// Package config loads the service configuration in three layers:
// built-in defaults, an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/openaero/airstate/internal/feed"
	"github.com/openaero/airstate/internal/nats"
	"github.com/openaero/airstate/internal/refdata"
	"github.com/openaero/airstate/internal/store"
)

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths lists where a config file is looked for, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/airstate/config.yaml",
}

// Config holds the application configuration. Immutable after Load and
// safe for concurrent reads.
type Config struct {
	SBS      SBSConfig      `koanf:"sbs"`
	SWIM     SWIMConfig     `koanf:"swim"`
	Store    StoreConfig    `koanf:"store"`
	Redis    RedisConfig    `koanf:"redis"`
	RefData  RefDataConfig  `koanf:"refdata"`
	Recorder RecorderConfig `koanf:"recorder"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// SBSConfig points the ingester at a BaseStation TCP feed. An empty
// address disables the feed.
type SBSConfig struct {
	Addr        string        `koanf:"addr"`
	IdleTimeout time.Duration `koanf:"idle_timeout"`
	MaxLine     int           `koanf:"max_line"`
	BackoffBase time.Duration `koanf:"backoff_base"`
	BackoffStep time.Duration `koanf:"backoff_step"`
	BackoffCap  time.Duration `koanf:"backoff_cap"`
	LogEvery    int           `koanf:"log_every"`
}

// SWIMConfig points the ingester at the NOTAM queue. An empty URL
// disables the feed.
type SWIMConfig struct {
	URL         string        `koanf:"url"`
	Durable     string        `koanf:"durable"`
	BackoffBase time.Duration `koanf:"backoff_base"`
	BackoffStep time.Duration `koanf:"backoff_step"`
	BackoffCap  time.Duration `koanf:"backoff_cap"`
	LogEvery    int           `koanf:"log_every"`
}

// StoreConfig sets the expiry knobs for both in-memory stores.
type StoreConfig struct {
	PositionTimeout       time.Duration `koanf:"position_timeout"`
	PositionSweepInterval time.Duration `koanf:"position_sweep_interval"`
	NoticeSweepInterval   time.Duration `koanf:"notice_sweep_interval"`
}

// RedisConfig enables the live-position mirror. An empty address
// disables it; a zero TTL tracks the position timeout.
type RedisConfig struct {
	Addr string        `koanf:"addr"`
	TTL  time.Duration `koanf:"ttl"`
}

// RefDataConfig locates the aircraft registry and airports table.
// AircraftFile and PostgresURL are alternatives; the file wins when
// both are set. All of it is optional.
type RefDataConfig struct {
	AircraftFile string `koanf:"aircraft_file"`
	PostgresURL  string `koanf:"postgres_url"`
	AirportsFile string `koanf:"airports_file"`
	AirportsURL  string `koanf:"airports_url"`
}

// RecorderConfig enables raw SBS line capture. An empty directory
// disables it.
type RecorderConfig struct {
	Dir string `koanf:"dir"`
}

// LoggingConfig sets the global log level and output format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() *Config {
	return &Config{
		SBS: SBSConfig{
			Addr:        "",
			IdleTimeout: feed.DefaultSBSIdleTimeout,
			MaxLine:     feed.DefaultSBSMaxLine,
			BackoffBase: feed.DefaultSBSBackoff.Base,
			BackoffStep: feed.DefaultSBSBackoff.Step,
			BackoffCap:  feed.DefaultSBSBackoff.Cap,
			LogEvery:    feed.DefaultLogEvery,
		},
		SWIM: SWIMConfig{
			URL:         "",
			Durable:     nats.DefaultDurable,
			BackoffBase: feed.DefaultSWIMBackoff.Base,
			BackoffStep: feed.DefaultSWIMBackoff.Step,
			BackoffCap:  feed.DefaultSWIMBackoff.Cap,
			LogEvery:    feed.DefaultLogEvery,
		},
		Store: StoreConfig{
			PositionTimeout:       store.DefaultPositionTimeout,
			PositionSweepInterval: store.DefaultPositionSweepInterval,
			NoticeSweepInterval:   store.DefaultNoticeSweepInterval,
		},
		Redis: RedisConfig{
			Addr: "",
			TTL:  0, // 0 = use the position timeout
		},
		RefData: RefDataConfig{
			AircraftFile: "",
			PostgresURL:  "",
			AirportsFile: "",
			AirportsURL:  refdata.DefaultAirportsURL,
		},
		Recorder: RecorderConfig{
			Dir: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: struct defaults, then an optional YAML
// file, then environment variables on top. A .env file is loaded first
// when present.
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first config file that exists, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps environment variable names to config paths.
// Unmapped variables are skipped so the process environment cannot
// inject arbitrary keys.
func envTransform(key string) string {
	mappings := map[string]string{
		"sbs_addr":         "sbs.addr",
		"sbs_idle_timeout": "sbs.idle_timeout",
		"sbs_max_line":     "sbs.max_line",
		"sbs_backoff_base": "sbs.backoff_base",
		"sbs_backoff_step": "sbs.backoff_step",
		"sbs_backoff_cap":  "sbs.backoff_cap",
		"sbs_log_every":    "sbs.log_every",

		"swim_url":          "swim.url",
		"swim_durable":      "swim.durable",
		"swim_backoff_base": "swim.backoff_base",
		"swim_backoff_step": "swim.backoff_step",
		"swim_backoff_cap":  "swim.backoff_cap",
		"swim_log_every":    "swim.log_every",

		"position_timeout":        "store.position_timeout",
		"position_sweep_interval": "store.position_sweep_interval",
		"notice_sweep_interval":   "store.notice_sweep_interval",

		"redis_addr": "redis.addr",
		"redis_ttl":  "redis.ttl",

		"aircraft_db_path": "refdata.aircraft_file",
		"database_url":     "refdata.postgres_url",
		"airports_path":    "refdata.airports_file",
		"airports_url":     "refdata.airports_url",

		"output_dir": "recorder.dir",

		"log_level":  "logging.level",
		"log_format": "logging.format",
	}

	if mapped, ok := mappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

// Validate rejects configurations the feeds and stores cannot run with.
func (c *Config) Validate() error {
	if c.SBS.IdleTimeout <= 0 {
		return fmt.Errorf("sbs idle_timeout must be positive, got %v", c.SBS.IdleTimeout)
	}
	if c.SBS.MaxLine <= 0 {
		return fmt.Errorf("sbs max_line must be positive, got %d", c.SBS.MaxLine)
	}
	if err := validateBackoff("sbs", c.SBSBackoff()); err != nil {
		return err
	}
	if err := validateBackoff("swim", c.SWIMBackoff()); err != nil {
		return err
	}
	if c.SBS.LogEvery < 1 {
		return fmt.Errorf("sbs log_every must be at least 1, got %d", c.SBS.LogEvery)
	}
	if c.SWIM.LogEvery < 1 {
		return fmt.Errorf("swim log_every must be at least 1, got %d", c.SWIM.LogEvery)
	}
	if c.Store.PositionTimeout <= 0 {
		return fmt.Errorf("store position_timeout must be positive, got %v", c.Store.PositionTimeout)
	}
	if c.Store.PositionSweepInterval <= 0 {
		return fmt.Errorf("store position_sweep_interval must be positive, got %v", c.Store.PositionSweepInterval)
	}
	if c.Store.NoticeSweepInterval <= 0 {
		return fmt.Errorf("store notice_sweep_interval must be positive, got %v", c.Store.NoticeSweepInterval)
	}
	if c.Redis.TTL < 0 {
		return fmt.Errorf("redis ttl must not be negative, got %v", c.Redis.TTL)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func validateBackoff(name string, b feed.Backoff) error {
	if b.Base <= 0 {
		return fmt.Errorf("%s backoff_base must be positive, got %v", name, b.Base)
	}
	if b.Step < 0 {
		return fmt.Errorf("%s backoff_step must not be negative, got %v", name, b.Step)
	}
	if b.Cap < b.Base {
		return fmt.Errorf("%s backoff_cap must be at least backoff_base, got %v < %v", name, b.Cap, b.Base)
	}
	return nil
}

// SBSBackoff returns the configured SBS reconnect backoff.
func (c *Config) SBSBackoff() feed.Backoff {
	return feed.Backoff{Base: c.SBS.BackoffBase, Step: c.SBS.BackoffStep, Cap: c.SBS.BackoffCap}
}

// SWIMBackoff returns the configured SWIM reconnect backoff.
func (c *Config) SWIMBackoff() feed.Backoff {
	return feed.Backoff{Base: c.SWIM.BackoffBase, Step: c.SWIM.BackoffStep, Cap: c.SWIM.BackoffCap}
}

// RedisTTL returns the mirror TTL, falling back to the position
// timeout so mirrored entries age out with the store.
func (c *Config) RedisTTL() time.Duration {
	if c.Redis.TTL > 0 {
		return c.Redis.TTL
	}
	return c.Store.PositionTimeout
}
