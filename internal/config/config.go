package config

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// RangeConfig is the operator-configured ingestion window; ToBlock == nil
// means "follow the archive head forever".
type RangeConfig struct {
	FromBlock uint64  `yaml:"from_block"`
	ToBlock   *uint64 `yaml:"to_block"`
}

// DatabaseConfig selects and configures one Database adapter.
type DatabaseConfig struct {
	// Type is one of "postgres", "pebble", "memory".
	Type     string `yaml:"type"`
	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`
	Pebble struct {
		Dir string `yaml:"dir"`
	} `yaml:"pebble"`
}

// RetryConfig controls the archive client's height-polling cadence; the
// retry backoff schedule itself is a fixed constant, not configurable.
type RetryConfig struct {
	ArchivePollIntervalMS int `yaml:"archive_poll_interval_ms"`
}

// Config is the fully resolved, validated process configuration.
type Config struct {
	ArchiveURL string         `yaml:"archive_url"`
	ChainID    int64          `yaml:"chain_id"`
	ChainName  string         `yaml:"chain_name"`
	Range      RangeConfig    `yaml:"range"`
	Database   DatabaseConfig `yaml:"database"`
	Retry      RetryConfig    `yaml:"retry"`

	// SquidID is sent as x-squid-id on every archive request. Resolved
	// from $SQUID_ID, or a random id generated at load time.
	SquidID string `yaml:"-"`
	// PrometheusPort is the metrics listen port; 0 picks an ephemeral
	// port. Resolved from $PROCESSOR_PROMETHEUS_PORT, then $PROMETHEUS_PORT.
	PrometheusPort int `yaml:"-"`

	// PollInterval is ArchivePollIntervalMS as a time.Duration.
	PollInterval time.Duration `yaml:"-"`
}

// Load reads and validates the configuration file at path, then layers
// environment overrides on top.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", absPath, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", absPath, err)
	}

	if cfg.ArchiveURL == "" {
		return nil, fmt.Errorf("config: archive_url is required")
	}
	if cfg.Range.ToBlock != nil && *cfg.Range.ToBlock < cfg.Range.FromBlock {
		return nil, fmt.Errorf("config: range.to_block (%d) is below range.from_block (%d)", *cfg.Range.ToBlock, cfg.Range.FromBlock)
	}

	switch cfg.Database.Type {
	case "postgres":
		if cfg.Database.Postgres.DSN == "" {
			return nil, fmt.Errorf("config: database.postgres.dsn is required when database.type is postgres")
		}
	case "pebble":
		if cfg.Database.Pebble.Dir == "" {
			return nil, fmt.Errorf("config: database.pebble.dir is required when database.type is pebble")
		}
	case "memory", "":
		cfg.Database.Type = "memory"
	default:
		return nil, fmt.Errorf("config: unsupported database.type %q", cfg.Database.Type)
	}

	if cfg.Retry.ArchivePollIntervalMS <= 0 {
		cfg.Retry.ArchivePollIntervalMS = 5000
	}
	cfg.PollInterval = time.Duration(cfg.Retry.ArchivePollIntervalMS) * time.Millisecond

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnv layers $SQUID_ID and $PROCESSOR_PROMETHEUS_PORT / $PROMETHEUS_PORT
// on top of the file-loaded config.
func applyEnv(cfg *Config) error {
	cfg.SquidID = os.Getenv("SQUID_ID")
	if cfg.SquidID == "" {
		id, err := randomAlphanumeric(10)
		if err != nil {
			return fmt.Errorf("config: generate squid id: %w", err)
		}
		cfg.SquidID = id
	}

	for _, name := range []string{"PROCESSOR_PROMETHEUS_PORT", "PROMETHEUS_PORT"} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		port, err := parsePort(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
		cfg.PrometheusPort = port
		break
	}

	return nil
}

func parsePort(v string) (int, error) {
	var port int
	if _, err := fmt.Sscanf(v, "%d", &port); err != nil {
		return 0, fmt.Errorf("invalid port %q", v)
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range", port)
	}
	return port, nil
}

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomAlphanumeric(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphanumeric[int(b)%len(alphanumeric)]
	}
	return string(out), nil
}
