package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMinimalValidConfig(t *testing.T) {
	path := writeConfig(t, `
archive_url: https://archive.example.com
chain_id: 1
chain_name: ethereum
range:
  from_block: 0
database:
  type: memory
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://archive.example.com", cfg.ArchiveURL)
	assert.Equal(t, "memory", cfg.Database.Type)
	assert.NotEmpty(t, cfg.SquidID)
	assert.Equal(t, int64(1), cfg.ChainID)
}

func TestLoadMissingArchiveURL(t *testing.T) {
	path := writeConfig(t, `
range:
  from_block: 0
database:
  type: memory
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadToBlockBelowFromBlockIsError(t *testing.T) {
	path := writeConfig(t, `
archive_url: https://archive.example.com
range:
  from_block: 100
  to_block: 10
database:
  type: memory
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadPostgresRequiresDSN(t *testing.T) {
	path := writeConfig(t, `
archive_url: https://archive.example.com
range:
  from_block: 0
database:
  type: postgres
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadDefaultsDatabaseTypeToMemory(t *testing.T) {
	path := writeConfig(t, `
archive_url: https://archive.example.com
range:
  from_block: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Type)
}

func TestLoadAppliesSquidIDFromEnv(t *testing.T) {
	t.Setenv("SQUID_ID", "fixed-squid-id")
	path := writeConfig(t, `
archive_url: https://archive.example.com
range:
  from_block: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fixed-squid-id", cfg.SquidID)
}

func TestLoadAppliesPrometheusPortFromEnv(t *testing.T) {
	t.Setenv("PROCESSOR_PROMETHEUS_PORT", "9123")
	path := writeConfig(t, `
archive_url: https://archive.example.com
range:
  from_block: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9123, cfg.PrometheusPort)
}

func TestLoadDefaultsPollInterval(t *testing.T) {
	path := writeConfig(t, `
archive_url: https://archive.example.com
range:
  from_block: 0
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), int64(cfg.PollInterval.Milliseconds()))
}
