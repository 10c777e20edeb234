package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.hcl"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gamecore.hcl")
	content := `
seed = 1234

server {
  listen_addr = ":9999"
  log_level   = "debug"
}

arena {
  tick_ms  = 25
  max_size = 5000
}

chess {
  clock_seconds = 60
}

tile_match {}
arcade {}
bots {
  connect_four_depth = 6
}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, int64(1234), cfg.Seed)
	assert.Equal(t, ":9999", cfg.Server.ListenAddr)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 25, cfg.Arena.TickMs)
	assert.Equal(t, float64(5000), cfg.Arena.MaxSize)
	assert.Equal(t, 60, cfg.Chess.ClockSeconds)
	assert.Equal(t, 6, cfg.Bots.ConnectFourDepth)

	// Untouched values keep their defaults.
	assert.Equal(t, 3600, cfg.Server.RetentionSeconds)
	assert.Equal(t, 1.10, cfg.Arena.AbsorbRatio)
	assert.Equal(t, 60, cfg.TileMatch.CountdownSec)
}

func TestLoadRejectsBadHCL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.hcl")
	require.NoError(t, os.WriteFile(path, []byte("server {"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidateCatchesBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"retention", func(c *Config) { c.Server.RetentionSeconds = -1 }},
		{"arena tick", func(c *Config) { c.Arena.TickMs = 0 }},
		{"arena shrink", func(c *Config) { c.Arena.MaxSize = c.Arena.InitialSize - 1 }},
		{"absorb ratio", func(c *Config) { c.Arena.AbsorbRatio = 1.0 }},
		{"chess clock", func(c *Config) { c.Chess.ClockSeconds = 0 }},
		{"odd grid", func(c *Config) { c.TileMatch.GridSize = 7 }},
		{"think delay", func(c *Config) { c.Bots.ThinkDelayMinMs = 2000 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
