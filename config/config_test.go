package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "petd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Sim.TickRate)
	assert.Equal(t, 250*time.Millisecond, cfg.Sim.MaxDelta)
	assert.InDelta(t, 0.1, cfg.Sim.HysteresisMargin, 1e-9)
	assert.Equal(t, "idle", cfg.Sim.FallbackID)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, []string{"127.0.0.1", "::1"}, cfg.Security.AllowedIPs)
	assert.Equal(t, time.Second/30, cfg.Sim.TickInterval())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Sim.TickRate)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
sim:
  tick_rate: 60
  hysteresis_margin: 0.25
needs:
  hunger_rate: 0.01
persistence:
  backend: cache
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 60, cfg.Sim.TickRate)
	assert.InDelta(t, 0.25, cfg.Sim.HysteresisMargin, 1e-9)
	assert.InDelta(t, 0.01, cfg.Needs.HungerRate, 1e-9)
	assert.Equal(t, "cache", cfg.Persistence.Backend)
	// untouched keys keep defaults
	assert.InDelta(t, 120.0, cfg.Sim.WalkSpeed, 1e-9)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PETD_SIM_TICK_RATE", "15")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Sim.TickRate)
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, `
sim:
  tick_rate: 0
  hysteresis_margin: 2
database:
  mode: embedded_xml
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "sim.tick_rate")
	assert.Contains(t, err.Error(), "sim.hysteresis_margin")
	assert.Contains(t, err.Error(), "database.mode")
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "sim: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestWatch_RequiresPath(t *testing.T) {
	assert.Error(t, Watch("", func(*Config, error) {}))
}
