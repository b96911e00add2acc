package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "gophersat", cfg.Solver.Engine)
	assert.Equal(t, 450*time.Second, cfg.Solver.TimeLimit)
	assert.InDelta(t, 0.01, cfg.Solver.Gap, 1e-12)
	assert.Equal(t, 1000, cfg.Solver.BoundMaxVars)
	assert.Equal(t, PolicyConfig{MaxChoices: 10, MinOccupancy: 100, MaxOccupancy: 300, FirstSlot: 1, LastSlot: 100}, cfg.Policy)
	assert.True(t, cfg.Runs.Enabled)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)

	p, err := cfg.Policy.Build()
	require.NoError(t, err)
	assert.Equal(t, 100, p.NumSlots())
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SOLVER_ENGINE", "cbc")
	t.Setenv("SOLVER_TIME_LIMIT", "90s")
	t.Setenv("POLICY_LAST_SLOT", "30")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SOLVE_CACHE_TTL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "cbc", cfg.Solver.Engine)
	assert.Equal(t, 90*time.Second, cfg.Solver.TimeLimit)
	assert.Equal(t, 30, cfg.Policy.LastSlot)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
}

func TestPolicyFileOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
minOccupancy: 50
slots: [1, 2, 3]
overrides:
  - slot: 2
    min: 10
    max: 20
`), 0o600))

	cfg := PolicyConfig{MaxChoices: 10, MinOccupancy: 100, MaxOccupancy: 300, FirstSlot: 1, LastSlot: 100, File: path}
	p, err := cfg.Build()
	require.NoError(t, err)

	assert.Equal(t, 3, p.NumSlots())
	assert.Equal(t, 10, p.MaxChoices())
	assert.Equal(t, 50, p.Bounds(1).Min)
	assert.Equal(t, 300, p.Bounds(1).Max)
	assert.Equal(t, 20, p.Bounds(2).Max)
}

func TestPolicyFileErrors(t *testing.T) {
	_, err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml"), PolicyConfig{}.Spec())
	assert.ErrorContains(t, err, "read policy file")

	_, err = ParsePolicy([]byte("slots: {"), PolicyConfig{}.Spec())
	assert.ErrorContains(t, err, "decode policy file")

	_, err = ParsePolicy([]byte("minOccupancy: 400\nmaxOccupancy: 300\nslots: [1]\nmaxChoices: 1"), PolicyConfig{}.Spec())
	assert.Error(t, err)
}
