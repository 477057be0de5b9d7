package config

import (
	"os"
	"path/filepath"
	"testing"

	"talon/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
app:
  env: test
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":9982", cfg.App.HTTPAddr)

	assert.Equal(t, []string{"regime", "structure"}, cfg.Context.RequiredSources)
	assert.Equal(t, []string{"expert", "flow_expert"}, cfg.Context.AlternateSources)
	assert.Equal(t, int64(300_000), cfg.Context.FreshnessWindowMs)

	assert.Equal(t, "binance", cfg.Market.Source)
	assert.Equal(t, 30, cfg.Market.Budgets.PerMinute)

	assert.Equal(t, 75.0, cfg.Engine.ExecuteThreshold)
	assert.Equal(t, 55.0, cfg.Engine.WatchThreshold)
	assert.InDelta(t, 1.0, cfg.Engine.Weights.Sum(), 1e-9)

	assert.Equal(t, 0.35, cfg.Paper.FallbackIV)
	assert.Contains(t, cfg.Paper.SpreadBpsByBucket, "same_day")
	assert.Contains(t, cfg.Exit.MaxHoldHours, "monthly")
}

func TestLoad_OverridesFromFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
market:
  source: stub
engine:
  execute_threshold: 80
  watch_threshold: 60
exit:
  theta_decay_pct: 0.5
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "stub", cfg.Market.Source)
	assert.Equal(t, 80.0, cfg.Engine.ExecuteThreshold)
	assert.Equal(t, 60.0, cfg.Engine.WatchThreshold)
	assert.Equal(t, 0.5, cfg.Exit.ThetaDecayPct)
}

func TestLoad_IncludeChainMerges(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	require.NoError(t, os.WriteFile(base, []byte(`
market:
  source: stub
engine:
  execute_threshold: 80
`), 0o644))
	main := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(main, []byte(`
include:
  - base.yaml
engine:
  execute_threshold: 85
`), 0o644))

	cfg, err := Load(main)
	require.NoError(t, err)
	assert.Equal(t, "stub", cfg.Market.Source, "inherited from the include")
	assert.Equal(t, 85.0, cfg.Engine.ExecuteThreshold, "main file wins over the include")
}

func TestLoad_RejectsInvalidThresholdOrder(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
engine:
  execute_threshold: 50
  watch_threshold: 60
`)
	_, err := Load(path)
	require.ErrorIs(t, err, types.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "watch_threshold")
}

func TestLoad_RejectsWeightsNotSummingToOne(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
engine:
  weights:
    regime: 0.5
    expert: 0.5
    alignment: 0.5
    market: 0.5
    structure: 0.5
`)
	_, err := Load(path)
	require.ErrorIs(t, err, types.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "weights must sum to 1")
}

func TestLoad_RejectsUnknownMarketSource(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
market:
  source: kraken
`)
	_, err := Load(path)
	require.ErrorIs(t, err, types.ErrConfigInvalid)
}

func TestLoad_RejectsUnknownContextSource(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
context:
  required_sources: [regime, astrology]
`)
	_, err := Load(path)
	require.ErrorIs(t, err, types.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "astrology")
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
