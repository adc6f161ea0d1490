package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alejandrodnm/updownbot/config"
	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "trading: {}\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"btc"}, cfg.Trading.Markets)
	assert.Equal(t, []string{"15m", "1h"}, cfg.Trading.Timeframes)
	assert.Equal(t, "api", cfg.Trading.DataSource)
	assert.Equal(t, time.Second, cfg.CheckInterval())
	assert.Equal(t, 20*time.Second, cfg.ClosureInterval())
	assert.Equal(t, 30*time.Second, cfg.DiscoveryInterval())

	sc := cfg.StrategyConfig()
	assert.InDelta(t, 0.99, sc.CostPerPairMax, 1e-9)
	assert.Equal(t, 2, sc.EntryLegs)
	assert.Equal(t, 2, sc.LockLegs)
	assert.Equal(t, 8, sc.ExpansionMaxBuys)
	assert.InDelta(t, 0.05, sc.MinSidePrice, 1e-9)
	assert.InDelta(t, 0.99, sc.MaxSidePrice, 1e-9)

	sz := cfg.SizingConfig()
	assert.Equal(t, 300*time.Second, sz.ReduceAfter)
	assert.InDelta(t, 0.5, sz.MinRatio, 1e-9)
	assert.InDelta(t, 5, sz.MinShares, 1e-9)
	assert.InDelta(t, 24, sz.BaseSizes["btc-15m"], 1e-9)

	tc := cfg.TrendConfig()
	assert.Equal(t, 5, tc.Window)
	assert.Equal(t, 3, tc.MinSamples)
	assert.InDelta(t, 0.005, tc.Threshold, 1e-9)

	ec := cfg.EngineConfig()
	assert.Zero(t, ec.Cooldown)
	assert.Equal(t, 45*time.Second, ec.CooldownByType["btc-1h"])

	assert.Equal(t, "updownbot.db", cfg.Storage.DSN)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_MarketTypeOverrides(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
trading:
  markets: [BTC, eth]
  timeframes: [15m]
  data_source: ws
  cost_per_pair_max: 0.98
  cooldown_seconds: 10
  shares: 30
  market_types:
    eth-15m:
      base_size: 12
      cooldown_seconds: 0
    BTC-1h:
      cooldown_seconds: 60
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"btc", "eth"}, cfg.Trading.Markets)
	assert.InDelta(t, 0.98, cfg.StrategyConfig().CostPerPairMax, 1e-9)

	sz := cfg.SizingConfig()
	assert.InDelta(t, 30, sz.Override, 1e-9)
	assert.InDelta(t, 12, sz.BaseSizes["eth-15m"], 1e-9)

	ec := cfg.EngineConfig()
	assert.Equal(t, 10*time.Second, ec.Cooldown)
	d, ok := ec.CooldownByType[domain.MarketType("eth-15m")]
	require.True(t, ok, "un cooldown explícito de 0 se respeta")
	assert.Zero(t, d)
	assert.Equal(t, 60*time.Second, ec.CooldownByType["btc-1h"])
	assert.Equal(t, 45*time.Second, ec.CooldownByType["eth-1h"])
}

func TestLoad_ExplicitZerosAreKept(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
trading:
  cooldown_seconds_1h: 0
  size_reduce_after_secs: 0
  trend_threshold: 0
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Zero(t, cfg.SizingConfig().ReduceAfter)
	assert.Zero(t, cfg.TrendConfig().Threshold)

	d, ok := cfg.EngineConfig().CooldownByType["btc-1h"]
	require.True(t, ok)
	assert.Zero(t, d)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STORAGE_DSN", ":memory:")
	path := writeConfig(t, t.TempDir(), "log:\n  level: warn\n")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":memory:", cfg.Storage.DSN)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"data source":  "trading:\n  data_source: grpc\n",
		"price band":   "trading:\n  min_side_price: 0.6\n  max_side_price: 0.4\n",
		"timeframe":    "trading:\n  timeframes: [4h]\n",
		"trend window": "trading:\n  trend_window: 2\n  trend_min_samples: 4\n",
		"negative":     "trading:\n  size_reduce_after_secs: -1\n",
		"yaml":         "trading: [\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, t.TempDir(), body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "trading:\n  cost_per_pair_max: 0.99\n")

	reloaded := make(chan *config.Config, 4)
	w, err := config.NewWatcher(path, func(c *config.Config) { reloaded <- c })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// una config inválida no llega al callback
	require.NoError(t, os.WriteFile(path, []byte("trading:\n  data_source: grpc\n"), 0o644))
	select {
	case c := <-reloaded:
		t.Fatalf("invalid config delivered: %+v", c.Trading)
	case <-time.After(500 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, []byte("trading:\n  cost_per_pair_max: 0.97\n"), 0o644))
	select {
	case c := <-reloaded:
		assert.InDelta(t, 0.97, c.Trading.CostPerPairMax, 1e-9)
	case <-time.After(3 * time.Second):
		t.Fatal("config was not reloaded")
	}
}
