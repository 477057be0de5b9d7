package market

import (
	"context"
	"fmt"
	"testing"
	"time"

	"talon/internal/config"
	"talon/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMarketConfig() config.MarketConfig {
	return config.MarketConfig{
		Source:        "stub",
		CallTimeoutMs: 1000,
		Categories: config.CategoryTTLs{
			OptionsTTLMs:   60_000,
			PriceTTLMs:     60_000,
			LiquidityTTLMs: 60_000,
		},
		Budgets: config.BudgetConfig{PerMinute: 100, PerDay: 1000},
		Breaker: config.BreakerConfig{FailureThreshold: 3, CooldownMs: 60_000},
	}
}

func stubSources(s *StubSource) Sources {
	return Sources{Options: s, Price: s, Liquidity: s}
}

func TestBuildSnapshot_AllCategoriesAvailable(t *testing.T) {
	a := NewAggregator(testMarketConfig(), stubSources(NewStubSource()))

	snap, err := a.BuildSnapshot(context.Background(), "btcusdt")
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", snap.Symbol)
	require.NotNil(t, snap.Options)
	require.NotNil(t, snap.Price)
	require.NotNil(t, snap.Liquidity)
	assert.Equal(t, 1.0, snap.Completeness)
	assert.Empty(t, snap.Errors)
	assert.Equal(t, 0.40, snap.Options.ImpliedVol)
	assert.Equal(t, 100.0, snap.Price.Last)
}

func TestBuildSnapshot_OneFailureDoesNotBlockOthers(t *testing.T) {
	src := NewStubSource()
	src.OptErr = fmt.Errorf("options feed down")
	a := NewAggregator(testMarketConfig(), stubSources(src))

	snap, err := a.BuildSnapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	assert.Nil(t, snap.Options, "failed category must stay nil, never defaulted")
	assert.False(t, snap.OptionsStatus.Available)
	assert.Contains(t, snap.OptionsStatus.Err, "options feed down")

	require.NotNil(t, snap.Price)
	require.NotNil(t, snap.Liquidity)
	assert.InDelta(t, 2.0/3.0, snap.Completeness, 1e-9)
	require.Len(t, snap.Errors, 1)
}

func TestBuildSnapshot_SecondCallServedFromCache(t *testing.T) {
	a := NewAggregator(testMarketConfig(), stubSources(NewStubSource()))
	ctx := context.Background()

	first, err := a.BuildSnapshot(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, first.PriceStatus.FromCache)

	second, err := a.BuildSnapshot(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, second.PriceStatus.FromCache)
	assert.True(t, second.OptionsStatus.FromCache)
	assert.True(t, second.LiquidityStatus.FromCache)
	assert.Equal(t, first.Price, second.Price)

	stats := a.CacheStats()
	hits, _ := stats[CategoryPrice][0], stats[CategoryPrice][1]
	assert.Equal(t, int64(1), hits)
}

func TestBuildSnapshot_ExpiredCacheRefetches(t *testing.T) {
	cfg := testMarketConfig()
	a := NewAggregator(cfg, stubSources(NewStubSource()))

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	now := base
	a.SetNowFunc(func() time.Time { return now })

	_, err := a.BuildSnapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	now = base.Add(2 * time.Minute) // past every TTL
	snap, err := a.BuildSnapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, snap.PriceStatus.FromCache)
}

func TestBuildSnapshot_BudgetExhaustionMarksUnavailable(t *testing.T) {
	cfg := testMarketConfig()
	cfg.Budgets = config.BudgetConfig{PerMinute: 1, PerDay: 1}
	cfg.Categories = config.CategoryTTLs{OptionsTTLMs: 1, PriceTTLMs: 1, LiquidityTTLMs: 1}
	a := NewAggregator(cfg, stubSources(NewStubSource()))

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	now := base
	a.SetNowFunc(func() time.Time { return now })

	first, err := a.BuildSnapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1.0, first.Completeness)

	now = base.Add(time.Second) // cache expired, budget spent
	second, err := a.BuildSnapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 0.0, second.Completeness)
	assert.Nil(t, second.Price)
	assert.Contains(t, second.PriceStatus.Err, "budget exhausted")
}

type slowSource struct{}

func (slowSource) OptionsAnalytics(ctx context.Context, _ string) (types.OptionsAnalytics, error) {
	<-ctx.Done()
	return types.OptionsAnalytics{}, ctx.Err()
}

func (slowSource) PriceStats(ctx context.Context, _ string) (types.PriceStats, error) {
	<-ctx.Done()
	return types.PriceStats{}, ctx.Err()
}

func (slowSource) Liquidity(ctx context.Context, _ string) (types.Liquidity, error) {
	<-ctx.Done()
	return types.Liquidity{}, ctx.Err()
}

func TestBuildSnapshot_TimeoutFailsCategory(t *testing.T) {
	cfg := testMarketConfig()
	cfg.CallTimeoutMs = 20
	src := slowSource{}
	a := NewAggregator(cfg, Sources{Options: src, Price: src, Liquidity: src})

	start := time.Now()
	snap, err := a.BuildSnapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second, "per-call timeout must bound the fan-out")

	assert.Equal(t, 0.0, snap.Completeness)
	assert.Len(t, snap.Errors, 3)
	assert.Contains(t, snap.PriceStatus.Err, "context deadline exceeded")
}

func TestBuildSnapshot_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	cfg := testMarketConfig()
	cfg.Categories = config.CategoryTTLs{OptionsTTLMs: 1, PriceTTLMs: 1, LiquidityTTLMs: 1}
	cfg.Breaker = config.BreakerConfig{FailureThreshold: 2, CooldownMs: 60_000}
	src := NewStubSource()
	src.PxErr = fmt.Errorf("feed down")
	a := NewAggregator(cfg, stubSources(src))

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	now := base
	a.SetNowFunc(func() time.Time { return now })

	for i := 0; i < 2; i++ {
		now = now.Add(time.Second)
		snap, err := a.BuildSnapshot(context.Background(), "BTCUSDT")
		require.NoError(t, err)
		assert.Contains(t, snap.PriceStatus.Err, "feed down")
	}

	now = now.Add(time.Second)
	snap, err := a.BuildSnapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Contains(t, snap.PriceStatus.Err, "circuit open")
}

func TestBuildSnapshot_OpenCircuitDoesNotSpendBudget(t *testing.T) {
	cfg := testMarketConfig()
	cfg.Categories = config.CategoryTTLs{OptionsTTLMs: 1, PriceTTLMs: 1, LiquidityTTLMs: 1}
	cfg.Budgets = config.BudgetConfig{PerMinute: 2, PerDay: 2}
	cfg.Breaker = config.BreakerConfig{FailureThreshold: 1, CooldownMs: 60_000}
	src := NewStubSource()
	src.PxErr = fmt.Errorf("feed down")
	a := NewAggregator(cfg, stubSources(src))

	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
	now := base
	a.SetNowFunc(func() time.Time { return now })

	// First call spends one token and trips the breaker.
	snap, err := a.BuildSnapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Contains(t, snap.PriceStatus.Err, "feed down")

	// Rejections while the circuit is open must not draw down the remaining
	// token: if they did, the error would flip to budget exhaustion.
	for i := 0; i < 3; i++ {
		now = now.Add(time.Second)
		snap, err = a.BuildSnapshot(context.Background(), "BTCUSDT")
		require.NoError(t, err)
		assert.Contains(t, snap.PriceStatus.Err, "circuit open")
		assert.NotContains(t, snap.PriceStatus.Err, "budget")
	}
}

func TestBuildSnapshot_EmptySymbolRejected(t *testing.T) {
	a := NewAggregator(testMarketConfig(), stubSources(NewStubSource()))
	_, err := a.BuildSnapshot(context.Background(), "  ")
	require.ErrorIs(t, err, types.ErrValidation)
}
