package service

import (
	"context"
	"testing"
	"time"

	"talon/internal/config"
	"talon/internal/contextstore"
	"talon/internal/engine"
	"talon/internal/exits"
	"talon/internal/market"
	"talon/internal/paper"
	"talon/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) AppendDecision(ctx context.Context, pkt *types.DecisionPacket) error {
	args := m.Called(ctx, pkt)
	return args.Error(0)
}

func (m *mockLedger) AppendExecution(ctx context.Context, rec *types.ExecutionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockLedger) AppendExit(ctx context.Context, rec *types.ExitRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockLedger) OpenPositions(ctx context.Context) ([]types.ExecutionRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.ExecutionRecord), args.Error(1)
}

func (m *mockLedger) HasExit(ctx context.Context, positionID string) (bool, error) {
	args := m.Called(ctx, positionID)
	return args.Bool(0), args.Error(1)
}

func testConfig() *config.Config {
	return &config.Config{
		Context: config.ContextConfig{
			RequiredSources:   []string{"regime", "structure"},
			AlternateSources:  []string{"expert", "flow_expert"},
			OptionalSources:   []string{"alignment"},
			FreshnessWindowMs: 5 * 60 * 1000,
		},
		Market: config.MarketConfig{
			Source:        "stub",
			CallTimeoutMs: 1000,
			Categories:    config.CategoryTTLs{OptionsTTLMs: 60_000, PriceTTLMs: 60_000, LiquidityTTLMs: 60_000},
			Budgets:       config.BudgetConfig{PerMinute: 100, PerDay: 1000},
			Breaker:       config.BreakerConfig{FailureThreshold: 3, CooldownMs: 60_000},
		},
		Engine: config.EngineConfig{
			ExecuteThreshold:    75,
			WatchThreshold:      55,
			SoftFailFloor:       40,
			MinRegimeConfidence: 60,
			MinStructureScore:   50,
			MinAlignmentPct:     60,
			MaxSpreadBps:        10,
			MaxSpikeRatio:       2.5,
			MinDepthQuote:       50_000,
			Weights:             config.WeightsConfig{Regime: 0.25, Expert: 0.25, Alignment: 0.15, Market: 0.20, Structure: 0.15},
			Size: config.SizeConfig{
				Min:            0.25,
				Max:            2.0,
				QualityFactor:  map[string]float64{"HIGH": 1.25, "MEDIUM": 1.0, "LOW": 0.75},
				TimeframeBoost: map[string]float64{"1h": 1.1},
				PhaseBoostMax:  1.3,
			},
		},
		Paper: config.PaperConfig{
			BaseContracts:     2,
			PartialFillOver:   10,
			PartialFillRatio:  0.6,
			CommissionPerCt:   0.65,
			RiskFreeRate:      0.05,
			StrikeIncrement:   1.0,
			FallbackIV:        0.35,
			FillSeed:          1,
			SpreadBpsByBucket: map[string]float64{"same_day": 80, "weekly": 50, "monthly": 30},
			SlipBpsByBucket:   map[string]float64{"same_day": 40, "weekly": 25, "monthly": 15},
		},
		Exit: config.ExitConfig{
			SweepIntervalMs: 60_000,
			MaxParallel:     4,
			Target1ATR:      1.0,
			Target2ATR:      2.0,
			StopATR:         1.0,
			ThetaDecayPct:   0.65,
			MaxHoldHours:    map[string]float64{"same_day": 6, "weekly": 72, "monthly": 240},
		},
	}
}

func newTestCore(t *testing.T, led *mockLedger) (*Core, *contextstore.Store) {
	t.Helper()
	cfg := testConfig()
	contexts := contextstore.New(cfg.Context)
	stub := market.NewStubSource()
	aggregator := market.NewAggregator(cfg.Market, market.Sources{Options: stub, Price: stub, Liquidity: stub})
	eng := engine.New(cfg.Engine)
	executor := paper.NewExecutor(cfg.Paper, cfg.Exit)
	pricer := paper.PricingModel{RiskFreeRate: cfg.Paper.RiskFreeRate}
	simulator := exits.NewSimulator(cfg.Exit, cfg.Paper, led, aggregator, pricer)

	core, err := New(Params{
		Config:   cfg,
		Contexts: contexts,
		Market:   aggregator,
		Engine:   eng,
		Executor: executor,
		Exits:    simulator,
		Ledger:   led,
	})
	require.NoError(t, err)
	return core, contexts
}

func seedFullContext(t *testing.T, core *Core, now time.Time) {
	t.Helper()
	at := now.Add(-time.Minute)
	frags := []types.ContextFragment{
		{
			Source: types.SourceRegime, Symbol: "BTCUSDT", ReceivedAt: at,
			Regime: &types.RegimeData{Phase: "markup", Bias: "BULLISH", Confidence: 90},
		},
		{
			Source: types.SourceStructure, Symbol: "BTCUSDT", ReceivedAt: at,
			Structure: &types.StructureData{SetupValid: true, LiquidityScore: 85},
		},
		{
			Source: types.SourceExpert, Symbol: "BTCUSDT", ReceivedAt: at,
			Expert: &types.ExpertData{Direction: types.DirectionLong, Quality: types.QualityHigh, Strength: 88, Timeframe: "1h"},
		},
		{
			Source: types.SourceAlignment, Symbol: "BTCUSDT", ReceivedAt: at,
			Alignment: &types.AlignmentData{TimeframeBias: map[string]float64{"1h": 90, "4h": 80}},
		},
	}
	for _, frag := range frags {
		require.NoError(t, core.UpdateContext(frag))
	}
}

func TestTryBuildDecision_NotReadySkipsLedger(t *testing.T) {
	led := new(mockLedger)
	core, _ := newTestCore(t, led)

	pkt, notReady, err := core.TryBuildDecision(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, pkt)
	require.NotNil(t, notReady)
	assert.Contains(t, notReady.Missing, "regime")
	led.AssertNotCalled(t, "AppendDecision", mock.Anything, mock.Anything)
}

func TestTryBuildDecision_ExecutePathRecordsDecisionAndExecution(t *testing.T) {
	led := new(mockLedger)
	led.On("AppendDecision", mock.Anything, mock.Anything).Return(nil)

	var opened *types.ExecutionRecord
	led.On("AppendExecution", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		opened = args.Get(1).(*types.ExecutionRecord)
	}).Return(nil)

	core, contexts := newTestCore(t, led)
	now := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)
	contexts.SetNowFunc(func() time.Time { return now })
	seedFullContext(t, core, now)

	pkt, notReady, err := core.TryBuildDecision(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Nil(t, notReady)
	require.NotNil(t, pkt)

	assert.Equal(t, types.ActionExecute, pkt.Action)
	assert.Equal(t, "BTCUSDT", pkt.Symbol)
	assert.GreaterOrEqual(t, pkt.Confidence, 75.0)

	led.AssertCalled(t, "AppendDecision", mock.Anything, pkt)
	require.NotNil(t, opened)
	assert.Equal(t, pkt.ID, opened.DecisionID)
	assert.Equal(t, types.OptionCall, opened.OptionType)
}

func TestTryBuildDecision_WaitDoesNotOpenPosition(t *testing.T) {
	led := new(mockLedger)
	led.On("AppendDecision", mock.Anything, mock.Anything).Return(nil)

	core, contexts := newTestCore(t, led)
	now := time.Date(2026, 8, 25, 14, 30, 0, 0, time.UTC)
	contexts.SetNowFunc(func() time.Time { return now })
	seedFullContext(t, core, now)

	// Degrade the expert signal so confidence lands in the watch band.
	require.NoError(t, core.UpdateContext(types.ContextFragment{
		Source: types.SourceExpert, Symbol: "BTCUSDT", ReceivedAt: now.Add(-time.Minute),
		Expert: &types.ExpertData{Direction: types.DirectionLong, Quality: types.QualityLow, Strength: 30, Timeframe: "1h"},
	}))
	require.NoError(t, core.UpdateContext(types.ContextFragment{
		Source: types.SourceRegime, Symbol: "BTCUSDT", ReceivedAt: now.Add(-time.Minute),
		Regime: &types.RegimeData{Phase: "accumulation", Bias: "BULLISH", Confidence: 65},
	}))

	pkt, notReady, err := core.TryBuildDecision(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	require.Nil(t, notReady)
	require.NotNil(t, pkt)
	assert.NotEqual(t, types.ActionExecute, pkt.Action)

	led.AssertCalled(t, "AppendDecision", mock.Anything, pkt)
	led.AssertNotCalled(t, "AppendExecution", mock.Anything, mock.Anything)
}

func TestEvaluateOpenPositions_Delegates(t *testing.T) {
	led := new(mockLedger)
	led.On("OpenPositions", mock.Anything).Return([]types.ExecutionRecord{}, nil)

	core, _ := newTestCore(t, led)
	result, err := core.EvaluateOpenPositions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Evaluated)
}

func TestNew_RequiresAllDependencies(t *testing.T) {
	_, err := New(Params{})
	require.Error(t, err)
}
