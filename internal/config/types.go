package config

import "time"

// Config is the frozen configuration object. It is loaded and validated once
// at process start; the core never consults external configuration afterwards.
type Config struct {
	App     AppConfig     `toml:"app"`
	Context ContextConfig `toml:"context"`
	Market  MarketConfig  `toml:"market"`
	Engine  EngineConfig  `toml:"engine"`
	Paper   PaperConfig   `toml:"paper"`
	Exit    ExitConfig    `toml:"exit"`
}

type AppConfig struct {
	Env        string `toml:"env"`
	LogLevel   string `toml:"log_level"`
	HTTPAddr   string `toml:"http_addr"`
	LogPath    string `toml:"log_path"`
	LedgerPath string `toml:"ledger_path"`
}

// ContextConfig is the completeness rule: which sources must be present and
// fresh before a decision may be attempted.
type ContextConfig struct {
	RequiredSources   []string `toml:"required_sources"`
	AlternateSources  []string `toml:"alternate_sources"` // at least one of
	OptionalSources   []string `toml:"optional_sources"`
	FreshnessWindowMs int64    `toml:"freshness_window_ms"`
}

func (c *ContextConfig) FreshnessWindow() time.Duration {
	return time.Duration(c.FreshnessWindowMs) * time.Millisecond
}

type MarketConfig struct {
	Source          string        `toml:"source"` // binance | stub
	RESTBase        string        `toml:"rest_base"`
	CandleInterval  string        `toml:"candle_interval"`
	CandleLookback  int           `toml:"candle_lookback"`
	ATRPeriod       int           `toml:"atr_period"`
	CallTimeoutMs   int64         `toml:"call_timeout_ms"`
	Categories      CategoryTTLs  `toml:"categories"`
	Budgets         BudgetConfig  `toml:"budgets"`
	Breaker         BreakerConfig `toml:"breaker"`
	WarmupOnStartup bool          `toml:"warmup_on_startup"`
	Symbols         []string      `toml:"symbols"`
}

func (m *MarketConfig) CallTimeout() time.Duration {
	return time.Duration(m.CallTimeoutMs) * time.Millisecond
}

// CategoryTTLs sets independent cache lifetimes per snapshot category. Live
// liquidity is short; slower statistics cache longer.
type CategoryTTLs struct {
	OptionsTTLMs   int64 `toml:"options_ttl_ms"`
	PriceTTLMs     int64 `toml:"price_ttl_ms"`
	LiquidityTTLMs int64 `toml:"liquidity_ttl_ms"`
}

func (c *CategoryTTLs) OptionsTTL() time.Duration {
	return time.Duration(c.OptionsTTLMs) * time.Millisecond
}
func (c *CategoryTTLs) PriceTTL() time.Duration {
	return time.Duration(c.PriceTTLMs) * time.Millisecond
}
func (c *CategoryTTLs) LiquidityTTL() time.Duration {
	return time.Duration(c.LiquidityTTLMs) * time.Millisecond
}

// BudgetConfig caps provider calls. A spent budget marks the category
// unavailable immediately instead of queueing retries.
type BudgetConfig struct {
	PerMinute int `toml:"per_minute"`
	PerDay    int `toml:"per_day"`
}

type BreakerConfig struct {
	FailureThreshold int   `toml:"failure_threshold"`
	CooldownMs       int64 `toml:"cooldown_ms"`
}

func (b *BreakerConfig) Cooldown() time.Duration {
	return time.Duration(b.CooldownMs) * time.Millisecond
}

type EngineConfig struct {
	ExecuteThreshold float64 `toml:"execute_threshold"`
	WatchThreshold   float64 `toml:"watch_threshold"`
	SoftFailFloor    float64 `toml:"soft_fail_floor"`

	MinRegimeConfidence float64 `toml:"min_regime_confidence"`
	MinStructureScore   float64 `toml:"min_structure_score"`
	MinAlignmentPct     float64 `toml:"min_alignment_pct"`

	MaxSpreadBps  float64 `toml:"max_spread_bps"`
	MaxSpikeRatio float64 `toml:"max_spike_ratio"`
	MinDepthQuote float64 `toml:"min_depth_quote"`

	Weights WeightsConfig `toml:"weights"`
	Size    SizeConfig    `toml:"size"`
}

// WeightsConfig blends the per-source sub-scores into the confidence score.
// Weights must sum to 1.
type WeightsConfig struct {
	Regime    float64 `toml:"regime"`
	Expert    float64 `toml:"expert"`
	Alignment float64 `toml:"alignment"`
	Market    float64 `toml:"market"`
	Structure float64 `toml:"structure"`
}

func (w WeightsConfig) Sum() float64 {
	return w.Regime + w.Expert + w.Alignment + w.Market + w.Structure
}

type SizeConfig struct {
	Min            float64            `toml:"min"`
	Max            float64            `toml:"max"`
	QualityFactor  map[string]float64 `toml:"quality_factor"`
	TimeframeBoost map[string]float64 `toml:"timeframe_boost"`
	PhaseBoostMax  float64            `toml:"phase_boost_max"`
}

type PaperConfig struct {
	BaseContracts     int                `toml:"base_contracts"`
	PartialFillOver   int                `toml:"partial_fill_over"`
	PartialFillRatio  float64            `toml:"partial_fill_ratio"`
	CommissionPerCt   float64            `toml:"commission_per_contract"`
	RiskFreeRate      float64            `toml:"risk_free_rate"`
	StrikeIncrement   float64            `toml:"strike_increment"`
	FallbackIV        float64            `toml:"fallback_iv"`
	FillSeed          int64              `toml:"fill_seed"`
	SpreadBpsByBucket map[string]float64 `toml:"spread_bps_by_bucket"`
	SlipBpsByBucket   map[string]float64 `toml:"slip_bps_by_bucket"`
}

type ExitConfig struct {
	SweepIntervalMs int64              `toml:"sweep_interval_ms"`
	MaxParallel     int                `toml:"max_parallel"`
	Target1ATR      float64            `toml:"target_1_atr"`
	Target2ATR      float64            `toml:"target_2_atr"`
	StopATR         float64            `toml:"stop_atr"`
	ThetaDecayPct   float64            `toml:"theta_decay_pct"` // exit when value decays below this fraction of entry
	MaxHoldHours    map[string]float64 `toml:"max_hold_hours"`  // keyed by DTE bucket
}

func (e *ExitConfig) SweepInterval() time.Duration {
	return time.Duration(e.SweepIntervalMs) * time.Millisecond
}
