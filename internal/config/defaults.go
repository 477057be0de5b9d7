package config

const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9982"
	defaultLedgerPath  = "/data/live/ledger.db"

	defaultFreshnessWindowMs = int64(5 * 60 * 1000)

	defaultMarketSource   = "binance"
	defaultMarketREST     = "https://api.binance.com"
	defaultCandleInterval = "5m"
	defaultCandleLookback = 120
	defaultATRPeriod      = 14
	defaultCallTimeoutMs  = int64(3000)
	defaultOptionsTTLMs   = int64(60 * 1000)
	defaultPriceTTLMs     = int64(30 * 1000)
	defaultLiquidityTTLMs = int64(5 * 1000)
	defaultBudgetPerMin   = 30
	defaultBudgetPerDay   = 5000
	defaultBreakerFails   = 5
	defaultBreakerCooldMs = int64(2 * 60 * 1000)

	defaultExecuteThreshold = 75.0
	defaultWatchThreshold   = 55.0
	defaultSoftFailFloor    = 40.0
	defaultMinRegimeConf    = 60.0
	defaultMinStructScore   = 50.0
	defaultMinAlignmentPct  = 60.0
	defaultMaxSpreadBps     = 10.0
	defaultMaxSpikeRatio    = 2.5
	defaultMinDepthQuote    = 50_000.0

	defaultBaseContracts    = 2
	defaultPartialFillOver  = 10
	defaultPartialFillRatio = 0.6
	defaultCommissionPerCt  = 0.65
	defaultRiskFreeRate     = 0.05
	defaultStrikeIncrement  = 1.0
	defaultFallbackIV       = 0.35
	defaultFillSeed         = int64(1)

	defaultSweepIntervalMs = int64(60 * 1000)
	defaultExitParallel    = 8
	defaultTarget1ATR      = 1.0
	defaultTarget2ATR      = 2.0
	defaultStopATR         = 1.0
	defaultThetaDecayPct   = 0.65
)

func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Context.applyDefaults()
	c.Market.applyDefaults()
	c.Engine.applyDefaults()
	c.Paper.applyDefaults()
	c.Exit.applyDefaults()
}

func (a *AppConfig) applyDefaults() {
	if a.Env == "" {
		a.Env = defaultAppEnv
	}
	if a.LogLevel == "" {
		a.LogLevel = defaultAppLogLevel
	}
	if a.HTTPAddr == "" {
		a.HTTPAddr = defaultAppHTTPAddr
	}
	if a.LedgerPath == "" {
		a.LedgerPath = defaultLedgerPath
	}
}

func (c *ContextConfig) applyDefaults() {
	if len(c.RequiredSources) == 0 {
		c.RequiredSources = []string{"regime", "structure"}
	}
	if len(c.AlternateSources) == 0 {
		c.AlternateSources = []string{"expert", "flow_expert"}
	}
	if len(c.OptionalSources) == 0 {
		c.OptionalSources = []string{"alignment"}
	}
	if c.FreshnessWindowMs <= 0 {
		c.FreshnessWindowMs = defaultFreshnessWindowMs
	}
}

func (m *MarketConfig) applyDefaults() {
	if m.Source == "" {
		m.Source = defaultMarketSource
	}
	if m.RESTBase == "" {
		m.RESTBase = defaultMarketREST
	}
	if m.CandleInterval == "" {
		m.CandleInterval = defaultCandleInterval
	}
	if m.CandleLookback <= 0 {
		m.CandleLookback = defaultCandleLookback
	}
	if m.ATRPeriod <= 0 {
		m.ATRPeriod = defaultATRPeriod
	}
	if m.CallTimeoutMs <= 0 {
		m.CallTimeoutMs = defaultCallTimeoutMs
	}
	if m.Categories.OptionsTTLMs <= 0 {
		m.Categories.OptionsTTLMs = defaultOptionsTTLMs
	}
	if m.Categories.PriceTTLMs <= 0 {
		m.Categories.PriceTTLMs = defaultPriceTTLMs
	}
	if m.Categories.LiquidityTTLMs <= 0 {
		m.Categories.LiquidityTTLMs = defaultLiquidityTTLMs
	}
	if m.Budgets.PerMinute <= 0 {
		m.Budgets.PerMinute = defaultBudgetPerMin
	}
	if m.Budgets.PerDay <= 0 {
		m.Budgets.PerDay = defaultBudgetPerDay
	}
	if m.Breaker.FailureThreshold <= 0 {
		m.Breaker.FailureThreshold = defaultBreakerFails
	}
	if m.Breaker.CooldownMs <= 0 {
		m.Breaker.CooldownMs = defaultBreakerCooldMs
	}
}

func (e *EngineConfig) applyDefaults() {
	if e.ExecuteThreshold == 0 {
		e.ExecuteThreshold = defaultExecuteThreshold
	}
	if e.WatchThreshold == 0 {
		e.WatchThreshold = defaultWatchThreshold
	}
	if e.SoftFailFloor == 0 {
		e.SoftFailFloor = defaultSoftFailFloor
	}
	if e.MinRegimeConfidence == 0 {
		e.MinRegimeConfidence = defaultMinRegimeConf
	}
	if e.MinStructureScore == 0 {
		e.MinStructureScore = defaultMinStructScore
	}
	if e.MinAlignmentPct == 0 {
		e.MinAlignmentPct = defaultMinAlignmentPct
	}
	if e.MaxSpreadBps == 0 {
		e.MaxSpreadBps = defaultMaxSpreadBps
	}
	if e.MaxSpikeRatio == 0 {
		e.MaxSpikeRatio = defaultMaxSpikeRatio
	}
	if e.MinDepthQuote == 0 {
		e.MinDepthQuote = defaultMinDepthQuote
	}
	if e.Weights.Sum() == 0 {
		e.Weights = WeightsConfig{Regime: 0.25, Expert: 0.25, Alignment: 0.15, Market: 0.20, Structure: 0.15}
	}
	if e.Size.Min == 0 && e.Size.Max == 0 {
		e.Size.Min = 0.25
		e.Size.Max = 2.0
	}
	if len(e.Size.QualityFactor) == 0 {
		e.Size.QualityFactor = map[string]float64{"HIGH": 1.25, "MEDIUM": 1.0, "LOW": 0.75}
	}
	if len(e.Size.TimeframeBoost) == 0 {
		e.Size.TimeframeBoost = map[string]float64{"1m": 0.8, "5m": 0.9, "15m": 1.0, "1h": 1.1, "4h": 1.15, "1d": 1.2}
	}
	if e.Size.PhaseBoostMax == 0 {
		e.Size.PhaseBoostMax = 1.3
	}
}

func (p *PaperConfig) applyDefaults() {
	if p.BaseContracts <= 0 {
		p.BaseContracts = defaultBaseContracts
	}
	if p.PartialFillOver <= 0 {
		p.PartialFillOver = defaultPartialFillOver
	}
	if p.PartialFillRatio <= 0 {
		p.PartialFillRatio = defaultPartialFillRatio
	}
	if p.CommissionPerCt <= 0 {
		p.CommissionPerCt = defaultCommissionPerCt
	}
	if p.RiskFreeRate == 0 {
		p.RiskFreeRate = defaultRiskFreeRate
	}
	if p.StrikeIncrement <= 0 {
		p.StrikeIncrement = defaultStrikeIncrement
	}
	if p.FallbackIV <= 0 {
		p.FallbackIV = defaultFallbackIV
	}
	if p.FillSeed == 0 {
		p.FillSeed = defaultFillSeed
	}
	if len(p.SpreadBpsByBucket) == 0 {
		p.SpreadBpsByBucket = map[string]float64{"same_day": 80, "weekly": 50, "monthly": 30}
	}
	if len(p.SlipBpsByBucket) == 0 {
		p.SlipBpsByBucket = map[string]float64{"same_day": 40, "weekly": 25, "monthly": 15}
	}
}

func (e *ExitConfig) applyDefaults() {
	if e.SweepIntervalMs <= 0 {
		e.SweepIntervalMs = defaultSweepIntervalMs
	}
	if e.MaxParallel <= 0 {
		e.MaxParallel = defaultExitParallel
	}
	if e.Target1ATR == 0 {
		e.Target1ATR = defaultTarget1ATR
	}
	if e.Target2ATR == 0 {
		e.Target2ATR = defaultTarget2ATR
	}
	if e.StopATR == 0 {
		e.StopATR = defaultStopATR
	}
	if e.ThetaDecayPct == 0 {
		e.ThetaDecayPct = defaultThetaDecayPct
	}
	if len(e.MaxHoldHours) == 0 {
		e.MaxHoldHours = map[string]float64{"same_day": 6, "weekly": 72, "monthly": 240}
	}
}
