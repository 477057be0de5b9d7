package config

import (
	"fmt"
	"math"
	"strings"

	"talon/internal/types"
)

func validate(c *Config) error {
	if err := c.Context.validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrConfigInvalid, err)
	}
	if err := c.Market.validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrConfigInvalid, err)
	}
	if err := c.Engine.validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrConfigInvalid, err)
	}
	if err := c.Paper.validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrConfigInvalid, err)
	}
	if err := c.Exit.validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrConfigInvalid, err)
	}
	return nil
}

func (c *ContextConfig) validate() error {
	if len(c.RequiredSources) == 0 {
		return fmt.Errorf("context.required_sources requires at least one source")
	}
	for _, group := range [][]string{c.RequiredSources, c.AlternateSources, c.OptionalSources} {
		for _, src := range group {
			if _, ok := types.ParseSourceTag(src); !ok {
				return fmt.Errorf("context sources contain unknown tag: %s", src)
			}
		}
	}
	if c.FreshnessWindowMs <= 0 {
		return fmt.Errorf("context.freshness_window_ms must be > 0")
	}
	return nil
}

func (m *MarketConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(m.Source)) {
	case "binance", "stub":
	default:
		return fmt.Errorf("market.source must be binance or stub, got %q", m.Source)
	}
	if m.CallTimeoutMs <= 0 {
		return fmt.Errorf("market.call_timeout_ms must be > 0")
	}
	if m.Budgets.PerMinute <= 0 || m.Budgets.PerDay <= 0 {
		return fmt.Errorf("market.budgets must be > 0")
	}
	if m.Budgets.PerDay < m.Budgets.PerMinute {
		return fmt.Errorf("market.budgets.per_day must be >= per_minute")
	}
	if m.ATRPeriod < 2 {
		return fmt.Errorf("market.atr_period must be >= 2")
	}
	if m.CandleLookback <= m.ATRPeriod {
		return fmt.Errorf("market.candle_lookback must exceed atr_period")
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.ExecuteThreshold <= 0 || e.ExecuteThreshold > 100 {
		return fmt.Errorf("engine.execute_threshold must be in (0,100]")
	}
	if e.WatchThreshold <= 0 || e.WatchThreshold >= e.ExecuteThreshold {
		return fmt.Errorf("engine.watch_threshold must be in (0, execute_threshold)")
	}
	if e.SoftFailFloor < 0 || e.SoftFailFloor > 100 {
		return fmt.Errorf("engine.soft_fail_floor must be in [0,100]")
	}
	if e.MinRegimeConfidence <= 0 || e.MinRegimeConfidence > 100 {
		return fmt.Errorf("engine.min_regime_confidence must be in (0,100]")
	}
	if e.MaxSpreadBps <= 0 {
		return fmt.Errorf("engine.max_spread_bps must be > 0")
	}
	if e.MaxSpikeRatio <= 1 {
		return fmt.Errorf("engine.max_spike_ratio must be > 1")
	}
	if e.MinDepthQuote <= 0 {
		return fmt.Errorf("engine.min_depth_quote must be > 0")
	}
	if math.Abs(e.Weights.Sum()-1.0) > 1e-9 {
		return fmt.Errorf("engine.weights must sum to 1, got %.6f", e.Weights.Sum())
	}
	if e.Size.Min <= 0 || e.Size.Max < e.Size.Min {
		return fmt.Errorf("engine.size requires 0 < min <= max")
	}
	if e.Size.PhaseBoostMax < 1 {
		return fmt.Errorf("engine.size.phase_boost_max must be >= 1")
	}
	for tier := range e.Size.QualityFactor {
		switch types.QualityTier(tier) {
		case types.QualityHigh, types.QualityMedium, types.QualityLow:
		default:
			return fmt.Errorf("engine.size.quality_factor contains unknown tier: %s", tier)
		}
	}
	return nil
}

func (p *PaperConfig) validate() error {
	if p.BaseContracts <= 0 {
		return fmt.Errorf("paper.base_contracts must be > 0")
	}
	if p.PartialFillRatio <= 0 || p.PartialFillRatio > 1 {
		return fmt.Errorf("paper.partial_fill_ratio must be in (0,1]")
	}
	if p.CommissionPerCt < 0 {
		return fmt.Errorf("paper.commission_per_contract must be >= 0")
	}
	if p.FallbackIV <= 0 || p.FallbackIV > 5 {
		return fmt.Errorf("paper.fallback_iv must be in (0,5]")
	}
	if p.StrikeIncrement <= 0 {
		return fmt.Errorf("paper.strike_increment must be > 0")
	}
	for _, bucket := range []string{"same_day", "weekly", "monthly"} {
		if _, ok := p.SpreadBpsByBucket[bucket]; !ok {
			return fmt.Errorf("paper.spread_bps_by_bucket missing bucket: %s", bucket)
		}
		if _, ok := p.SlipBpsByBucket[bucket]; !ok {
			return fmt.Errorf("paper.slip_bps_by_bucket missing bucket: %s", bucket)
		}
	}
	return nil
}

func (e *ExitConfig) validate() error {
	if e.SweepIntervalMs <= 0 {
		return fmt.Errorf("exit.sweep_interval_ms must be > 0")
	}
	if e.Target1ATR <= 0 || e.Target2ATR <= e.Target1ATR {
		return fmt.Errorf("exit targets require 0 < target_1_atr < target_2_atr")
	}
	if e.StopATR <= 0 {
		return fmt.Errorf("exit.stop_atr must be > 0")
	}
	if e.ThetaDecayPct <= 0 || e.ThetaDecayPct >= 1 {
		return fmt.Errorf("exit.theta_decay_pct must be in (0,1)")
	}
	for _, bucket := range []string{"same_day", "weekly", "monthly"} {
		hours, ok := e.MaxHoldHours[bucket]
		if !ok {
			return fmt.Errorf("exit.max_hold_hours missing bucket: %s", bucket)
		}
		if hours <= 0 {
			return fmt.Errorf("exit.max_hold_hours[%s] must be > 0", bucket)
		}
	}
	return nil
}
