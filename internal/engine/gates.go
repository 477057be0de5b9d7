package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"talon/internal/config"
	"talon/internal/types"
)

const (
	GateRegime     = "regime"
	GateStructural = "structural"
	GateMarket     = "market"
)

// regimeGate checks phase/bias alignment with the requested direction and the
// minimum regime-confidence threshold. Absent regime data fails the gate.
func regimeGate(dctx *types.DecisionContext, dir types.Direction, cfg config.EngineConfig) types.GateResult {
	res := types.GateResult{Name: GateRegime}
	frag, ok := dctx.Fragment(types.SourceRegime)
	if !ok || frag.Regime == nil {
		res.Hard = true
		res.Reason = "regime data absent"
		return res
	}
	rg := frag.Regime
	align := biasAlignment(rg.Bias, dir)
	res.Score = rg.Confidence * align
	switch {
	case align == 0:
		res.Hard = true
		res.Reason = fmt.Sprintf("regime bias %s opposes direction %s", rg.Bias, dir)
	case rg.Confidence < cfg.MinRegimeConfidence:
		res.Reason = fmt.Sprintf("regime confidence %.0f below minimum %.0f", rg.Confidence, cfg.MinRegimeConfidence)
	default:
		res.Passed = true
		res.Reason = fmt.Sprintf("regime %s/%s confidence %.0f", rg.Phase, rg.Bias, rg.Confidence)
	}
	return res
}

// structuralGate checks setup validity, structure liquidity, and (when the
// optional alignment source is present) multi-timeframe agreement. Absent
// structural inputs fail the gate.
func structuralGate(dctx *types.DecisionContext, dir types.Direction, cfg config.EngineConfig) types.GateResult {
	res := types.GateResult{Name: GateStructural}
	frag, ok := dctx.Fragment(types.SourceStructure)
	if !ok || frag.Structure == nil {
		res.Hard = true
		res.Reason = "structural data absent"
		return res
	}
	st := frag.Structure
	res.Score = st.LiquidityScore
	if !st.SetupValid {
		res.Hard = true
		res.Reason = "setup invalid"
		return res
	}
	if st.LiquidityScore < cfg.MinStructureScore {
		res.Reason = fmt.Sprintf("structure liquidity score %.0f below minimum %.0f", st.LiquidityScore, cfg.MinStructureScore)
		return res
	}
	if af, ok := dctx.Fragment(types.SourceAlignment); ok && af.Alignment != nil {
		pct := directionalAlignment(af.Alignment, dir)
		if pct < cfg.MinAlignmentPct {
			res.Reason = fmt.Sprintf("timeframe alignment %.0f%% below minimum %.0f%%", pct, cfg.MinAlignmentPct)
			return res
		}
	}
	res.Passed = true
	res.Reason = fmt.Sprintf("setup valid, liquidity score %.0f", st.LiquidityScore)
	return res
}

// marketGate checks spread, volatility spike and depth from the snapshot.
// Each sub-check fails explicitly when its metric is unavailable. A metric of
// exactly zero is present-and-zero, never "missing": only a nil category is
// missing. Every market failure is hard: a breached limit or an unavailable
// metric rules the trade out regardless of how the other sub-scores average.
func marketGate(snap *types.MarketSnapshot, cfg config.EngineConfig) types.GateResult {
	res := types.GateResult{Name: GateMarket}
	var failures []string
	var scores []float64

	if snap.Liquidity == nil {
		failures = append(failures, "spread unavailable", "depth unavailable")
	} else {
		liq := snap.Liquidity
		if liq.SpreadBps > cfg.MaxSpreadBps {
			failures = append(failures, fmt.Sprintf("spread %.1fbps exceeds maximum %.1fbps", liq.SpreadBps, cfg.MaxSpreadBps))
		}
		scores = append(scores, marginScore(cfg.MaxSpreadBps-liq.SpreadBps, cfg.MaxSpreadBps))
		if liq.DepthQuote < cfg.MinDepthQuote {
			failures = append(failures, fmt.Sprintf("depth %.0f below minimum %.0f", liq.DepthQuote, cfg.MinDepthQuote))
		}
		scores = append(scores, marginScore(liq.DepthQuote-cfg.MinDepthQuote, cfg.MinDepthQuote))
	}

	if snap.Price == nil {
		failures = append(failures, "volatility stats unavailable")
	} else {
		if snap.Price.SpikeRatio > cfg.MaxSpikeRatio {
			failures = append(failures, fmt.Sprintf("volatility spike ratio %.2f exceeds maximum %.2f", snap.Price.SpikeRatio, cfg.MaxSpikeRatio))
		}
		scores = append(scores, marginScore(cfg.MaxSpikeRatio-snap.Price.SpikeRatio, cfg.MaxSpikeRatio))
	}

	if len(scores) > 0 {
		sum := 0.0
		for _, s := range scores {
			sum += s
		}
		res.Score = sum / float64(len(scores))
	}
	if len(failures) > 0 {
		res.Hard = true
		res.Reason = strings.Join(failures, "; ")
		return res
	}
	res.Passed = true
	res.Reason = "spread, volatility and depth within limits"
	return res
}

// biasAlignment maps regime bias vs direction into a score factor.
func biasAlignment(bias string, dir types.Direction) float64 {
	b := strings.ToUpper(strings.TrimSpace(bias))
	switch {
	case b == "NEUTRAL":
		return 0.5
	case b == "BULLISH" && dir == types.DirectionLong,
		b == "BEARISH" && dir == types.DirectionShort:
		return 1
	default:
		return 0
	}
}

// directionalAlignment averages per-timeframe bullish percentages, flipped for
// shorts. Summation runs in sorted-key order: map iteration order varies
// between runs, and float addition is not associative, so a fixed order is
// what keeps the blended score bit-stable for identical inputs.
func directionalAlignment(a *types.AlignmentData, dir types.Direction) float64 {
	if a == nil || len(a.TimeframeBias) == 0 {
		return 0
	}
	keys := make([]string, 0, len(a.TimeframeBias))
	for tf := range a.TimeframeBias {
		keys = append(keys, tf)
	}
	sort.Strings(keys)
	sum := 0.0
	for _, tf := range keys {
		pct := a.TimeframeBias[tf]
		if dir == types.DirectionShort {
			pct = 100 - pct
		}
		sum += pct
	}
	return sum / float64(len(keys))
}

// marginScore scales headroom against a threshold into [0,100].
func marginScore(margin, scale float64) float64 {
	if scale <= 0 {
		return 0
	}
	return math.Max(0, math.Min(100, margin/scale*100))
}
