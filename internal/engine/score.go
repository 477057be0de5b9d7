package engine

import (
	"math"

	"talon/internal/config"
	"talon/internal/types"
)

// qualityStrengthFactor discounts expert strength by tier before weighting.
var qualityStrengthFactor = map[types.QualityTier]float64{
	types.QualityHigh:   1.0,
	types.QualityMedium: 0.85,
	types.QualityLow:    0.7,
}

// subScores computes the normalized 0-100 per-source scores. A missing input
// contributes zero: the blend never substitutes a neutral default for data it
// cannot verify.
func subScores(dctx *types.DecisionContext, dir types.Direction, gates []types.GateResult) types.ScoreBreakdown {
	var bd types.ScoreBreakdown

	for _, g := range gates {
		switch g.Name {
		case GateRegime:
			bd.Regime = g.Score
		case GateStructural:
			bd.Structure = g.Score
		case GateMarket:
			bd.Market = g.Score
		}
	}

	if expert, ok := dctx.ActiveExpert(); ok {
		factor := qualityStrengthFactor[expert.Quality]
		if factor == 0 {
			factor = qualityStrengthFactor[types.QualityLow]
		}
		bd.Expert = clamp100(expert.Strength * factor)
	}

	if frag, ok := dctx.Fragment(types.SourceAlignment); ok && frag.Alignment != nil {
		bd.Alignment = clamp100(directionalAlignment(frag.Alignment, dir))
	}

	return bd
}

func confidence(bd types.ScoreBreakdown, w config.WeightsConfig) float64 {
	total := bd.Regime*w.Regime +
		bd.Expert*w.Expert +
		bd.Alignment*w.Alignment +
		bd.Market*w.Market +
		bd.Structure*w.Structure
	return round2(clamp100(total))
}

// sizeMultiplier derives the position-size multiplier: a confidence-driven
// base, adjusted by quality tier and signal timeframe, boosted by regime
// phase within a bounded band, and finally clamped to the configured range.
func sizeMultiplier(conf float64, dctx *types.DecisionContext, cfg config.EngineConfig) float64 {
	base := 0.5 + conf/100

	if expert, ok := dctx.ActiveExpert(); ok {
		if f, ok := cfg.Size.QualityFactor[string(expert.Quality)]; ok && f > 0 {
			base *= f
		}
		if f, ok := cfg.Size.TimeframeBoost[expert.Timeframe]; ok && f > 0 {
			base *= f
		}
	}

	if frag, ok := dctx.Fragment(types.SourceRegime); ok && frag.Regime != nil {
		boost := 1 + (frag.Regime.Confidence/100)*(cfg.Size.PhaseBoostMax-1)
		boost = math.Min(boost, cfg.Size.PhaseBoostMax)
		base *= boost
	}

	return round4(math.Max(cfg.Size.Min, math.Min(cfg.Size.Max, base)))
}

func clamp100(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
