package types

import (
	"fmt"
	"strings"
	"time"
)

// SourceTag identifies the upstream producer class of a context fragment.
type SourceTag string

const (
	SourceRegime     SourceTag = "regime"
	SourceExpert     SourceTag = "expert"
	SourceFlowExpert SourceTag = "flow_expert"
	SourceAlignment  SourceTag = "alignment"
	SourceStructure  SourceTag = "structure"
)

func ParseSourceTag(s string) (SourceTag, bool) {
	switch SourceTag(strings.ToLower(strings.TrimSpace(s))) {
	case SourceRegime:
		return SourceRegime, true
	case SourceExpert:
		return SourceExpert, true
	case SourceFlowExpert:
		return SourceFlowExpert, true
	case SourceAlignment:
		return SourceAlignment, true
	case SourceStructure:
		return SourceStructure, true
	default:
		return "", false
	}
}

type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

type QualityTier string

const (
	QualityHigh   QualityTier = "HIGH"
	QualityMedium QualityTier = "MEDIUM"
	QualityLow    QualityTier = "LOW"
)

// RegimeData is the market-phase assessment from the regime producer.
type RegimeData struct {
	Phase      string  `json:"phase"`
	Bias       string  `json:"bias"` // BULLISH / BEARISH / NEUTRAL
	Confidence float64 `json:"confidence"`
	VolRegime  string  `json:"vol_regime"`
}

// ExpertData is a directional call from one of the expert producers.
type ExpertData struct {
	Direction Direction   `json:"direction"`
	Quality   QualityTier `json:"quality"`
	Strength  float64     `json:"strength"`
	Timeframe string      `json:"timeframe"`
}

// AlignmentData carries per-timeframe bias percentages (0-100, bullish share).
type AlignmentData struct {
	TimeframeBias map[string]float64 `json:"timeframe_bias"`
}

// StructureData carries setup validity and liquidity indicators.
type StructureData struct {
	SetupValid     bool    `json:"setup_valid"`
	LiquidityScore float64 `json:"liquidity_score"`
	SweptLiquidity bool    `json:"swept_liquidity"`
}

// ContextFragment is the only input shape the core accepts. Produced by the
// external normalizer; immutable once created. Exactly one payload field is
// set, matching Source.
type ContextFragment struct {
	Source     SourceTag `json:"source"`
	Symbol     string    `json:"symbol"`
	ReceivedAt time.Time `json:"received_at"`

	Regime    *RegimeData    `json:"regime,omitempty"`
	Expert    *ExpertData    `json:"expert,omitempty"`
	Alignment *AlignmentData `json:"alignment,omitempty"`
	Structure *StructureData `json:"structure,omitempty"`
}

// Validate rejects malformed fragments at the boundary. A fragment that fails
// here is never merged, not even partially.
func (f *ContextFragment) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil fragment", ErrValidation)
	}
	if strings.TrimSpace(f.Symbol) == "" {
		return fmt.Errorf("%w: missing symbol", ErrValidation)
	}
	if _, ok := ParseSourceTag(string(f.Source)); !ok {
		return fmt.Errorf("%w: unknown source %q", ErrValidation, f.Source)
	}
	if f.ReceivedAt.IsZero() {
		return fmt.Errorf("%w: missing received_at", ErrValidation)
	}
	switch f.Source {
	case SourceRegime:
		if f.Regime == nil {
			return fmt.Errorf("%w: regime fragment missing payload", ErrValidation)
		}
		if f.Regime.Confidence < 0 || f.Regime.Confidence > 100 {
			return fmt.Errorf("%w: regime confidence out of range [0,100]: %.2f", ErrValidation, f.Regime.Confidence)
		}
	case SourceExpert, SourceFlowExpert:
		if f.Expert == nil {
			return fmt.Errorf("%w: expert fragment missing payload", ErrValidation)
		}
		if f.Expert.Direction != DirectionLong && f.Expert.Direction != DirectionShort {
			return fmt.Errorf("%w: invalid direction %q", ErrValidation, f.Expert.Direction)
		}
		if f.Expert.Strength < 0 || f.Expert.Strength > 100 {
			return fmt.Errorf("%w: expert strength out of range [0,100]: %.2f", ErrValidation, f.Expert.Strength)
		}
	case SourceAlignment:
		if f.Alignment == nil || len(f.Alignment.TimeframeBias) == 0 {
			return fmt.Errorf("%w: alignment fragment missing payload", ErrValidation)
		}
	case SourceStructure:
		if f.Structure == nil {
			return fmt.Errorf("%w: structure fragment missing payload", ErrValidation)
		}
	}
	return nil
}
