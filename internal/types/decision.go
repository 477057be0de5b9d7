package types

import "time"

type Action string

const (
	ActionExecute Action = "EXECUTE"
	ActionWait    Action = "WAIT"
	ActionSkip    Action = "SKIP"
)

// GateResult is one pass/fail check with its contribution and reason. Hard
// marks a failure that can never be held for re-evaluation: a metric beyond
// its configured limit, missing data, or a direction conflict.
type GateResult struct {
	Name   string  `json:"name"`
	Passed bool    `json:"passed"`
	Hard   bool    `json:"hard,omitempty"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// ScoreBreakdown holds the normalized per-source sub-scores (0-100) before
// weighting.
type ScoreBreakdown struct {
	Regime    float64 `json:"regime"`
	Expert    float64 `json:"expert"`
	Alignment float64 `json:"alignment"`
	Market    float64 `json:"market"`
	Structure float64 `json:"structure"`
}

// DecisionPacket is the immutable audit unit emitted by the engine. Identical
// (context, snapshot, config) inputs yield a bit-identical packet; CreatedAt
// and ID derive from the snapshot, never from the wall clock.
type DecisionPacket struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Action    Action    `json:"action"`
	Direction Direction `json:"direction,omitempty"`

	Confidence float64        `json:"confidence"`
	Breakdown  ScoreBreakdown `json:"breakdown"`
	SizeMult   float64        `json:"size_mult"`

	Gates   []GateResult `json:"gates"`
	Reasons []string     `json:"reasons,omitempty"`

	// Carried forward for the paper executor's contract selection.
	SignalTimeframe string      `json:"signal_timeframe,omitempty"`
	Quality         QualityTier `json:"quality,omitempty"`

	Snapshot      MarketSnapshot `json:"snapshot"`
	EngineVersion string         `json:"engine_version"`
	CreatedAt     time.Time      `json:"created_at"`
}
