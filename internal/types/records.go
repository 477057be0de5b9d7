package types

import "time"

type OptionType string

const (
	OptionCall OptionType = "CALL"
	OptionPut  OptionType = "PUT"
)

type DTEBucket string

const (
	BucketSameDay DTEBucket = "same_day"
	BucketWeekly  DTEBucket = "weekly"
	BucketMonthly DTEBucket = "monthly"
)

// Greeks are the analytic sensitivities at entry, per contract on the
// underlying unit (delta per $1 spot move, theta per calendar day, vega per
// vol point).
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// Costs tracks simulated frictions separately from gross P&L. Entry costs are
// booked on the execution record, exit costs on the exit record.
type Costs struct {
	Commission float64 `json:"commission"`
	Spread     float64 `json:"spread"`
	Slippage   float64 `json:"slippage"`
}

func (c Costs) Total() float64 { return c.Commission + c.Spread + c.Slippage }

// ExecutionRecord is created once per accepted decision and never mutated; an
// ExitRecord later supersedes it by closing the position.
type ExecutionRecord struct {
	PositionID string    `json:"position_id"`
	DecisionID string    `json:"decision_id"`
	Symbol     string    `json:"symbol"`
	Direction  Direction `json:"direction"`

	OptionType OptionType `json:"option_type"`
	Strike     float64    `json:"strike"`
	Expiry     time.Time  `json:"expiry"`
	DTE        int        `json:"dte"`
	Bucket     DTEBucket  `json:"bucket"`

	Contracts       int     `json:"contracts"`
	FillRatio       float64 `json:"fill_ratio"`
	FilledContracts int     `json:"filled_contracts"`

	TheoPrice       float64 `json:"theo_price"`
	EntryPrice      float64 `json:"entry_price"`
	Greeks          Greeks  `json:"greeks"`
	EntryIV         float64 `json:"entry_iv"`
	PricingFallback bool    `json:"pricing_fallback"`

	UnderlyingEntry float64 `json:"underlying_entry"`
	Target1         float64 `json:"target_1"`
	Target2         float64 `json:"target_2"`
	StopLoss        float64 `json:"stop_loss"`

	EntryCosts Costs     `json:"entry_costs"`
	OpenedAt   time.Time `json:"opened_at"`
}

type ExitReason string

const (
	ExitTarget2    ExitReason = "TARGET_2"
	ExitTarget1    ExitReason = "TARGET_1"
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitThetaDecay ExitReason = "THETA_DECAY"
	ExitMaxHold    ExitReason = "MAX_HOLD"
)

// Attribution decomposes gross P&L into its Greek-driven causes. The four
// components sum to gross P&L within a small rounding tolerance; the IV leg
// absorbs the Taylor residual so the identity holds exactly.
type Attribution struct {
	Delta float64 `json:"delta"`
	IV    float64 `json:"iv"`
	Theta float64 `json:"theta"`
	Gamma float64 `json:"gamma"`
}

func (a Attribution) Sum() float64 { return a.Delta + a.IV + a.Theta + a.Gamma }

// ExitRecord is the terminal event for a position; created at most once.
type ExitRecord struct {
	PositionID string     `json:"position_id"`
	Symbol     string     `json:"symbol"`
	Reason     ExitReason `json:"reason"`

	ExitTime       time.Time `json:"exit_time"`
	UnderlyingExit float64   `json:"underlying_exit"`
	ExitPrice      float64   `json:"exit_price"`
	ExitIV         float64   `json:"exit_iv"`

	GrossPnL    float64       `json:"gross_pnl"`
	NetPnL      float64       `json:"net_pnl"`
	HoldTime    time.Duration `json:"hold_time"`
	Attribution Attribution   `json:"attribution"`

	ExitCosts  Costs   `json:"exit_costs"`
	TotalCosts float64 `json:"total_costs"` // entry + exit frictions
}
