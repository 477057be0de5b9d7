package types

import "time"

// OptionsAnalytics is the options-surface category of a market snapshot.
type OptionsAnalytics struct {
	ImpliedVol   float64 `json:"implied_vol"`
	IVRank       float64 `json:"iv_rank"`
	PutCallRatio float64 `json:"put_call_ratio"`
}

// PriceStats is the price/volatility statistics category.
type PriceStats struct {
	Last        float64 `json:"last"`
	ATR         float64 `json:"atr"`
	ATRPercent  float64 `json:"atr_percent"`
	RealizedVol float64 `json:"realized_vol"`
	SpikeRatio  float64 `json:"spike_ratio"` // current true range / ATR
}

// Liquidity is the order-book/liquidity category.
type Liquidity struct {
	SpreadBps   float64 `json:"spread_bps"`
	DepthQuote  float64 `json:"depth_quote"` // resting quote-denominated depth near touch
	QuoteVolume float64 `json:"quote_volume"`
}

// CategoryStatus records availability for one snapshot category. Unavailable
// means the value pointer is nil and downstream checks must fail, never
// default.
type CategoryStatus struct {
	Available bool      `json:"available"`
	FromCache bool      `json:"from_cache"`
	Err       string    `json:"err,omitempty"`
	FetchedAt time.Time `json:"fetched_at"`
}

// MarketSnapshot is rebuilt per decision attempt. Categories are independent:
// a nil category with Available=false is "missing"; a present category with a
// zero-valued metric is "present and zero". The two are never conflated.
type MarketSnapshot struct {
	Symbol string `json:"symbol"`

	Options         *OptionsAnalytics `json:"options,omitempty"`
	OptionsStatus   CategoryStatus    `json:"options_status"`
	Price           *PriceStats       `json:"price,omitempty"`
	PriceStatus     CategoryStatus    `json:"price_status"`
	Liquidity       *Liquidity        `json:"liquidity,omitempty"`
	LiquidityStatus CategoryStatus    `json:"liquidity_status"`

	Completeness float64   `json:"completeness"` // fraction of categories available
	Errors       []string  `json:"errors,omitempty"`
	BuiltAt      time.Time `json:"built_at"`
}

func (s *MarketSnapshot) Recount() {
	total, avail := 3, 0
	if s.OptionsStatus.Available {
		avail++
	}
	if s.PriceStatus.Available {
		avail++
	}
	if s.LiquidityStatus.Available {
		avail++
	}
	s.Completeness = float64(avail) / float64(total)
}
