package market

import (
	"context"

	"talon/internal/types"
)

// StubSource returns fixed values for all categories. Used for dev runs and
// deterministic tests; never in live mode.
type StubSource struct {
	Opt types.OptionsAnalytics
	Px  types.PriceStats
	Liq types.Liquidity

	OptErr error
	PxErr  error
	LiqErr error
}

func NewStubSource() *StubSource {
	return &StubSource{
		Opt: types.OptionsAnalytics{ImpliedVol: 0.40, IVRank: 50, PutCallRatio: 1.0},
		Px:  types.PriceStats{Last: 100, ATR: 1.5, ATRPercent: 1.5, RealizedVol: 0.35, SpikeRatio: 1.0},
		Liq: types.Liquidity{SpreadBps: 2, DepthQuote: 250_000, QuoteVolume: 5_000_000},
	}
}

func (s *StubSource) OptionsAnalytics(_ context.Context, _ string) (types.OptionsAnalytics, error) {
	if s.OptErr != nil {
		return types.OptionsAnalytics{}, s.OptErr
	}
	return s.Opt, nil
}

func (s *StubSource) PriceStats(_ context.Context, _ string) (types.PriceStats, error) {
	if s.PxErr != nil {
		return types.PriceStats{}, s.PxErr
	}
	return s.Px, nil
}

func (s *StubSource) Liquidity(_ context.Context, _ string) (types.Liquidity, error) {
	if s.LiqErr != nil {
		return types.Liquidity{}, s.LiqErr
	}
	return s.Liq, nil
}
