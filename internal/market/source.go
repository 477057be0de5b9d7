package market

import (
	"context"

	"talon/internal/types"
)

// Category names, used for cache keys, budget counters and error reporting.
const (
	CategoryOptions   = "options"
	CategoryPrice     = "price"
	CategoryLiquidity = "liquidity"
)

// OptionsSource serves the options-analytics category.
type OptionsSource interface {
	OptionsAnalytics(ctx context.Context, symbol string) (types.OptionsAnalytics, error)
}

// PriceSource serves the price/volatility statistics category.
type PriceSource interface {
	PriceStats(ctx context.Context, symbol string) (types.PriceStats, error)
}

// LiquiditySource serves the order-book liquidity category.
type LiquiditySource interface {
	Liquidity(ctx context.Context, symbol string) (types.Liquidity, error)
}

// Sources bundles the three category providers behind one aggregator.
type Sources struct {
	Options   OptionsSource
	Price     PriceSource
	Liquidity LiquiditySource
}
