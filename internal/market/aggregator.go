package market

import (
	"context"
	"fmt"
	"strings"
	"time"

	"talon/internal/config"
	"talon/internal/logger"
	"talon/internal/pkg/circuit"
	"talon/internal/types"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Aggregator fans out to the three data categories concurrently and merges
// the results into a MarketSnapshot. One category failing or timing out never
// blocks or fails the others; an unavailable category is surfaced as missing,
// never replaced by a neutral value.
type Aggregator struct {
	cfg     config.MarketConfig
	sources Sources
	nowFn   func() time.Time

	optionsCache   *categoryCache[types.OptionsAnalytics]
	priceCache     *categoryCache[types.PriceStats]
	liquidityCache *categoryCache[types.Liquidity]

	budgets  map[string]*callBudget
	breakers map[string]*circuit.CircuitBreaker

	group singleflight.Group
}

func NewAggregator(cfg config.MarketConfig, sources Sources) *Aggregator {
	a := &Aggregator{
		cfg:            cfg,
		sources:        sources,
		nowFn:          time.Now,
		optionsCache:   newCategoryCache[types.OptionsAnalytics](cfg.Categories.OptionsTTL()),
		priceCache:     newCategoryCache[types.PriceStats](cfg.Categories.PriceTTL()),
		liquidityCache: newCategoryCache[types.Liquidity](cfg.Categories.LiquidityTTL()),
		budgets:        make(map[string]*callBudget),
		breakers:       make(map[string]*circuit.CircuitBreaker),
	}
	for _, cat := range []string{CategoryOptions, CategoryPrice, CategoryLiquidity} {
		a.budgets[cat] = newCallBudget(cfg.Budgets.PerMinute, cfg.Budgets.PerDay)
		a.breakers[cat] = circuit.NewCircuitBreaker("market."+cat, cfg.Breaker.FailureThreshold, cfg.Breaker.Cooldown())
	}
	return a
}

// SetNowFunc overrides the clock. Test hook.
func (a *Aggregator) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		a.nowFn = fn
	}
}

// BuildSnapshot assembles a fresh snapshot for the symbol. Concurrent calls
// for the same symbol coalesce into one fan-out.
func (a *Aggregator) BuildSnapshot(ctx context.Context, symbol string) (*types.MarketSnapshot, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", types.ErrValidation)
	}
	v, err, _ := a.group.Do(symbol, func() (any, error) {
		return a.buildSnapshot(ctx, symbol), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.MarketSnapshot), nil
}

func (a *Aggregator) buildSnapshot(ctx context.Context, symbol string) *types.MarketSnapshot {
	snap := &types.MarketSnapshot{Symbol: symbol, BuiltAt: a.nowFn()}

	// Errors from one category must not cancel siblings, so the group context
	// is deliberately not used for cancellation: each fetch carries its own
	// timeout and failures return nil.
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		val, status := fetchCategory(a, ctx, CategoryOptions, symbol, a.optionsCache,
			func(cctx context.Context) (types.OptionsAnalytics, error) {
				if a.sources.Options == nil {
					return types.OptionsAnalytics{}, fmt.Errorf("no options source configured")
				}
				return a.sources.Options.OptionsAnalytics(cctx, symbol)
			})
		if status.Available {
			snap.Options = &val
		}
		snap.OptionsStatus = status
		return nil
	})
	g.Go(func() error {
		val, status := fetchCategory(a, ctx, CategoryPrice, symbol, a.priceCache,
			func(cctx context.Context) (types.PriceStats, error) {
				if a.sources.Price == nil {
					return types.PriceStats{}, fmt.Errorf("no price source configured")
				}
				return a.sources.Price.PriceStats(cctx, symbol)
			})
		if status.Available {
			snap.Price = &val
		}
		snap.PriceStatus = status
		return nil
	})
	g.Go(func() error {
		val, status := fetchCategory(a, ctx, CategoryLiquidity, symbol, a.liquidityCache,
			func(cctx context.Context) (types.Liquidity, error) {
				if a.sources.Liquidity == nil {
					return types.Liquidity{}, fmt.Errorf("no liquidity source configured")
				}
				return a.sources.Liquidity.Liquidity(cctx, symbol)
			})
		if status.Available {
			snap.Liquidity = &val
		}
		snap.LiquidityStatus = status
		return nil
	})
	_ = g.Wait()

	for _, st := range []types.CategoryStatus{snap.OptionsStatus, snap.PriceStatus, snap.LiquidityStatus} {
		if !st.Available && st.Err != "" {
			snap.Errors = append(snap.Errors, st.Err)
		}
	}
	snap.Recount()
	logger.Debugf("market: snapshot symbol=%s completeness=%.2f errors=%d", symbol, snap.Completeness, len(snap.Errors))
	return snap
}

// fetchCategory applies the shared per-category policy: cache first, then
// breaker and budget checks, then the provider call under its own timeout.
// The breaker check comes before the budget draw: a call rejected by an open
// circuit never happens, so it must not spend a budget token.
func fetchCategory[T any](a *Aggregator, ctx context.Context, category, symbol string, cache *categoryCache[T], fetch func(context.Context) (T, error)) (T, types.CategoryStatus) {
	now := a.nowFn()
	if v, at, ok := cache.get(symbol, now); ok {
		return v, types.CategoryStatus{Available: true, FromCache: true, FetchedAt: at}
	}

	var zero T
	breaker := a.breakers[category]
	if !breaker.Allow() {
		return zero, types.CategoryStatus{Available: false, Err: fmt.Sprintf("%s: provider circuit open", category), FetchedAt: now}
	}
	if err := a.budgets[category].take(); err != nil {
		return zero, types.CategoryStatus{Available: false, Err: fmt.Sprintf("%s: %v", category, err), FetchedAt: now}
	}

	cctx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout())
	defer cancel()
	v, err := fetch(cctx)
	if err != nil {
		breaker.RecordFailure()
		// A timed-out call is a failed category, never silently retried.
		return zero, types.CategoryStatus{Available: false, Err: fmt.Sprintf("%s: %v", category, err), FetchedAt: now}
	}
	breaker.RecordSuccess()
	cache.put(symbol, v, now)
	return v, types.CategoryStatus{Available: true, FetchedAt: now}
}

// CacheStats reports hit/miss counters per category, for operational logging.
func (a *Aggregator) CacheStats() map[string][2]int64 {
	out := make(map[string][2]int64, 3)
	h, m := a.optionsCache.stats()
	out[CategoryOptions] = [2]int64{h, m}
	h, m = a.priceCache.stats()
	out[CategoryPrice] = [2]int64{h, m}
	h, m = a.liquidityCache.stats()
	out[CategoryLiquidity] = [2]int64{h, m}
	return out
}

// Warmup prefetches the slower categories for the configured symbols so the
// first decision does not pay cold-start latency.
func (a *Aggregator) Warmup(ctx context.Context, symbols []string) {
	for _, sym := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		snap := a.buildSnapshot(ctx, sym)
		logger.Infof("market: warmup symbol=%s completeness=%.2f", sym, snap.Completeness)
	}
}
