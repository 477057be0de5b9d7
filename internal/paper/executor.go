package paper

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"talon/internal/config"
	"talon/internal/logger"
	"talon/internal/types"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContractMultiplier is the underlying units per option contract.
const ContractMultiplier = 100

var positionNamespace = uuid.MustParse("5c2f9b84-7e6d-4a2b-8c31-ef04d9a6b172")

// Executor simulates opening an options position for an EXECUTE decision:
// contract selection, analytic pricing, and a fill with bucket-scaled spread
// and slippage. The fill jitter is seeded from the decision ID and the
// configured fill seed, so identical inputs produce identical records.
type Executor struct {
	cfg   config.PaperConfig
	exit  config.ExitConfig
	nowFn func() time.Time
}

func NewExecutor(cfg config.PaperConfig, exit config.ExitConfig) *Executor {
	return &Executor{cfg: cfg, exit: exit, nowFn: time.Now}
}

// SetNowFunc overrides the clock. Test hook.
func (e *Executor) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		e.nowFn = fn
	}
}

// Open builds the immutable execution record for an accepted decision. It is
// only invoked for EXECUTE packets.
func (e *Executor) Open(pkt *types.DecisionPacket) (*types.ExecutionRecord, error) {
	if pkt == nil || pkt.Action != types.ActionExecute {
		return nil, fmt.Errorf("%w: executor requires an EXECUTE decision", types.ErrValidation)
	}
	if pkt.Snapshot.Price == nil {
		return nil, fmt.Errorf("%w: snapshot has no price data", types.ErrValidation)
	}
	spot := pkt.Snapshot.Price.Last
	if spot <= 0 {
		return nil, fmt.Errorf("%w: invalid underlying price %.4f", types.ErrValidation, spot)
	}

	bucket, dte := bucketForTimeframe(pkt.SignalTimeframe)
	optType := types.OptionCall
	if pkt.Direction == types.DirectionShort {
		optType = types.OptionPut
	}
	strike := e.selectStrike(spot, pkt.Direction)

	iv, fallback := e.resolveIV(&pkt.Snapshot)
	t := yearsToExpiry(dte)
	theo, greeks := blackScholes(optType, spot, strike, t, iv, e.cfg.RiskFreeRate)
	if theo <= 0 {
		// Insufficient pricing inputs: conservative fixed estimate, recorded.
		theo = spot * 0.02
		greeks = conservativeGreeks(optType)
		fallback = true
	}

	contracts := int(math.Max(1, math.Round(float64(e.cfg.BaseContracts)*pkt.SizeMult)))
	fillRatio := 1.0
	if contracts > e.cfg.PartialFillOver {
		fillRatio = e.cfg.PartialFillRatio
	}
	filled := int(math.Max(1, math.Floor(float64(contracts)*fillRatio)))

	rng := rand.New(rand.NewSource(fillSeed(e.cfg.FillSeed, pkt.ID)))
	spreadBps := e.cfg.SpreadBpsByBucket[string(bucket)]
	slipBps := e.cfg.SlipBpsByBucket[string(bucket)]
	// Jitter stays within ±20% of the configured slippage.
	slipBps *= 0.8 + 0.4*rng.Float64()

	theoDec := decimal.NewFromFloat(theo)
	halfSpread := theoDec.Mul(decimal.NewFromFloat(spreadBps / 2 / 10000))
	slip := theoDec.Mul(decimal.NewFromFloat(slipBps / 10000))
	entryDec := theoDec.Add(halfSpread).Add(slip)

	qty := decimal.NewFromInt(int64(filled)).Mul(decimal.NewFromInt(ContractMultiplier))
	costs := types.Costs{
		Commission: decimal.NewFromFloat(e.cfg.CommissionPerCt).Mul(decimal.NewFromInt(int64(filled))).InexactFloat64(),
		Spread:     halfSpread.Mul(qty).InexactFloat64(),
		Slippage:   slip.Mul(qty).InexactFloat64(),
	}

	atr := pkt.Snapshot.Price.ATR
	target1, target2, stop := targetLevels(spot, atr, pkt.Direction, e.exit)

	// Anchored to the decision timestamp, not the wall clock, so replaying the
	// same packet reproduces the record bit for bit.
	now := pkt.CreatedAt.UTC()
	rec := &types.ExecutionRecord{
		PositionID:      uuid.NewSHA1(positionNamespace, []byte(pkt.ID)).String(),
		DecisionID:      pkt.ID,
		Symbol:          pkt.Symbol,
		Direction:       pkt.Direction,
		OptionType:      optType,
		Strike:          strike,
		Expiry:          now.AddDate(0, 0, dte),
		DTE:             dte,
		Bucket:          bucket,
		Contracts:       contracts,
		FillRatio:       fillRatio,
		FilledContracts: filled,
		TheoPrice:       round4(theo),
		EntryPrice:      round4(entryDec.InexactFloat64()),
		Greeks:          greeks,
		EntryIV:         iv,
		PricingFallback: fallback,
		UnderlyingEntry: spot,
		Target1:         target1,
		Target2:         target2,
		StopLoss:        stop,
		EntryCosts:      costs,
		OpenedAt:        now,
	}

	logger.Infof("paper: opened position=%s symbol=%s %s %s strike=%.2f dte=%d contracts=%d/%d entry=%.4f fallback=%v",
		rec.PositionID, rec.Symbol, rec.Direction, rec.OptionType, rec.Strike, rec.DTE, rec.FilledContracts, rec.Contracts, rec.EntryPrice, rec.PricingFallback)
	return rec, nil
}

// bucketForTimeframe maps the originating signal's timeframe to an expiry
// bucket: very short intraday signals trade same-day, intermediate ones the
// weekly cycle, and daily-plus the monthly cycle.
func bucketForTimeframe(tf string) (types.DTEBucket, int) {
	switch tf {
	case "1m", "5m", "15m", "30m":
		return types.BucketSameDay, 0
	case "1h", "2h", "4h":
		return types.BucketWeekly, 5
	default:
		return types.BucketMonthly, 30
	}
}

// selectStrike picks the nearest increment at/near spot, biased one increment
// out-of-the-money in the trade direction.
func (e *Executor) selectStrike(spot float64, dir types.Direction) float64 {
	inc := e.cfg.StrikeIncrement
	atm := math.Round(spot/inc) * inc
	if dir == types.DirectionLong {
		return atm + inc
	}
	return atm - inc
}

// resolveIV prefers the snapshot implied vol, then realized vol, then the
// configured conservative fallback.
func (e *Executor) resolveIV(snap *types.MarketSnapshot) (float64, bool) {
	if snap.Options != nil && snap.Options.ImpliedVol > 0 {
		return snap.Options.ImpliedVol, false
	}
	if snap.Price != nil && snap.Price.RealizedVol > 0 {
		return snap.Price.RealizedVol, true
	}
	return e.cfg.FallbackIV, true
}

func targetLevels(spot, atr float64, dir types.Direction, exit config.ExitConfig) (t1, t2, stop float64) {
	if atr <= 0 {
		atr = spot * 0.01
	}
	if dir == types.DirectionLong {
		return spot + exit.Target1ATR*atr, spot + exit.Target2ATR*atr, spot - exit.StopATR*atr
	}
	return spot - exit.Target1ATR*atr, spot - exit.Target2ATR*atr, spot + exit.StopATR*atr
}

func conservativeGreeks(opt types.OptionType) types.Greeks {
	g := types.Greeks{Delta: 0.5, Gamma: 0.02, Theta: -0.05, Vega: 0.1}
	if opt == types.OptionPut {
		g.Delta = -0.5
	}
	return g
}

// yearsToExpiry keeps same-day contracts priceable with a fraction of a day.
func yearsToExpiry(dte int) float64 {
	if dte <= 0 {
		return 0.5 / 365
	}
	return float64(dte) / 365
}

func fillSeed(base int64, decisionID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(decisionID))
	return base ^ int64(h.Sum64())
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
