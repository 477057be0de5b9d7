package exits

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"talon/internal/config"
	"talon/internal/ledger"
	"talon/internal/logger"
	"talon/internal/types"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// MarketData is the slice of the aggregator the sweep needs.
type MarketData interface {
	BuildSnapshot(ctx context.Context, symbol string) (*types.MarketSnapshot, error)
}

// Pricer values an open contract at current market conditions.
type Pricer interface {
	Reprice(rec *types.ExecutionRecord, spot, sigma, yearsToExpiry float64) float64
}

// SweepResult summarizes one evaluation cycle.
type SweepResult struct {
	Skipped   bool     `json:"skipped"` // previous cycle still running
	Evaluated int      `json:"evaluated"`
	Closed    int      `json:"closed"`
	Errors    []string `json:"errors,omitempty"`
}

// Simulator periodically scans open positions and closes the ones whose exit
// conditions trigger. Cycles never overlap: if the previous sweep is still
// running when the next is due, the next is skipped. Positions evaluate
// independently so one slow symbol cannot block the rest, and a position with
// an exit record is excluded from every future cycle.
type Simulator struct {
	cfg    config.ExitConfig
	paper  config.PaperConfig
	ledger ledger.Ledger
	market MarketData
	pricer Pricer
	nowFn  func() time.Time

	running atomic.Bool
}

func NewSimulator(cfg config.ExitConfig, paper config.PaperConfig, led ledger.Ledger, market MarketData, pricer Pricer) *Simulator {
	return &Simulator{
		cfg:    cfg,
		paper:  paper,
		ledger: led,
		market: market,
		pricer: pricer,
		nowFn:  time.Now,
	}
}

// SetNowFunc overrides the clock. Test hook.
func (s *Simulator) SetNowFunc(fn func() time.Time) {
	if fn != nil {
		s.nowFn = fn
	}
}

// EvaluateOpenPositions runs one sweep cycle.
func (s *Simulator) EvaluateOpenPositions(ctx context.Context) (SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		logger.Warnf("exits: previous sweep still running, skipping cycle")
		return SweepResult{Skipped: true}, nil
	}
	defer s.running.Store(false)

	positions, err := s.ledger.OpenPositions(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("exits: reading open positions: %w", err)
	}
	if len(positions) == 0 {
		return SweepResult{}, nil
	}

	var (
		mu     sync.Mutex
		result SweepResult
	)
	result.Evaluated = len(positions)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxParallel)
	for i := range positions {
		pos := positions[i]
		g.Go(func() error {
			rec, err := s.evaluate(gctx, &pos)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", pos.PositionID, err))
				return nil // one position's failure never aborts the sweep
			}
			if rec != nil {
				result.Closed++
			}
			return nil
		})
	}
	_ = g.Wait()

	if result.Closed > 0 || len(result.Errors) > 0 {
		logger.Infof("exits: sweep evaluated=%d closed=%d errors=%d", result.Evaluated, result.Closed, len(result.Errors))
	}
	return result, nil
}

// evaluate checks one position against the exit triggers in priority order
// and, on trigger, appends its exit record.
func (s *Simulator) evaluate(ctx context.Context, pos *types.ExecutionRecord) (*types.ExitRecord, error) {
	// Idempotence guard: the open-position query already excludes closed
	// positions, but the sweep may race a concurrent manual close.
	closed, err := s.ledger.HasExit(ctx, pos.PositionID)
	if err != nil {
		return nil, err
	}
	if closed {
		return nil, nil
	}

	snap, err := s.market.BuildSnapshot(ctx, pos.Symbol)
	if err != nil {
		return nil, err
	}
	if snap.Price == nil {
		// Cannot verify the underlying: hold the position, never guess.
		return nil, fmt.Errorf("price data unavailable")
	}
	spot := snap.Price.Last
	now := s.nowFn().UTC()
	held := now.Sub(pos.OpenedAt)

	reason, ok := s.trigger(pos, snap, spot, now, held)
	if !ok {
		return nil, nil
	}

	iv := pos.EntryIV
	if snap.Options != nil && snap.Options.ImpliedVol > 0 {
		iv = snap.Options.ImpliedVol
	}
	yearsLeft := math.Max(pos.Expiry.Sub(now).Hours()/(24*365), 0.25/365)
	exitTheo := s.pricer.Reprice(pos, spot, iv, yearsLeft)
	if exitTheo < 0 {
		exitTheo = 0
	}

	rec := s.buildExitRecord(pos, reason, now, spot, iv, exitTheo, held)
	if err := s.ledger.AppendExit(ctx, rec); err != nil {
		return nil, fmt.Errorf("appending exit record: %w", err)
	}
	logger.Infof("exits: closed position=%s symbol=%s reason=%s gross=%.2f net=%.2f held=%s",
		rec.PositionID, rec.Symbol, rec.Reason, rec.GrossPnL, rec.NetPnL, rec.HoldTime.Truncate(time.Second))
	return rec, nil
}

// trigger checks the exit conditions in fixed priority order: target-2,
// target-1, stop-loss, theta decay, max hold.
func (s *Simulator) trigger(pos *types.ExecutionRecord, snap *types.MarketSnapshot, spot float64, now time.Time, held time.Duration) (types.ExitReason, bool) {
	long := pos.Direction == types.DirectionLong
	crossed := func(level float64) bool {
		if long {
			return spot >= level
		}
		return spot <= level
	}
	stopHit := func() bool {
		if long {
			return spot <= pos.StopLoss
		}
		return spot >= pos.StopLoss
	}

	switch {
	case crossed(pos.Target2):
		return types.ExitTarget2, true
	case crossed(pos.Target1):
		return types.ExitTarget1, true
	case stopHit():
		return types.ExitStopLoss, true
	}

	// Theta decay: remaining theoretical value fell below the configured
	// fraction of entry with no target in sight.
	iv := pos.EntryIV
	if snap.Options != nil && snap.Options.ImpliedVol > 0 {
		iv = snap.Options.ImpliedVol
	}
	yearsLeft := math.Max(pos.Expiry.Sub(now).Hours()/(24*365), 0.25/365)
	if theo := s.pricer.Reprice(pos, spot, iv, yearsLeft); pos.TheoPrice > 0 && theo/pos.TheoPrice < s.cfg.ThetaDecayPct {
		return types.ExitThetaDecay, true
	}

	if maxHours, ok := s.cfg.MaxHoldHours[string(pos.Bucket)]; ok {
		if held.Hours() >= maxHours {
			return types.ExitMaxHold, true
		}
	}
	return "", false
}

func (s *Simulator) buildExitRecord(pos *types.ExecutionRecord, reason types.ExitReason, now time.Time, spot, iv, exitTheo float64, held time.Duration) *types.ExitRecord {
	mult := decimal.NewFromInt(int64(pos.FilledContracts)).Mul(decimal.NewFromInt(contractMultiplier))

	// Exit frictions mirror entry: half-spread plus jittered slippage by
	// bucket, commission per contract. The jitter seed derives from the
	// position ID so replays reproduce the record exactly.
	rng := rand.New(rand.NewSource(exitSeed(s.paper.FillSeed, pos.PositionID)))
	spreadBps := s.paper.SpreadBpsByBucket[string(pos.Bucket)]
	slipBps := s.paper.SlipBpsByBucket[string(pos.Bucket)] * (0.8 + 0.4*rng.Float64())

	theoDec := decimal.NewFromFloat(exitTheo)
	halfSpread := theoDec.Mul(decimal.NewFromFloat(spreadBps / 2 / 10000))
	slip := theoDec.Mul(decimal.NewFromFloat(slipBps / 10000))
	exitCosts := types.Costs{
		Commission: decimal.NewFromFloat(s.paper.CommissionPerCt).Mul(decimal.NewFromInt(int64(pos.FilledContracts))).InexactFloat64(),
		Spread:     halfSpread.Mul(mult).InexactFloat64(),
		Slippage:   slip.Mul(mult).InexactFloat64(),
	}
	exitPrice := theoDec.Sub(halfSpread).Sub(slip).InexactFloat64()
	if exitPrice < 0 {
		exitPrice = 0
	}

	gross := roundPnL((exitTheo - pos.TheoPrice) * float64(pos.FilledContracts) * contractMultiplier)
	daysHeld := held.Hours() / 24
	attr := attribute(pos, gross, spot, daysHeld)

	totalCosts := decimal.NewFromFloat(pos.EntryCosts.Total()).
		Add(decimal.NewFromFloat(exitCosts.Total())).InexactFloat64()
	net := decimal.NewFromFloat(gross).Sub(decimal.NewFromFloat(totalCosts)).InexactFloat64()

	return &types.ExitRecord{
		PositionID:     pos.PositionID,
		Symbol:         pos.Symbol,
		Reason:         reason,
		ExitTime:       now,
		UnderlyingExit: spot,
		ExitPrice:      roundPnL(exitPrice),
		ExitIV:         iv,
		GrossPnL:       gross,
		NetPnL:         roundPnL(net),
		HoldTime:       held,
		Attribution:    attr,
		ExitCosts:      exitCosts,
		TotalCosts:     roundPnL(totalCosts),
	}
}

func exitSeed(base int64, positionID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(positionID))
	h.Write([]byte("/exit"))
	return base ^ int64(h.Sum64())
}
