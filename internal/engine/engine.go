package engine

import (
	"fmt"

	"talon/internal/config"
	"talon/internal/types"

	"github.com/google/uuid"
)

// Version stamps every packet for replay and audit.
const Version = "talon-engine/1.2.0"

var packetNamespace = uuid.MustParse("8d6a1f3e-44c1-4e6b-9f1d-2b9e7a0c5d41")

// Engine evaluates a complete decision context against a market snapshot.
// Decide is a pure function of its inputs: identical (context, snapshot,
// config) always yields a bit-identical packet. The packet timestamp and ID
// derive from the snapshot, never from the wall clock.
type Engine struct {
	cfg config.EngineConfig
}

func New(cfg config.EngineConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Decide runs the three gates in fixed order, blends the confidence score and
// emits an immutable decision packet.
func (e *Engine) Decide(dctx *types.DecisionContext, snap *types.MarketSnapshot) (*types.DecisionPacket, error) {
	if dctx == nil || snap == nil {
		return nil, fmt.Errorf("%w: decide requires context and snapshot", types.ErrValidation)
	}
	expert, ok := dctx.ActiveExpert()
	if !ok {
		return nil, fmt.Errorf("%w: context has no expert direction", types.ErrValidation)
	}
	dir := expert.Direction

	gates := []types.GateResult{
		regimeGate(dctx, dir, e.cfg),
		structuralGate(dctx, dir, e.cfg),
		marketGate(snap, e.cfg),
	}

	bd := subScores(dctx, dir, gates)
	conf := confidence(bd, e.cfg.Weights)

	pkt := &types.DecisionPacket{
		ID:              packetID(dctx, snap),
		Symbol:          dctx.Symbol,
		Direction:       dir,
		Confidence:      conf,
		Breakdown:       bd,
		Gates:           gates,
		SignalTimeframe: expert.Timeframe,
		Quality:         expert.Quality,
		Snapshot:        *snap,
		EngineVersion:   Version,
		CreatedAt:       snap.BuiltAt,
	}

	pkt.Action, pkt.Reasons = e.resolveAction(conf, gates)
	if pkt.Action == types.ActionExecute {
		pkt.SizeMult = sizeMultiplier(conf, dctx, e.cfg)
	}
	return pkt, nil
}

// resolveAction applies the action rule: EXECUTE needs every gate passed and
// confidence at or above the execute threshold; WAIT covers the watch band
// and a single soft near-miss; everything else is SKIP. A hard failure (a
// breached limit, missing data, or a direction conflict) always skips, no
// matter how the failing gate's remaining sub-scores average out.
func (e *Engine) resolveAction(conf float64, gates []types.GateResult) (types.Action, []string) {
	var reasons []string
	failed := 0
	hardFail := false
	softFail := false
	for _, g := range gates {
		if g.Passed {
			continue
		}
		failed++
		if g.Hard {
			hardFail = true
		} else if failed == 1 && g.Score >= e.cfg.SoftFailFloor {
			softFail = true
		}
		reasons = append(reasons, fmt.Sprintf("gate %s failed: %s", g.Name, g.Reason))
	}

	switch {
	case failed == 0 && conf >= e.cfg.ExecuteThreshold:
		reasons = append(reasons, fmt.Sprintf("confidence %.2f >= execute threshold %.2f, all gates passed", conf, e.cfg.ExecuteThreshold))
		return types.ActionExecute, reasons
	case failed == 0 && conf >= e.cfg.WatchThreshold:
		reasons = append(reasons, fmt.Sprintf("confidence %.2f in watch band [%.2f, %.2f)", conf, e.cfg.WatchThreshold, e.cfg.ExecuteThreshold))
		return types.ActionWait, reasons
	case !hardFail && failed == 1 && softFail && conf >= e.cfg.WatchThreshold:
		reasons = append(reasons, "single soft gate failure, holding for re-evaluation")
		return types.ActionWait, reasons
	default:
		if failed == 0 {
			reasons = append(reasons, fmt.Sprintf("confidence %.2f below watch threshold %.2f", conf, e.cfg.WatchThreshold))
		}
		return types.ActionSkip, reasons
	}
}

// packetID is a v5 UUID over the decision inputs so replays of the same
// (context, snapshot) produce the same identifier.
func packetID(dctx *types.DecisionContext, snap *types.MarketSnapshot) string {
	seed := fmt.Sprintf("%s|%d|%d|%s", dctx.Symbol, dctx.BuiltAt.UnixNano(), snap.BuiltAt.UnixNano(), Version)
	return uuid.NewSHA1(packetNamespace, []byte(seed)).String()
}
