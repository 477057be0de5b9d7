package service

import (
	"context"
	"fmt"

	"talon/internal/config"
	"talon/internal/contextstore"
	"talon/internal/engine"
	"talon/internal/exits"
	"talon/internal/ledger"
	"talon/internal/logger"
	"talon/internal/market"
	"talon/internal/paper"
	"talon/internal/types"
)

// Core wires the pipeline end to end and exposes the three operations the
// external normalizer/router and scheduler call: UpdateContext,
// TryBuildDecision and EvaluateOpenPositions.
type Core struct {
	cfg      *config.Config
	contexts *contextstore.Store
	market   *market.Aggregator
	engine   *engine.Engine
	executor *paper.Executor
	exits    *exits.Simulator
	ledger   ledger.Ledger
}

type Params struct {
	Config   *config.Config
	Contexts *contextstore.Store
	Market   *market.Aggregator
	Engine   *engine.Engine
	Executor *paper.Executor
	Exits    *exits.Simulator
	Ledger   ledger.Ledger
}

func New(p Params) (*Core, error) {
	if p.Config == nil || p.Contexts == nil || p.Market == nil || p.Engine == nil ||
		p.Executor == nil || p.Exits == nil || p.Ledger == nil {
		return nil, fmt.Errorf("service: all dependencies are required")
	}
	return &Core{
		cfg:      p.Config,
		contexts: p.Contexts,
		market:   p.Market,
		engine:   p.Engine,
		executor: p.Executor,
		exits:    p.Exits,
		ledger:   p.Ledger,
	}, nil
}

// UpdateContext merges a normalized fragment. Malformed fragments are
// rejected whole, never partially merged.
func (c *Core) UpdateContext(frag types.ContextFragment) error {
	return c.contexts.Update(frag)
}

// TryBuildDecision attempts the full pipeline for one symbol. A context that
// fails the completeness rule returns the NotReady result; no packet is
// emitted and nothing reaches the ledger.
func (c *Core) TryBuildDecision(ctx context.Context, symbol string) (*types.DecisionPacket, *types.NotReady, error) {
	dctx, notReady := c.contexts.Build(symbol)
	if notReady != nil {
		logger.Debugf("service: symbol=%s not ready: %s", symbol, notReady.Reason())
		return nil, notReady, nil
	}

	snap, err := c.market.BuildSnapshot(ctx, symbol)
	if err != nil {
		return nil, nil, fmt.Errorf("service: building snapshot: %w", err)
	}

	pkt, err := c.engine.Decide(dctx, snap)
	if err != nil {
		return nil, nil, fmt.Errorf("service: decide: %w", err)
	}
	if err := c.ledger.AppendDecision(ctx, pkt); err != nil {
		return nil, nil, fmt.Errorf("service: recording decision: %w", err)
	}
	logger.Infof("service: decision symbol=%s action=%s direction=%s confidence=%.2f size=%.4f",
		pkt.Symbol, pkt.Action, pkt.Direction, pkt.Confidence, pkt.SizeMult)

	if pkt.Action == types.ActionExecute {
		rec, err := c.executor.Open(pkt)
		if err != nil {
			return nil, nil, fmt.Errorf("service: opening paper position: %w", err)
		}
		if err := c.ledger.AppendExecution(ctx, rec); err != nil {
			return nil, nil, fmt.Errorf("service: recording execution: %w", err)
		}
	}
	return pkt, nil, nil
}

// EvaluateOpenPositions runs one exit sweep cycle. Invoked by the scheduler;
// also callable on demand.
func (c *Core) EvaluateOpenPositions(ctx context.Context) (exits.SweepResult, error) {
	return c.exits.EvaluateOpenPositions(ctx)
}

// SweepContexts drops expired fragments from the context cache.
func (c *Core) SweepContexts() int {
	return c.contexts.Sweep()
}
