package app

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
	"talon/internal/service"
	transport "talon/internal/transport/http"
)

func build(cfg *config.Config) (*App, error) {
	store, err := ledger.NewStore(cfg.App.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	sources, err := buildSources(cfg.Market)
	if err != nil {
		store.Close()
		return nil, err
	}
	aggregator := market.NewAggregator(cfg.Market, sources)

	contexts := contextstore.New(cfg.Context)
	eng := engine.New(cfg.Engine)
	executor := paper.NewExecutor(cfg.Paper, cfg.Exit)
	pricer := paper.PricingModel{RiskFreeRate: cfg.Paper.RiskFreeRate}
	simulator := exits.NewSimulator(cfg.Exit, cfg.Paper, store, aggregator, pricer)

	core, err := service.New(service.Params{
		Config:   cfg,
		Contexts: contexts,
		Market:   aggregator,
		Engine:   eng,
		Executor: executor,
		Exits:    simulator,
		Ledger:   store,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	server, err := transport.NewServer(transport.ServerConfig{
		Addr: cfg.App.HTTPAddr,
		Core: core,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	if cfg.Market.WarmupOnStartup && len(cfg.Market.Symbols) > 0 {
		aggregator.Warmup(context.Background(), cfg.Market.Symbols)
	}

	logger.Infof("app: built source=%s symbols=%v ledger=%s", cfg.Market.Source, cfg.Market.Symbols, cfg.App.LedgerPath)
	return &App{
		cfg:    cfg,
		core:   core,
		server: server,
		closer: func() {
			if err := store.Close(); err != nil {
				logger.Warnf("app: closing ledger: %v", err)
			}
		},
	}, nil
}

func buildSources(cfg config.MarketConfig) (market.Sources, error) {
	switch cfg.Source {
	case "binance":
		src := market.NewBinanceSource(cfg)
		return market.Sources{Options: src, Price: src, Liquidity: src}, nil
	case "stub":
		src := market.NewStubSource()
		return market.Sources{Options: src, Price: src, Liquidity: src}, nil
	default:
		return market.Sources{}, fmt.Errorf("%s: unknown market source", cfg.Source)
	}
}
