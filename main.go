package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"trading-sentinel/internal/api"
	"trading-sentinel/internal/backtest"
	"trading-sentinel/internal/balance"
	"trading-sentinel/internal/events"
	"trading-sentinel/internal/gateway"
	"trading-sentinel/internal/market"
	"trading-sentinel/internal/monitor"
	"trading-sentinel/internal/notify"
	"trading-sentinel/internal/position"
	"trading-sentinel/internal/report"
	"trading-sentinel/internal/risk"
	"trading-sentinel/internal/state"
	"trading-sentinel/internal/strategy"
	"trading-sentinel/pkg/config"
	"trading-sentinel/pkg/db"
	marketbinance "trading-sentinel/pkg/market/binance"
)

// recalibrateEvery is the cadence between successful calibration passes.
const recalibrateEvery = 6 * time.Hour

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Config load failed: %v", err)
	}
	log.Printf("🚀 Starting trading sentinel on port %s", cfg.Port)

	if cfg.ProfileFile != "" {
		if err := risk.LoadOverrides(cfg.ProfileFile); err != nil {
			log.Fatalf("❌ Profile overrides failed: %v", err)
		}
		log.Printf("📐 Risk profile overrides loaded from %s", cfg.ProfileFile)
	}
	defaultProfile, err := risk.ParseName(cfg.DefaultProfile)
	if err != nil {
		log.Fatalf("❌ Invalid RISK_PROFILE: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("❌ DB init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("❌ DB migrations failed: %v", err)
	}

	// In-memory run-state seeded from DB
	stateMgr := state.NewManager(database, defaultProfile, cfg.LiveTrading)
	if err := stateMgr.Load(ctx); err != nil {
		log.Fatalf("❌ State load failed: %v", err)
	}

	registry := prometheus.NewRegistry()
	metrics := monitor.NewMetrics(registry)
	bus.OnDrop = func(e events.Event) {
		metrics.EventsDropped.WithLabelValues(string(e)).Inc()
	}

	// Market data and execution share one venue client. Simulated runs only
	// use its public endpoints; orders go out solely in live mode.
	restClient := marketbinance.NewClient(cfg.BinanceAPIKey, cfg.BinanceAPISecret, cfg.BinanceTestnet)
	gw := gateway.NewBinance(restClient)

	book := position.NewBook(database)
	if err := book.Init(ctx, cfg.CandidateSymbols, cfg.StartingBalance); err != nil {
		log.Fatalf("❌ Position book init failed: %v", err)
	}

	var balMgr *balance.Manager
	if cfg.LiveTrading && len(cfg.CandidateSymbols) > 0 {
		quote := gateway.QuoteAsset(cfg.CandidateSymbols[0])
		balMgr = balance.NewManager(gw, quote, cfg.BalanceSync)
		balMgr.Start(ctx)
	}

	coord := position.NewCoordinator(book, database, stateMgr, gw, balMgr, bus, metrics, cfg.FeePct)

	var wg sync.WaitGroup

	// Exit monitor drains ticks into the coordinator.
	exitMonitor := risk.NewMonitor(bus, coord, stateMgr, book, metrics)
	wg.Add(1)
	go func() {
		defer wg.Done()
		exitMonitor.Run(ctx)
	}()

	// Entry evaluation over the elite universe.
	scorer := strategy.NewRuleScorer()
	evaluator := strategy.NewEvaluator(gw, scorer, coord, stateMgr, database, bus, metrics, cfg.EvalInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		evaluator.Run(ctx)
	}()

	// Calibration selects the elite universe and its tuned thresholds.
	calibrator := backtest.NewCalibrator(gw, scorer, database, metrics, cfg.CandidateSymbols, cfg.EliteLimit, cfg.FeePct, recalibrateEvery, cfg.CalibrateInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		calibrator.Run(ctx, func(results []backtest.Result) {
			symbols := make([]string, 0, len(results))
			tuned := make(map[string]strategy.TunedConfig, len(results))
			for _, r := range results {
				symbols = append(symbols, r.Symbol)
				tuned[r.Symbol] = strategy.TunedConfig{RSIThreshold: r.RSIThreshold, MinScore: r.MinScore}
			}
			evaluator.SetUniverse(symbols, tuned)
		})
	}()

	// Run-state sync, including panic-sell fan-out.
	synchronizer := &state.Synchronizer{Manager: stateMgr, Liquidator: coord, Interval: cfg.SyncInterval}
	wg.Add(1)
	go func() {
		defer wg.Done()
		synchronizer.Run(ctx)
	}()

	// Notifications and daily report.
	notifier := notify.NewDiscordNotifier(cfg.DiscordWebhook)
	wg.Add(1)
	go func() {
		defer wg.Done()
		notifier.Listen(ctx, bus)
	}()
	reporter := report.NewScheduler(database, notifier)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Run(ctx)
	}()

	// Market data (mock or real stream)
	if cfg.UseMockFeed {
		mock := &market.MockFeed{Bus: bus, Symbols: cfg.CandidateSymbols, Interval: time.Second}
		wg.Add(1)
		go func() {
			defer wg.Done()
			mock.Run(ctx)
		}()
	} else {
		streamClient := marketbinance.NewStreamClient(cfg.BinanceTestnet)
		feed := market.NewStreamFeed(streamClient, bus, cfg.CandidateSymbols, cfg.ReconnectBackoff)
		wg.Add(1)
		go func() {
			defer wg.Done()
			feed.Run(ctx)
		}()
	}

	// API
	server := api.NewServer(database, book, stateMgr, evaluator, registry, api.SystemMeta{
		Live:        cfg.LiveTrading,
		UseMockFeed: cfg.UseMockFeed,
		Candidates:  cfg.CandidateSymbols,
		Version:     version(),
	})
	go func() {
		if err := server.Start(ctx, ":"+cfg.Port); err != nil {
			log.Printf("❌ API server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Println("👋 Shutting down...")
	wg.Wait()
}

func version() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "v1.0-dev"
}
