package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/alejandrodnm/updownbot/config"
	"github.com/alejandrodnm/updownbot/internal/adapters/notify"
	"github.com/alejandrodnm/updownbot/internal/adapters/paper"
	"github.com/alejandrodnm/updownbot/internal/adapters/polymarket"
	"github.com/alejandrodnm/updownbot/internal/adapters/storage"
	"github.com/alejandrodnm/updownbot/internal/api"
	"github.com/alejandrodnm/updownbot/internal/application/closure"
	"github.com/alejandrodnm/updownbot/internal/application/discovery"
	"github.com/alejandrodnm/updownbot/internal/application/engine"
	"github.com/alejandrodnm/updownbot/internal/application/ledger"
	"github.com/alejandrodnm/updownbot/internal/application/sizing"
	"github.com/alejandrodnm/updownbot/internal/application/strategy"
	"github.com/alejandrodnm/updownbot/internal/application/trend"
	"github.com/alejandrodnm/updownbot/internal/domain"
	"github.com/alejandrodnm/updownbot/internal/ports"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	report := flag.Bool("report", false, "print settlement history and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	console := notify.NewConsole()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *report {
		if err := runReport(ctx, store, console); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("updownbot starting",
		"config", *configPath,
		"markets", cfg.Trading.Markets,
		"timeframes", cfg.Trading.Timeframes,
		"data_source", cfg.Trading.DataSource,
		"check_interval", cfg.CheckInterval(),
		"cost_per_pair_max", cfg.Trading.CostPerPairMax,
	)

	if err := run(ctx, cfg, *configPath, store, console); err != nil {
		slog.Error("updownbot exited with error", "err", err)
		os.Exit(1)
	}
	slog.Info("updownbot stopped cleanly")
}

func run(ctx context.Context, cfg *config.Config, configPath string, store *storage.SQLiteStorage, console *notify.Console) error {
	ldg := ledger.New()
	detector := trend.NewDetector(cfg.TrendConfig())
	decider := strategy.New(cfg.StrategyConfig(), ldg, sizing.New(cfg.SizingConfig()))
	exec := paper.NewExecutor(paper.Config{
		Slippage:      cfg.Paper.Slippage,
		FillTolerance: cfg.Paper.FillTolerance,
	})

	mgr := engine.New(cfg.EngineConfig(), detector, ldg, decider, exec, store)
	restored, err := mgr.Restore(ctx)
	if err != nil {
		return err
	}

	client := polymarket.NewClient(cfg.API.CLOBBase, cfg.API.GammaBase)

	var feed ports.PriceFeed
	switch cfg.Trading.DataSource {
	case "ws":
		feed = polymarket.NewStreamFeed(cfg.API.WSURL)
	default:
		feed = polymarket.NewPollingFeed(client, cfg.CheckInterval())
	}
	resolver := closure.New(closure.Config{Interval: cfg.ClosureInterval()}, mgr, client, store, console)
	if err := resolver.Load(ctx); err != nil {
		return err
	}

	rotator := discovery.New(discovery.Config{
		Assets:     cfg.Trading.Markets,
		Timeframes: cfg.Trading.Timeframes,
		Interval:   cfg.DiscoveryInterval(),
	}, client, mgr, feed)
	watched := rotator.Seed(mgr.OpenMarkets())

	watcher, err := config.NewWatcher(configPath, func(next *config.Config) {
		mgr.SetDecider(strategy.New(next.StrategyConfig(), ldg, sizing.New(next.SizingConfig())))
		mgr.SetConfig(next.EngineConfig())
		slog.Info("config reloaded",
			"cost_per_pair_max", next.Trading.CostPerPairMax,
			"cooldown", next.Trading.CooldownSeconds,
		)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	}

	slog.Info("engine ready", "restored_markets", restored, "watched", watched, "total_pnl", resolver.TotalPnL())

	ticks := make(chan domain.PriceTick, 256)
	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error(name+" stopped with error", "err", err)
			}
		}()
	}

	start("feed", func(ctx context.Context) error { return feed.Run(ctx, ticks) })
	start("engine", func(ctx context.Context) error { return mgr.Run(ctx, ticks) })
	start("closure", resolver.Run)
	start("discovery", rotator.Run)
	if watcher != nil {
		start("config watcher", watcher.Run)
	}

	var srv *http.Server
	if cfg.HTTP.Addr != "" {
		srv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           api.NewServer(mgr, ldg, resolver).Routes(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("http server listening", "addr", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "err", err)
			}
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
		cancel()
	}
	wg.Wait()

	orders, volume := exec.Stats()
	slog.Info("session summary",
		"paper_orders", orders,
		"paper_volume", volume,
		"settled", len(resolver.Settlements()),
		"total_pnl", resolver.TotalPnL(),
	)

	now := time.Now()
	var rows []notify.PositionRow
	for _, m := range mgr.OpenMarkets() {
		rows = append(rows, notify.PositionRow{Market: m, Position: ldg.Get(m.ID), Now: now})
	}
	console.PrintPositions(rows)
	return nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
