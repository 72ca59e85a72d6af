package main

import (
	"context"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"PerpPilot/internal/budget"
	"PerpPilot/internal/config"
	"PerpPilot/internal/ledger"
	"PerpPilot/internal/marketdata"
	"PerpPilot/internal/model"
	"PerpPilot/internal/notifier"
	"PerpPilot/internal/recorder"
	"PerpPilot/internal/session"
	"PerpPilot/internal/signal"
	"PerpPilot/internal/venue"
	"PerpPilot/pkg/logger"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Init(false)
		logger.Fatal("load config", zap.Error(err))
	}
	logger.Init(cfg.Debug)
	logger.Info("PerpPilot starting")

	if err := cfg.Validate(); err != nil {
		logger.Fatal("config validation", zap.Error(err))
	}

	// Market data: ranked providers behind one aggregator.
	agg := marketdata.NewAggregator(
		cfg.MarketData.RateLimit,
		time.Duration(cfg.MarketData.CacheTTLMinutes)*time.Minute,
		marketdata.NewBinanceProvider(),
		marketdata.NewBybitIndexProvider("https://api.bybit.com"),
		marketdata.NewCoinbaseSpotProvider("https://api.exchange.coinbase.com"),
	)

	// Execution venue: a construction-time choice, never inferred later.
	var adapter venue.Adapter
	switch model.VenueKind(cfg.Venue.Kind) {
	case model.VenueExternal:
		adapter = venue.NewExternalVenue(
			cfg.Venue.External.BaseURL,
			venue.DefaultRetryPolicy(),
			time.Duration(cfg.Venue.External.TimeoutSeconds)*time.Second,
		)
	default:
		adapter = venue.NewOrderBookVenue(
			cfg.Venue.OrderBook.BaseURL,
			venue.DefaultRetryPolicy(),
			time.Duration(cfg.Venue.OrderBook.PollIntervalMillis)*time.Millisecond,
			time.Duration(cfg.Venue.OrderBook.PollTimeoutSeconds)*time.Second,
		)
	}
	logger.Info("venue selected", zap.String("venue", adapter.Name()))

	healthCtx, healthCancel := context.WithTimeout(context.Background(), 15*time.Second)
	if err := adapter.Healthy(healthCtx); err != nil {
		logger.Fatal("venue health check", zap.Error(err))
	}
	healthCancel()

	// Recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			logger.Warn("init sqlite recorder failed, using noop", zap.Error(err))
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	book := ledger.New(rec)

	// Telegram notifier
	var notify notifier.Notifier = notifier.NoopNotifier{}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		notify = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		logger.Info("telegram notifications enabled")
	}

	engine := signal.NewEngine(agg, cfg.Signal,
		cfg.Trading.FastInterval, cfg.Trading.SlowInterval, cfg.Trading.CandleLimit)

	alloc := &budget.Allocator{
		GlobalMinBudgetUSD: cfg.Budget.GlobalMinBudgetUSD,
		GlobalMaxBudgetUSD: cfg.Budget.GlobalMaxBudgetUSD,
		MinPerPositionUSD:  cfg.Budget.MinPerPositionUSD,
		TargetLeverage:     cfg.Budget.TargetLeverage,
		MinLeverage:        cfg.Budget.MinLeverage,
	}

	sessCfg := model.SessionConfig{
		MaxBudgetUSD:           cfg.Budget.MaxBudgetUSD,
		ProfitGoalUSD:          cfg.Budget.ProfitGoalUSD,
		MaxConcurrentPositions: cfg.Budget.MaxConcurrentPositions,
		Venue:                  model.VenueKind(cfg.Venue.Kind),
		Credential:             cfg.Credential,
	}
	stop := &session.StopFile{Path: cfg.Session.StopFilePath}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Maintenance jobs: daily recap at midnight UTC, cache sweep hourly.
	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc("0 0 * * *", func() {
		rctx, rcancel := context.WithTimeout(context.Background(), time.Minute)
		defer rcancel()
		if err := notify.SendWithRetry(rctx, notifier.FormatDailyRecap(book.Stats(), book.OpenSymbols()), 3); err != nil {
			logger.Warn("daily recap failed", zap.Error(err))
		}
	}); err != nil {
		logger.Fatal("register recap job", zap.Error(err))
	}
	if _, err := c.AddFunc("@hourly", agg.SweepCache); err != nil {
		logger.Fatal("register sweep job", zap.Error(err))
	}
	c.Start()
	defer c.Stop()

	runner := &session.Runner{
		MaxRestarts:  cfg.Session.MaxRestarts,
		RestartDelay: time.Duration(cfg.Session.RestartDelaySeconds) * time.Second,
		FatalDelay:   time.Duration(cfg.Session.FatalDelaySeconds) * time.Second,
		NewSession: func() *session.Supervisor {
			return session.New(cfg, sessCfg, session.Deps{
				Venue:    adapter,
				Source:   agg,
				Eval:     engine,
				Alloc:    alloc,
				Ledger:   book,
				Recorder: rec,
				Notifier: notify,
				Stop:     stop,
				Leverage: budget.DefaultLeverageTable,
			})
		},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		runner.Run(ctx)
	}()

	// Wait for shutdown signal or the runner finishing on its own.
	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("shutdown signal received, stopping")
		cancel()
		<-done
	case <-done:
	}

	logger.Info("PerpPilot stopped")
}
