package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"golang.org/x/sync/errgroup"

	"attendance-backend/config"
	"attendance-backend/internal/anticheat"
	"attendance-backend/internal/api"
	"attendance-backend/internal/attendance"
	"attendance-backend/internal/db"
	"attendance-backend/internal/engine"
	applog "attendance-backend/internal/log"
	"attendance-backend/internal/mw"
	"attendance-backend/internal/notification"
	"attendance-backend/internal/schedule"
	"attendance-backend/internal/scoring"
	"attendance-backend/internal/store"
)

func main() {
	if err := run(); err != nil {
		slog.Error("attendanced stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}

	logger, err := applog.NewLogger(os.Stdout, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "path", configPath)

	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("database initialized", "driver", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appStore := store.NewGormStore(gormDB)

	var webpushOptions *webpush.Options
	var notifier engine.Notifier
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Warn("VAPID keys are not configured; warning notifications are disabled")
	} else {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions, logger)
		pool.Start(ctx)
		notifier = pool
	}

	att := cfg.Attendance
	validator := anticheat.NewValidator(anticheat.Config{
		MaxAge:      att.MaxLocationAge,
		ClockSkew:   att.ClockSkew,
		MaxAttempts: att.RateLimitAttempts,
		Window:      att.RateLimitWindow,
	}, anticheat.NewMemoryWindowStore(att.RateLimitWindow), logger, nil)
	ledger := scoring.NewLedger(appStore, scoring.Config{
		LowScoreThreshold: cfg.Scoring.LowScoreThreshold,
		NoShowPenalty:     cfg.Scoring.NoShowPenalty,
		Location:          att.Location,
	}, logger, nil)
	machine := attendance.NewMachine(appStore, ledger, att.MinDwell, logger, nil)
	eng := engine.New(appStore, validator, machine, ledger, notifier,
		engine.Config{DefaultRadiusMeters: att.DefaultRadiusMeters}, logger, nil)

	cache := mw.NewResponseCache(time.Duration(cfg.Server.CacheTTLSeconds) * time.Second)
	scheduler := schedule.NewService(cfg.Scheduler, appStore, eng, cache, logger, nil)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(eng, appStore, cfg.Server, webpushOptions, cache, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server ListenAndServe: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received, stopping services...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server Shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server gracefully stopped")
	return nil
}
