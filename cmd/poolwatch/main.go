// cmd/poolwatch/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/FairForge/poolwatch/internal/api"
	"github.com/FairForge/poolwatch/internal/config"
	"github.com/FairForge/poolwatch/internal/detector"
	"github.com/FairForge/poolwatch/internal/dispatch"
	"github.com/FairForge/poolwatch/internal/history"
	"github.com/FairForge/poolwatch/internal/logparse"
	"github.com/FairForge/poolwatch/internal/policy"
	"github.com/FairForge/poolwatch/internal/tail"
	"github.com/FairForge/poolwatch/internal/watcher"
	"github.com/FairForge/poolwatch/internal/window"
)

func main() {
	configPath := flag.String("config", os.Getenv("POOLWATCH_CONFIG"), "path to YAML config file")
	flag.Parse()

	// Local .env files are a convenience for development; absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "poolwatch: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	if cfg.WebhookURL == "" {
		logger.Warn("no webhook URL configured, alerts will be logged only")
	}

	monitor, tailer, store, err := build(cfg, logger)
	if err != nil {
		logger.Fatal("startup failed", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	var adminSrv *api.Server
	if cfg.ListenAddr != "" {
		adminSrv = api.NewServer(cfg.ListenAddr, monitor, store, logger)
		go func() {
			if err := adminSrv.Start(); err != nil {
				logger.Error("admin API failed", zap.Error(err))
			}
		}()
	}

	printBanner(cfg)
	logger.Info("poolwatch started",
		zap.String("log_file", cfg.LogFile),
		zap.Int("window_size", cfg.WindowSize),
		zap.Float64("error_rate_threshold", cfg.ErrorRateThreshold),
		zap.Duration("cooldown", cfg.Cooldown()),
		zap.Int("min_samples", cfg.MinSamples),
		zap.Bool("maintenance_mode", cfg.MaintenanceMode))

	tailErr := make(chan error, 1)
	go func() { tailErr <- tailer.Run(ctx) }()

	runErr := monitor.Run(ctx, tailer.Lines())

	if adminSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := adminSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin API shutdown error", zap.Error(err))
		}
	}

	if err := <-tailErr; err != nil {
		if errors.Is(err, tail.ErrSourceGone) {
			logger.Fatal("log source permanently unavailable", zap.Error(err))
		}
		logger.Error("tailer stopped with error", zap.Error(err))
	}
	if runErr != nil {
		logger.Fatal("monitor failed", zap.Error(runErr))
	}
	logger.Info("poolwatch stopped")
}

// build assembles the monitor from configuration.
func build(cfg *config.Config, logger *zap.Logger) (*watcher.Monitor, *tail.Tailer, *history.Store, error) {
	aggregator, err := window.NewAggregator(cfg.WindowSize)
	if err != nil {
		return nil, nil, nil, err
	}

	engine, err := policy.NewEngine(&policy.Config{
		ErrorRateThreshold: cfg.ErrorRateThreshold,
		Cooldown:           cfg.Cooldown(),
		MinSamples:         cfg.MinSamples,
		WindowSize:         cfg.WindowSize,
	}, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	var sender watcher.Sender
	if cfg.WebhookURL != "" {
		dispatcher, err := dispatch.NewDispatcher(&dispatch.Config{
			WebhookURL: cfg.WebhookURL,
			Timeout:    cfg.DispatchTimeout(),
			Format:     cfg.WebhookFormat,
		}, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		sender = dispatcher
	}

	var store *history.Store
	if cfg.DatabaseURL != "" {
		store, err = history.NewStore(cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		schemaCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.EnsureSchema(schemaCtx); err != nil {
			logger.Warn("alert history schema setup failed, continuing without guarantees", zap.Error(err))
		}
	}

	tailer, err := tail.NewTailer(&tail.Config{
		Path:         cfg.LogFile,
		PollInterval: cfg.PollInterval(),
		FromStart:    cfg.ReadFromStart,
	}, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	monitor, err := watcher.New(watcher.Options{
		Parser:          logparse.NewParser(nil),
		Aggregator:      aggregator,
		Detector:        detector.NewDetector(),
		Engine:          engine,
		Sender:          sender,
		History:         store,
		Logger:          logger,
		DispatchTimeout: cfg.DispatchTimeout(),
		Maintenance:     cfg.MaintenanceMode,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return monitor, tailer, store, nil
}

func newLogger(level string) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func printBanner(cfg *config.Config) {
	fmt.Printf("\n")
	fmt.Printf("╔══════════════════════════════════════╗\n")
	fmt.Printf("║         Poolwatch Monitor            ║\n")
	fmt.Printf("╠══════════════════════════════════════╣\n")
	fmt.Printf("║  Log: %-30s ║\n", truncate(cfg.LogFile, 30))
	fmt.Printf("║  Window: %-5d  Threshold: %-6.2f%%   ║\n", cfg.WindowSize, cfg.ErrorRateThreshold)
	fmt.Printf("║  Admin API: %-24s ║\n", truncate(cfg.ListenAddr, 24))
	fmt.Printf("╚══════════════════════════════════════╝\n")
	fmt.Printf("\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
