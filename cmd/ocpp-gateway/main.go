package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"ocpp-gateway/internal/bridge"
	"ocpp-gateway/internal/chargers"
	"ocpp-gateway/internal/config"
	"ocpp-gateway/internal/demand"
	"ocpp-gateway/internal/history"
	"ocpp-gateway/internal/meteringest"
	"ocpp-gateway/internal/meterloop"
	"ocpp-gateway/internal/metrics"
	"ocpp-gateway/internal/pending"
	"ocpp-gateway/internal/persistence"
	"ocpp-gateway/internal/sitepower"
	"ocpp-gateway/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := newLogger(cfg.AppEnv)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting ocpp-gateway",
		zap.String("csms_url", cfg.ExternalCSMSURL),
		zap.String("downstream_addr", fmt.Sprintf("%s:%d", cfg.LocalServerHost, cfg.LocalServerPort)),
		zap.String("meter_addr", fmt.Sprintf("%s:%d", cfg.LocalMeterHost, cfg.LocalMeterPort)),
	)

	store := persistence.NewStore(cfg.PersistencePath, logger)
	learned := store.Load()

	registry := chargers.NewRegistry(store, cfg.DefaultMaxPowerSeed, logger)
	registry.Seed(learned)

	site := &sitepower.SitePower{}
	pendingSet := pending.NewSet()

	metricsCollector, promRegistry := metrics.New()

	var telemetryRelay *telemetry.Relay
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if cfg.Telemetry.WSURL != "" {
		telemetryRelay = telemetry.NewRelay(cfg.Telemetry.WSURL, logger)
		go telemetryRelay.Run(rootCtx)
	}

	var historyRecorder *history.Recorder
	if cfg.History.Driver != "" {
		db, err := history.Open(rootCtx, cfg.History.Driver, cfg.History.DSN)
		if err != nil {
			logger.Error("failed to open history store, continuing without it", zap.Error(err))
		} else {
			defer db.Close()
			if err := history.Migrate(cfg.History.Driver, db); err != nil {
				logger.Error("failed to migrate history store, continuing without it", zap.Error(err))
			} else {
				historyRecorder = history.NewRecorder(db, logger)
			}
		}
	}

	bridgeCfg := bridge.DefaultConfig(cfg.ExternalCSMSURL)
	gateway := bridge.New(bridgeCfg, registry, site, pendingSet, logger)
	gateway.History = historyRecorder
	gateway.Telemetry = telemetryRelay
	gateway.Metrics = metricsCollector

	demandLoop := demand.NewLoop(
		demand.DefaultConfig(cfg.MaxTotalPowerW, cfg.MinChargePowerW),
		registry, site, gateway, logger,
	)
	go demandLoop.Run(rootCtx)

	triggerLoop := meterloop.NewLoop(meterloop.DefaultInterval(), registry, gateway, logger)
	go triggerLoop.Run(rootCtx)

	downstreamRouter := chi.NewRouter()
	downstreamRouter.Use(middleware.Recoverer)
	downstreamRouter.HandleFunc("/*", gateway.AcceptDownstream)
	downstreamServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.LocalServerHost, cfg.LocalServerPort),
		Handler: downstreamRouter,
	}

	meterHandler := meteringest.New(site, logger)
	meterHandler.Telemetry = telemetryRelay
	meterHandler.Metrics = metricsCollector
	meterRouter := chi.NewRouter()
	meterRouter.Use(middleware.Recoverer)
	meterRouter.Mount("/", meterHandler.Router())
	meterServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.LocalMeterHost, cfg.LocalMeterPort),
		Handler: meterRouter,
	}

	metricsServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port),
		Handler: metrics.Router(promRegistry),
	}

	serveErr := make(chan error, 3)
	go func() {
		logger.Info("downstream listener starting", zap.String("addr", downstreamServer.Addr))
		if err := downstreamServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- fmt.Errorf("downstream listener: %w", err)
		}
	}()
	go func() {
		logger.Info("meter ingest listener starting", zap.String("addr", meterServer.Addr))
		if err := meterServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- fmt.Errorf("meter listener: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics listener starting", zap.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- fmt.Errorf("metrics listener: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		logger.Error("fatal listener error", zap.Error(err))
		return err
	}

	// Spec §4.8 step 1: stop accepting new downstream connections.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = downstreamServer.Shutdown(shutdownCtx)

	// Steps 2-3: restore every connected charger's cap, bounded to 5s.
	gateway.Shutdown(context.Background(), 5*time.Second)

	rootCancel()

	_ = meterServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
	return nil
}

func newLogger(appEnv string) (*zap.Logger, error) {
	if appEnv == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
