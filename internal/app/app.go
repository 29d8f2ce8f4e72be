// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-clan-battle/internal/bootstrap"
	"github.com/AccelByte/extend-clan-battle/internal/config"
	"github.com/AccelByte/extend-clan-battle/internal/server"
	"github.com/AccelByte/extend-clan-battle/pkg/alert"
	"github.com/AccelByte/extend-clan-battle/pkg/api"
	"github.com/AccelByte/extend-clan-battle/pkg/battle"
	"github.com/AccelByte/extend-clan-battle/pkg/ledger"
)

// App holds all application dependencies and manages the application lifecycle.
type App struct {
	cfg               *config.Config
	store             ledger.Store
	engine            *battle.Engine
	alerts            *alert.Dispatcher
	grpcServer        *server.GRPCServer
	httpServer        *server.HTTPServer
	metricsServer     *server.MetricsServer
	shutdownTelemetry func(context.Context) error
}

// New creates and initializes a new application instance.
//
// Components are initialized in dependency order:
// 1. Ledger (Redis or SQLite)
// 2. Battle engine, loading every stored group
// 3. Alert sinks
// 4. Servers (gRPC, HTTP, metrics)
// 5. Telemetry (OpenTelemetry tracing)
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logrus.Info("initializing application...")

	app := &App{cfg: cfg}
	metrics := server.NewMetrics()

	// ============================================================
	// Step 1: Open the ledger
	// ============================================================
	store, err := bootstrap.InitStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to init ledger: %w", err)
	}
	app.store = store

	// ============================================================
	// Step 2: Build the engine
	// ============================================================
	app.engine, err = bootstrap.InitEngine(ctx, store, cfg.BossTablePath, battle.Config{
		Waiters:  metrics.Waiters,
		Observer: metrics.ObserveOperation,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to init engine: %w", err)
	}

	// ============================================================
	// Step 3: Alert sinks
	// ============================================================
	app.alerts, err = bootstrap.InitAlerts(cfg, alert.DispatcherConfig{Deliveries: metrics.Alerts})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to init alerts: %w", err)
	}

	// ============================================================
	// Step 4: Setup servers
	// ============================================================
	gateway := api.NewGateway(app.engine, app.alerts, api.GatewayConfig{LongPoll: cfg.LongPoll})
	health := ledger.NewHealthChecker(cfg.StoreBackend, store)

	app.grpcServer = server.NewGRPCServer(cfg.GRPCPort, server.NewBattleService(gateway, app.engine, metrics))
	if err := app.grpcServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup gRPC server: %w", err)
	}

	app.httpServer = server.NewHTTPServer(cfg.HTTPPort, gateway, app.engine, health, metrics)
	if err := app.httpServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup HTTP server: %w", err)
	}

	app.metricsServer = server.NewMetricsServer(cfg.MetricsPort, "/metrics", metrics)
	if err := app.metricsServer.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup metrics server: %w", err)
	}

	// ============================================================
	// Step 5: Setup telemetry
	// ============================================================
	if cfg.OtelEnabled {
		shutdownTelemetry, err := server.SetupTelemetry(ctx, cfg.ServiceName, cfg.Environment, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to setup telemetry: %w", err)
		}
		app.shutdownTelemetry = shutdownTelemetry
	}

	logrus.Info("application initialized successfully")

	return app, nil
}
