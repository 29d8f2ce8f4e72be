// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

// Run starts the application and blocks until a shutdown signal is received.
func (a *App) Run(ctx context.Context) error {
	if err := a.grpcServer.Start(ctx); err != nil {
		return err
	}
	if err := a.httpServer.Start(ctx); err != nil {
		return err
	}
	if err := a.metricsServer.Start(ctx); err != nil {
		return err
	}
	a.grpcServer.SetServing(true)

	logrus.Infof("application started successfully with %d groups", len(a.engine.GroupIDs()))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logrus.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return a.Shutdown(shutdownCtx)
}

// Shutdown gracefully shuts down all application components.
//
// Components are shut down in reverse dependency order:
// 1. Stop accepting new requests (gRPC, HTTP and metrics servers)
// 2. Wait for pending alert deliveries
// 3. Close the ledger
// 4. Flush telemetry data
//
// Shutdown errors are logged but don't stop the shutdown sequence.
func (a *App) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down application...")

	// ============================================================
	// Step 1: Shutdown servers (stop accepting new requests)
	// ============================================================
	a.grpcServer.SetServing(false)
	if err := a.grpcServer.Shutdown(ctx); err != nil {
		logrus.Errorf("gRPC server shutdown error: %v", err)
	}
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}
	if err := a.metricsServer.Shutdown(ctx); err != nil {
		logrus.Errorf("metrics server shutdown error: %v", err)
	}

	// ============================================================
	// Step 2: Drain alerts
	// ============================================================
	if a.alerts != nil {
		a.alerts.Wait()
	}

	// ============================================================
	// Step 3: Close the ledger
	// ============================================================
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logrus.Errorf("ledger close error: %v", err)
		}
	}

	// ============================================================
	// Step 4: Flush telemetry data
	// ============================================================
	if a.shutdownTelemetry != nil {
		if err := a.shutdownTelemetry(ctx); err != nil {
			logrus.Errorf("telemetry shutdown error: %v", err)
		}
	}

	logrus.Info("application shutdown complete")
	return nil
}
