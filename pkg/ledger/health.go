// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package ledger

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is the part of Store the health checker needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker pings the ledger backend.
type HealthChecker struct {
	backend string
	store   Pinger
}

// NewHealthChecker creates a health checker for a named backend.
func NewHealthChecker(backend string, store Pinger) *HealthChecker {
	return &HealthChecker{backend: backend, store: store}
}

// Check pings the backend with a short timeout.
func (h *HealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		logrus.Errorf("%s ledger health check failed: %v", h.backend, err)
		return err
	}

	logrus.Debugf("%s ledger health check passed", h.backend)
	return nil
}

// IsHealthy returns true if the backend is reachable.
func (h *HealthChecker) IsHealthy(ctx context.Context) bool {
	return h.Check(ctx) == nil
}
