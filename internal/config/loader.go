// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Load reads configuration from environment variables.
// It attempts to load from .env file first (for local development),
// then parses environment variables into the Config struct.
func Load() (*Config, error) {
	// In production (Docker/K8s), environment variables are injected directly
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	} else {
		logrus.Infof("loaded environment variables from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from environment: %w", err)
	}

	return cfg, nil
}

// Validate performs custom validation on the configuration.
func (c *Config) Validate() error {
	ports := []struct {
		name string
		port int
	}{
		{"GRPC_PORT", c.GRPCPort},
		{"HTTP_PORT", c.HTTPPort},
		{"METRICS_PORT", c.MetricsPort},
	}
	for _, p := range ports {
		if p.port < 1 || p.port > 65535 {
			return fmt.Errorf("invalid %s: %d (must be 1-65535)", p.name, p.port)
		}
	}

	switch c.StoreBackend {
	case BackendRedis:
		if c.RedisMaxRetries < 0 {
			return fmt.Errorf("invalid REDIS_MAX_RETRIES: %d (must be non-negative)", c.RedisMaxRetries)
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("invalid STORE_BACKEND: %q (must be %s or %s)", c.StoreBackend, BackendRedis, BackendSQLite)
	}

	if c.LongPoll < time.Second {
		return fmt.Errorf("invalid LONG_POLL_TIMEOUT: %s (must be at least 1s)", c.LongPoll)
	}
	if c.AlertSendTimeout <= 0 {
		return fmt.Errorf("invalid ALERT_SEND_TIMEOUT: %s (must be positive)", c.AlertSendTimeout)
	}
	if c.WebhookMaxRetries < 0 {
		return fmt.Errorf("invalid ALERT_WEBHOOK_MAX_RETRIES: %d (must be non-negative)", c.WebhookMaxRetries)
	}
	if c.WebhookURL != "" {
		u, err := url.Parse(c.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid ALERT_WEBHOOK_URL: %q", c.WebhookURL)
		}
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return nil
}

// RedisAddr returns host:port of the Redis server.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}
