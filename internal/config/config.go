// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import "time"

// Ledger backends.
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Config holds all application configuration loaded from environment variables.
// This struct uses github.com/caarlos0/env for automatic environment variable parsing.
type Config struct {
	// ============================================================
	// Server configuration
	// ============================================================
	GRPCPort    int    `env:"GRPC_PORT" envDefault:"6565"`
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8000"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"ClanBattleService"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// ============================================================
	// Ledger configuration
	// ============================================================
	StoreBackend string `env:"STORE_BACKEND" envDefault:"redis"`
	SQLitePath   string `env:"SQLITE_PATH" envDefault:"data/clanbattle.db"`

	RedisHost         string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort         string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	RedisKeyPrefix    string `env:"REDIS_KEY_PREFIX" envDefault:"clan_battle:"`
	RedisMaxRetries   int    `env:"REDIS_MAX_RETRIES" envDefault:"5"`
	RedisRetryDelayMs int    `env:"REDIS_RETRY_DELAY_MS" envDefault:"1000"`

	// ============================================================
	// Battle configuration
	// ============================================================
	// BossTablePath is optional; the embedded table is used when empty.
	BossTablePath string        `env:"BOSS_TABLE_PATH"`
	LongPoll      time.Duration `env:"LONG_POLL_TIMEOUT" envDefault:"30s"`

	// ============================================================
	// Alert configuration
	// ============================================================
	WebhookURL        string        `env:"ALERT_WEBHOOK_URL"`
	WebhookMaxRetries int           `env:"ALERT_WEBHOOK_MAX_RETRIES" envDefault:"3"`
	AlertSendTimeout  time.Duration `env:"ALERT_SEND_TIMEOUT" envDefault:"10s"`

	// ============================================================
	// Telemetry configuration
	// ============================================================
	OtelEnabled bool `env:"OTEL_ENABLED" envDefault:"true"`
}
