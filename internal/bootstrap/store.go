// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-clan-battle/internal/config"
	"github.com/AccelByte/extend-clan-battle/pkg/ledger"
)

// InitStore opens the configured ledger backend.
func InitStore(ctx context.Context, cfg *config.Config) (ledger.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		return initSQLite(cfg.SQLitePath)
	case config.BackendRedis:
		client, err := initRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return ledger.NewRedisStore(client, ledger.RedisStoreConfig{KeyPrefix: cfg.RedisKeyPrefix}), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func initSQLite(path string) (ledger.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory %s: %w", dir, err)
		}
	}
	store, err := ledger.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	logrus.Infof("SQLite ledger opened at %s", path)
	return store, nil
}

// initRedis connects to Redis, retrying the first ping with exponential backoff.
func initRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.RedisPassword,
		DB:           0, // use default DB
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(cfg.RedisRetryDelayMs) * time.Millisecond
	maxRetries := backoff.WithMaxRetries(backoff.WithContext(b, ctx), uint64(cfg.RedisMaxRetries))

	err := backoff.Retry(
		func() error {
			_, err := client.Ping(ctx).Result()
			if err != nil {
				logrus.Warnf("Redis connection failed: %v, retrying...", err)
				return err
			}
			return nil
		},
		maxRetries,
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr(), err)
	}

	logrus.Info("Redis client initialized")
	return client, nil
}
