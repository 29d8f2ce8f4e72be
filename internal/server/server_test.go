// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/AccelByte/extend-clan-battle/pkg/api"
	"github.com/AccelByte/extend-clan-battle/pkg/battle"
	"github.com/AccelByte/extend-clan-battle/pkg/ledger"
)

type testEnv struct {
	engine  *battle.Engine
	gateway *api.Gateway
	health  *ledger.HealthChecker
	metrics *Metrics
	mr      *miniredis.Miniredis
}

// setupTestEnv creates an engine over miniredis with jp group "g1" whose
// members are alice and bob.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})

	store := ledger.NewRedisStore(client, ledger.RedisStoreConfig{})
	metrics := NewMetrics()
	engine := battle.NewEngine(store, battle.Config{
		Waiters:  metrics.Waiters,
		Observer: metrics.ObserveOperation,
	})
	if _, err := engine.CreateGroup(ctx, "g1", "jp", "Test Clan"); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	for _, id := range []string{"alice", "bob"} {
		if err := engine.BindGroup(ctx, "g1", id, strings.ToUpper(id[:1])+id[1:]); err != nil {
			t.Fatalf("BindGroup(%s) error = %v", id, err)
		}
	}

	return &testEnv{
		engine:  engine,
		gateway: api.NewGateway(engine, nil, api.GatewayConfig{LongPoll: 100 * time.Millisecond}),
		health:  ledger.NewHealthChecker("redis", store),
		metrics: metrics,
		mr:      mr,
	}
}
