// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bootstrap

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-clan-battle/pkg/battle"
	"github.com/AccelByte/extend-clan-battle/pkg/ledger"
	"github.com/AccelByte/extend-clan-battle/pkg/stage"
)

// InitEngine builds the battle engine and mirrors every stored group into memory.
// An empty tablePath selects the embedded boss table.
func InitEngine(ctx context.Context, store ledger.Store, tablePath string, cfg battle.Config) (*battle.Engine, error) {
	table := stage.Default()
	if tablePath != "" {
		t, err := stage.Load(tablePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load boss table from %s: %w", tablePath, err)
		}
		table = t
		logrus.Infof("loaded boss table from %s", tablePath)
	}
	cfg.Table = table

	engine := battle.NewEngine(store, cfg)
	if err := engine.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load groups: %w", err)
	}
	return engine, nil
}
