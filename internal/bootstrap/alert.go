// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package bootstrap

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-clan-battle/internal/config"
	"github.com/AccelByte/extend-clan-battle/pkg/alert"
)

// InitAlerts registers the alert sinks and returns their dispatcher.
// The log sink is always present; the webhook sink only when a URL is set.
func InitAlerts(cfg *config.Config, dcfg alert.DispatcherConfig) (*alert.Dispatcher, error) {
	registry := alert.NewRegistry()

	if err := registry.Register(alert.NewLogSink(logrus.StandardLogger())); err != nil {
		return nil, fmt.Errorf("failed to register log sink: %w", err)
	}
	if cfg.WebhookURL != "" {
		retries := uint64(cfg.WebhookMaxRetries)
		sink := alert.NewWebhookSink(alert.WebhookConfig{
			URL:        cfg.WebhookURL,
			MaxRetries: &retries,
		})
		if err := registry.Register(sink); err != nil {
			return nil, fmt.Errorf("failed to register webhook sink: %w", err)
		}
	}

	if dcfg.SendTimeout <= 0 {
		dcfg.SendTimeout = cfg.AlertSendTimeout
	}
	logrus.Infof("registered %d alert sinks", registry.Count())
	return alert.NewDispatcher(registry, dcfg), nil
}
