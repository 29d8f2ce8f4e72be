// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// WebhookSinkName is the registry name of the webhook sink.
const WebhookSinkName = "webhook"

// DefaultWebhookRetries is used when WebhookConfig.MaxRetries is nil.
const DefaultWebhookRetries = 3

// WebhookConfig configures a WebhookSink.
type WebhookConfig struct {
	URL string
	// MaxRetries bounds the retries after the first attempt. Zero disables them.
	MaxRetries *uint64
	// InitialInterval is the first retry delay, doubled on each attempt.
	InitialInterval time.Duration
	Client          *http.Client
}

// WebhookSink POSTs alerts as JSON, retrying server errors with exponential backoff.
type WebhookSink struct {
	cfg WebhookConfig
}

func NewWebhookSink(cfg WebhookConfig) *WebhookSink {
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 5 * time.Second}
	}
	if cfg.MaxRetries == nil {
		retries := uint64(DefaultWebhookRetries)
		cfg.MaxRetries = &retries
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	return &WebhookSink{cfg: cfg}
}

func (s *WebhookSink) Name() string {
	return WebhookSinkName
}

func (s *WebhookSink) Send(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	// one id per alert so the receiver can drop retried duplicates
	deliveryID := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, *s.cfg.MaxRetries), ctx)

	return backoff.RetryNotify(
		func() error {
			return s.post(ctx, body, deliveryID)
		},
		policy,
		func(err error, d time.Duration) {
			logrus.Warnf("webhook delivery %s failed, retrying in %v: %v", deliveryID, d, err)
		},
	)
}

func (s *WebhookSink) post(ctx context.Context, body []byte, deliveryID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-ID", deliveryID)

	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post alert: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned %s", resp.Status)
	case resp.StatusCode >= 400:
		return backoff.Permanent(fmt.Errorf("webhook rejected alert: %s", resp.Status))
	}
	return nil
}
