// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-clan-battle/pkg/battle"
)

// Metrics holds the service collectors.
type Metrics struct {
	Operations *prometheus.CounterVec
	Waiters    prometheus.Gauge
	Alerts     *prometheus.CounterVec
	Requests   *prometheus.CounterVec
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clan_battle_operations_total",
				Help: "Total number of engine operations by outcome",
			},
			[]string{"op", "result"},
		),
		Waiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "clan_battle_waiters",
			Help: "Number of readers waiting for a boss status change",
		}),
		Alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clan_battle_alerts_total",
				Help: "Total number of alert deliveries by sink and outcome",
			},
			[]string{"sink", "result"},
		),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clan_battle_requests_total",
				Help: "Total number of API requests by transport and response code",
			},
			[]string{"transport", "code"},
		),
	}
}

// Collectors lists every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.Operations, m.Waiters, m.Alerts, m.Requests}
}

// ObserveOperation counts an engine operation. It satisfies battle.OperationObserver.
func (m *Metrics) ObserveOperation(op string, err error) {
	m.Operations.WithLabelValues(op, operationResult(err)).Inc()
}

func operationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case battle.IsStoreError(err):
		return "store_error"
	default:
		if kind, ok := battle.KindOf(err); ok {
			return kind.String()
		}
		return "error"
	}
}

// ObserveRequest counts one API response.
func (m *Metrics) ObserveRequest(transport string, code int) {
	m.Requests.WithLabelValues(transport, fmt.Sprint(code)).Inc()
}

// MetricsServer manages the Prometheus metrics HTTP server.
type MetricsServer struct {
	server   *http.Server
	port     int
	endpoint string
	metrics  *Metrics
}

// NewMetricsServer creates a new metrics server instance.
func NewMetricsServer(port int, endpoint string, metrics *Metrics) *MetricsServer {
	return &MetricsServer{
		port:     port,
		endpoint: endpoint,
		metrics:  metrics,
	}
}

// Setup registers the runtime and service collectors.
func (m *MetricsServer) Setup() error {
	registry := prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if m.metrics != nil {
		if err := registerAll(registry, m.metrics.Collectors()); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.Handle(m.endpoint, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	m.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", m.port),
		Handler: mux,
	}

	return nil
}

func registerAll(registry prometheus.Registerer, cs []prometheus.Collector) error {
	for _, c := range cs {
		if err := registry.Register(c); err != nil {
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}
	return nil
}

// Start begins serving metrics on the configured port.
func (m *MetricsServer) Start(ctx context.Context) error {
	go func() {
		logrus.Infof("metrics server listening on port %d%s", m.port, m.endpoint)
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("metrics server failed: %v", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the metrics server.
func (m *MetricsServer) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down metrics server...")
	if err := m.server.Shutdown(ctx); err != nil {
		return err
	}
	logrus.Info("metrics server stopped")
	return nil
}
