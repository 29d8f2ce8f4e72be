// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package alert

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

const defaultSendTimeout = 10 * time.Second

// DispatcherConfig tunes background delivery.
type DispatcherConfig struct {
	// SendTimeout bounds one delivery to one sink.
	SendTimeout time.Duration
	// Deliveries counts outcomes by sink and result. Optional.
	Deliveries *prometheus.CounterVec
}

// Dispatcher fans alerts out to every registered sink in the background.
// Delivery failures are logged and never reported to the caller.
type Dispatcher struct {
	registry *Registry
	cfg      DispatcherConfig
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry *Registry, cfg DispatcherConfig) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	return &Dispatcher{
		registry: registry,
		cfg:      cfg,
	}
}

// Dispatch queues a for delivery and returns immediately.
func (d *Dispatcher) Dispatch(a Alert) {
	for _, sink := range d.registry.GetAll() {
		d.wg.Add(1)
		go d.deliver(sink, a)
	}
}

func (d *Dispatcher) deliver(sink Sink, a Alert) {
	defer d.wg.Done()

	// detached from the request: a mutation's caller may already be gone
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	result := "ok"
	if err := sink.Send(ctx, a); err != nil {
		result = "error"
		logrus.Errorf("failed to deliver %s alert for group %s to %s: %v", a.Kind, a.GroupID, sink.Name(), err)
	} else {
		logrus.Debugf("delivered %s alert for group %s to %s", a.Kind, a.GroupID, sink.Name())
	}

	if d.cfg.Deliveries != nil {
		d.cfg.Deliveries.WithLabelValues(sink.Name(), result).Inc()
	}
}

// Wait blocks until every dispatched delivery finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Registry returns the sink registry used by this dispatcher.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}
