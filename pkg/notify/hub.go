// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package notify provides a rotating one-shot broadcast used to wake
// long-poll readers when a group's state changes.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// waitable is resolved exactly once by closing done after value is set.
type waitable[T any] struct {
	done  chan struct{}
	value T
	next  *waitable[T]
}

func newWaitable[T any]() *waitable[T] {
	return &waitable[T]{done: make(chan struct{})}
}

// Watch is a handle on the next change at the time it was taken.
type Watch[T any] struct {
	w *waitable[T]
}

// Done is closed when the watched change is published.
func (w Watch[T]) Done() <-chan struct{} {
	return w.w.done
}

// Value returns the published value. It is only meaningful after Done is closed.
func (w Watch[T]) Value() T {
	return w.w.value
}

// Next returns a handle on the publish that followed this one, so a
// streaming reader never misses a change. It is only valid after Done is closed.
func (w Watch[T]) Next() Watch[T] {
	return Watch[T]{w: w.w.next}
}

// Hub keeps exactly one outstanding waitable. Publish resolves it and
// installs a fresh one in the same critical section.
type Hub[T any] struct {
	mu      sync.Mutex
	next    *waitable[T]
	latest  T
	waiters prometheus.Gauge
}

// NewHub creates a hub whose current value is initial.
// waiters may be nil; when set it tracks readers blocked in Wait.
func NewHub[T any](initial T, waiters prometheus.Gauge) *Hub[T] {
	return &Hub[T]{
		next:    newWaitable[T](),
		latest:  initial,
		waiters: waiters,
	}
}

// Watch returns a handle on the next publish.
func (h *Hub[T]) Watch() Watch[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Watch[T]{w: h.next}
}

// Publish resolves every outstanding watch with v and rotates to a new waitable.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	resolved := h.next
	h.next = newWaitable[T]()
	h.latest = v

	resolved.value = v
	resolved.next = h.next
	close(resolved.done)
}

// Latest returns the most recently published value.
func (h *Hub[T]) Latest() T {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// Snapshot returns the latest value and a watch on the publish after it,
// taken together so a streaming reader neither repeats nor skips a value.
func (h *Hub[T]) Snapshot() (T, Watch[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest, Watch[T]{w: h.next}
}

// Wait blocks until the next publish, the timeout, or ctx is done.
// A timeout returns changed=false with a nil error.
func (h *Hub[T]) Wait(ctx context.Context, timeout time.Duration) (value T, changed bool, err error) {
	return h.WaitOn(ctx, h.Watch(), timeout)
}

// WaitOn is Wait for a watch taken earlier.
func (h *Hub[T]) WaitOn(ctx context.Context, w Watch[T], timeout time.Duration) (value T, changed bool, err error) {
	if h.waiters != nil {
		h.waiters.Inc()
		defer h.waiters.Dec()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.Done():
		return w.Value(), true, nil
	case <-timer.C:
		var zero T
		return zero, false, nil
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}
