// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package alert

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages available sinks.
// It provides thread-safe registration and lookup of sinks.
type Registry struct {
	sinks map[string]Sink
	mu    sync.RWMutex
}

// NewRegistry creates a new empty sink registry.
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]Sink),
	}
}

// Register adds a sink to the registry.
func (r *Registry) Register(sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sinks[sink.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrSinkExists, sink.Name())
	}

	r.sinks[sink.Name()] = sink
	return nil
}

// Unregister removes a sink from the registry.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sinks[name]; !exists {
		return fmt.Errorf("%w: %s", ErrSinkNotFound, name)
	}

	delete(r.sinks, name)
	return nil
}

// Get returns a sink by name, or nil.
func (r *Registry) Get(name string) Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sinks[name]
}

// GetAll returns all registered sinks ordered by name.
func (r *Registry) GetAll() []Sink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sinks := make([]Sink, 0, len(r.sinks))
	for _, s := range r.sinks {
		sinks = append(sinks, s)
	}
	sort.Slice(sinks, func(i, j int) bool {
		return sinks[i].Name() < sinks[j].Name()
	})
	return sinks
}

// Count returns the number of registered sinks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sinks)
}
