// Package tenant implements the process-wide registry mapping a tenant
// key to its running *engine.Engine, the only shared mutable state
// across otherwise-independent tenant engines.
package tenant

import (
	"fmt"
	"sync"

	"github.com/reteforge/engine/engine"
)

// Registry is a concurrency-safe, read-mostly map from tenant key to
// engine handle.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]*engine.Engine
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{engines: make(map[string]*engine.Engine)}
}

// Start constructs a new Engine from cfg, with cfg.Tenant set to key, and
// registers it under key. It is an error to start a tenant key that is
// already running.
func (r *Registry) Start(key string, cfg engine.Config) (*engine.Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.engines[key]; exists {
		return nil, fmt.Errorf("tenant: %q is already running", key)
	}

	cfg.Tenant = key
	e, err := engine.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("tenant: start %q: %w", key, err)
	}
	r.engines[key] = e
	return e, nil
}

// Stop removes key from the registry. It is a no-op if key was not
// running.
func (r *Registry) Stop(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.engines, key)
}

// Lookup returns the running engine for key.
func (r *Registry) Lookup(key string) (*engine.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[key]
	return e, ok
}

// Keys returns every currently running tenant key.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.engines))
	for k := range r.engines {
		out = append(out, k)
	}
	return out
}

// Size returns the number of currently running tenant engines.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}
