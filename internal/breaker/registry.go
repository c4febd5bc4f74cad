package breaker

import (
	"context"
	"fmt"
	"sync"

	"escalation-service/internal/config"
)

// Registry owns one Breaker per named external dependency. It is constructed
// once and handed to the components that make guarded calls; there are no
// package-level breakers.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	settings map[string]config.BreakerSettings
	defaults config.BreakerSettings

	onStateChange func(name string, from, to State)
}

// NewRegistry builds a registry. settings carries per-dependency overrides;
// unknown names fall back to defaults. onStateChange fires on every
// transition of every breaker.
func NewRegistry(settings map[string]config.BreakerSettings, defaults config.BreakerSettings, onStateChange func(name string, from, to State)) *Registry {
	return &Registry{
		breakers:      make(map[string]*Breaker),
		settings:      settings,
		defaults:      defaults,
		onStateChange: onStateChange,
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok = r.breakers[name]; ok {
		return b
	}
	s, ok := r.settings[name]
	if !ok {
		s = r.defaults
	}
	b = New(name, s, r.onStateChange)
	r.breakers[name] = b
	return b
}

// Execute runs fn under the named breaker.
func (r *Registry) Execute(ctx context.Context, name string, fn func() error) error {
	return r.Get(name).Execute(ctx, fn)
}

// Stats returns a snapshot of every breaker created so far.
func (r *Registry) Stats() []Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Stats, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Stats())
	}
	return out
}

// Reset closes the named breaker. Returns an error if it was never used.
func (r *Registry) Reset(name string) error {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown breaker %q", name)
	}
	b.Reset()
	return nil
}
