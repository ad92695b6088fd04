package originator

import (
	"fmt"
	"sync"
	"time"

	"github.com/callstorm/callstorm/pkg/pool"
)

// Behavior is a pluggable unit of call-handling logic. Sessions are
// distributed across loaded behaviors by weighted round robin; each behavior
// subscribes itself to the pool event classes it cares about.
type Behavior interface {
	Name() string

	// Register installs the behavior's event subscriptions. Called once when
	// the behavior is loaded, before pool listeners start.
	Register(p *pool.Pool)
}

// Capability interfaces a behavior may additionally implement. The engine's
// configuration setters fan changes out to every loaded behavior that opts
// in.

// RateAware receives the engine rate divided evenly across the pool's
// connections whenever the rate changes.
type RateAware interface {
	OnRateChange(perConnRate float64)
}

// LimitAware receives the engine concurrency ceiling whenever it changes.
type LimitAware interface {
	OnLimitChange(limit int)
}

// DurationAware receives the session hold time whenever it changes,
// including auto-duration recomputations.
type DurationAware interface {
	OnDurationChange(d time.Duration)
}

// registry tracks loaded behaviors by name. Behaviors persist for the
// engine's lifetime; there is no unload.
type registry struct {
	mu     sync.RWMutex
	byName map[string]Behavior
	order  []string
}

func newRegistry() *registry {
	return &registry{byName: make(map[string]Behavior)}
}

func (r *registry) add(b Behavior) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := b.Name()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("behavior %q already loaded", name)
	}
	r.byName[name] = b
	r.order = append(r.order, name)
	return nil
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// all returns loaded behaviors in load order.
func (r *registry) all() []Behavior {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Behavior, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}
