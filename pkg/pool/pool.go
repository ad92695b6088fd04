package pool

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoConnections is returned when a pool is constructed or asked to
// operate with no connections.
var ErrNoConnections = errors.New("pool has no connections")

// Pool aggregates an ordered set of switch connections and fans their
// lifecycle events out to subscribers. The pool owns no call logic; it only
// counts, broadcasts, and dispatches.
type Pool struct {
	conns []Connection

	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// New builds a pool over the given connections and attaches the pool's
// event publisher to each of them.
func New(conns ...Connection) (*Pool, error) {
	if len(conns) == 0 {
		return nil, ErrNoConnections
	}
	p := &Pool{
		conns:    conns,
		handlers: make(map[EventType][]Handler),
	}
	for _, c := range conns {
		c.Attach(p.publish)
	}
	return p, nil
}

// Connections returns the pool's connections in their fixed order.
func (p *Pool) Connections() []Connection {
	return p.conns
}

// Size is the number of connections in the pool.
func (p *Pool) Size() int {
	return len(p.conns)
}

// CountSessions aggregates the live session count across all connections.
// The value may be stale by one notification round trip, which is
// acceptable for admission decisions.
func (p *Pool) CountSessions() int {
	total := 0
	for _, c := range p.conns {
		total += c.ActiveSessions()
	}
	return total
}

// CountJobs aggregates unresolved originate jobs across all connections.
func (p *Pool) CountJobs() int {
	total := 0
	for _, c := range p.conns {
		total += c.PendingJobs()
	}
	return total
}

// Subscribe registers a handler for an event class. Must be called before
// StartListeners; live connections do not accept subscription changes.
func (p *Pool) Subscribe(t EventType, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[t] = append(p.handlers[t], h)
}

func (p *Pool) publish(ev Event) {
	p.mu.RLock()
	hs := p.handlers[ev.Type]
	p.mu.RUnlock()
	for _, h := range hs {
		h(ev)
	}
}

// Broadcast invokes fn on every connection, stopping at the first error.
func (p *Pool) Broadcast(fn func(Connection) error) error {
	for _, c := range p.conns {
		if err := fn(c); err != nil {
			return fmt.Errorf("connection %s: %w", c.ID(), err)
		}
	}
	return nil
}

// Listening reports whether any connection's event listener is live.
func (p *Pool) Listening() bool {
	for _, c := range p.conns {
		if c.Alive() {
			return true
		}
	}
	return false
}

// StartListeners activates every connection that is not already live.
func (p *Pool) StartListeners() error {
	return p.Broadcast(func(c Connection) error {
		if c.Alive() {
			return nil
		}
		return c.Start()
	})
}

// HangupAll requests termination of sessions on every connection.
func (p *Pool) HangupAll(scope HangupScope) error {
	return p.Broadcast(func(c Connection) error {
		return c.HangupAll(scope)
	})
}

// Close shuts down every connection.
func (p *Pool) Close() error {
	var first error
	for _, c := range p.conns {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Cycle returns an endless admission-filtered iterator over the pool's
// connections.
func (p *Pool) Cycle() *ConnCycle {
	return &ConnCycle{pool: p}
}

// ConnCycle walks the pool's connections round-robin, skipping any
// connection whose active session count has reached its local capacity
// ceiling. Not safe for concurrent use; the burst loop is its only caller.
type ConnCycle struct {
	pool *Pool
	next int
}

// Next returns the next eligible connection. It reports false when a full
// scan finds every connection at capacity, rather than spinning.
func (cy *ConnCycle) Next() (Connection, bool) {
	conns := cy.pool.conns
	for i := 0; i < len(conns); i++ {
		c := conns[cy.next%len(conns)]
		cy.next++
		if c.ActiveSessions() >= c.MaxSessions() {
			continue
		}
		return c, true
	}
	return nil, false
}
