package originator

import (
	"fmt"
	"math"
	"time"
)

// serveForever is the worker goroutine: wait for a start signal, run the
// burst loop until stopped, repeat until shutdown. A panic escaping the
// burst loop kills the worker; the engine is then not restartable without
// caller intervention.
func (o *Originator) serveForever() {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("burst worker failed", "panic", r)
		}
		o.workerMu.Lock()
		o.workerAlive = false
		o.workerMu.Unlock()
	}()

	for {
		o.log.Info("waiting for start command")
		select {
		case <-o.exitCh:
			o.log.Info("terminating originate worker")
			return
		case <-o.startCh:
		}
		// shutdown may have raced the start trigger
		select {
		case <-o.exitCh:
			continue
		default:
		}

		o.state.Change(StateOriginating)
		o.runBursts()
		o.log.Info("burst loop stopped")
	}
}

// runBursts executes bursts on an absolute-time cadence: each re-entry is
// scheduled at the previous burst's start plus the period, so pacing sleeps
// inside a burst never drift the long-run cadence. Any burst error forces
// STOPPED; the engine halts admission rather than keep misbehaving.
func (o *Originator) runBursts() {
	for o.state.Is(StateOriginating) {
		prerun := time.Now()
		if err := o.burst(); err != nil {
			o.log.Error("exiting burst loop", "error", err)
			o.state.Change(StateStopped)
			return
		}
		if !o.state.Is(StateOriginating) {
			return
		}

		period := o.Period()
		o.log.Debug("next burst loop re-entry", "in", period)
		timer := time.NewTimer(time.Until(prerun.Add(period)))
		select {
		case <-o.exitCh:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// burst performs one admission-control decision and issues the resulting
// session-creation requests, paced to the effective rate. It terminates
// early if the state leaves ORIGINATING or the active count reaches the
// limit mid-burst.
func (o *Originator) burst() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("burst panic: %v", r)
		}
	}()

	active := o.pool.CountSessions()
	o.mu.RLock()
	limit, rate, ibp := o.limit, o.rate, o.ibp
	o.mu.RUnlock()

	admissible := limit - active
	// rounded up so a fractional rate below 1 still admits; the pacing
	// sleep keeps the realized rate honest
	if r := int(math.Ceil(rate)); r < admissible {
		admissible = r
	}
	o.log.Debug("burst admission", "active", active, "admissible", admissible)
	if admissible <= 0 {
		o.log.Debug("no admission headroom", "limit", limit, "active", active)
		AdmissionSkips.Inc()
		return nil
	}
	Bursts.Inc()

	issued := 0
	for i := 0; i < admissible; i++ {
		if !o.state.Is(StateOriginating) {
			break
		}
		if o.pool.CountSessions() >= limit {
			break
		}
		conn, ok := o.conns.Next()
		if !ok {
			o.log.Debug("every connection is at its local capacity")
			break
		}
		behaviorID, werr := o.weights.Next()
		if werr != nil {
			return fmt.Errorf("selecting behavior: %w", werr)
		}
		if oerr := conn.Originate(behaviorID, o.newID()); oerr != nil {
			return fmt.Errorf("originate on %s: %w", conn.ID(), oerr)
		}
		issued++

		// pacing limits the realized transmission rate; only a full
		// shutdown interrupts it, a stop lands at the next iteration check
		if ibp > 0 {
			timer := time.NewTimer(ibp)
			select {
			case <-o.exitCh:
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}

	if issued > 0 {
		o.log.Debug("requested new sessions", "count", issued)
	}
	return nil
}
