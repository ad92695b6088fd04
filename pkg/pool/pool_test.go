package pool

import (
	"sync"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func newTestPool(t *testing.T, n int, cfg SimConfig) (*Pool, []*SwitchSim) {
	t.Helper()
	sims := make([]*SwitchSim, n)
	conns := make([]Connection, n)
	for i := range sims {
		sims[i] = NewSwitchSim(string(rune('a'+i)), cfg)
		conns[i] = sims[i]
	}
	p, err := New(conns...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, sims
}

func TestNewRequiresConnections(t *testing.T) {
	if _, err := New(); err != ErrNoConnections {
		t.Fatalf("expected ErrNoConnections, got %v", err)
	}
}

func TestOriginateLifecycleEvents(t *testing.T) {
	p, _ := newTestPool(t, 1, SimConfig{MaxSessions: 10, SetupDelay: time.Millisecond, AnswerDelay: time.Millisecond, EchoDTMF: true})

	var mu sync.Mutex
	var order []EventType
	for _, et := range []EventType{EventSessionCreate, EventJobComplete, EventSessionAnswer, EventSessionHangup} {
		et := et
		p.Subscribe(et, func(ev Event) {
			mu.Lock()
			order = append(order, ev.Type)
			mu.Unlock()
		})
	}

	if err := p.StartListeners(); err != nil {
		t.Fatalf("StartListeners failed: %v", err)
	}
	if err := p.Connections()[0].Originate("park", "sess-1"); err != nil {
		t.Fatalf("Originate failed: %v", err)
	}

	waitFor(t, time.Second, func() bool { return p.CountSessions() == 1 })
	if got := p.CountJobs(); got != 0 {
		t.Fatalf("expected 0 pending jobs after setup, got %d", got)
	}

	if err := p.HangupAll(HangupOwned); err != nil {
		t.Fatalf("HangupAll failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return p.CountSessions() == 0 })

	mu.Lock()
	defer mu.Unlock()
	if len(order) < 3 {
		t.Fatalf("expected at least create/job/hangup events, got %v", order)
	}
	if order[0] != EventSessionCreate || order[1] != EventJobComplete {
		t.Fatalf("unexpected event order: %v", order)
	}
	if order[len(order)-1] != EventSessionHangup {
		t.Fatalf("expected hangup last, got %v", order)
	}
}

func TestOriginateBeforeStartFails(t *testing.T) {
	p, _ := newTestPool(t, 1, DefaultSimConfig())
	if err := p.Connections()[0].Originate("park", "sess-1"); err == nil {
		t.Fatal("expected error originating before listener start")
	}
}

func TestCycleSkipsConnectionsAtCapacity(t *testing.T) {
	cfg := SimConfig{MaxSessions: 1, SetupDelay: time.Millisecond, AnswerDelay: time.Millisecond}
	p, sims := newTestPool(t, 2, cfg)
	if err := p.StartListeners(); err != nil {
		t.Fatalf("StartListeners failed: %v", err)
	}

	// saturate the first connection
	sims[0].InjectSession("foreign-1")

	cy := p.Cycle()
	for i := 0; i < 4; i++ {
		c, ok := cy.Next()
		if !ok {
			t.Fatalf("cycle reported exhaustion with an eligible connection left")
		}
		if c.ID() != sims[1].ID() {
			t.Fatalf("cycle returned saturated connection %s", c.ID())
		}
	}

	// saturate the second too: a full scan must report exhaustion
	sims[1].InjectSession("foreign-2")
	if _, ok := cy.Next(); ok {
		t.Fatal("cycle should report exhaustion when all connections are at capacity")
	}
}

func TestHangupScopes(t *testing.T) {
	cfg := SimConfig{MaxSessions: 10, SetupDelay: time.Millisecond, AnswerDelay: time.Millisecond}
	p, sims := newTestPool(t, 1, cfg)
	if err := p.StartListeners(); err != nil {
		t.Fatalf("StartListeners failed: %v", err)
	}

	sims[0].InjectSession("foreign-1")
	if err := p.Connections()[0].Originate("park", "owned-1"); err != nil {
		t.Fatalf("Originate failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return p.CountSessions() == 2 })

	if err := p.HangupAll(HangupOwned); err != nil {
		t.Fatalf("HangupAll(owned) failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return p.CountSessions() == 1 })

	if err := p.HangupAll(HangupEverything); err != nil {
		t.Fatalf("HangupAll(everything) failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return p.CountSessions() == 0 })
}

func TestScheduleHangup(t *testing.T) {
	cfg := SimConfig{MaxSessions: 10, SetupDelay: time.Millisecond, AnswerDelay: time.Millisecond}
	p, _ := newTestPool(t, 1, cfg)
	if err := p.StartListeners(); err != nil {
		t.Fatalf("StartListeners failed: %v", err)
	}

	var mu sync.Mutex
	var created Session
	p.Subscribe(EventSessionCreate, func(ev Event) {
		mu.Lock()
		created = ev.Session
		mu.Unlock()
	})

	if err := p.Connections()[0].Originate("park", "sess-1"); err != nil {
		t.Fatalf("Originate failed: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return created != nil
	})

	created.ScheduleHangup(10 * time.Millisecond)
	waitFor(t, time.Second, func() bool { return p.CountSessions() == 0 })
}

func TestDTMFEcho(t *testing.T) {
	cfg := SimConfig{MaxSessions: 10, SetupDelay: time.Millisecond, AnswerDelay: time.Millisecond, EchoDTMF: true}
	p, _ := newTestPool(t, 1, cfg)

	var mu sync.Mutex
	var digits []string
	var answered Session
	p.Subscribe(EventDTMF, func(ev Event) {
		mu.Lock()
		digits = append(digits, ev.Digit)
		mu.Unlock()
	})
	p.Subscribe(EventSessionAnswer, func(ev Event) {
		mu.Lock()
		answered = ev.Session
		mu.Unlock()
	})

	if err := p.StartListeners(); err != nil {
		t.Fatalf("StartListeners failed: %v", err)
	}
	if err := p.Connections()[0].Originate("dtmf", "sess-1"); err != nil {
		t.Fatalf("Originate failed: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return answered != nil
	})

	if err := answered.SendDTMF("123", 20*time.Millisecond); err != nil {
		t.Fatalf("SendDTMF failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(digits) != 3 || digits[0] != "1" || digits[1] != "2" || digits[2] != "3" {
		t.Fatalf("unexpected echoed digits: %v", digits)
	}
}
