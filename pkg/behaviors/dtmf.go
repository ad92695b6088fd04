package behaviors

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/callstorm/callstorm/pkg/pool"
)

// dtmfSequence is the full keypad walked on every answered session.
var dtmfSequence = []string{
	"1", "2", "3", "4", "5", "6", "7", "8", "9",
	"0", "*", "#", "A", "B", "C", "D",
}

const defaultToneDuration = 200 * time.Millisecond

// DtmfChecker transmits the full DTMF keypad on answer and verifies the
// digits echoed back arrive complete and in order. Sessions that hang up
// mid-sequence count as incomplete; out-of-order or unexpected digits
// mark the session failed.
type DtmfChecker struct {
	log          *slog.Logger
	ToneDuration time.Duration

	mu       sync.Mutex
	pending  map[string][]string // session id -> digits still expected
	failed   map[string]string   // session id -> first mismatch
	verified uint64
}

func NewDtmfChecker(log *slog.Logger) *DtmfChecker {
	if log == nil {
		log = slog.Default()
	}
	return &DtmfChecker{
		log:          log,
		ToneDuration: defaultToneDuration,
		pending:      make(map[string][]string),
		failed:       make(map[string]string),
	}
}

func (c *DtmfChecker) Name() string { return "dtmf" }

func (c *DtmfChecker) Register(p *pool.Pool) {
	p.Subscribe(pool.EventSessionAnswer, c.onAnswer)
	p.Subscribe(pool.EventDTMF, c.onDigit)
	p.Subscribe(pool.EventSessionHangup, c.onHangup)
}

// SequenceTime is how long one full keypad pass takes to send.
func (c *DtmfChecker) SequenceTime() time.Duration {
	return time.Duration(len(dtmfSequence)) * c.ToneDuration
}

func (c *DtmfChecker) onAnswer(ev pool.Event) {
	if ev.Session == nil || ev.Session.BehaviorID() != c.Name() {
		return
	}
	id := ev.Session.ID()
	c.mu.Lock()
	c.pending[id] = append([]string(nil), dtmfSequence...)
	c.mu.Unlock()
	// SendDTMF may echo digits synchronously, so the lock is released first.
	if err := ev.Session.SendDTMF(strings.Join(dtmfSequence, ""), c.ToneDuration); err != nil {
		c.log.Warn("dtmf send failed", "session", id, "error", err)
	}
}

func (c *DtmfChecker) onDigit(ev pool.Event) {
	if ev.Session == nil || ev.Session.BehaviorID() != c.Name() {
		return
	}
	id := ev.Session.ID()

	c.mu.Lock()
	defer c.mu.Unlock()

	rem, ok := c.pending[id]
	if !ok {
		if _, done := c.failed[id]; !done {
			c.failed[id] = "unexpected digit " + ev.Digit
		}
		return
	}
	if rem[0] != ev.Digit {
		c.failed[id] = "expected " + rem[0] + ", got " + ev.Digit
		delete(c.pending, id)
		c.log.Warn("dtmf mismatch", "session", id, "detail", c.failed[id])
		return
	}
	rem = rem[1:]
	if len(rem) == 0 {
		delete(c.pending, id)
		c.verified++
		return
	}
	c.pending[id] = rem
}

func (c *DtmfChecker) onHangup(ev pool.Event) {
	if ev.Session == nil || ev.Session.BehaviorID() != c.Name() {
		return
	}
	id := ev.Session.ID()
	c.mu.Lock()
	defer c.mu.Unlock()
	if rem, ok := c.pending[id]; ok {
		delete(c.pending, id)
		c.failed[id] = "hung up with " + strings.Join(rem, "") + " outstanding"
	}
}

// Verified returns how many sessions echoed the full keypad correctly.
func (c *DtmfChecker) Verified() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verified
}

// Pending returns how many answered sessions are still mid-sequence.
func (c *DtmfChecker) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Failures returns a copy of the failed-session map.
func (c *DtmfChecker) Failures() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.failed))
	for k, v := range c.failed {
		out[k] = v
	}
	return out
}
