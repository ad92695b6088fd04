package behaviors

import (
	"log/slog"
	"sync"
	"time"

	"github.com/callstorm/callstorm/pkg/pool"
)

// Conversation simulates two-party talk time. It opts into the rate and
// duration capability hooks: the engine pushes its per-connection rate
// share and the (possibly auto-computed) hold time down, and the behavior
// derives its own pacing from them.
type Conversation struct {
	log *slog.Logger

	mu          sync.Mutex
	talkTime    time.Duration
	perConnRate float64
	answered    uint64
}

func NewConversation(log *slog.Logger) *Conversation {
	if log == nil {
		log = slog.Default()
	}
	return &Conversation{log: log}
}

func (c *Conversation) Name() string { return "conversation" }

func (c *Conversation) Register(p *pool.Pool) {
	p.Subscribe(pool.EventSessionAnswer, c.onAnswer)
}

func (c *Conversation) onAnswer(ev pool.Event) {
	if ev.Session == nil || ev.Session.BehaviorID() != c.Name() {
		return
	}
	c.mu.Lock()
	c.answered++
	talk := c.talkTime
	c.mu.Unlock()
	c.log.Debug("conversation answered", "session", ev.Session.ID(), "talk_time", talk)
}

// OnDurationChange adopts the engine hold time as the talk time.
func (c *Conversation) OnDurationChange(d time.Duration) {
	c.mu.Lock()
	c.talkTime = d
	c.mu.Unlock()
}

// OnRateChange records the per-connection share of the engine rate.
func (c *Conversation) OnRateChange(r float64) {
	c.mu.Lock()
	c.perConnRate = r
	c.mu.Unlock()
}

// TalkTime returns the current simulated talk time.
func (c *Conversation) TalkTime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.talkTime
}

// PerConnRate returns the last pushed per-connection rate share.
func (c *Conversation) PerConnRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.perConnRate
}

// Answered returns how many of this behavior's sessions reached answer.
func (c *Conversation) Answered() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.answered
}
