package pool

import (
	"fmt"
	"sync"
	"time"
)

// SimConfig tunes the embedded switch simulator.
type SimConfig struct {
	// MaxSessions is the connection-local capacity ceiling.
	MaxSessions int

	// SetupDelay is the simulated time between an originate request and the
	// session appearing (job completion follows immediately after).
	SetupDelay time.Duration

	// AnswerDelay is the simulated time between session creation and answer.
	AnswerDelay time.Duration

	// EchoDTMF makes the simulator loop transmitted digits back as inbound
	// DTMF events, so digit-verification behaviors can run self-contained.
	EchoDTMF bool
}

// DefaultSimConfig returns settings suitable for tests and local runs.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		MaxSessions: 1000,
		SetupDelay:  5 * time.Millisecond,
		AnswerDelay: 5 * time.Millisecond,
		EchoDTMF:    true,
	}
}

// SwitchSim is an in-process stand-in for a switch connection. It fakes the
// originate/answer/hangup lifecycle with configurable latency and emits the
// same event classes a live connection would, which lets the engine and its
// behaviors run end to end without a switch process.
type SwitchSim struct {
	id  string
	cfg SimConfig

	publish func(Event)

	mu       sync.Mutex
	alive    bool
	pending  int
	sessions map[string]*simSession
	commands []string
}

// NewSwitchSim creates a simulator connection with the given identifier.
func NewSwitchSim(id string, cfg SimConfig) *SwitchSim {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1
	}
	return &SwitchSim{
		id:       id,
		cfg:      cfg,
		sessions: make(map[string]*simSession),
	}
}

func (s *SwitchSim) ID() string { return s.id }

func (s *SwitchSim) Attach(publish func(Event)) {
	s.publish = publish
}

func (s *SwitchSim) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alive = true
	return nil
}

func (s *SwitchSim) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alive
}

func (s *SwitchSim) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SwitchSim) MaxSessions() int { return s.cfg.MaxSessions }

func (s *SwitchSim) PendingJobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Command records switch-level control commands. The simulator has no real
// ceilings to raise, so commands are kept only for inspection.
func (s *SwitchSim) Command(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, cmd)
	return nil
}

// Commands returns every control command received so far.
func (s *SwitchSim) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.commands))
	copy(out, s.commands)
	return out
}

// Originate starts the simulated setup sequence: after SetupDelay the
// session is created and the background job resolves; after AnswerDelay the
// session is answered.
func (s *SwitchSim) Originate(behaviorID, correlationID string) error {
	s.mu.Lock()
	if !s.alive {
		s.mu.Unlock()
		return fmt.Errorf("switch %s: originate before listener start", s.id)
	}
	s.pending++
	s.mu.Unlock()

	time.AfterFunc(s.cfg.SetupDelay, func() {
		sess := &simSession{
			sw:         s,
			id:         correlationID,
			behaviorID: behaviorID,
			createdAt:  time.Now(),
		}
		s.mu.Lock()
		if !s.alive {
			s.pending--
			s.mu.Unlock()
			return
		}
		s.sessions[sess.id] = sess
		s.pending--
		s.mu.Unlock()

		s.publish(Event{Type: EventSessionCreate, ConnID: s.id, Session: sess})
		s.publish(Event{Type: EventJobComplete, ConnID: s.id, Session: sess})

		time.AfterFunc(s.cfg.AnswerDelay, func() {
			s.mu.Lock()
			_, live := s.sessions[sess.id]
			s.mu.Unlock()
			if live {
				s.publish(Event{Type: EventSessionAnswer, ConnID: s.id, Session: sess})
			}
		})
	})
	return nil
}

// InjectSession plants a session the pool did not originate. Test and demo
// hook for the HangupEverything scope.
func (s *SwitchSim) InjectSession(id string) {
	sess := &simSession{
		sw:        s,
		id:        id,
		createdAt: time.Now(),
		foreign:   true,
	}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
}

func (s *SwitchSim) HangupAll(scope HangupScope) error {
	s.mu.Lock()
	var victims []*simSession
	for _, sess := range s.sessions {
		if scope == HangupOwned && sess.foreign {
			continue
		}
		victims = append(victims, sess)
	}
	s.mu.Unlock()

	for _, sess := range victims {
		sess.end()
	}
	return nil
}

func (s *SwitchSim) Close() error {
	if err := s.HangupAll(HangupEverything); err != nil {
		return err
	}
	s.mu.Lock()
	s.alive = false
	s.mu.Unlock()
	return nil
}

type simSession struct {
	sw         *SwitchSim
	id         string
	behaviorID string
	createdAt  time.Time
	foreign    bool

	mu          sync.Mutex
	ended       bool
	hangupTimer *time.Timer
}

func (ss *simSession) ID() string           { return ss.id }
func (ss *simSession) BehaviorID() string   { return ss.behaviorID }
func (ss *simSession) CreatedAt() time.Time { return ss.createdAt }

func (ss *simSession) SendDTMF(digits string, perDigit time.Duration) error {
	ss.mu.Lock()
	ended := ss.ended
	ss.mu.Unlock()
	if ended {
		return fmt.Errorf("session %s: dtmf on ended session", ss.id)
	}
	if !ss.sw.cfg.EchoDTMF {
		return nil
	}
	// digits loop straight back in order; perDigit pacing is not simulated
	for _, d := range digits {
		ss.sw.publish(Event{
			Type:    EventDTMF,
			ConnID:  ss.sw.id,
			Session: ss,
			Digit:   string(d),
		})
	}
	return nil
}

func (ss *simSession) ScheduleHangup(after time.Duration) {
	if after <= 0 {
		ss.end()
		return
	}
	ss.mu.Lock()
	if ss.ended {
		ss.mu.Unlock()
		return
	}
	if ss.hangupTimer != nil {
		ss.hangupTimer.Stop()
	}
	ss.hangupTimer = time.AfterFunc(after, ss.end)
	ss.mu.Unlock()
}

func (ss *simSession) Hangup() error {
	ss.end()
	return nil
}

// end removes the session from its switch and publishes the hangup event
// exactly once.
func (ss *simSession) end() {
	ss.mu.Lock()
	if ss.ended {
		ss.mu.Unlock()
		return
	}
	ss.ended = true
	if ss.hangupTimer != nil {
		ss.hangupTimer.Stop()
	}
	ss.mu.Unlock()

	ss.sw.mu.Lock()
	delete(ss.sw.sessions, ss.id)
	ss.sw.mu.Unlock()

	ss.sw.publish(Event{Type: EventSessionHangup, ConnID: ss.sw.id, Session: ss})
}
