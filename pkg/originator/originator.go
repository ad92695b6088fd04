package originator

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/callstorm/callstorm/pkg/pool"
)

var (
	// ErrNoBehaviors is returned by Start when no call-handling behavior has
	// been loaded: without at least one, no admission can proceed.
	ErrNoBehaviors = errors.New("no behaviors loaded")

	// ErrShutdown is returned by Start after Shutdown; the worker is gone
	// and a new engine instance is required.
	ErrShutdown = errors.New("engine has been shut down")
)

const (
	// defaultMaxRate is the hard admission-pacing ceiling in sessions/sec.
	// Configured rates above it are stored as-is but clipped for pacing.
	defaultMaxRate = 250.0

	// defaultDurationOffset is the auto-duration floor: computed hold times
	// always exceed pure setup latency by at least this much.
	defaultDurationOffset = 5 * time.Second

	// pacingHeadroom reserves a fraction of the inter-burst period against
	// request-issuing latency so the realized rate stays under the target.
	pacingHeadroom = 0.9
)

// Settings carries the engine's load configuration.
type Settings struct {
	// Rate is the session offer rate in cps. Values above MaxRate are kept
	// but the effective pacing rate is silently clipped.
	Rate float64

	// Limit is the maximum number of simultaneous sessions kept in flight.
	Limit int

	// Duration is the session hold time; zero disables auto-hangup.
	Duration time.Duration

	// MaxOffered caps lifetime originated sessions; zero means unbounded.
	MaxOffered uint64

	// Period is the burst-loop re-entry interval.
	Period time.Duration

	// AutoDuration recomputes Duration as Limit/Rate + the duration offset
	// whenever Rate or Limit changes.
	AutoDuration bool

	// Debug raises the log level requested from the switches at start.
	Debug bool
}

// DefaultSettings mirrors the engine's historical defaults.
func DefaultSettings() Settings {
	return Settings{
		Rate:         30,
		Limit:        1,
		Duration:     0,
		MaxOffered:   0,
		Period:       time.Second,
		AutoDuration: true,
	}
}

// Status is a point-in-time, read-only view of the engine.
type Status struct {
	State           string          `json:"state"`
	ActiveSessions  int             `json:"active_sessions"`
	ActiveJobs      int             `json:"active_jobs"`
	TotalOriginated uint64          `json:"total_originated"`
	Rate            float64         `json:"rate"`
	EffectiveRate   float64         `json:"effective_rate"`
	Limit           int             `json:"limit"`
	DurationS       float64         `json:"duration_s"`
	MaxOffered      uint64          `json:"max_offered"`
	PeriodS         float64         `json:"period_s"`
	AutoDuration    bool            `json:"auto_duration"`
	Behaviors       map[string]uint `json:"behaviors"`
}

// Originator generates session traffic against a pool of switch connections
// under a rate ceiling and a concurrency ceiling. One background worker per
// instance runs the burst loop; lifecycle notifications from the pool feed
// counters and stop conditions back in asynchronously.
type Originator struct {
	pool      *pool.Pool
	log       *slog.Logger
	state     *stateMachine
	weights   *WeightedRoundRobin
	behaviors *registry
	conns     *pool.ConnCycle
	newID     func() string

	mu           sync.RWMutex
	rate         float64
	limit        int
	duration     time.Duration
	maxOffered   uint64
	period       time.Duration
	autoDuration bool
	ibp          time.Duration

	maxRate        float64
	durationOffset time.Duration
	debug          bool

	totalOriginated atomic.Uint64

	workerMu    sync.Mutex
	workerAlive bool
	startCh     chan struct{}
	exitCh      chan struct{}
	exitOnce    sync.Once
}

// New builds an engine over the pool and applies the given settings. Event
// subscriptions are installed here, before pool listeners start, because a
// live connection cannot change subscriptions.
func New(p *pool.Pool, log *slog.Logger, s Settings) *Originator {
	if log == nil {
		log = slog.Default()
	}
	o := &Originator{
		pool:           p,
		log:            log,
		state:          newStateMachine(log),
		weights:        NewWeightedRoundRobin(),
		behaviors:      newRegistry(),
		conns:          p.Cycle(),
		newID:          uuid.NewString,
		maxRate:        defaultMaxRate,
		durationOffset: defaultDurationOffset,
		debug:          s.Debug,
		startCh:        make(chan struct{}, 1),
		exitCh:         make(chan struct{}),
	}

	p.Subscribe(pool.EventSessionCreate, o.onSessionCreate)
	p.Subscribe(pool.EventJobComplete, o.onJobComplete)
	p.Subscribe(pool.EventSessionHangup, o.onSessionHangup)

	o.apply(s)
	return o
}

// apply installs settings in dependency order: the auto-duration invariant
// reads both limit and rate, and an explicit duration overrides it until the
// next rate or limit change.
func (o *Originator) apply(s Settings) {
	o.mu.Lock()
	o.autoDuration = s.AutoDuration
	o.maxOffered = s.MaxOffered
	if s.Period > 0 {
		o.period = s.Period
	} else {
		o.period = time.Second
	}
	o.mu.Unlock()

	o.SetLimit(s.Limit)
	o.SetRate(s.Rate)
	if s.Duration > 0 || !s.AutoDuration {
		o.SetDuration(s.Duration)
	}
}

// MaxRate is the hard ceiling on the effective pacing rate.
func (o *Originator) MaxRate() float64 { return o.maxRate }

// Rate returns the configured offer rate, which may exceed MaxRate.
func (o *Originator) Rate() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.rate
}

// EffectiveRate is the rate actually used for pacing: min(rate, maxRate).
func (o *Originator) EffectiveRate() float64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return min(o.rate, o.maxRate)
}

// SetRate stores the offer rate, recomputes the inter-burst pacing delay,
// fans the per-connection share out to rate-aware behaviors, and recomputes
// the hold time under auto-duration.
func (o *Originator) SetRate(v float64) {
	if v < 0 {
		v = 0
	}
	o.mu.Lock()
	o.rate = v
	o.ibp = interBurstPeriod(v, o.maxRate)
	recompute := o.autoDuration && o.limit > 0 && v > 0
	var dur time.Duration
	if recompute {
		dur = autoDuration(o.limit, v, o.durationOffset)
		o.duration = dur
	}
	o.mu.Unlock()

	ConfiguredRate.Set(v)
	perConn := v / float64(o.pool.Size())
	for _, b := range o.behaviors.all() {
		if ra, ok := b.(RateAware); ok {
			ra.OnRateChange(perConn)
		}
	}
	if recompute {
		o.fanoutDuration(dur)
	}
}

// Limit returns the concurrency ceiling.
func (o *Originator) Limit() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.limit
}

// SetLimit stores the concurrency ceiling, fans it out to limit-aware
// behaviors, and recomputes the hold time under auto-duration.
func (o *Originator) SetLimit(v int) {
	if v < 0 {
		v = 0
	}
	o.mu.Lock()
	o.limit = v
	recompute := o.autoDuration && o.rate > 0 && v > 0
	var dur time.Duration
	if recompute {
		dur = autoDuration(v, o.rate, o.durationOffset)
		o.duration = dur
	}
	o.mu.Unlock()

	ConfiguredLimit.Set(float64(v))
	for _, b := range o.behaviors.all() {
		if la, ok := b.(LimitAware); ok {
			la.OnLimitChange(v)
		}
	}
	if recompute {
		o.fanoutDuration(dur)
	}
}

// Duration returns the session hold time; zero means no auto-hangup.
func (o *Originator) Duration() time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.duration
}

// SetDuration stores the hold time and fans it out to duration-aware
// behaviors. The value sticks until the next rate or limit change under
// auto-duration.
func (o *Originator) SetDuration(d time.Duration) {
	if d < 0 {
		d = 0
	}
	o.mu.Lock()
	o.duration = d
	o.mu.Unlock()
	o.fanoutDuration(d)
}

func (o *Originator) fanoutDuration(d time.Duration) {
	for _, b := range o.behaviors.all() {
		if da, ok := b.(DurationAware); ok {
			da.OnDurationChange(d)
		}
	}
}

// AutoDuration reports whether the hold time tracks limit/rate plus the
// fixed offset.
func (o *Originator) AutoDuration() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.autoDuration
}

// SetAutoDuration toggles automatic hold-time tracking. Turning it on
// recomputes the duration from the current limit and rate immediately.
func (o *Originator) SetAutoDuration(on bool) {
	o.mu.Lock()
	o.autoDuration = on
	recompute := on && o.limit > 0 && o.rate > 0
	var dur time.Duration
	if recompute {
		dur = autoDuration(o.limit, o.rate, o.durationOffset)
		o.duration = dur
	}
	o.mu.Unlock()
	if recompute {
		o.fanoutDuration(dur)
	}
}

// MaxOffered returns the lifetime session quota; zero means unbounded.
func (o *Originator) MaxOffered() uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.maxOffered
}

// SetMaxOffered updates the lifetime session quota.
func (o *Originator) SetMaxOffered(n uint64) {
	o.mu.Lock()
	o.maxOffered = n
	o.mu.Unlock()
}

// Period returns the burst-loop re-entry interval.
func (o *Originator) Period() time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.period
}

// SetPeriod updates the burst-loop re-entry interval.
func (o *Originator) SetPeriod(d time.Duration) {
	if d <= 0 {
		return
	}
	o.mu.Lock()
	o.period = d
	o.mu.Unlock()
}

// TotalOriginated is the monotonic count of sessions created so far.
func (o *Originator) TotalOriginated() uint64 {
	return o.totalOriginated.Load()
}

// State returns the current run state.
func (o *Originator) State() RunState {
	return o.state.Current()
}

// LoadBehavior registers a behavior with the given weight and installs its
// event subscriptions. Behaviors persist for the engine's lifetime.
func (o *Originator) LoadBehavior(b Behavior, weight uint) error {
	if err := o.behaviors.add(b); err != nil {
		return err
	}
	b.Register(o.pool)
	o.weights.Set(b.Name(), weight)
	o.log.Info("behavior loaded", "behavior", b.Name(), "weight", weight)
	return nil
}

// SetWeight updates a loaded behavior's weight; the change is observable
// within one round-robin cycle.
func (o *Originator) SetWeight(name string, weight uint) {
	o.weights.Set(name, weight)
}

// Status returns a point-in-time snapshot for external observers.
func (o *Originator) Status() Status {
	o.mu.RLock()
	rate, limit, dur := o.rate, o.limit, o.duration
	maxOffered, period, auto := o.maxOffered, o.period, o.autoDuration
	o.mu.RUnlock()
	return Status{
		State:           o.state.Current().String(),
		ActiveSessions:  o.pool.CountSessions(),
		ActiveJobs:      o.pool.CountJobs(),
		TotalOriginated: o.totalOriginated.Load(),
		Rate:            rate,
		EffectiveRate:   min(rate, o.maxRate),
		Limit:           limit,
		DurationS:       dur.Seconds(),
		MaxOffered:      maxOffered,
		PeriodS:         period.Seconds(),
		AutoDuration:    auto,
		Behaviors:       o.weights.Weights(),
	}
}

// Start arms the burst loop. It activates pool listeners if none are live
// (listener startup is deferred to here so behaviors can still be loaded
// just prior), ensures exactly one worker goroutine exists, and signals it
// past its wait barrier. A start while already originating is a no-op.
// Start returns immediately; it never blocks on session completion.
func (o *Originator) Start() error {
	select {
	case <-o.exitCh:
		return ErrShutdown
	default:
	}
	if o.behaviors.len() == 0 {
		return fmt.Errorf("start: %w", ErrNoBehaviors)
	}

	if !o.pool.Listening() {
		o.setup()
		if err := o.pool.StartListeners(); err != nil {
			return fmt.Errorf("starting pool listeners: %w", err)
		}
	}

	o.workerMu.Lock()
	if !o.workerAlive {
		o.workerAlive = true
		o.log.Debug("starting burst loop worker")
		go o.serveForever()
	}
	o.workerMu.Unlock()

	// a start while the loop is already running is dropped, not queued: a
	// buffered token would re-arm the loop after a later quota stop and
	// admit sessions past maxOffered
	if o.state.Is(StateOriginating) {
		return nil
	}

	// the channel is buffered so the signal is not lost if the worker has
	// not reached its wait barrier yet
	select {
	case o.startCh <- struct{}{}:
	default:
	}
	return nil
}

// Alive reports whether the burst loop worker is up.
func (o *Originator) Alive() bool {
	o.workerMu.Lock()
	defer o.workerMu.Unlock()
	return o.workerAlive
}

// Stop halts admission. Sessions already active are left to run and will
// auto-hangup per the configured duration. Idempotent.
func (o *Originator) Stop() {
	if !o.state.Is(StateStopped) {
		o.log.Info("stopping session origination loop")
		o.state.Change(StateStopped)
		return
	}
	o.log.Info("nothing to stop", "state", o.state.Current().String())
}

// HupAll stops admission and requests termination of every session this
// engine originated across the pool.
func (o *Originator) HupAll() error {
	o.log.Warn("hanging up all originated sessions")
	o.state.Change(StateStopped)
	return o.pool.HangupAll(pool.HangupOwned)
}

// HardHupAll unconditionally terminates every session on every connection,
// including ones this engine did not originate. Escape hatch.
func (o *Originator) HardHupAll() error {
	o.log.Warn("hard hangup of all sessions on all connections")
	return o.pool.HangupAll(pool.HangupEverything)
}

// Shutdown hangs up any remaining sessions and signals the worker to exit
// its outer wait loop. The engine is not restartable afterwards.
func (o *Originator) Shutdown() error {
	var err error
	if o.pool.CountSessions() > 0 {
		err = o.HupAll()
	}
	o.exitOnce.Do(func() { close(o.exitCh) })
	o.state.Change(StateStopped)
	return err
}

// setup applies load-test prerequisites on the switches: raise the
// server-side throughput ceilings so they do not mask the engine's own
// limits, and pin the remote log level.
func (o *Originator) setup() {
	level := "warning"
	if o.debug {
		o.log.Info("setting debug logging on switches")
		level = "debug"
	}
	cmds := []string{
		"fsctl sps 10000",
		"fsctl max_sessions 10000",
		"fsctl verbose_events true",
		"fsctl loglevel " + level,
		"console loglevel " + level,
	}
	for _, cmd := range cmds {
		cmd := cmd
		if err := o.pool.Broadcast(func(c pool.Connection) error {
			return c.Command(cmd)
		}); err != nil {
			o.log.Warn("switch setup command failed", "cmd", cmd, "error", err)
		}
	}
}

// onSessionCreate counts the new session and enforces the lifetime quota.
func (o *Originator) onSessionCreate(ev pool.Event) {
	total := o.totalOriginated.Add(1)
	SessionsOriginated.Inc()
	ActiveSessions.Set(float64(o.pool.CountSessions()))

	o.mu.RLock()
	maxOffered := o.maxOffered
	o.mu.RUnlock()
	if maxOffered > 0 && total >= maxOffered {
		o.state.Change(StateStopped)
		o.log.Info("lifetime session quota reached, exiting run loop",
			"total_originated", total, "max_offered", maxOffered)
	}
}

// onJobComplete schedules the session's auto-hangup and re-checks the stop
// condition.
func (o *Originator) onJobComplete(ev pool.Event) {
	o.mu.RLock()
	dur := o.duration
	o.mu.RUnlock()
	if dur > 0 && ev.Session != nil {
		remaining := dur - time.Since(ev.Session.CreatedAt())
		o.log.Debug("scheduling auto hangup",
			"session", ev.Session.ID(), "in", remaining)
		ev.Session.ScheduleHangup(remaining)
	}
	o.stopOnNone()
}

func (o *Originator) onSessionHangup(ev pool.Event) {
	ActiveSessions.Set(float64(o.pool.CountSessions()))
	o.stopOnNone()
}

// stopOnNone transitions to STOPPED once no jobs and no sessions remain.
func (o *Originator) stopOnNone() {
	if o.pool.CountJobs() == 0 && o.pool.CountSessions() == 0 {
		o.log.Info("all sessions have ended")
		o.state.Change(StateStopped)
	}
}

// interBurstPeriod derives the pacing delay between successive originates:
// one second over the effective rate, shaved by the pacing headroom.
func interBurstPeriod(rate, maxRate float64) time.Duration {
	effective := min(rate, maxRate)
	if effective <= 0 {
		return 0
	}
	return time.Duration(1 / effective * pacingHeadroom * float64(time.Second))
}

// autoDuration computes the hold time that keeps `limit` sessions in flight
// at `rate` cps, floored by the duration offset.
func autoDuration(limit int, rate float64, offset time.Duration) time.Duration {
	return time.Duration(float64(limit)/rate*float64(time.Second)) + offset
}
