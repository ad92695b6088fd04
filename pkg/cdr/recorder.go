package cdr

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/callstorm/callstorm/pkg/pool"
)

// Recorder tracks session lifecycles on a pool and writes one record per
// call when it ends. It subscribes itself to the pool's create, answer and
// hangup events; Attach must run before the pool's listeners start.
type Recorder struct {
	store *Store
	log   *slog.Logger

	mu   sync.Mutex
	open map[string]*Record
}

func NewRecorder(store *Store, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		store: store,
		log:   log,
		open:  make(map[string]*Record),
	}
}

// Attach subscribes the recorder to the pool's lifecycle events.
func (r *Recorder) Attach(p *pool.Pool) {
	p.Subscribe(pool.EventSessionCreate, r.onCreate)
	p.Subscribe(pool.EventSessionAnswer, r.onAnswer)
	p.Subscribe(pool.EventSessionHangup, r.onHangup)
}

func (r *Recorder) onCreate(ev pool.Event) {
	if ev.Session == nil {
		return
	}
	r.mu.Lock()
	r.open[ev.Session.ID()] = &Record{
		SessionID: ev.Session.ID(),
		ConnID:    ev.ConnID,
		Behavior:  ev.Session.BehaviorID(),
		CreatedAt: ev.Session.CreatedAt(),
	}
	r.mu.Unlock()
}

func (r *Recorder) onAnswer(ev pool.Event) {
	if ev.Session == nil {
		return
	}
	now := time.Now()
	r.mu.Lock()
	if rec, ok := r.open[ev.Session.ID()]; ok {
		rec.AnsweredAt = &now
	}
	r.mu.Unlock()
}

func (r *Recorder) onHangup(ev pool.Event) {
	if ev.Session == nil {
		return
	}
	r.mu.Lock()
	rec, ok := r.open[ev.Session.ID()]
	delete(r.open, ev.Session.ID())
	r.mu.Unlock()
	if !ok {
		// hangup for a session we never saw created (foreign session)
		return
	}
	rec.EndedAt = time.Now()

	if err := r.store.Insert(context.Background(), *rec); err != nil {
		r.log.Error("cdr write failed", "session", rec.SessionID, "error", err)
	}
}

// Open returns the number of calls currently in flight.
func (r *Recorder) Open() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}
