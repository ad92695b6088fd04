package originator

import (
	"errors"
	"sync"
)

// ErrNoEntries is returned when iteration is requested on an empty weight
// set, or when every loaded weight is zero.
var ErrNoEntries = errors.New("weighted iterator has no entries")

// WeightedRoundRobin produces an endless, order-stable sequence of
// identifiers in which each identifier appears proportionally to its weight
// within one cycle, interleaved rather than clustered. Weights are mutable
// at runtime: an edit re-derives the working countdown, so it takes effect
// at the next cycle reset at the latest.
type WeightedRoundRobin struct {
	mu        sync.Mutex
	keys      []string
	weights   map[string]uint
	remaining map[string]uint
	cursor    int
}

func NewWeightedRoundRobin() *WeightedRoundRobin {
	return &WeightedRoundRobin{
		weights:   make(map[string]uint),
		remaining: make(map[string]uint),
	}
}

// Set assigns a weight to an identifier and resets the cycle.
func (w *WeightedRoundRobin) Set(id string, weight uint) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.weights[id]; !ok {
		w.keys = append(w.keys, id)
	}
	w.weights[id] = weight
	w.refill()
}

// Weight returns the configured weight for an identifier.
func (w *WeightedRoundRobin) Weight(id string) uint {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.weights[id]
}

// Len is the number of loaded identifiers.
func (w *WeightedRoundRobin) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.keys)
}

// Weights returns a copy of the current weight map.
func (w *WeightedRoundRobin) Weights() map[string]uint {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]uint, len(w.weights))
	for k, v := range w.weights {
		out[k] = v
	}
	return out
}

// refill copies the live weights into the working countdown. Caller holds
// the lock.
func (w *WeightedRoundRobin) refill() {
	for k, v := range w.weights {
		w.remaining[k] = v
	}
}

func (w *WeightedRoundRobin) exhausted() bool {
	for _, v := range w.remaining {
		if v > 0 {
			return false
		}
	}
	return true
}

// Next emits the next identifier in weighted interleaved order. It fails if
// no identifiers are loaded or every weight is zero.
func (w *WeightedRoundRobin) Next() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.keys) == 0 {
		return "", ErrNoEntries
	}
	if w.exhausted() {
		w.refill()
	}
	for i := 0; i < len(w.keys); i++ {
		k := w.keys[w.cursor%len(w.keys)]
		w.cursor++
		if w.remaining[k] > 0 {
			w.remaining[k]--
			return k, nil
		}
	}
	// a full scan after a refill emitted nothing: all weights are zero
	return "", ErrNoEntries
}
