package ledger

import (
	"context"
	"sync"
)

// Tracker remembers recently confirmed transfers by instruction nonce.
// The engine and gateway consult it when a submit attempt timed out before
// returning a txRef: a tracked nonce means the instruction was applied and
// must not be resubmitted.
type Tracker struct {
	mu       sync.RWMutex
	byNonce  map[string]Confirmation
	order    []string // eviction order, oldest first
	capacity int
}

// NewTracker creates a tracker retaining up to capacity confirmations.
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = 4096
	}
	return &Tracker{
		byNonce:  make(map[string]Confirmation),
		capacity: capacity,
	}
}

// Run consumes a confirmation feed until the context is cancelled or the
// channel closes.
func (t *Tracker) Run(ctx context.Context, ch <-chan Confirmation) {
	for {
		select {
		case <-ctx.Done():
			return
		case conf, ok := <-ch:
			if !ok {
				return
			}
			t.Record(conf)
		}
	}
}

// Record stores one confirmation, evicting the oldest past capacity.
func (t *Tracker) Record(conf Confirmation) {
	if conf.Nonce == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.byNonce[conf.Nonce]; !exists {
		t.order = append(t.order, conf.Nonce)
	}
	t.byNonce[conf.Nonce] = conf

	for len(t.order) > t.capacity {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.byNonce, oldest)
	}
}

// Lookup returns the confirmation for a nonce, if seen.
func (t *Tracker) Lookup(nonce string) (Confirmation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conf, ok := t.byNonce[nonce]
	return conf, ok
}
