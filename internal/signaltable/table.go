// Package signaltable implements the server's authoritative in-memory
// signal table: an id-keyed map of the most recently admitted Signal for
// each id, mutated under a monotonic-timestamp admission rule.
//
// Grounded on internal/session/store.go's mutex-guarded map with
// copy-out-on-read semantics (Get/GetAll/Update), adapted from a session
// registry to the monotonic-timestamp "latest known" cache the protocol
// requires.
package signaltable

import (
	"sync"

	"github.com/signal-pubsub/server/internal/signal"
)

// Table is the authoritative id -> Signal map. The zero value is not usable;
// construct with New.
type Table struct {
	mu   sync.RWMutex
	data map[uint32]signal.Signal
}

// New returns an empty Table.
func New() *Table {
	return &Table{data: make(map[uint32]signal.Signal)}
}

// Set atomically replaces the entire table with signals. Any previously
// stored ids not present in signals are dropped. Callers that need the
// signal-set reset protocol's forced-reconnect side effect (closing every
// subscriber) do so at the server layer; Set itself only owns the table
// swap.
func (t *Table) Set(signals []signal.Signal) {
	data := make(map[uint32]signal.Signal, len(signals))
	for _, s := range signals {
		data[s.ID] = s
	}
	t.mu.Lock()
	t.data = data
	t.mu.Unlock()
}

// PushSignal admits s iff its Type is exactly one of the defined kinds and
// its Ts is >= the stored signal's Ts for s.ID, or unconditionally (modulo
// the Type check) if s.ID is not yet present. It returns whether s was
// admitted. A losing write is silently dropped; the caller must not enqueue
// it for fan-out.
func (t *Table) PushSignal(s signal.Signal) bool {
	if !s.Type.Valid() {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.data[s.ID]; ok && s.Ts < existing.Ts {
		return false
	}
	t.data[s.ID] = s
	return true
}

// GetSignal returns the stored signal for id, if any.
func (t *Table) GetSignal(id uint32) (signal.Signal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.data[id]
	return s, ok
}

// GetSnapshot returns every stored signal whose type bit is set in filter.
// Order is unspecified.
func (t *Table) GetSnapshot(filter signal.Type) []signal.Signal {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]signal.Signal, 0, len(t.data))
	for _, s := range t.data {
		if s.Type.Matches(filter) {
			out = append(out, s)
		}
	}
	return out
}

// Len returns the number of signals currently stored, for metrics/tests.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}
