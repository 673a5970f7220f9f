package pubsub

import (
	"sync"
	"time"

	"github.com/signal-pubsub/server/internal/queue"
	"github.com/signal-pubsub/server/internal/signal"
)

// Snapshotter is the read side of the signal table a Hub needs: a point-in-
// time view filtered by subscription. Kept as a narrow interface so pubsub
// never depends on signaltable's mutation API.
type Snapshotter interface {
	GetSnapshot(filter signal.Type) []signal.Signal
}

// Hub is the subscriber registry and the single dispatcher that drains the
// update queue and fans each batch out to every live session.
//
// Grounded on internal/ws/broadcast.go's Broadcaster: a mutex-guarded
// client set, an AddClient that tracks the client before sending its
// initial snapshot, and a broadcast loop that copies the client list out
// from under the lock before calling into any client. Generalized here
// from an internal timer-driven flush to draining a shared, producer-fed
// queue.
type Hub struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}

	table Snapshotter
	queue *queue.Queue
}

// NewHub constructs a Hub that reads snapshots from table and drains q.
func NewHub(table Snapshotter, q *queue.Queue) *Hub {
	return &Hub{
		sessions: make(map[*Session]struct{}),
		table:    table,
		queue:    q,
	}
}

// register transitions a session from AWAIT_SUBSCRIBE to REGISTERED: it
// records the filter, adds the session to the registry, and then computes
// and enqueues the initial snapshot. Called from the session's own read
// loop. The registry add must happen before the snapshot read so that a
// PushSignal admission landing in between is never lost: it lands in the
// snapshot (table read after registration) if it beats the snapshot read,
// or in the fan-out (session already registered) otherwise.
func (h *Hub) register(s *Session, filter signal.Type) {
	s.setFilter(filter)

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()

	snapshot := h.table.GetSnapshot(filter)
	s.enqueueSnapshot(snapshot)
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}

// Count returns the number of registered sessions, for metrics.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// ForceCloseAll force-closes every registered session and clears the
// registry. Used by the signal-set reset protocol (SetSignals) to force
// every subscriber to reconnect.
func (h *Hub) ForceCloseAll() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[*Session]struct{})
	h.mu.Unlock()

	for _, s := range sessions {
		s.ForceClose()
	}
}

// Run is the dispatcher loop: wait for the queue to be non-empty, drain it
// into one batch, and fan that batch out to every live session. It returns
// when the queue is closed (server shutdown).
//
// Run never holds h.mu or the queue's internal lock while calling into a
// session; the session list is copied out under the lock and released
// before any DeliverUpdates call, matching the "no lock held across I/O"
// discipline.
func (h *Hub) Run() {
	for {
		batch, ok := h.queue.Drain()
		if !ok {
			return
		}
		h.fanout(batch)
	}
}

func (h *Hub) fanout(batch []signal.Signal) {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	var dead []*Session
	for _, s := range sessions {
		if s.IsClosed() {
			dead = append(dead, s)
			continue
		}
		s.DeliverUpdates(batch)
	}

	if len(dead) == 0 {
		return
	}
	h.mu.Lock()
	for _, s := range dead {
		delete(h.sessions, s)
	}
	h.mu.Unlock()
}

// RunAliveTicker periodically sends an Alive frame to any session that
// hasn't had a frame written to it in at least interval, so a quiet
// connection's liveness stays observable to the peer between real updates.
// It returns when stop is closed. Resolves the protocol's reserved
// time_last_send field into an actual keepalive mechanism.
func (h *Hub) RunAliveTicker(stop <-chan struct{}, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.sweepAlive(interval)
		}
	}
}

func (h *Hub) sweepAlive(idleAfter time.Duration) {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	cutoff := time.Now().Add(-idleAfter)
	for _, s := range sessions {
		if s.IsClosed() {
			continue
		}
		if last := s.LastSend(); last.IsZero() || last.Before(cutoff) {
			s.SendAlive()
		}
	}
}
