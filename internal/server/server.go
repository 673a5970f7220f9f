// Package server implements the acceptor: it owns the signal table, the
// update queue, the subscriber registry/dispatcher (pubsub.Hub), and the
// TCP listener, and exposes the signal-set reset protocol.
//
// Grounded on internal/ws/server.go's Server type (constructor taking its
// collaborators, SetupRoutes wiring handlers) generalized from an
// http.Handler front end to a raw net.Listener accept loop, with the
// three-way accept-error policy and SetSignals posting discipline carried
// over from the reference C++ server's Server2/Server.cpp.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/signal-pubsub/server/internal/feed"
	"github.com/signal-pubsub/server/internal/metrics"
	"github.com/signal-pubsub/server/internal/pubsub"
	"github.com/signal-pubsub/server/internal/queue"
	"github.com/signal-pubsub/server/internal/signal"
	"github.com/signal-pubsub/server/internal/signaltable"
)

// Server owns the authoritative signal table, the update queue, the
// subscriber registry, and the accept loop that turns TCP connections into
// pubsub.Sessions.
type Server struct {
	table   *signaltable.Table
	queue   *queue.Queue
	hub     *pubsub.Hub
	metrics *metrics.Registry
	feed    *feed.Hub

	aliveInterval time.Duration

	listener net.Listener

	// conns tracks every accepted socket, independent of pubsub.Hub's
	// subscriber registry. The original C++ server relies on asio
	// destroying not-yet-subscribed sessions along with the io_context on
	// shutdown; Go has no equivalent destructor-driven socket lifecycle, so
	// Stop must close sockets that haven't registered a subscription yet
	// explicitly, or they'd leak past server shutdown.
	connsMu sync.Mutex
	conns   map[net.Conn]struct{}

	// setSignalsMu serializes SetSignals against itself and against the
	// accept loop's session bookkeeping, so the reset protocol never
	// interleaves with a new accept observing half-applied state.
	setSignalsMu sync.Mutex

	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup
}

// Option configures optional collaborators.
type Option func(*Server)

// WithMetrics attaches a metrics registry that observes admissions, drops,
// and opened/closed/active sessions. Frames written are not counted.
func WithMetrics(m *metrics.Registry) Option {
	return func(s *Server) { s.metrics = m }
}

// WithFeed attaches a feed.Hub that mirrors every admitted signal to
// non-TCP-protocol observers, such as the WebSocket relay. Optional: a
// Server with no feed attached simply skips the publish.
func WithFeed(f *feed.Hub) Option {
	return func(s *Server) { s.feed = f }
}

// WithAliveInterval overrides how often an idle session is sent an Alive
// keepalive frame. A non-positive value disables the keepalive sweep.
func WithAliveInterval(d time.Duration) Option {
	return func(s *Server) { s.aliveInterval = d }
}

// New constructs a Server with an empty signal table and a queue of the
// given capacity (<=0 means unbounded).
func New(queueCapacity int, opts ...Option) *Server {
	table := signaltable.New()
	q := queue.New(queueCapacity)
	s := &Server{
		table:         table,
		queue:         q,
		hub:           pubsub.NewHub(table, q),
		conns:         make(map[net.Conn]struct{}),
		stopped:       make(chan struct{}),
		aliveInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed installs the server's initial signal population before Start, for
// callers that don't need the forced-reconnect side effect of SetSignals
// (e.g. a fresh server with no subscribers yet).
func (s *Server) Seed(signals []signal.Signal) {
	s.table.Set(signals)
}

// Start binds addr and begins accepting connections and dispatching
// updates. It returns once the listener is bound; the accept loop and
// dispatcher run in background goroutines until Stop.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	s.listener = ln

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.hub.Run()
	}()
	go func() {
		defer s.wg.Done()
		s.hub.RunAliveTicker(s.stopped, s.aliveInterval)
	}()
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()

	log.Printf("server: listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound listener address. Only valid after Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopped:
				// Stop closed the listener; this is the cancellation path,
				// not a failure.
				return
			default:
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Printf("server: transient accept error: %v", err)
				continue
			}

			log.Printf("server: fatal accept error, no longer accepting: %v", err)
			return
		}

		s.setSignalsMu.Lock()
		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()

		sess := pubsub.NewSession(conn)
		if s.metrics != nil {
			s.metrics.SessionOpened()
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.Serve(s.hub)

			s.connsMu.Lock()
			delete(s.conns, conn)
			s.connsMu.Unlock()

			if s.metrics != nil {
				s.metrics.SessionClosed()
			}
		}()
		s.setSignalsMu.Unlock()
	}
}

// Stop idempotently shuts the server down: it stops accepting, wakes the
// dispatcher, force-closes every session, and waits for all background
// goroutines to exit.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		if s.listener != nil {
			s.listener.Close()
		}
		s.hub.ForceCloseAll()

		s.connsMu.Lock()
		conns := make([]net.Conn, 0, len(s.conns))
		for c := range s.conns {
			conns = append(conns, c)
		}
		s.connsMu.Unlock()
		for _, c := range conns {
			c.Close()
		}

		s.queue.Close()
		s.wg.Wait()
	})
}

// SetSignals is the signal-set reset protocol: force-close every live
// subscriber, then atomically replace the signal table. New connections and
// reconnecting clients observe the new table; in-flight clients get an I/O
// error and are responsible for reconnecting (see sigclient).
func (s *Server) SetSignals(signals []signal.Signal) {
	s.setSignalsMu.Lock()
	defer s.setSignalsMu.Unlock()

	s.hub.ForceCloseAll()
	s.table.Set(signals)
}

// PushSignal admits s into the signal table and, if admitted, enqueues it
// for fan-out. Safe to call from any goroutine, including external
// producers.
func (s *Server) PushSignal(sig signal.Signal) bool {
	admitted := s.table.PushSignal(sig)
	if !admitted {
		if s.metrics != nil {
			s.metrics.PushDropped()
		}
		return false
	}
	if s.metrics != nil {
		s.metrics.PushAdmitted()
	}
	s.queue.Push(sig)
	if s.feed != nil {
		s.feed.Publish(sig)
	}
	return true
}

// GetSignal returns the current stored value for id, if any.
func (s *Server) GetSignal(id uint32) (signal.Signal, bool) {
	return s.table.GetSignal(id)
}

// GetSnapshot returns every signal whose type passes filter.
func (s *Server) GetSnapshot(filter signal.Type) []signal.Signal {
	return s.table.GetSnapshot(filter)
}

// SubscriberCount reports the number of currently registered sessions, for
// metrics and tests.
func (s *Server) SubscriberCount() int {
	return s.hub.Count()
}

// Wait blocks until the context is cancelled, then stops the server. This
// mirrors cmd/signalserver's signal.Notify-driven shutdown.
func (s *Server) Wait(ctx context.Context) {
	<-ctx.Done()
	s.Stop()
}
