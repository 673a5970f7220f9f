// Package pubsub implements the per-connection session state machine and
// the dispatcher that fans admitted updates out to every live subscriber.
//
// Grounded on internal/ws/broadcast.go's client/writePump pattern: a
// per-connection goroutine owns a buffered outbound channel, a dedicated
// writer goroutine drains it in order, and a slow consumer is disconnected
// rather than allowed to stall the fanout. That pattern is generalized here
// from pre-marshaled WebSocket text frames broadcast to every client, to
// filtered binary frames delivered per-subscription.
package pubsub

import (
	"bytes"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signal-pubsub/server/internal/signal"
	"github.com/signal-pubsub/server/internal/wire"
)

// defaultSendBuffer bounds the number of outbound frames a session will
// queue before it is judged too slow and force-closed.
const defaultSendBuffer = 64

// Session is a single subscriber connection: the read side drives the
// AWAIT_SUBSCRIBE -> REGISTERED state transition, the write side is a
// dedicated goroutine that serializes every outbound frame so that at most
// one write is ever outstanding on the socket.
type Session struct {
	conn   net.Conn
	remote string

	send   chan []byte
	closed chan struct{}
	once   sync.Once

	filter       atomic.Uint32
	readCount    int // owned by the single reader goroutine, no lock needed
	lastSendNano atomic.Int64
}

// NewSession wraps conn in a Session. The caller must invoke Serve to drive
// the read loop and the write pump.
func NewSession(conn net.Conn) *Session {
	return &Session{
		conn:   conn,
		remote: conn.RemoteAddr().String(),
		send:   make(chan []byte, defaultSendBuffer),
		closed: make(chan struct{}),
	}
}

// RemoteAddr identifies the session for logging.
func (s *Session) RemoteAddr() string { return s.remote }

// Filter returns the subscribed type filter. Zero before registration.
func (s *Session) Filter() signal.Type { return signal.Type(s.filter.Load()) }

func (s *Session) setFilter(f signal.Type) { s.filter.Store(uint32(f)) }

// LastSend returns the time of the most recent successful frame write, or
// the zero time if none. Hub.RunAliveTicker's idle sweep reads it to decide
// which sessions get an Alive frame.
func (s *Session) LastSend() time.Time {
	ns := s.lastSendNano.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// IsClosed reports whether the session has been force-closed, for the
// dispatcher's registry pruning sweep.
func (s *Session) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// ForceClose is the one-shot close latch: the first caller shuts down the
// socket and wakes the write pump; subsequent callers are no-ops.
func (s *Session) ForceClose() {
	s.once.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}

// DeliverUpdates is called by the dispatcher with one admitted-update batch.
// It filters the batch by the session's subscription, and if anything
// survives, serializes the survivors into a single Data frame and enqueues
// it for the write pump. Non-blocking: a session that can't keep up is
// force-closed rather than stalling the fanout.
func (s *Session) DeliverUpdates(batch []signal.Signal) {
	filter := s.Filter()
	var filtered []signal.Signal
	for _, sig := range batch {
		if sig.Type.Matches(filter) {
			filtered = append(filtered, sig)
		}
	}
	if len(filtered) == 0 {
		return
	}
	s.enqueueFrame(wire.Data, wire.EncodeData(filtered))
}

// SendAlive enqueues an empty Alive frame, used by the dispatcher's idle
// sweep to keep a quiet connection's liveness observable to the peer without
// waiting for the next real update.
func (s *Session) SendAlive() {
	s.enqueueFrame(wire.Alive, nil)
}

// enqueueSnapshot sends the initial snapshot frame computed at registration
// time, even when it carries zero records (an empty signal table is still a
// valid, fully-delivered snapshot).
func (s *Session) enqueueSnapshot(signals []signal.Signal) {
	s.enqueueFrame(wire.Data, wire.EncodeData(signals))
}

func (s *Session) enqueueFrame(dataType wire.DataType, payload []byte) {
	var buf bytes.Buffer
	if err := wire.WriteFrame(&buf, dataType, payload); err != nil {
		// Only fails on a Write to an in-memory buffer, which cannot happen.
		log.Printf("pubsub: session %s: encode frame: %v", s.remote, err)
		return
	}
	select {
	case s.send <- buf.Bytes():
	default:
		log.Printf("pubsub: session %s can't keep up, disconnecting", s.remote)
		s.ForceClose()
	}
}

// Serve drives the session to completion: it starts the write pump, then
// reads headers in a loop until the peer disconnects, a protocol violation
// occurs, or the session is force-closed. It returns once the connection is
// fully torn down.
func (s *Session) Serve(hub *Hub) {
	defer func() {
		s.ForceClose()
		hub.remove(s)
	}()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		s.writePump()
	}()

	s.readLoop(hub)
	// The read side has ended (peer EOF, protocol violation, or a closed
	// socket): close the session so the write pump exits as well.
	s.ForceClose()

	<-writeDone
}

func (s *Session) readLoop(hub *Hub) {
	for {
		hdr, err := wire.ReadHeader(s.conn)
		if err != nil {
			logReadError(s.remote, "header", err)
			return
		}
		body, err := wire.ReadBody(s.conn, hdr.Length)
		if err != nil {
			logReadError(s.remote, "body", err)
			return
		}

		s.readCount++
		if s.readCount > 1 {
			log.Printf("pubsub: session %s sent a second request, closing", s.remote)
			return
		}
		if hdr.DataType != wire.Subscribe {
			log.Printf("pubsub: session %s: expected subscribe, got %v, closing", s.remote, hdr.DataType)
			return
		}
		filter, err := wire.DecodeSubscribe(body)
		if err != nil {
			log.Printf("pubsub: session %s: %v", s.remote, err)
			return
		}

		hub.register(s, filter)
	}
}

func (s *Session) writePump() {
	for {
		select {
		case frame := <-s.send:
			if err := s.writeFrame(frame); err != nil {
				s.ForceClose()
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *Session) writeFrame(frame []byte) error {
	if _, err := s.conn.Write(frame); err != nil {
		return err
	}
	s.lastSendNano.Store(time.Now().UnixNano())
	return nil
}

// logReadError logs a session read failure, except for the cancellation
// cases (peer EOF, or our own ForceClose/Stop tearing the socket down)
// which are the normal end of a session's life and not worth a log line.
func logReadError(remote, stage string, err error) {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return
	}
	var perr *wire.ProtocolError
	if errors.As(err, &perr) {
		log.Printf("pubsub: session %s: protocol violation: %v", remote, err)
		return
	}
	log.Printf("pubsub: session %s: read %s: %v", remote, stage, err)
}
