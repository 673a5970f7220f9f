// Package relay exposes the live signal stream over WebSocket/JSON, for
// browser and scripting clients that don't want to speak the binary wire
// protocol. It sits beside the TCP core, not inside it: it is fed by
// internal/feed.Hub rather than by pubsub.Hub, so a relay client's slowness
// or disconnect never touches the dispatcher that drives real subscribers.
//
// Grounded on internal/ws/broadcast.go's client/writePump/AddClient shape
// (a per-client send channel drained by a dedicated writer goroutine,
// non-blocking enqueue that drops a client too slow to keep up) and
// internal/ws/server.go's handleWS upgrade-then-read-until-error loop.
package relay

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/signal-pubsub/server/internal/feed"
	"github.com/signal-pubsub/server/internal/signal"
)

const clientSendBuffer = 64

// message is the JSON envelope written to every relay client.
type message struct {
	Type    string          `json:"type"`
	Signal  *signal.Signal  `json:"signal,omitempty"`
	Signals []signal.Signal `json:"signals,omitempty"`
}

// Snapshotter is the read surface relay needs from the signal table, to hand
// a new client its initial state before streaming live updates.
type Snapshotter interface {
	GetSnapshot(filter signal.Type) []signal.Signal
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn:   conn,
		send:   make(chan []byte, clientSendBuffer),
		closed: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

// close is the one-shot close latch: like pubsub.Session, it never closes
// c.send itself (which would race a concurrent enqueue's send on the same
// channel) and instead wakes writePump via the dedicated closed channel.
func (c *client) close() {
	c.once.Do(func() {
		close(c.closed)
	})
}

// Relay bridges feed.Hub's Go-channel fan-out to a set of WebSocket clients.
type Relay struct {
	table    Snapshotter
	feed     *feed.Hub
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]func()
}

// NewRelay constructs a Relay reading initial state from table and live
// updates from f.
func NewRelay(table Snapshotter, f *feed.Hub) *Relay {
	return &Relay{
		table:    table,
		feed:     f,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		clients:  make(map[*client]func()),
	}
}

// ServeHTTP upgrades the request to a WebSocket and streams the signal
// feed to it until the client disconnects.
func (rl *Relay) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := rl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("relay: upgrade error: %v", err)
		return
	}

	c := newClient(conn)
	ch, cancel := rl.feed.Subscribe(clientSendBuffer)

	rl.mu.Lock()
	rl.clients[c] = cancel
	rl.mu.Unlock()

	snapshot := message{Type: "snapshot", Signals: rl.table.GetSnapshot(signal.FilterAll)}
	rl.enqueue(c, snapshot)

	go rl.pumpFeed(c, ch)

	// A relay client never sends anything meaningful; ReadMessage just
	// detects disconnect, mirroring handleWS's read-until-error loop.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			rl.removeClient(c)
			return
		}
	}
}

func (rl *Relay) pumpFeed(c *client, ch <-chan signal.Signal) {
	for s := range ch {
		sig := s
		rl.enqueue(c, message{Type: "update", Signal: &sig})
	}
}

func (rl *Relay) enqueue(c *client, msg message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("relay: marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		log.Printf("relay: client too slow, disconnecting")
		rl.removeClient(c)
	}
}

func (rl *Relay) removeClient(c *client) {
	rl.mu.Lock()
	cancel, ok := rl.clients[c]
	if ok {
		delete(rl.clients, c)
	}
	rl.mu.Unlock()
	if ok {
		cancel()
		c.close()
	}
}

// ClientCount reports the number of connected relay clients, for metrics.
func (rl *Relay) ClientCount() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.clients)
}
