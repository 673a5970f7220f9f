// Package sigclient implements the companion client: connect, subscribe,
// decode the update stream, and auto-reconnect with a fixed backoff.
//
// The reconnect-loop shape (dial, run until failure, sleep a cancellable
// delay, retry) follows tui/internal/client/ws.go's WSClient.Listen, adapted
// from a WebSocket+JSON transport with exponential backoff to this module's
// binary-framed TCP protocol with a fixed 2-second reconnect delay.
package sigclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/signal-pubsub/server/internal/signal"
	"github.com/signal-pubsub/server/internal/wire"
)

// ReconnectDelay is the fixed wait between a dropped connection and the next
// reconnect attempt.
const ReconnectDelay = 2 * time.Second

// State is the client's position in its connection state machine.
type State int

const (
	Disconnected State = iota
	Resolving
	Connecting
	Subscribing
	Streaming
	ReconnectWait
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Resolving:
		return "RESOLVING"
	case Connecting:
		return "CONNECTING"
	case Subscribing:
		return "SUBSCRIBING"
	case Streaming:
		return "STREAMING"
	case ReconnectWait:
		return "RECONNECT_WAIT"
	default:
		return "UNKNOWN"
	}
}

// Handler receives decoded application events from the client.
type Handler interface {
	// OnSignals is called once per data frame. snapshot is true only for the
	// first data frame received after a (re)subscribe.
	OnSignals(signals []signal.Signal, snapshot bool)
	// OnStateChange is called whenever the client's connection state
	// transitions, primarily for diagnostics/UI.
	OnStateChange(State)
}

// Client connects to a signal server, subscribes with a fixed filter, and
// streams updates to a Handler until its context is cancelled.
type Client struct {
	addr    string
	filter  signal.Type
	handler Handler
	dialer  net.Dialer
}

// New constructs a client that will connect to addr (host:port) and
// subscribe with the given filter.
func New(addr string, filter signal.Type, handler Handler) *Client {
	return &Client{addr: addr, filter: filter, handler: handler}
}

// Run drives the DISCONNECTED -> ... -> STREAMING -> RECONNECT_WAIT loop
// until ctx is cancelled. It always returns once ctx.Done() fires, even if
// that happens mid reconnect-wait.
func (c *Client) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			c.setState(Disconnected)
			return
		}

		if err := c.runOnce(ctx); err != nil && ctx.Err() == nil {
			log.Printf("sigclient: session ended: %v", err)
		}

		if ctx.Err() != nil {
			c.setState(Disconnected)
			return
		}

		c.setState(ReconnectWait)
		select {
		case <-ctx.Done():
			c.setState(Disconnected)
			return
		case <-time.After(ReconnectDelay):
		}
	}
}

// runOnce performs one RESOLVING->CONNECTING->SUBSCRIBING->STREAMING cycle,
// returning when the connection fails or ctx is cancelled.
func (c *Client) runOnce(ctx context.Context) error {
	c.setState(Resolving)
	c.setState(Connecting)

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("sigclient: dial %s: %w", c.addr, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	c.setState(Subscribing)
	if err := wire.WriteFrame(conn, wire.Subscribe, wire.EncodeSubscribe(c.filter)); err != nil {
		return fmt.Errorf("sigclient: send subscribe: %w", err)
	}

	c.setState(Streaming)
	return c.stream(conn)
}

func (c *Client) stream(conn net.Conn) error {
	first := true
	for {
		hdr, err := wire.ReadHeader(conn)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read header: %w", err)
		}

		body, err := wire.ReadBody(conn, hdr.Length)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}

		switch hdr.DataType {
		case wire.Data:
			signals, err := wire.DecodeData(body)
			if err != nil {
				return fmt.Errorf("decode data: %w", err)
			}
			c.handler.OnSignals(signals, first)
			first = false
		case wire.Alive:
			// no-op, keepalive only
		default:
			return fmt.Errorf("unexpected frame type %v from server", hdr.DataType)
		}
	}
}

func (c *Client) setState(s State) {
	if c.handler != nil {
		c.handler.OnStateChange(s)
	}
}
