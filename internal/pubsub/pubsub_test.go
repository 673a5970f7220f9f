package pubsub

import (
	"net"
	"testing"
	"time"

	"github.com/signal-pubsub/server/internal/queue"
	"github.com/signal-pubsub/server/internal/signal"
	"github.com/signal-pubsub/server/internal/wire"
)

type fakeTable struct {
	snapshot []signal.Signal
}

func (f *fakeTable) GetSnapshot(filter signal.Type) []signal.Signal {
	var out []signal.Signal
	for _, s := range f.snapshot {
		if s.Type.Matches(filter) {
			out = append(out, s)
		}
	}
	return out
}

// dial wires up a client/server net.Pipe, starts a Session.Serve on the
// server side against hub, and returns the client's end.
func dial(t *testing.T, hub *Hub) net.Conn {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	sess := NewSession(serverConn)
	go sess.Serve(hub)
	t.Cleanup(func() { clientConn.Close() })
	return clientConn
}

func sendSubscribe(t *testing.T, conn net.Conn, filter signal.Type) {
	t.Helper()
	if err := wire.WriteFrame(conn, wire.Subscribe, wire.EncodeSubscribe(filter)); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
}

func readDataFrame(t *testing.T, conn net.Conn) []signal.Signal {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	hdr, err := wire.ReadHeader(conn)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if hdr.DataType != wire.Data {
		t.Fatalf("dataType = %v, want Data", hdr.DataType)
	}
	body, err := wire.ReadBody(conn, hdr.Length)
	if err != nil {
		t.Fatalf("ReadBody: %v", err)
	}
	signals, err := wire.DecodeData(body)
	if err != nil {
		t.Fatalf("DecodeData: %v", err)
	}
	return signals
}

func TestRegisterSendsSnapshot(t *testing.T) {
	table := &fakeTable{snapshot: []signal.Signal{
		{ID: 1, Type: signal.Discrete, Value: 0.0},
		{ID: 2, Type: signal.Analog, Value: 1.5},
	}}
	q := queue.New(0)
	hub := NewHub(table, q)

	conn := dial(t, hub)
	sendSubscribe(t, conn, signal.FilterAll)

	got := readDataFrame(t, conn)
	if len(got) != 2 {
		t.Fatalf("snapshot = %+v, want 2 records", got)
	}
}

func TestFilterSoundness(t *testing.T) {
	table := &fakeTable{snapshot: []signal.Signal{
		{ID: 1, Type: signal.Discrete, Value: 0.0},
		{ID: 2, Type: signal.Analog, Value: 1.5},
	}}
	q := queue.New(0)
	hub := NewHub(table, q)

	conn := dial(t, hub)
	sendSubscribe(t, conn, signal.Analog)

	snapshot := readDataFrame(t, conn)
	if len(snapshot) != 1 || snapshot[0].ID != 2 {
		t.Fatalf("filtered snapshot = %+v, want only id 2", snapshot)
	}

	q.Push(signal.Signal{ID: 1, Type: signal.Discrete, Value: 9.0, Ts: 1})
	q.Push(signal.Signal{ID: 2, Type: signal.Analog, Value: 3.0, Ts: 1})
	go hub.Run()
	defer q.Close()

	update := readDataFrame(t, conn)
	for _, rec := range update {
		if rec.Type&signal.Analog == 0 {
			t.Fatalf("session with filter=Analog received a non-analog record: %+v", rec)
		}
	}
	if len(update) != 1 || update[0].ID != 2 {
		t.Fatalf("update = %+v, want only id 2", update)
	}
}

func TestSecondRequestClosesSession(t *testing.T) {
	table := &fakeTable{}
	q := queue.New(0)
	hub := NewHub(table, q)

	conn := dial(t, hub)
	sendSubscribe(t, conn, signal.FilterAll)
	readDataFrame(t, conn) // snapshot

	sendSubscribe(t, conn, signal.FilterAll) // second request

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatalf("expected connection to be closed after a second request")
	}
}

func TestBadSignatureClosesBeforeBody(t *testing.T) {
	table := &fakeTable{}
	q := queue.New(0)
	hub := NewHub(table, q)

	conn := dial(t, hub)
	// A deliberately malformed header: wrong signature.
	bad := []byte{0x00, 0x00, wire.Version, byte(wire.Subscribe), 0, 0, 0, 0}
	conn.Write(bad)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatalf("expected connection to be closed after a bad signature")
	}
}

func TestForceCloseAllClosesRegisteredSessions(t *testing.T) {
	table := &fakeTable{}
	q := queue.New(0)
	hub := NewHub(table, q)

	conn := dial(t, hub)
	sendSubscribe(t, conn, signal.FilterAll)
	readDataFrame(t, conn)

	if hub.Count() != 1 {
		t.Fatalf("hub.Count() = %d, want 1", hub.Count())
	}

	hub.ForceCloseAll()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatalf("expected connection to be closed by ForceCloseAll")
	}
}

func TestRunAliveTickerSendsKeepaliveOnIdleSession(t *testing.T) {
	table := &fakeTable{}
	q := queue.New(0)
	hub := NewHub(table, q)

	conn := dial(t, hub)
	sendSubscribe(t, conn, signal.FilterAll)
	readDataFrame(t, conn) // snapshot

	stop := make(chan struct{})
	go hub.RunAliveTicker(stop, 20*time.Millisecond)
	defer close(stop)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	hdr, err := wire.ReadHeader(conn)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if hdr.DataType != wire.Alive {
		t.Fatalf("dataType = %v, want Alive", hdr.DataType)
	}
	if hdr.Length != 0 {
		t.Fatalf("Alive frame length = %d, want 0", hdr.Length)
	}
}

func TestRunAliveTickerDisabledWhenIntervalNonPositive(t *testing.T) {
	table := &fakeTable{}
	q := queue.New(0)
	hub := NewHub(table, q)

	done := make(chan struct{})
	go func() {
		hub.RunAliveTicker(make(chan struct{}), 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("RunAliveTicker with a non-positive interval should return immediately")
	}
}

func TestPerSessionFIFOOrdering(t *testing.T) {
	table := &fakeTable{}
	q := queue.New(0)
	hub := NewHub(table, q)

	conn := dial(t, hub)
	sendSubscribe(t, conn, signal.FilterAll)
	readDataFrame(t, conn) // snapshot

	go hub.Run()
	defer q.Close()

	for i := 0; i < 5; i++ {
		q.Push(signal.Signal{ID: uint32(i), Type: signal.Discrete, Value: float64(i), Ts: int64(i)})
		got := readDataFrame(t, conn)
		if len(got) != 1 || got[0].ID != uint32(i) {
			t.Fatalf("update %d = %+v, want id %d", i, got, i)
		}
	}
}
