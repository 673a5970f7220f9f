package signaltable

import (
	"sync"
	"testing"

	"github.com/signal-pubsub/server/internal/signal"
)

func TestPushSignalAcceptsUnknownID(t *testing.T) {
	tb := New()
	ok := tb.PushSignal(signal.Signal{ID: 1, Type: signal.Discrete, Value: 0, Ts: 0})
	if !ok {
		t.Fatalf("expected admission of a previously unseen id")
	}
	got, ok := tb.GetSignal(1)
	if !ok || got.Ts != 0 {
		t.Fatalf("GetSignal after admission = %+v, %v", got, ok)
	}
}

func TestPushSignalRejectsStale(t *testing.T) {
	tb := New()
	tb.PushSignal(signal.Signal{ID: 1, Type: signal.Discrete, Value: 1.0, Ts: 5})

	ok := tb.PushSignal(signal.Signal{ID: 1, Type: signal.Discrete, Value: 0.0, Ts: 3})
	if ok {
		t.Fatalf("expected admission of a stale write to be rejected")
	}

	got, _ := tb.GetSignal(1)
	if got.Ts != 5 || got.Value != 1.0 {
		t.Fatalf("table was mutated by a stale write: %+v", got)
	}
}

func TestPushSignalRejectsInvalidType(t *testing.T) {
	tb := New()

	ok := tb.PushSignal(signal.Signal{ID: 1, Type: 0, Value: 1.0, Ts: 0})
	if ok {
		t.Fatalf("expected admission of a zero type to be rejected")
	}
	ok = tb.PushSignal(signal.Signal{ID: 1, Type: signal.Discrete | signal.Analog, Value: 1.0, Ts: 0})
	if ok {
		t.Fatalf("expected admission of a both-bits type to be rejected")
	}

	if _, ok := tb.GetSignal(1); ok {
		t.Fatalf("table was mutated by an invalid-type push")
	}
}

func TestPushSignalAcceptsEqualTimestamp(t *testing.T) {
	tb := New()
	tb.PushSignal(signal.Signal{ID: 1, Type: signal.Discrete, Value: 1.0, Ts: 5})
	ok := tb.PushSignal(signal.Signal{ID: 1, Type: signal.Discrete, Value: 2.0, Ts: 5})
	if !ok {
		t.Fatalf("expected admission of a write at the same timestamp")
	}
	got, _ := tb.GetSignal(1)
	if got.Value != 2.0 {
		t.Fatalf("expected the later same-ts write to win, got %+v", got)
	}
}

// TestMonotonicAdmissionUnderConcurrency has concurrent producers push
// interleaved timestamps for one id and asserts that the stored Ts ends at
// the highest one pushed.
func TestMonotonicAdmissionUnderConcurrency(t *testing.T) {
	tb := New()
	const writers = 8
	const perWriter = 200

	var wg sync.WaitGroup
	wg.Add(writers)
	for w := 0; w < writers; w++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				ts := int64(base*perWriter + i)
				tb.PushSignal(signal.Signal{ID: 42, Type: signal.Analog, Value: float64(ts), Ts: ts})
			}
		}(w)
	}
	wg.Wait()

	got, ok := tb.GetSignal(42)
	if !ok {
		t.Fatalf("expected id 42 to be present")
	}
	if got.Ts != writers*perWriter-1 {
		t.Fatalf("final Ts = %d, want %d (the highest admitted)", got.Ts, writers*perWriter-1)
	}
}

func TestSetReplacesTableAtomically(t *testing.T) {
	tb := New()
	tb.PushSignal(signal.Signal{ID: 1, Type: signal.Discrete, Ts: 0})
	tb.PushSignal(signal.Signal{ID: 2, Type: signal.Analog, Ts: 0})

	tb.Set([]signal.Signal{{ID: 7, Type: signal.Analog, Value: 2.2, Ts: 0}})

	if _, ok := tb.GetSignal(1); ok {
		t.Fatalf("id 1 should have been dropped by Set")
	}
	snap := tb.GetSnapshot(signal.FilterAll)
	if len(snap) != 1 || snap[0].ID != 7 {
		t.Fatalf("snapshot after Set = %+v, want only id 7", snap)
	}
}

func TestGetSnapshotFilter(t *testing.T) {
	tb := New()
	tb.PushSignal(signal.Signal{ID: 1, Type: signal.Discrete, Value: 0.0, Ts: 0})
	tb.PushSignal(signal.Signal{ID: 2, Type: signal.Analog, Value: 1.5, Ts: 0})

	discreteOnly := tb.GetSnapshot(signal.Discrete)
	if len(discreteOnly) != 1 || discreteOnly[0].ID != 1 {
		t.Fatalf("discrete-only snapshot = %+v", discreteOnly)
	}

	both := tb.GetSnapshot(signal.FilterAll)
	if len(both) != 2 {
		t.Fatalf("full snapshot = %+v, want 2 signals", both)
	}
}
