// Package demo implements a synthetic producer: a tick-based loop that
// invents random signal updates, for demos and manual testing of the
// delivery pipeline without a real external signal source.
//
// Grounded on internal/mock/generator.go's tick-driven session simulator:
// a ticker loop that mutates a small fixed population and pushes the
// result, adapted here from session lifecycle simulation down to the
// random-walk signal mutation the reference C++ server's producer_loop
// performs (random id, random delta, admit via PushSignal).
package demo

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/signal-pubsub/server/internal/signal"
)

// Publisher is the admission+enqueue surface a producer needs. Satisfied by
// *server.Server.
type Publisher interface {
	PushSignal(signal.Signal) bool
}

// Generator drives a small fixed population of signals with a random walk,
// pushing a changed subset on every tick.
type Generator struct {
	pub  Publisher
	seed []signal.Signal
	rng  *rand.Rand
}

// NewGenerator constructs a Generator over the given starting population.
// seed also becomes the server's initial signal table via Seed/SetSignals;
// the caller is responsible for installing it there.
func NewGenerator(pub Publisher, seed []signal.Signal) *Generator {
	return &Generator{
		pub:  pub,
		seed: append([]signal.Signal(nil), seed...),
		rng:  rand.New(rand.NewSource(1)),
	}
}

// Run ticks every interval until ctx is cancelled, mutating a random subset
// of the seed population on each tick and pushing the result.
func (g *Generator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var tick int64
	state := append([]signal.Signal(nil), g.seed...)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			if len(state) == 0 {
				continue
			}
			n := 1 + g.rng.Intn(len(state))
			for i := 0; i < n; i++ {
				idx := g.rng.Intn(len(state))
				s := &state[idx]
				switch s.Type {
				case signal.Discrete:
					s.Value = float64(g.rng.Intn(2))
				case signal.Analog:
					s.Value += g.rng.Float64() - 0.5
				}
				s.Ts = tick
				if !g.pub.PushSignal(*s) {
					log.Printf("demo: PushSignal(id=%d) lost the monotonic race at tick %d", s.ID, tick)
				}
			}
		}
	}
}
