// Package hostmetrics is a real (non-synthetic) signal producer: it samples
// host CPU and memory utilization via gopsutil and pushes them as analog
// signals. This gives the server a genuine external signal source to pair
// with the demo random-walk producer.
//
// github.com/shirou/gopsutil/v3 is built for exactly this kind of periodic
// resource sampling; this package is its home, calling into it directly
// rather than sampling /proc by hand.
package hostmetrics

import (
	"context"
	"log"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/signal-pubsub/server/internal/signal"
)

// Reserved id range for host-metrics signals, kept well clear of the demo
// producer's small fixed ids.
const (
	// IDCPUPercentBase is the id of core 0's utilization; core N is
	// IDCPUPercentBase+N.
	IDCPUPercentBase uint32 = 1_000_000
	// IDMemPercent is the id of overall virtual memory utilization.
	IDMemPercent uint32 = 2_000_000
)

// Publisher is the admission+enqueue surface this producer needs.
type Publisher interface {
	PushSignal(signal.Signal) bool
}

// Producer periodically samples host metrics and pushes them as analog
// signals.
type Producer struct {
	pub Publisher
}

// NewProducer constructs a host-metrics producer.
func NewProducer(pub Publisher) *Producer {
	return &Producer{pub: pub}
}

// Run samples every interval until ctx is cancelled.
func (p *Producer) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var tick int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			p.sample(ctx, tick)
		}
	}
}

func (p *Producer) sample(ctx context.Context, ts int64) {
	percents, err := cpu.PercentWithContext(ctx, 0, true)
	if err != nil {
		log.Printf("hostmetrics: cpu.Percent: %v", err)
	}
	for core, pct := range percents {
		p.pub.PushSignal(signal.Signal{
			ID:    IDCPUPercentBase + uint32(core),
			Type:  signal.Analog,
			Value: pct,
			Ts:    ts,
		})
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		log.Printf("hostmetrics: mem.VirtualMemory: %v", err)
		return
	}
	p.pub.PushSignal(signal.Signal{
		ID:    IDMemPercent,
		Type:  signal.Analog,
		Value: vm.UsedPercent,
		Ts:    ts,
	})
}
