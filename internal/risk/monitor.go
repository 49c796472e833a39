package risk

import (
	"context"
	"log"

	"trading-sentinel/internal/events"
	"trading-sentinel/internal/monitor"
)

// TickHandler consumes a price update and applies the exit rules for the
// symbol. The position coordinator implements it.
type TickHandler interface {
	OnTick(ctx context.Context, symbol string, price float64)
}

// RunStateReader exposes the minimum run-state the monitor needs.
type RunStateReader interface {
	Running() bool
}

// Universe answers membership of the managed symbol set.
type Universe interface {
	Has(symbol string) bool
}

// Monitor drains price ticks from the bus and forwards them to the exit
// logic. Ticks arriving while the engine is paused or for symbols outside
// the managed set are dropped.
type Monitor struct {
	bus      *events.Bus
	handler  TickHandler
	state    RunStateReader
	universe Universe
	metrics  *monitor.Metrics
}

// NewMonitor wires the tick pipeline.
func NewMonitor(bus *events.Bus, handler TickHandler, state RunStateReader, universe Universe, metrics *monitor.Metrics) *Monitor {
	return &Monitor{
		bus:      bus,
		handler:  handler,
		state:    state,
		universe: universe,
		metrics:  metrics,
	}
}

// Run blocks until ctx is cancelled, processing ticks one at a time. The
// per-symbol serialization lives in the handler; this loop only demuxes.
func (m *Monitor) Run(ctx context.Context) {
	ch, unsub := m.bus.Subscribe(events.EventPriceTick, 256)
	defer unsub()

	log.Println("👁️ Exit monitor started")
	for {
		select {
		case <-ctx.Done():
			log.Println("👁️ Exit monitor stopped")
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			tick, valid := payload.(events.Tick)
			if !valid {
				continue
			}
			if !m.state.Running() || !m.universe.Has(tick.Symbol) {
				continue
			}
			m.metrics.TicksProcessed.Inc()
			m.handler.OnTick(ctx, tick.Symbol, tick.Price)
		}
	}
}
