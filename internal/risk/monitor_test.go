package risk

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"trading-sentinel/internal/events"
	"trading-sentinel/internal/monitor"
)

type recordingHandler struct {
	mu    sync.Mutex
	ticks []events.Tick
}

func (h *recordingHandler) OnTick(ctx context.Context, symbol string, price float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ticks = append(h.ticks, events.Tick{Symbol: symbol, Price: price})
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ticks)
}

type stubState struct{ running atomic.Bool }

func (s *stubState) Running() bool { return s.running.Load() }

type stubUniverse map[string]bool

func (u stubUniverse) Has(symbol string) bool { return u[symbol] }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestMonitorForwardsManagedTicks(t *testing.T) {
	bus := events.NewBus()
	handler := &recordingHandler{}
	st := &stubState{}
	st.running.Store(true)
	universe := stubUniverse{"BTCUSDT": true}
	m := NewMonitor(bus, handler, st, universe, monitor.NewMetrics(prometheus.NewRegistry()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	// Give the subscriber a moment to attach before publishing.
	time.Sleep(20 * time.Millisecond)

	bus.Publish(events.EventPriceTick, events.Tick{Symbol: "BTCUSDT", Price: 50000})
	waitFor(t, func() bool { return handler.count() == 1 })

	handler.mu.Lock()
	got := handler.ticks[0]
	handler.mu.Unlock()
	if got.Symbol != "BTCUSDT" || got.Price != 50000 {
		t.Errorf("unexpected tick: %+v", got)
	}
}

func TestMonitorDropsUnmanagedAndPaused(t *testing.T) {
	bus := events.NewBus()
	handler := &recordingHandler{}
	st := &stubState{}
	st.running.Store(true)
	universe := stubUniverse{"BTCUSDT": true}
	m := NewMonitor(bus, handler, st, universe, monitor.NewMetrics(prometheus.NewRegistry()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)
	time.Sleep(20 * time.Millisecond)

	// Outside the universe: dropped.
	bus.Publish(events.EventPriceTick, events.Tick{Symbol: "XRPUSDT", Price: 1})
	// Paused: dropped even for managed symbols.
	st.running.Store(false)
	bus.Publish(events.EventPriceTick, events.Tick{Symbol: "BTCUSDT", Price: 2})
	// Let the paused tick drain before resuming.
	time.Sleep(50 * time.Millisecond)
	// Resumed: delivered.
	st.running.Store(true)
	bus.Publish(events.EventPriceTick, events.Tick{Symbol: "BTCUSDT", Price: 3})

	waitFor(t, func() bool { return handler.count() == 1 })

	handler.mu.Lock()
	got := handler.ticks[0]
	handler.mu.Unlock()
	if got.Price != 3 {
		t.Errorf("expected only the post-resume tick, got %+v", got)
	}
}
