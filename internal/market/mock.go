package market

import (
	"context"
	"log"
	"math/rand"
	"time"

	"trading-sentinel/internal/events"
)

// MockFeed generates synthetic ticks for local development. Each symbol gets
// its own random walk so trailing stops and stop losses both get exercised.
type MockFeed struct {
	Bus        *events.Bus
	Symbols    []string
	StartPrice float64
	StepPct    float64
	Interval   time.Duration
}

// Run blocks publishing ticks until ctx is cancelled.
func (m *MockFeed) Run(ctx context.Context) {
	if m.Bus == nil {
		log.Println("mock feed: bus not set")
		return
	}
	start := m.StartPrice
	if start == 0 {
		start = 100.0
	}
	step := m.StepPct
	if step == 0 {
		step = 0.3
	}
	interval := m.Interval
	if interval == 0 {
		interval = time.Second
	}

	prices := make(map[string]float64, len(m.Symbols))
	for _, sym := range m.Symbols {
		prices[sym] = start
	}

	log.Printf("🎲 Mock feed started for %d symbols", len(m.Symbols))
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for _, sym := range m.Symbols {
				// random walk in percentage steps
				p := prices[sym]
				p += p * (rand.Float64()*2 - 1) * step / 100
				prices[sym] = p
				m.Bus.Publish(events.EventPriceTick, events.Tick{Symbol: sym, Price: p})
			}
		}
	}
}
