package market

import (
	"context"
	"errors"
	"log"
	"time"

	"trading-sentinel/internal/events"
	binance "trading-sentinel/pkg/market/binance"
)

var errConnectionLost = errors.New("stream connection lost")

// Feed publishes price ticks onto the event bus. Implementations own their
// transport and reconnect behavior.
type Feed interface {
	Run(ctx context.Context)
}

// StreamFeed bridges the exchange miniTicker stream to EventPriceTick,
// reconnecting with a fixed backoff whenever the stream drops.
type StreamFeed struct {
	stream  *binance.StreamClient
	bus     *events.Bus
	symbols []string
	backoff time.Duration
}

// NewStreamFeed creates a live feed for the given symbols.
func NewStreamFeed(stream *binance.StreamClient, bus *events.Bus, symbols []string, backoff time.Duration) *StreamFeed {
	return &StreamFeed{
		stream:  stream,
		bus:     bus,
		symbols: symbols,
		backoff: backoff,
	}
}

// Run blocks until ctx is cancelled. Each connection drop is logged and a
// fresh subscription is attempted after the backoff.
func (f *StreamFeed) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := f.consume(ctx); err != nil {
			log.Printf("📡 Stream dropped: %v, reconnecting in %s", err, f.backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.backoff):
		}
	}
}

func (f *StreamFeed) consume(ctx context.Context) error {
	ticks, stop, err := f.stream.SubscribeMiniTickers(ctx, f.symbols)
	if err != nil {
		return err
	}
	defer stop()

	log.Printf("📡 Subscribed to %d symbol streams", len(f.symbols))
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-ticks:
			if !ok {
				// Channel closes on connection loss; caller reconnects.
				return errConnectionLost
			}
			f.bus.Publish(events.EventPriceTick, events.Tick{Symbol: t.Symbol, Price: t.Close})
		}
	}
}
