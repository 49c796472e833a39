package events

import (
	"sync"
	"sync/atomic"
)

// Bus fans events out to channel subscribers. Delivery is best effort: a
// subscriber that cannot keep up loses messages rather than stalling the
// publisher, which on the hot path is the tick feed.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Event][]chan any
	dropped atomic.Uint64

	// OnDrop, when set, is invoked for every message a slow subscriber
	// misses. Set before the first Publish; it is read without locking.
	OnDrop func(Event)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Event][]chan any)}
}

// Subscribe returns a receive channel with the given buffer and a function
// that removes the subscription and closes the channel. Unsubscribing twice
// is safe for distinct subscribers but each returned func must be called at
// most once.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	ch := make(chan any, buffer)

	b.mu.Lock()
	b.subs[e] = append(b.subs[e], ch)
	b.mu.Unlock()

	return ch, func() { b.remove(e, ch) }
}

func (b *Bus) remove(e Event, ch chan any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[e]
	for i, c := range subs {
		if c == ch {
			close(c)
			b.subs[e] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the payload to every subscriber of e without blocking.
// Full subscriber buffers count as drops.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[e] {
		select {
		case ch <- payload:
		default:
			b.dropped.Add(1)
			if b.OnDrop != nil {
				b.OnDrop(e)
			}
		}
	}
}

// Dropped reports how many messages have been lost to slow subscribers since
// the bus was created.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
