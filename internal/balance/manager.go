package balance

import (
	"context"
	"log"
	"sync"
	"time"

	"trading-sentinel/internal/gateway"
)

// Manager caches the exchange's free quote-asset balance and refreshes it
// on a fixed interval. Live entries consult it before sizing an order so a
// partial fill elsewhere never over-commits the account.
type Manager struct {
	gw           gateway.Gateway
	quoteAsset   string
	syncInterval time.Duration

	mu       sync.RWMutex
	free     float64
	lastSync time.Time
}

// NewManager creates a balance manager for the given quote asset (USDT for
// the default universe).
func NewManager(gw gateway.Gateway, quoteAsset string, syncInterval time.Duration) *Manager {
	return &Manager{
		gw:           gw,
		quoteAsset:   quoteAsset,
		syncInterval: syncInterval,
	}
}

// Start runs an initial sync then refreshes in the background until ctx ends.
func (m *Manager) Start(ctx context.Context) {
	if err := m.Sync(ctx); err != nil {
		log.Printf("❌ Balance sync error: %v", err)
	}

	ticker := time.NewTicker(m.syncInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := m.Sync(ctx); err != nil {
					log.Printf("❌ Balance sync error: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Sync fetches the latest free balance from the exchange.
func (m *Manager) Sync(ctx context.Context) error {
	free, err := m.gw.FreeBalance(ctx, m.quoteAsset)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.free = free
	m.lastSync = time.Now()
	m.mu.Unlock()

	log.Printf("💰 Balance synced: %s free=%.2f", m.quoteAsset, free)
	return nil
}

// Free returns the cached free balance.
func (m *Manager) Free() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.free
}

// LastSync returns when the cache was last refreshed.
func (m *Manager) LastSync() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSync
}
