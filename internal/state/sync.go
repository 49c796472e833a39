package state

import (
	"context"
	"log"
	"time"

	"trading-sentinel/internal/risk"
)

// Liquidator closes every open position; implemented by the execution
// coordinator. Liquidation of an already-flat symbol must be a no-op so a
// crash mid-panic resumes correctly.
type Liquidator interface {
	ExitAll(ctx context.Context, reason string) int
}

// Synchronizer periodically pulls run-state from the store and applies it,
// including panic-sell fan-out.
type Synchronizer struct {
	Manager    *Manager
	Liquidator Liquidator
	Interval   time.Duration
}

// Run blocks until ctx is cancelled.
func (s *Synchronizer) Run(ctx context.Context) {
	interval := s.Interval
	if interval == 0 {
		interval = 10 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.syncOnce(ctx); err != nil {
				log.Printf("config sync error: %v", err)
			}
		}
	}
}

func (s *Synchronizer) syncOnce(ctx context.Context) error {
	m := s.Manager

	running, err := m.db.GetConfigValue(ctx, keyRunning, "true")
	if err != nil {
		return err
	}
	live, err := m.db.GetConfigValue(ctx, keyLive, "false")
	if err != nil {
		return err
	}
	profileRaw, err := m.db.GetConfigValue(ctx, keyProfile, string(risk.ProfileModerate))
	if err != nil {
		return err
	}
	panicSell, err := m.db.GetConfigValue(ctx, keyPanicSell, "false")
	if err != nil {
		return err
	}

	profile, err := risk.ParseName(profileRaw)
	if err != nil {
		log.Printf("config sync: %v, keeping %s", err, m.ActiveProfileName())
		profile = m.ActiveProfileName()
	}

	m.apply(RunState{
		Running:     running == "true",
		LiveTrading: live == "true",
		Profile:     profile,
		PanicSell:   panicSell == "true",
	})

	if panicSell == "true" {
		log.Printf("panic sell requested: liquidating all open positions")
		closed := s.Liquidator.ExitAll(ctx, "Manual Sell (panic)")
		log.Printf("panic sell: %d position(s) closed", closed)
		// Clear only after every liquidation has been attempted, so a crash
		// midway re-triggers on restart for the symbols still open.
		if err := m.ClearPanic(ctx); err != nil {
			return err
		}
	}
	return nil
}
