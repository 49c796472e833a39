package state

import (
	"context"
	"sync"

	"trading-sentinel/internal/risk"
	"trading-sentinel/pkg/db"
)

// Config keys persisted in the store. The dashboard writes these; the engine
// only ever writes panic_sell back to "false" after acting on it.
const (
	keyRunning   = "bot_running"
	keyLive      = "live_trading"
	keyProfile   = "risk_profile"
	keyPanicSell = "panic_sell"
)

// RunState is the process-wide operating mode, refreshed from the store by
// the synchronizer. The store is the source of truth.
type RunState struct {
	Running     bool
	LiveTrading bool
	Profile     risk.ProfileName
	PanicSell   bool
}

// Manager keeps the in-memory RunState snapshot. The synchronizer is the
// sole writer; every loop reads through it.
type Manager struct {
	mu    sync.RWMutex
	state RunState
	db    *db.Database
}

// NewManager builds a manager with initial defaults applied until the first
// store load.
func NewManager(database *db.Database, defaultProfile risk.ProfileName, live bool) *Manager {
	return &Manager{
		db: database,
		state: RunState{
			Running:     true,
			LiveTrading: live,
			Profile:     defaultProfile,
		},
	}
}

// Load pulls persisted run-state from the store, seeding missing keys with
// the current in-memory defaults so the dashboard sees them.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defaults := m.state
	m.mu.Unlock()

	running, err := m.db.GetConfigValue(ctx, keyRunning, boolStr(defaults.Running))
	if err != nil {
		return err
	}
	live, err := m.db.GetConfigValue(ctx, keyLive, boolStr(defaults.LiveTrading))
	if err != nil {
		return err
	}
	profileRaw, err := m.db.GetConfigValue(ctx, keyProfile, string(defaults.Profile))
	if err != nil {
		return err
	}
	panicSell, err := m.db.GetConfigValue(ctx, keyPanicSell, "false")
	if err != nil {
		return err
	}

	profile, err := risk.ParseName(profileRaw)
	if err != nil {
		// Corrupted store value; keep the default rather than failing startup.
		profile = defaults.Profile
	}

	m.mu.Lock()
	m.state = RunState{
		Running:     running == "true",
		LiveTrading: live == "true",
		Profile:     profile,
		PanicSell:   panicSell == "true",
	}
	m.mu.Unlock()

	// Seed the store so absent keys become visible to the dashboard.
	_ = m.db.SetConfigValue(ctx, keyRunning, running)
	_ = m.db.SetConfigValue(ctx, keyLive, live)
	_ = m.db.SetConfigValue(ctx, keyProfile, string(profile))
	_ = m.db.SetConfigValue(ctx, keyPanicSell, panicSell)
	return nil
}

// Snapshot returns a copy of the current run-state.
func (m *Manager) Snapshot() RunState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Running reports whether the trading loops should process work.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Running
}

// LiveTrading reports whether orders go to the real exchange.
func (m *Manager) LiveTrading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.LiveTrading
}

// ActiveProfile returns the thresholds of the profile active right now.
// Callers must not cache the result across decision cycles.
func (m *Manager) ActiveProfile() risk.Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return risk.Lookup(m.state.Profile)
}

// ActiveProfileName returns the name of the active profile.
func (m *Manager) ActiveProfileName() risk.ProfileName {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Profile
}

// RequestRunning writes the run flag to the store. The synchronizer applies
// it on its next pass; there is no immediate in-memory effect.
func (m *Manager) RequestRunning(ctx context.Context, running bool) error {
	return m.db.SetConfigValue(ctx, keyRunning, boolStr(running))
}

// RequestLive writes the live-trading flag to the store.
func (m *Manager) RequestLive(ctx context.Context, live bool) error {
	return m.db.SetConfigValue(ctx, keyLive, boolStr(live))
}

// RequestProfile writes the risk profile selection to the store.
func (m *Manager) RequestProfile(ctx context.Context, name risk.ProfileName) error {
	return m.db.SetConfigValue(ctx, keyProfile, string(name))
}

// RequestPanic raises the panic-sell flag in the store.
func (m *Manager) RequestPanic(ctx context.Context) error {
	return m.db.SetConfigValue(ctx, keyPanicSell, "true")
}

// ClearPanic resets the panic flag in the store after liquidation has been
// attempted for every open symbol. Idempotent.
func (m *Manager) ClearPanic(ctx context.Context) error {
	m.mu.Lock()
	m.state.PanicSell = false
	m.mu.Unlock()
	return m.db.SetConfigValue(ctx, keyPanicSell, "false")
}

func (m *Manager) apply(s RunState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
