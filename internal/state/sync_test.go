package state

import (
	"context"
	"testing"

	"trading-sentinel/internal/risk"
	"trading-sentinel/pkg/db"
)

type fakeLiquidator struct {
	calls   int
	reasons []string
	closed  int
}

func (f *fakeLiquidator) ExitAll(ctx context.Context, reason string) int {
	f.calls++
	f.reasons = append(f.reasons, reason)
	return f.closed
}

func newSyncFixture(t *testing.T) (*Manager, *Synchronizer, *fakeLiquidator, *db.Database) {
	t.Helper()
	store, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := db.ApplyMigrations(store); err != nil {
		t.Fatalf("migrations: %v", err)
	}

	mgr := NewManager(store, risk.ProfileModerate, false)
	if err := mgr.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	liq := &fakeLiquidator{closed: 2}
	syncer := &Synchronizer{Manager: mgr, Liquidator: liq}
	return mgr, syncer, liq, store
}

func TestSyncAppliesStoreChanges(t *testing.T) {
	mgr, syncer, _, store := newSyncFixture(t)
	ctx := context.Background()

	if err := store.SetConfigValue(ctx, keyRunning, "false"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetConfigValue(ctx, keyProfile, "aggressive"); err != nil {
		t.Fatal(err)
	}

	if err := syncer.syncOnce(ctx); err != nil {
		t.Fatalf("syncOnce: %v", err)
	}

	snap := mgr.Snapshot()
	if snap.Running {
		t.Error("running flag should be applied")
	}
	if snap.Profile != risk.ProfileAggressive {
		t.Errorf("profile should be aggressive, got %s", snap.Profile)
	}
}

func TestSyncKeepsProfileOnCorruptValue(t *testing.T) {
	mgr, syncer, _, store := newSyncFixture(t)
	ctx := context.Background()

	if err := store.SetConfigValue(ctx, keyProfile, "garbage"); err != nil {
		t.Fatal(err)
	}
	if err := syncer.syncOnce(ctx); err != nil {
		t.Fatalf("syncOnce: %v", err)
	}
	if got := mgr.ActiveProfileName(); got != risk.ProfileModerate {
		t.Errorf("corrupt profile value should keep %s, got %s", risk.ProfileModerate, got)
	}
}

func TestSyncPanicSellFanOut(t *testing.T) {
	mgr, syncer, liq, store := newSyncFixture(t)
	ctx := context.Background()

	if err := mgr.RequestPanic(ctx); err != nil {
		t.Fatal(err)
	}
	if err := syncer.syncOnce(ctx); err != nil {
		t.Fatalf("syncOnce: %v", err)
	}

	if liq.calls != 1 {
		t.Fatalf("expected one liquidation sweep, got %d", liq.calls)
	}
	if liq.reasons[0] != "Manual Sell (panic)" {
		t.Errorf("unexpected reason %q", liq.reasons[0])
	}

	// Flag is cleared after the sweep, both in memory and in the store.
	if mgr.Snapshot().PanicSell {
		t.Error("panic flag should be cleared in memory")
	}
	val, err := store.GetConfigValue(ctx, keyPanicSell, "")
	if err != nil {
		t.Fatal(err)
	}
	if val != "false" {
		t.Errorf("panic flag should be cleared in store, got %q", val)
	}

	// A second pass with the flag down is a no-op.
	if err := syncer.syncOnce(ctx); err != nil {
		t.Fatalf("syncOnce: %v", err)
	}
	if liq.calls != 1 {
		t.Errorf("no further liquidation expected, got %d calls", liq.calls)
	}
}
