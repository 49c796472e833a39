package report

import (
	"context"
	"testing"
	"time"

	"trading-sentinel/pkg/db"
)

type fakeSender struct {
	reports []string
}

func (f *fakeSender) SendReport(date string, rows []db.DailyAggregate) error {
	f.reports = append(f.reports, date)
	return nil
}

func newReportFixture(t *testing.T) (*Scheduler, *fakeSender, *db.Database) {
	t.Helper()
	store, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := db.ApplyMigrations(store); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	sender := &fakeSender{}
	return NewScheduler(store, sender), sender, store
}

func TestMaybeReportSendsOncePerDay(t *testing.T) {
	sched, sender, store := newReportFixture(t)
	ctx := context.Background()

	now := time.Date(2026, 5, 2, 23, 59, 10, 0, time.UTC)
	trade := db.Trade{ID: "s1", Symbol: "BTCUSDT", Side: "SELL", Price: 100, Qty: 1, Profit: 3.5, Reason: "Trailing Stop", CreatedAt: now.Add(-2 * time.Hour)}
	if err := store.AppendTrade(ctx, trade); err != nil {
		t.Fatalf("AppendTrade: %v", err)
	}

	sched.maybeReport(ctx, now)
	if len(sender.reports) != 1 || sender.reports[0] != "2026-05-02" {
		t.Fatalf("expected one report for 2026-05-02, got %v", sender.reports)
	}

	// Same minute, second check: deduped by the persisted date.
	sched.maybeReport(ctx, now.Add(20*time.Second))
	if len(sender.reports) != 1 {
		t.Errorf("report should only be sent once per day, got %v", sender.reports)
	}

	// Next day reports again.
	nextDay := now.AddDate(0, 0, 1)
	trade.ID = "s2"
	trade.CreatedAt = nextDay.Add(-time.Hour)
	if err := store.AppendTrade(ctx, trade); err != nil {
		t.Fatalf("AppendTrade: %v", err)
	}
	sched.maybeReport(ctx, nextDay)
	if len(sender.reports) != 2 {
		t.Errorf("expected a second report for the next day, got %v", sender.reports)
	}
}

func TestMaybeReportSkipsEmptyDay(t *testing.T) {
	sched, sender, store := newReportFixture(t)
	ctx := context.Background()

	now := time.Date(2026, 5, 2, 23, 59, 0, 0, time.UTC)
	sched.maybeReport(ctx, now)

	if len(sender.reports) != 0 {
		t.Errorf("no trades means no report, got %v", sender.reports)
	}

	// The date is still marked so the window is not re-checked all minute.
	val, err := store.GetConfigValue(ctx, lastReportKey, "")
	if err != nil {
		t.Fatal(err)
	}
	if val != "2026-05-02" {
		t.Errorf("expected date marker, got %q", val)
	}
}
