package report

import (
	"context"
	"log"
	"time"

	"trading-sentinel/pkg/db"
)

const lastReportKey = "last_report_date"

// Sender delivers a finished report. The Discord notifier implements it.
type Sender interface {
	SendReport(date string, rows []db.DailyAggregate) error
}

// Scheduler emits one summary of the day's closed trades at 23:59 local
// time. The last reported date is persisted, so a restart inside the
// reporting window does not produce a duplicate.
type Scheduler struct {
	store  *db.Database
	sender Sender
}

// NewScheduler builds the daily report scheduler.
func NewScheduler(store *db.Database, sender Sender) *Scheduler {
	return &Scheduler{store: store, sender: sender}
}

// Run blocks checking the clock every 30 seconds until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Hour() == 23 && now.Minute() == 59 {
				s.maybeReport(ctx, now)
			}
		}
	}
}

func (s *Scheduler) maybeReport(ctx context.Context, now time.Time) {
	date := now.Format("2006-01-02")
	last, err := s.store.GetConfigValue(ctx, lastReportKey, "")
	if err != nil {
		log.Printf("⚠️ Report dedupe read failed: %v", err)
		return
	}
	if last == date {
		return
	}

	rows, err := s.store.DailySummary(ctx, date)
	if err != nil {
		log.Printf("⚠️ Daily summary query failed: %v", err)
		return
	}
	if len(rows) == 0 {
		log.Printf("📊 No closed trades on %s, skipping report", date)
	} else if err := s.sender.SendReport(date, rows); err != nil {
		log.Printf("⚠️ Daily report send failed: %v", err)
		return
	}

	// Mark the date even when there was nothing to send, so the window is
	// not re-checked every 30 seconds for the rest of the minute.
	if err := s.store.SetConfigValue(ctx, lastReportKey, date); err != nil {
		log.Printf("⚠️ Report dedupe write failed: %v", err)
	}
}
