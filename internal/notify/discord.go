package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"trading-sentinel/internal/events"
	"trading-sentinel/pkg/db"
)

// Embed colors.
const (
	ColorGreen = 0x2ECC71
	ColorRed   = 0xE74C3C
	ColorBlue  = 0x3498DB
)

// DiscordNotifier sends trade and risk alerts to a Discord webhook. Sends
// are best effort; a failed webhook is logged and never blocks trading.
type DiscordNotifier struct {
	webhookURL string
	enabled    bool
	client     *http.Client
}

// NewDiscordNotifier builds a notifier. An empty URL disables it.
func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{
		webhookURL: webhookURL,
		enabled:    webhookURL != "",
		client:     &http.Client{Timeout: 5 * time.Second},
	}
}

// SendAlert posts one embed to the webhook.
func (d *DiscordNotifier) SendAlert(title, message string, color int) error {
	if !d.enabled {
		return nil
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       title,
				"description": message,
				"color":       color,
				"footer": map[string]string{
					"text": "Trading Sentinel",
				},
				"timestamp": time.Now().Format(time.RFC3339),
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := d.client.Post(d.webhookURL, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord returned status: %d", resp.StatusCode)
	}
	return nil
}

// SendReport posts the end-of-day summary as a single embed.
func (d *DiscordNotifier) SendReport(date string, rows []db.DailyAggregate) error {
	if !d.enabled || len(rows) == 0 {
		return nil
	}

	total := 0.0
	body := ""
	for _, r := range rows {
		total += r.Profit
		body += fmt.Sprintf("**%s**: %.2f (%d trades, %d wins)\n", r.Symbol, r.Profit, r.Trades, r.Wins)
	}

	color := ColorGreen
	if total < 0 {
		color = ColorRed
	}
	title := fmt.Sprintf("📊 Daily Report %s | Total %.2f", date, total)
	return d.SendAlert(title, body, color)
}

// Listen forwards trade executions and risk alerts from the bus to the
// webhook until ctx is cancelled.
func (d *DiscordNotifier) Listen(ctx context.Context, bus *events.Bus) {
	trades, unsubTrades := bus.Subscribe(events.EventTradeExecuted, 64)
	alerts, unsubAlerts := bus.Subscribe(events.EventRiskAlert, 64)
	defer unsubTrades()
	defer unsubAlerts()

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-trades:
			t, ok := payload.(events.TradeExecuted)
			if !ok {
				continue
			}
			d.sendTrade(t)
		case payload := <-alerts:
			a, ok := payload.(events.RiskAlert)
			if !ok {
				continue
			}
			if err := d.SendAlert("🚨 Risk Alert: "+a.Symbol, a.Message, ColorRed); err != nil {
				log.Printf("⚠️ Discord alert failed: %v", err)
			}
		}
	}
}

func (d *DiscordNotifier) sendTrade(t events.TradeExecuted) {
	var title, body string
	color := ColorBlue
	if t.Side == "BUY" {
		title = fmt.Sprintf("🟢 BUY %s", t.Symbol)
		body = fmt.Sprintf("Price: %.4f\nQty: %.6f\nScore: %.1f", t.Price, t.Qty, t.Score)
		color = ColorGreen
	} else {
		title = fmt.Sprintf("🔴 SELL %s (%s)", t.Symbol, t.Reason)
		body = fmt.Sprintf("Price: %.4f\nQty: %.6f\nProfit: %.4f", t.Price, t.Qty, t.Profit)
		if t.Profit < 0 {
			color = ColorRed
		} else {
			color = ColorGreen
		}
	}
	if err := d.SendAlert(title, body, color); err != nil {
		log.Printf("⚠️ Discord notify failed: %v", err)
	}
}
