package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// StreamClient manages lightweight streaming from Binance public websockets.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
}

// NewStreamClient builds a websocket client; testnet toggles the host.
func NewStreamClient(testnet bool) *StreamClient {
	host := "stream.binance.com:9443"
	if testnet {
		host = "testnet.binance.vision"
	}
	return &StreamClient{
		StreamURL: (&url.URL{Scheme: "wss", Host: host}).String(),
		dialer:    websocket.DefaultDialer,
	}
}

// SubscribeMiniTickers opens one combined stream multiplexing the miniTicker
// channel for every symbol. The returned channel closes when the connection
// drops or the context is cancelled; the caller owns reconnection.
func (c *StreamClient) SubscribeMiniTickers(ctx context.Context, symbols []string) (<-chan MiniTicker, func(), error) {
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("no symbols to subscribe")
	}

	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@miniTicker")
	}
	u := fmt.Sprintf("%s/stream?streams=%s", c.StreamURL, strings.Join(streams, "/"))

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial binance ws: %w", err)
	}

	out := make(chan MiniTicker, 100)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			// Ignore errors; connection may already be closed.
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
			close(out)
		})
	}

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Printf("binance ws read error: %v", err)
				return
			}

			parsed, err := parseMiniTickerMessage(msg)
			if err != nil {
				log.Printf("binance ws parse error: %v", err)
				continue
			}
			out <- parsed
		}
	}()

	return out, stop, nil
}

// parseMiniTickerMessage decodes only the fields we need from the combined
// stream envelope.
func parseMiniTickerMessage(msg []byte) (MiniTicker, error) {
	var raw struct {
		Data struct {
			EventTime int64       `json:"E"`
			Symbol    string      `json:"s"`
			Close     interface{} `json:"c"`
		} `json:"data"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return MiniTicker{}, err
	}
	return MiniTicker{
		Symbol: raw.Data.Symbol,
		Close:  toFloat(raw.Data.Close),
		Time:   raw.Data.EventTime,
	}, nil
}
