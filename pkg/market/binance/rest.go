package market

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client wraps REST access to Binance. Public market-data calls are throttled
// client-side so a busy calibration pass cannot burn the request weight the
// trading loops depend on.
type Client struct {
	APIKey     string
	APISecret  string
	BaseURL    string
	HTTPClient *http.Client

	limiter *rate.Limiter
}

// NewClient builds a REST client; testnet switches the base URL.
func NewClient(apiKey, apiSecret string, testnet bool) *Client {
	base := "https://api.binance.com"
	if testnet {
		base = "https://testnet.binance.vision"
	}
	return &Client{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		BaseURL:    base,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		// ~10 market-data requests/second with small bursts.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// GetKlines fetches the most recent candles for symbol/interval.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	u := fmt.Sprintf("%s/api/v3/klines?%s", c.BaseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance klines status %d", res.StatusCode)
	}

	var raw [][]any
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, err
	}

	klines := make([]Kline, 0, len(raw))
	for _, item := range raw {
		// Binance returns 12 fields per kline; we need the first 7.
		if len(item) < 7 {
			continue
		}
		klines = append(klines, Kline{
			Symbol:    symbol,
			OpenTime:  toInt64(item[0]),
			Open:      toFloat(item[1]),
			High:      toFloat(item[2]),
			Low:       toFloat(item[3]),
			Close:     toFloat(item[4]),
			Volume:    toFloat(item[5]),
			CloseTime: toInt64(item[6]),
		})
	}
	return klines, nil
}

// MarketBuy submits a market buy spending quoteAmount of the quote currency
// and returns the actual fill.
func (c *Client) MarketBuy(ctx context.Context, symbol string, quoteAmount float64) (OrderFill, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", "BUY")
	params.Set("type", "MARKET")
	params.Set("quoteOrderQty", formatFloat(quoteAmount))
	return c.submitMarketOrder(ctx, params)
}

// MarketSell submits a market sell for qty of the base asset.
func (c *Client) MarketSell(ctx context.Context, symbol string, qty float64) (OrderFill, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", "SELL")
	params.Set("type", "MARKET")
	params.Set("quantity", formatFloat(qty))
	return c.submitMarketOrder(ctx, params)
}

func (c *Client) submitMarketOrder(ctx context.Context, params url.Values) (OrderFill, error) {
	if c.APIKey == "" || c.APISecret == "" {
		return OrderFill{}, errors.New("binance: API key/secret required")
	}

	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")

	body, err := c.doSigned(ctx, http.MethodPost, c.BaseURL+"/api/v3/order", params)
	if err != nil {
		return OrderFill{}, err
	}

	var resp struct {
		OrderID     int64  `json:"orderId"`
		ExecutedQty string `json:"executedQty"`
		CumQuoteQty string `json:"cummulativeQuoteQty"`
		Status      string `json:"status"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return OrderFill{}, fmt.Errorf("decode order response: %w", err)
	}

	fill := OrderFill{OrderID: resp.OrderID}
	fill.FilledQty, _ = strconv.ParseFloat(resp.ExecutedQty, 64)
	quote, _ := strconv.ParseFloat(resp.CumQuoteQty, 64)
	if fill.FilledQty > 0 {
		fill.AvgPrice = quote / fill.FilledQty
	}
	return fill, nil
}

// GetFreeBalance returns the free amount of one asset from the account.
func (c *Client) GetFreeBalance(ctx context.Context, asset string) (float64, error) {
	if c.APIKey == "" || c.APISecret == "" {
		return 0, errors.New("binance: API key/secret required")
	}

	params := url.Values{}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", "5000")

	body, err := c.doSigned(ctx, http.MethodGet, c.BaseURL+"/api/v3/account", params)
	if err != nil {
		return 0, err
	}

	var info struct {
		Balances []struct {
			Asset string `json:"asset"`
			Free  string `json:"free"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return 0, fmt.Errorf("decode account info: %w", err)
	}

	for _, b := range info.Balances {
		if strings.EqualFold(b.Asset, asset) {
			free, _ := strconv.ParseFloat(b.Free, 64)
			return free, nil
		}
	}
	return 0, nil
}

// doSigned signs the query and performs the HTTP request.
func (c *Client) doSigned(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	params.Set("signature", sign(params.Encode(), c.APISecret))

	var (
		req *http.Request
		err error
	)
	encoded := params.Encode()
	switch method {
	case http.MethodGet, http.MethodDelete:
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+encoded, nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(encoded))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-MBX-APIKEY", c.APIKey)

	res, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	if res.StatusCode >= 300 {
		return nil, fmt.Errorf("binance %s %s status %d: %s", method, endpoint, res.StatusCode, string(body))
	}
	return body, nil
}

func sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	default:
		return 0
	}
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case string:
		i, _ := strconv.ParseInt(t, 10, 64)
		return i
	default:
		return 0
	}
}
