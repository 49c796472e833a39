package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trading engine.
type Config struct {
	Port string

	// Trading universe
	CandidateSymbols []string
	EliteLimit       int

	// Risk
	DefaultProfile string
	ProfileFile    string // optional YAML override for the built-in profile table
	FeePct         float64

	// Binance
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceTestnet   bool
	UseMockFeed      bool

	// Execution
	LiveTrading     bool
	StartingBalance float64 // per-symbol simulated quote balance

	// Loop intervals
	EvalInterval      time.Duration
	SyncInterval      time.Duration
	BalanceSync       time.Duration
	ReconnectBackoff  time.Duration
	CalibrateInterval time.Duration // backoff when calibration finds nothing

	// Notifications
	DiscordWebhook string

	// Database
	DBPath string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:              getEnv("PORT", "8080"),
		CandidateSymbols:  splitAndTrim(getEnv("TRADING_PAIRS", "BTCUSDT,ETHUSDT,SOLUSDT,BNBUSDT,ADAUSDT")),
		EliteLimit:        getEnvInt("ELITE_LIMIT", 3),
		DefaultProfile:    getEnv("RISK_PROFILE", "moderate"),
		ProfileFile:       getEnv("RISK_PROFILE_FILE", ""),
		FeePct:            getEnvFloat("FEE_PCT", 0.2),
		BinanceAPIKey:     os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret:  os.Getenv("BINANCE_API_SECRET"),
		BinanceTestnet:    getEnv("BINANCE_TESTNET", "false") == "true",
		UseMockFeed:       getEnv("USE_MOCK_FEED", "false") == "true",
		LiveTrading:       getEnv("LIVE_TRADING", "false") == "true",
		StartingBalance:   getEnvFloat("STARTING_BALANCE", 100.0),
		EvalInterval:      getEnvDuration("EVAL_INTERVAL", 10*time.Second),
		SyncInterval:      getEnvDuration("SYNC_INTERVAL", 10*time.Second),
		BalanceSync:       getEnvDuration("BALANCE_SYNC_INTERVAL", 30*time.Second),
		ReconnectBackoff:  getEnvDuration("RECONNECT_BACKOFF", 5*time.Second),
		CalibrateInterval: getEnvDuration("CALIBRATE_RETRY", 15*time.Minute),
		DiscordWebhook:    os.Getenv("DISCORD_WEBHOOK"),
		DBPath:            getEnv("DB_PATH", "./data/trades.db"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
