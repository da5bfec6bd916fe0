package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	// Server
	Env  string
	Port string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT
	JWTSecret string

	// Pipeline
	PipelineAPIKey string

	Trading TradingConfig
}

// TradingConfig holds the knobs of the trading engine.
type TradingConfig struct {
	CommissionRate    decimal.Decimal
	InitialBalance    int64
	LockTimeout       time.Duration
	QuoteTimeout      time.Duration
	QuoteTTL          time.Duration
	QuoteMaxStaleness time.Duration
	QuoteSource       string
	QuoteExchange     string
	ScanConcurrency   int
	AlpacaAPIKey      string
	AlpacaAPISecret   string
}

// fileConfig is the optional YAML overlay read from CONFIG_FILE.
type fileConfig struct {
	Trading struct {
		CommissionRate    string `yaml:"commission_rate"`
		InitialBalance    int64  `yaml:"initial_balance"`
		LockTimeout       string `yaml:"lock_timeout"`
		QuoteTimeout      string `yaml:"quote_timeout"`
		QuoteTTL          string `yaml:"quote_ttl"`
		QuoteMaxStaleness string `yaml:"quote_max_staleness"`
		QuoteSource       string `yaml:"quote_source"`
		QuoteExchange     string `yaml:"quote_exchange"`
		ScanConcurrency   int    `yaml:"scan_concurrency"`
	} `yaml:"trading"`
}

// DefaultTrading returns the trading configuration used when nothing is set.
func DefaultTrading() TradingConfig {
	return TradingConfig{
		CommissionRate:    decimal.RequireFromString("0.001"),
		InitialBalance:    100_000_000, // 1,000,000.00
		LockTimeout:       5 * time.Second,
		QuoteTimeout:      3 * time.Second,
		QuoteTTL:          15 * time.Second,
		QuoteMaxStaleness: 15 * time.Minute,
		QuoteSource:       "yahoo",
		QuoteExchange:     "NSE",
		ScanConcurrency:   8,
	}
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	config := &Config{
		Env:  getEnv("ENV", "development"),
		Port: getEnv("PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "papertrade"),
		DBPassword: getEnv("DB_PASSWORD", "papertrade"),
		DBName:     getEnv("DB_NAME", "papertrade"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:      getEnv("JWT_SECRET", "fallback-secret-key-for-dev-only"),
		PipelineAPIKey: getEnv("PIPELINE_API_KEY", ""),

		Trading: DefaultTrading(),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := config.Trading.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := config.Trading.applyEnv(); err != nil {
		return nil, err
	}
	if err := config.Trading.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (t *TradingConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	ft := fc.Trading
	if ft.CommissionRate != "" {
		rate, err := decimal.NewFromString(ft.CommissionRate)
		if err != nil {
			return fmt.Errorf("trading.commission_rate: %w", err)
		}
		t.CommissionRate = rate
	}
	if ft.InitialBalance != 0 {
		t.InitialBalance = ft.InitialBalance
	}
	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"trading.lock_timeout", ft.LockTimeout, &t.LockTimeout},
		{"trading.quote_timeout", ft.QuoteTimeout, &t.QuoteTimeout},
		{"trading.quote_ttl", ft.QuoteTTL, &t.QuoteTTL},
		{"trading.quote_max_staleness", ft.QuoteMaxStaleness, &t.QuoteMaxStaleness},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	if ft.QuoteSource != "" {
		t.QuoteSource = ft.QuoteSource
	}
	if ft.QuoteExchange != "" {
		t.QuoteExchange = ft.QuoteExchange
	}
	if ft.ScanConcurrency != 0 {
		t.ScanConcurrency = ft.ScanConcurrency
	}
	return nil
}

func (t *TradingConfig) applyEnv() error {
	if v := os.Getenv("COMMISSION_RATE"); v != "" {
		rate, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("invalid COMMISSION_RATE %q: %w", v, err)
		}
		t.CommissionRate = rate
	}
	if v := os.Getenv("INITIAL_BALANCE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid INITIAL_BALANCE %q: %w", v, err)
		}
		t.InitialBalance = n
	}
	t.LockTimeout = getDuration("LOCK_TIMEOUT", t.LockTimeout)
	t.QuoteTimeout = getDuration("QUOTE_TIMEOUT", t.QuoteTimeout)
	t.QuoteTTL = getDuration("QUOTE_TTL", t.QuoteTTL)
	t.QuoteMaxStaleness = getDuration("QUOTE_MAX_STALENESS", t.QuoteMaxStaleness)
	t.QuoteSource = getEnv("QUOTE_SOURCE", t.QuoteSource)
	t.QuoteExchange = getEnv("QUOTE_EXCHANGE", t.QuoteExchange)
	if v := os.Getenv("SCAN_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SCAN_CONCURRENCY %q: %w", v, err)
		}
		t.ScanConcurrency = n
	}
	t.AlpacaAPIKey = getEnv("ALPACA_API_KEY", t.AlpacaAPIKey)
	t.AlpacaAPISecret = getEnv("ALPACA_API_SECRET", t.AlpacaAPISecret)
	return nil
}

// Validate rejects settings the engine cannot run with.
func (t TradingConfig) Validate() error {
	if t.CommissionRate.IsNegative() || t.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("commission rate must be in [0, 1), got %s", t.CommissionRate)
	}
	if t.InitialBalance <= 0 {
		return fmt.Errorf("initial balance must be positive, got %d", t.InitialBalance)
	}
	if t.LockTimeout <= 0 || t.QuoteTimeout <= 0 {
		return fmt.Errorf("lock and quote timeouts must be positive")
	}
	if t.QuoteMaxStaleness < t.QuoteTTL {
		return fmt.Errorf("quote max staleness (%s) must not be shorter than the TTL (%s)", t.QuoteMaxStaleness, t.QuoteTTL)
	}
	switch t.QuoteSource {
	case "store", "yahoo", "alpaca":
	default:
		return fmt.Errorf("unknown quote source %q", t.QuoteSource)
	}
	if t.ScanConcurrency < 1 {
		return fmt.Errorf("scan concurrency must be at least 1, got %d", t.ScanConcurrency)
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, raw, defaultValue)
		return defaultValue
	}
	return d
}
