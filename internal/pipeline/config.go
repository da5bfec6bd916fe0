package pipeline

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the pipeline job configuration.
type Config struct {
	APIURL           string
	PipelineAPIKey   string
	RequestTimeout   time.Duration
	Exchange         string
	FetchConcurrency int
	ScanTriggers     bool
	ComputeSnapshots bool
}

// LoadConfig reads configuration from environment variables and validates required fields.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.APIURL = os.Getenv("PAPERTRADE_API_URL")
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("PAPERTRADE_API_URL is required")
	}

	cfg.PipelineAPIKey = os.Getenv("PIPELINE_API_KEY")
	if cfg.PipelineAPIKey == "" {
		return nil, fmt.Errorf("PIPELINE_API_KEY is required")
	}

	timeout, err := parseTimeout(os.Getenv("REQUEST_TIMEOUT"))
	if err != nil {
		return nil, err
	}
	cfg.RequestTimeout = timeout

	cfg.Exchange = strings.ToUpper(os.Getenv("QUOTE_EXCHANGE"))
	if cfg.Exchange == "" {
		cfg.Exchange = "NSE"
	}

	cfg.FetchConcurrency = 8
	if s := os.Getenv("FETCH_CONCURRENCY"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid FETCH_CONCURRENCY %q: must be a positive integer", s)
		}
		cfg.FetchConcurrency = n
	}

	if cfg.ScanTriggers, err = parseBool(os.Getenv("SCAN_TRIGGERS"), true); err != nil {
		return nil, fmt.Errorf("invalid SCAN_TRIGGERS value: %w", err)
	}
	if cfg.ComputeSnapshots, err = parseBool(os.Getenv("COMPUTE_SNAPSHOTS"), true); err != nil {
		return nil, fmt.Errorf("invalid COMPUTE_SNAPSHOTS value: %w", err)
	}

	return cfg, nil
}

func parseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid REQUEST_TIMEOUT %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("REQUEST_TIMEOUT must be positive, got %v", d)
	}
	return d, nil
}

func parseBool(s string, defaultVal bool) (bool, error) {
	if s == "" {
		return defaultVal, nil
	}
	switch strings.ToLower(s) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("must be true, false, 1, or 0, got %q", s)
	}
}
