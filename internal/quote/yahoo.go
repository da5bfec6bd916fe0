package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	yahooBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	yahooUA      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"
)

// exchangeSuffixes maps exchange codes to Yahoo Finance ticker suffixes.
var exchangeSuffixes = map[string]string{
	"NSE":    ".NS",
	"BSE":    ".BO",
	"TSX":    ".TO",
	"LSE":    ".L",
	"HKEX":   ".HK",
	"ASX":    ".AX",
	"SGX":    ".SI",
	"JPX":    ".T",
	"XETRA":  ".DE",
	"NASDAQ": "",
	"NYSE":   "",
}

// yahooChartResponse is the v8 chart API response.
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				RegularMarketTime  int64   `json:"regularMarketTime"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// YahooSource fetches prices from the Yahoo Finance chart endpoint.
type YahooSource struct {
	httpClient *http.Client
	baseURL    string // overridable for tests
	suffix     string
	now        func() time.Time
}

// NewYahooSource creates a Yahoo source for symbols listed on exchange (e.g. NSE).
func NewYahooSource(httpClient *http.Client, exchange string) *YahooSource {
	return &YahooSource{
		httpClient: httpClient,
		baseURL:    yahooBaseURL,
		suffix:     exchangeSuffixes[exchange],
		now:        time.Now,
	}
}

// Name returns the source's display name.
func (s *YahooSource) Name() string { return "yahoo" }

// Ticker converts an exchange symbol to its Yahoo ticker, e.g. RELIANCE → RELIANCE.NS.
func (s *YahooSource) Ticker(symbol string) string {
	return symbol + s.suffix
}

// GetQuote fetches the regular market price of symbol.
func (s *YahooSource) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	ticker := s.Ticker(symbol)
	endpoint := s.baseURL + "/" + url.PathEscape(ticker) + "?interval=1d&range=1d"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, unavailable(symbol, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("User-Agent", yahooUA)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Quote{}, unavailable(symbol, fmt.Errorf("http request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, unavailable(symbol, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var chartResp yahooChartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chartResp); err != nil {
		return Quote{}, unavailable(symbol, fmt.Errorf("decoding response: %w", err))
	}
	if chartResp.Chart.Error != nil {
		return Quote{}, unavailable(symbol, fmt.Errorf("chart error: %s: %s", chartResp.Chart.Error.Code, chartResp.Chart.Error.Description))
	}
	if len(chartResp.Chart.Result) == 0 {
		return Quote{}, unavailable(symbol, fmt.Errorf("no results for %s", ticker))
	}

	meta := chartResp.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return Quote{}, unavailable(symbol, fmt.Errorf("invalid price %f for %s", meta.RegularMarketPrice, ticker))
	}

	// The quote is as fresh as our fetch; regularMarketTime is the last
	// trade, which is hours old outside market hours.
	return Quote{
		Symbol: symbol,
		Price:  ToMinorUnits(meta.RegularMarketPrice),
		AsOf:   s.now(),
	}, nil
}
