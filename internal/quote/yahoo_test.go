package quote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func chartResponse(symbol string, price float64) yahooChartResponse {
	var resp yahooChartResponse
	resp.Chart.Result = make([]struct {
		Meta struct {
			Symbol             string  `json:"symbol"`
			Currency           string  `json:"currency"`
			RegularMarketPrice float64 `json:"regularMarketPrice"`
			RegularMarketTime  int64   `json:"regularMarketTime"`
		} `json:"meta"`
	}, 1)
	resp.Chart.Result[0].Meta.Symbol = symbol
	resp.Chart.Result[0].Meta.Currency = "INR"
	resp.Chart.Result[0].Meta.RegularMarketPrice = price
	return resp
}

// newChartServer serves chart responses for the tickers in prices and a
// chart error for everything else.
func newChartServer(t *testing.T, prices map[string]float64, paths *[]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ticker := strings.TrimPrefix(r.URL.Path, "/")
		if paths != nil {
			*paths = append(*paths, ticker)
		}
		w.Header().Set("Content-Type", "application/json")
		price, ok := prices[ticker]
		if !ok {
			var resp yahooChartResponse
			resp.Chart.Error = &struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			}{Code: "Not Found", Description: "No data found, symbol may be delisted"}
			_ = json.NewEncoder(w).Encode(resp)
			return
		}
		_ = json.NewEncoder(w).Encode(chartResponse(ticker, price))
	}))
}

func TestYahooSource_GetQuote(t *testing.T) {
	var paths []string
	server := newChartServer(t, map[string]float64{"RELIANCE.NS": 2500.55}, &paths)
	defer server.Close()

	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewYahooSource(server.Client(), "NSE")
	s.baseURL = server.URL
	s.now = func() time.Time { return fixed }

	q, err := s.GetQuote(context.Background(), "RELIANCE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Price != 250_055 {
		t.Errorf("price = %d, want 250055", q.Price)
	}
	if !q.AsOf.Equal(fixed) {
		t.Errorf("as_of = %s, want %s", q.AsOf, fixed)
	}
	if len(paths) != 1 || paths[0] != "RELIANCE.NS" {
		t.Errorf("expected request for RELIANCE.NS, got %v", paths)
	}
}

func TestYahooSource_Failures(t *testing.T) {
	t.Run("chart_error", func(t *testing.T) {
		server := newChartServer(t, nil, nil)
		defer server.Close()
		s := NewYahooSource(server.Client(), "NSE")
		s.baseURL = server.URL

		_, err := s.GetQuote(context.Background(), "NOPE")
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("zero_price", func(t *testing.T) {
		server := newChartServer(t, map[string]float64{"ZERO.NS": 0}, nil)
		defer server.Close()
		s := NewYahooSource(server.Client(), "NSE")
		s.baseURL = server.URL

		if _, err := s.GetQuote(context.Background(), "ZERO"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("http_500", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()
		s := NewYahooSource(server.Client(), "NSE")
		s.baseURL = server.URL

		if _, err := s.GetQuote(context.Background(), "TCS"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer server.Close()
		s := NewYahooSource(server.Client(), "NSE")
		s.baseURL = server.URL

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if _, err := s.GetQuote(ctx, "TCS"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable on timeout, got %v", err)
		}
	})
}

func TestYahooSource_Ticker(t *testing.T) {
	tests := []struct {
		exchange string
		symbol   string
		want     string
	}{
		{"NSE", "TCS", "TCS.NS"},
		{"BSE", "TCS", "TCS.BO"},
		{"NASDAQ", "AAPL", "AAPL"},
		{"UNKNOWN", "AAPL", "AAPL"},
	}
	for _, tt := range tests {
		s := NewYahooSource(http.DefaultClient, tt.exchange)
		if got := s.Ticker(tt.symbol); got != tt.want {
			t.Errorf("Ticker(%s on %s) = %s, want %s", tt.symbol, tt.exchange, got, tt.want)
		}
	}
}

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		in   float64
		want int64
	}{
		{2500, 250_000},
		{2500.55, 250_055},
		{0.1 + 0.2, 30},
		{178.725, 17_873},
	}
	for _, tt := range tests {
		if got := ToMinorUnits(tt.in); got != tt.want {
			t.Errorf("ToMinorUnits(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
