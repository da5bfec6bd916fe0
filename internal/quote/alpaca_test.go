package quote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

type fakeLatestTrader struct {
	trade *marketdata.Trade
	err   error
	delay time.Duration
	calls []string
}

func (f *fakeLatestTrader) GetLatestTrade(symbol string, _ marketdata.GetLatestTradeRequest) (*marketdata.Trade, error) {
	f.calls = append(f.calls, symbol)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.trade, f.err
}

func TestAlpacaSource_GetQuote(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

	t.Run("latest_trade_price", func(t *testing.T) {
		fake := &fakeLatestTrader{trade: &marketdata.Trade{Price: 178.72}}
		s := &AlpacaSource{client: fake, now: func() time.Time { return fixed }}

		q, err := s.GetQuote(context.Background(), "AAPL")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if q.Price != 17_872 || q.Symbol != "AAPL" || !q.AsOf.Equal(fixed) {
			t.Errorf("unexpected quote %+v", q)
		}
	})

	t.Run("client_error", func(t *testing.T) {
		fake := &fakeLatestTrader{err: errors.New("429 too many requests")}
		s := &AlpacaSource{client: fake, now: time.Now}

		if _, err := s.GetQuote(context.Background(), "AAPL"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("no_trade", func(t *testing.T) {
		s := &AlpacaSource{client: &fakeLatestTrader{}, now: time.Now}
		if _, err := s.GetQuote(context.Background(), "AAPL"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("context_timeout", func(t *testing.T) {
		fake := &fakeLatestTrader{trade: &marketdata.Trade{Price: 1}, delay: 200 * time.Millisecond}
		s := &AlpacaSource{client: fake, now: time.Now}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if _, err := s.GetQuote(ctx, "AAPL"); !errors.Is(err, ErrUnavailable) {
			t.Fatalf("expected ErrUnavailable, got %v", err)
		}
	})
}
