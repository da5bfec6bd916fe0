package quote

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// latestTrader is the part of the Alpaca market-data client we use.
type latestTrader interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

// AlpacaSource prices symbols from the latest trade on Alpaca's market data API.
type AlpacaSource struct {
	client latestTrader
	now    func() time.Time
}

// NewAlpacaSource creates an Alpaca source. dataURL may be empty for the default endpoint.
func NewAlpacaSource(apiKey, apiSecret, dataURL string) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaSource{client: marketdata.NewClient(opts), now: time.Now}
}

// Name returns the source's display name.
func (s *AlpacaSource) Name() string { return "alpaca" }

// GetQuote returns the price of the latest trade in symbol. The client has
// no context support, so the call runs in a goroutine that ctx can abandon.
func (s *AlpacaSource) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	type result struct {
		trade *marketdata.Trade
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		trade, err := s.client.GetLatestTrade(symbol, marketdata.GetLatestTradeRequest{})
		ch <- result{trade: trade, err: err}
	}()

	select {
	case <-ctx.Done():
		return Quote{}, unavailable(symbol, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return Quote{}, unavailable(symbol, r.err)
		}
		if r.trade == nil || r.trade.Price <= 0 {
			return Quote{}, unavailable(symbol, fmt.Errorf("no trades for %s", symbol))
		}
		return Quote{
			Symbol: symbol,
			Price:  ToMinorUnits(r.trade.Price),
			AsOf:   s.now(),
		}, nil
	}
}
