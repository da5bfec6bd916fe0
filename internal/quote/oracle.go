// Package quote provides current market prices to the trading engine.
package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when no usable price exists for a symbol.
// Timeouts are reported as ErrUnavailable too.
var ErrUnavailable = errors.New("quote: price unavailable")

// Quote is the price of one share in minor units.
type Quote struct {
	Symbol string    `json:"symbol"`
	Price  int64     `json:"price"`
	AsOf   time.Time `json:"as_of"`
	// Stale is set when the price is older than the fresh window. Stale
	// quotes may be shown to people but must never be executed against.
	Stale bool `json:"stale"`
}

// Oracle returns the current price of a symbol.
type Oracle interface {
	GetQuote(ctx context.Context, symbol string) (Quote, error)
}

// Source is an Oracle with a name, used for metrics and logs.
type Source interface {
	Oracle
	Name() string
}

// unavailable wraps cause so that errors.Is(err, ErrUnavailable) holds.
func unavailable(symbol string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, symbol)
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, symbol, cause)
}

// ToMinorUnits converts a major-unit float price (e.g. 2500.55) to minor units.
func ToMinorUnits(price float64) int64 {
	return decimal.NewFromFloat(price).Shift(2).Round(0).IntPart()
}
