// Package ledger holds the position ledger: fill arithmetic, the
// reconciliation check and the atomic per-portfolio unit of work.
package ledger

import (
	"fmt"
	"math"
	"time"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/models"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// AveragePricePlaces is the precision kept for average buy prices, matching
// the decimal(24,8) column.
const AveragePricePlaces = 8

// Currency is the ISO code used when formatting amounts for people.
var Currency = money.INR

// Fill is the money movement of one execution. Amounts are minor units.
type Fill struct {
	Value       int64
	Commission  int64
	CostRemoved int64
	RealizedPnL int64
	// CashDelta is negative for buys and positive for sells.
	CashDelta int64
}

// FormatAmount renders minor units for messages, e.g. ₹2,500.00.
func FormatAmount(minor int64) string {
	return money.New(minor, Currency).Display()
}

// Commission returns round(value × rate), half away from zero.
func Commission(value int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(value).Mul(rate).Round(0).IntPart()
}

// OrderValue returns quantity × price, failing on overflow.
func OrderValue(quantity, price int64) (int64, error) {
	if quantity <= 0 || price <= 0 {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "Quantity and price must be positive")
	}
	if quantity > math.MaxInt64/price {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "Order value is too large")
	}
	return quantity * price, nil
}

// BuyCost returns value plus commission for buying quantity at price.
func BuyCost(quantity, price int64, rate decimal.Decimal) (value, commission int64, err error) {
	value, err = OrderValue(quantity, price)
	if err != nil {
		return 0, 0, err
	}
	commission = Commission(value, rate)
	if value > math.MaxInt64-commission {
		return 0, 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "Order value is too large")
	}
	return value, commission, nil
}

// AveragePrice derives the per-share average from an exact cost basis.
func AveragePrice(costBasis, quantity int64) decimal.Decimal {
	if quantity == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(costBasis).
		DivRound(decimal.NewFromInt(quantity), AveragePricePlaces)
}

// ApplyBuy debits the portfolio and grows (or opens) the position. pos may be
// nil when the portfolio holds no shares of symbol; the returned position is
// the one to persist.
func ApplyBuy(p *models.Portfolio, pos *models.Position, symbol string, quantity, price int64, rate decimal.Decimal, now time.Time) (*models.Position, Fill, error) {
	value, commission, err := BuyCost(quantity, price, rate)
	if err != nil {
		return nil, Fill{}, err
	}
	total := value + commission
	if total > p.CashBalance {
		return nil, Fill{}, apperrors.WithMessage(apperrors.ErrInsufficientFunds,
			fmt.Sprintf("Insufficient funds. Required: %s, Available: %s", FormatAmount(total), FormatAmount(p.CashBalance)))
	}

	if pos == nil {
		pos = &models.Position{PortfolioID: p.ID, Symbol: symbol}
	}
	pos.Quantity += quantity
	pos.CostBasis += value
	pos.AverageBuyPrice = AveragePrice(pos.CostBasis, pos.Quantity)
	pos.CurrentPrice = price
	pos.LastPricedAt = &now

	p.CashBalance -= total
	p.TotalInvested += value
	p.TotalCommission += commission
	p.BuyCommission += commission

	return pos, Fill{Value: value, Commission: commission, CashDelta: -total}, nil
}

// ApplySell credits the portfolio and shrinks the position at its unchanged
// average. The returned position has Quantity 0 when the sale closed it.
func ApplySell(p *models.Portfolio, pos *models.Position, quantity, price int64, rate decimal.Decimal, now time.Time) (*models.Position, Fill, error) {
	held := int64(0)
	if pos != nil {
		held = pos.Quantity
	}
	if quantity > held {
		return nil, Fill{}, apperrors.WithMessage(apperrors.ErrInsufficientHoldings,
			fmt.Sprintf("Insufficient holdings. Requested: %d, Available: %d", quantity, held))
	}

	value, err := OrderValue(quantity, price)
	if err != nil {
		return nil, Fill{}, err
	}
	commission := Commission(value, rate)

	costRemoved := pos.CostBasis
	if quantity < pos.Quantity {
		costRemoved = pos.AverageBuyPrice.Mul(decimal.NewFromInt(quantity)).Round(0).IntPart()
		if costRemoved > pos.CostBasis {
			costRemoved = pos.CostBasis
		}
	}
	realized := value - costRemoved - commission

	pos.Quantity -= quantity
	pos.CostBasis -= costRemoved
	pos.CurrentPrice = price
	pos.LastPricedAt = &now

	p.CashBalance += value - commission
	p.TotalInvested -= costRemoved
	p.RealizedPnL += realized
	p.TotalCommission += commission

	return pos, Fill{
		Value:       value,
		Commission:  commission,
		CostRemoved: costRemoved,
		RealizedPnL: realized,
		CashDelta:   value - commission,
	}, nil
}
