package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/ledger"
	"papertrade/internal/models"
	"papertrade/internal/quote"
	"papertrade/internal/validator"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderSpec is how an order is triggered: MarketOrder, LimitOrder or
// StopLossOrder. Building one through NewOrderSpec guarantees that the
// trigger price is present exactly when the order type needs it.
type OrderSpec interface {
	Type() models.OrderType
	// Triggered reports whether an order on side may fill at price.
	Triggered(side models.OrderSide, price int64) bool
}

// MarketOrder fills immediately at the current quote.
type MarketOrder struct{}

// LimitOrder fills when the quote is at or better than Price.
type LimitOrder struct{ Price int64 }

// StopLossOrder sells once the quote falls to or below StopPrice.
type StopLossOrder struct{ StopPrice int64 }

func (MarketOrder) Type() models.OrderType   { return models.OrderTypeMarket }
func (LimitOrder) Type() models.OrderType    { return models.OrderTypeLimit }
func (StopLossOrder) Type() models.OrderType { return models.OrderTypeStopLoss }

func (MarketOrder) Triggered(models.OrderSide, int64) bool { return true }

func (o LimitOrder) Triggered(side models.OrderSide, price int64) bool {
	if side == models.OrderSideBuy {
		return price <= o.Price
	}
	return price >= o.Price
}

func (o StopLossOrder) Triggered(side models.OrderSide, price int64) bool {
	return side == models.OrderSideSell && price <= o.StopPrice
}

// NewOrderSpec builds the spec for orderType from the optional trigger prices.
func NewOrderSpec(orderType models.OrderType, limitPrice, stopPrice *int64) (OrderSpec, error) {
	switch orderType {
	case models.OrderTypeMarket:
		if limitPrice != nil || stopPrice != nil {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Market orders cannot have a limit or stop price")
		}
		return MarketOrder{}, nil
	case models.OrderTypeLimit:
		if stopPrice != nil {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Limit orders cannot have a stop price")
		}
		if limitPrice == nil || *limitPrice <= 0 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Limit orders require a positive limit price")
		}
		return LimitOrder{Price: *limitPrice}, nil
	case models.OrderTypeStopLoss:
		if limitPrice != nil {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Stop-loss orders cannot have a limit price")
		}
		if stopPrice == nil || *stopPrice <= 0 {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Stop-loss orders require a positive stop price")
		}
		return StopLossOrder{StopPrice: *stopPrice}, nil
	default:
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, fmt.Sprintf("Unknown order type %q", orderType))
	}
}

// specOf rebuilds the spec stored on a trade.
func specOf(trade *models.Trade) (OrderSpec, error) {
	return NewOrderSpec(trade.OrderType, trade.LimitPrice, trade.StopPrice)
}

// orderValidator checks orders before they are admitted.
type orderValidator struct {
	db           *gorm.DB
	oracle       quote.Oracle
	rate         decimal.Decimal
	quoteTimeout time.Duration
}

// NewOrderValidator creates a new OrderValidator.
func NewOrderValidator(db *gorm.DB, oracle quote.Oracle, rate decimal.Decimal, quoteTimeout time.Duration) OrderValidator {
	return &orderValidator{db: db, oracle: oracle, rate: rate, quoteTimeout: quoteTimeout}
}

// Validate runs the admission checks in order and returns the first failure:
// symbol, quantity, order type and trigger price, side, then funds or
// holdings. It never writes. The BUY estimate is advisory: the fill is
// re-checked against the real price at execution.
func (v *orderValidator) Validate(ctx context.Context, portfolio *models.Portfolio, order OrderRequest) (OrderSpec, error) {
	if !validator.IsTicker(order.Symbol) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, fmt.Sprintf("Invalid symbol %q", order.Symbol))
	}
	if order.Quantity <= 0 {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Quantity must be a positive whole number")
	}
	spec, err := NewOrderSpec(order.Type, order.LimitPrice, order.StopPrice)
	if err != nil {
		return nil, err
	}
	if order.Side != models.OrderSideBuy && order.Side != models.OrderSideSell {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, fmt.Sprintf("Unknown order side %q", order.Side))
	}
	if _, ok := spec.(StopLossOrder); ok && order.Side != models.OrderSideSell {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Stop-loss orders must be sell orders")
	}

	if order.Side == models.OrderSideBuy {
		err = v.checkFunds(ctx, portfolio, order.Symbol, spec, order.Quantity)
	} else {
		err = v.checkHoldings(portfolio, order.Symbol, order.Quantity)
	}
	if err != nil {
		return nil, err
	}
	return spec, nil
}

func (v *orderValidator) checkFunds(ctx context.Context, portfolio *models.Portfolio, symbol string, spec OrderSpec, quantity int64) error {
	var reference int64
	switch s := spec.(type) {
	case LimitOrder:
		reference = s.Price
	default:
		qctx, cancel := context.WithTimeout(ctx, v.quoteTimeout)
		defer cancel()
		q, err := v.oracle.GetQuote(qctx, symbol)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrQuoteUnavailable, err)
		}
		if q.Stale {
			return apperrors.Wrap(apperrors.ErrQuoteUnavailable, fmt.Errorf("quote for %s is stale (as of %s)", symbol, q.AsOf))
		}
		reference = q.Price
	}

	value, commission, err := ledger.BuyCost(quantity, reference, v.rate)
	if err != nil {
		return err
	}
	if required := value + commission; required > portfolio.CashBalance {
		return apperrors.WithMessage(apperrors.ErrInsufficientFunds,
			fmt.Sprintf("Insufficient funds. Required: %s, Available: %s",
				ledger.FormatAmount(required), ledger.FormatAmount(portfolio.CashBalance)))
	}
	return nil
}

func (v *orderValidator) checkHoldings(portfolio *models.Portfolio, symbol string, quantity int64) error {
	var position models.Position
	held := int64(0)
	err := v.db.Where("portfolio_id = ? AND symbol = ?", portfolio.ID, symbol).First(&position).Error
	switch {
	case err == nil:
		held = position.Quantity
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if quantity > held {
		return apperrors.WithMessage(apperrors.ErrInsufficientHoldings,
			fmt.Sprintf("Insufficient holdings. Requested: %d, Available: %d", quantity, held))
	}
	return nil
}
