package models

import "time"

// OrderSide is the direction of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType selects how an order's execution is triggered.
type OrderType string

const (
	OrderTypeMarket   OrderType = "MARKET"
	OrderTypeLimit    OrderType = "LIMIT"
	OrderTypeStopLoss OrderType = "STOP_LOSS"
)

// IsDeferred reports whether orders of this type wait for a trigger.
func (t OrderType) IsDeferred() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLoss
}

// OrderStatus is the lifecycle state of a trade.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusExecuted  OrderStatus = "EXECUTED"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s != OrderStatusPending
}

// Trade records one order from submission to its terminal state. Once the
// status leaves PENDING the row is never updated again.
type Trade struct {
	Base
	UserID       string      `gorm:"type:uuid;not null;index" json:"user_id"`
	PortfolioID  string      `gorm:"type:uuid;not null;index:idx_trades_portfolio_status" json:"portfolio_id"`
	Symbol       string      `gorm:"not null;index" json:"symbol"`
	Side         OrderSide   `gorm:"not null" json:"side"`
	OrderType    OrderType   `gorm:"not null" json:"order_type"`
	Status       OrderStatus `gorm:"not null;index:idx_trades_portfolio_status" json:"status"`
	Quantity     int64       `gorm:"not null" json:"quantity"`
	LimitPrice   *int64      `gorm:"type:bigint" json:"limit_price,omitempty"`
	StopPrice    *int64      `gorm:"type:bigint" json:"stop_price,omitempty"`
	Price        int64       `gorm:"type:bigint;not null;default:0" json:"price"`
	TotalValue   int64       `gorm:"type:bigint;not null;default:0" json:"total_value"`
	Commission   int64       `gorm:"type:bigint;not null;default:0" json:"commission"`
	RealizedPnL  int64       `gorm:"column:realized_pnl;type:bigint;not null;default:0" json:"realized_pnl"`
	RejectReason string      `json:"reject_reason,omitempty"`
	Notes        string      `json:"notes,omitempty"`
	ExecutedAt   *time.Time  `json:"executed_at,omitempty"`
	ClosedAt     *time.Time  `json:"closed_at,omitempty"`
}

// TriggerPrice returns the limit or stop price of a deferred order.
func (t *Trade) TriggerPrice() (int64, bool) {
	switch t.OrderType {
	case OrderTypeLimit:
		if t.LimitPrice != nil {
			return *t.LimitPrice, true
		}
	case OrderTypeStopLoss:
		if t.StopPrice != nil {
			return *t.StopPrice, true
		}
	}
	return 0, false
}
