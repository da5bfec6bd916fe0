package services

import (
	"context"
	"time"

	"papertrade/internal/models"
	"papertrade/internal/pagination"
)

// PortfolioSummary is a point-in-time valuation of a portfolio.
type PortfolioSummary struct {
	PortfolioID     string            `json:"portfolio_id"`
	Name            string            `json:"name"`
	CashBalance     int64             `json:"cash_balance"`
	InitialBalance  int64             `json:"initial_balance"`
	TotalInvested   int64             `json:"total_invested"`
	HoldingsValue   int64             `json:"holdings_value"`
	TotalEquity     int64             `json:"total_equity"`
	RealizedPnL     int64             `json:"realized_pnl"`
	UnrealizedPnL   int64             `json:"unrealized_pnl"`
	TotalPnL        int64             `json:"total_pnl"`
	TotalPnLPct     float64           `json:"total_pnl_pct"`
	TotalCommission int64             `json:"total_commission"`
	NumPositions    int               `json:"num_positions"`
	Stale           bool              `json:"stale"`
	Positions       []models.Position `json:"positions"`
	ValuedAt        time.Time         `json:"valued_at"`
}

// PortfolioServicer defines the contract for portfolio reads and valuation.
type PortfolioServicer interface {
	CreateDefaultPortfolio(userID string) (*models.Portfolio, error)
	GetUserPortfolios(userID string) ([]models.Portfolio, error)
	GetPortfolio(userID, portfolioID string) (*models.Portfolio, error)
	ListPositions(userID, portfolioID string) ([]models.Position, error)
	GetPortfolioSummary(ctx context.Context, userID, portfolioID string) (*PortfolioSummary, error)
	Summarize(ctx context.Context, portfolioID string) (*PortfolioSummary, error)
}

// TradeFilter holds optional filter parameters for listing trades.
type TradeFilter struct {
	Status   *models.OrderStatus
	Side     *models.OrderSide
	Symbol   *string
	FromDate *time.Time
	ToDate   *time.Time
}

// TradingServicer defines the contract for order submission and trade history.
type TradingServicer interface {
	SubmitOrder(ctx context.Context, userID, portfolioID, symbol string, side models.OrderSide, orderType models.OrderType, quantity int64, limitPrice, stopPrice *int64, notes, ipAddress string) (*models.Trade, error)
	CancelOrder(ctx context.Context, userID, portfolioID, tradeID, ipAddress string) (*models.Trade, error)
	GetTrade(userID, portfolioID, tradeID string) (*models.Trade, error)
	ListTrades(userID, portfolioID string, filter TradeFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Trade], error)
}

// OrderRequest is an order as submitted, before admission.
type OrderRequest struct {
	Symbol     string
	Side       models.OrderSide
	Type       models.OrderType
	Quantity   int64
	LimitPrice *int64
	StopPrice  *int64
}

// OrderValidator decides whether an order may be admitted and returns its
// trigger spec when it is.
type OrderValidator interface {
	Validate(ctx context.Context, portfolio *models.Portfolio, order OrderRequest) (OrderSpec, error)
}

// OrderExecutor fills admitted trades.
type OrderExecutor interface {
	Execute(ctx context.Context, tradeID string) (*models.Trade, error)
}

// TriggerScanner fires deferred orders whose trigger condition holds.
type TriggerScanner interface {
	ScanTriggers(ctx context.Context) (int, error)
}

// PortfolioSnapshotServicer defines the contract for portfolio snapshot operations.
type PortfolioSnapshotServicer interface {
	ComputeAndRecordSnapshots(ctx context.Context, recordedAt time.Time) (int, error)
	RecordSnapshot(ctx context.Context, userID, portfolioID string, recordedAt time.Time) (*models.PortfolioSnapshot, error)
	GetSnapshots(userID, portfolioID string, from, to time.Time, page pagination.PageRequest) (*pagination.PageResponse[models.PortfolioSnapshot], error)
}

// QuotePriceInput is one recorded price pushed by the pipeline.
type QuotePriceInput struct {
	Symbol     string
	Price      int64
	RecordedAt time.Time
}

// QuotePriceServicer defines the contract for the recorded price series.
type QuotePriceServicer interface {
	RecordPrices(prices []QuotePriceInput) (int, error)
	GetPriceHistory(symbol string, from, to time.Time, page pagination.PageRequest) (*pagination.PageResponse[models.QuotePrice], error)
	TrackedSymbols() ([]string, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(event AuditEvent)
}
