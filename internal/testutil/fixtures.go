package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"papertrade/internal/ledger"
	"papertrade/internal/models"
	"papertrade/internal/uuid"

	"gorm.io/gorm"
)

// DefaultBalance is the starting cash of test portfolios: 1,000,000.00.
const DefaultBalance int64 = 100_000_000

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// NewUserID returns a fresh user id. Users live in the identity service, so
// tests only need their ids.
func NewUserID() string {
	return uuid.New()
}

// CreateTestPortfolio creates a default portfolio holding DefaultBalance in cash.
func CreateTestPortfolio(t *testing.T, db *gorm.DB, userID string) *models.Portfolio {
	t.Helper()
	return CreateTestPortfolioWithBalance(t, db, userID, DefaultBalance)
}

// CreateTestPortfolioWithBalance creates a portfolio whose cash and initial balance are balance.
func CreateTestPortfolioWithBalance(t *testing.T, db *gorm.DB, userID string, balance int64) *models.Portfolio {
	t.Helper()

	portfolio := &models.Portfolio{
		UserID:         userID,
		Name:           fmt.Sprintf("Test Portfolio %d", nextID()),
		CashBalance:    balance,
		InitialBalance: balance,
		IsDefault:      true,
	}
	if err := db.Create(portfolio).Error; err != nil {
		t.Fatalf("failed to create test portfolio: %v", err)
	}
	return portfolio
}

// CreateTestPosition records an already-bought holding. The portfolio's cash,
// total invested and initial balance are adjusted so the ledger still
// reconciles, as if the shares had been bought without commission.
func CreateTestPosition(t *testing.T, db *gorm.DB, portfolio *models.Portfolio, symbol string, quantity, avgPrice int64) *models.Position {
	t.Helper()

	cost := quantity * avgPrice
	now := time.Now()
	position := &models.Position{
		PortfolioID:     portfolio.ID,
		Symbol:          symbol,
		Quantity:        quantity,
		CostBasis:       cost,
		AverageBuyPrice: ledger.AveragePrice(cost, quantity),
		CurrentPrice:    avgPrice,
		LastPricedAt:    &now,
	}
	if err := db.Create(position).Error; err != nil {
		t.Fatalf("failed to create test position: %v", err)
	}

	if portfolio.CashBalance >= cost {
		portfolio.CashBalance -= cost
	} else {
		portfolio.InitialBalance += cost - portfolio.CashBalance
		portfolio.CashBalance = 0
	}
	portfolio.TotalInvested += cost
	if err := db.Model(portfolio).Updates(map[string]interface{}{
		"cash_balance":    portfolio.CashBalance,
		"initial_balance": portfolio.InitialBalance,
		"total_invested":  portfolio.TotalInvested,
	}).Error; err != nil {
		t.Fatalf("failed to update test portfolio: %v", err)
	}
	return position
}

// CreateTestTrade creates a PENDING trade. limitOrStop is stored as the
// limit price for LIMIT orders and the stop price for STOP_LOSS orders.
func CreateTestTrade(t *testing.T, db *gorm.DB, portfolio *models.Portfolio, symbol string, side models.OrderSide, orderType models.OrderType, quantity int64, limitOrStop int64) *models.Trade {
	t.Helper()

	trade := &models.Trade{
		UserID:      portfolio.UserID,
		PortfolioID: portfolio.ID,
		Symbol:      symbol,
		Side:        side,
		OrderType:   orderType,
		Status:      models.OrderStatusPending,
		Quantity:    quantity,
	}
	switch orderType {
	case models.OrderTypeLimit:
		trade.LimitPrice = &limitOrStop
	case models.OrderTypeStopLoss:
		trade.StopPrice = &limitOrStop
	}
	if err := db.Create(trade).Error; err != nil {
		t.Fatalf("failed to create test trade: %v", err)
	}
	return trade
}

// CreateTestQuotePrice records a price for symbol at recordedAt.
func CreateTestQuotePrice(t *testing.T, db *gorm.DB, symbol string, price int64, recordedAt time.Time) *models.QuotePrice {
	t.Helper()

	qp := &models.QuotePrice{
		Symbol:     symbol,
		Price:      price,
		RecordedAt: recordedAt,
	}
	if err := db.Create(qp).Error; err != nil {
		t.Fatalf("failed to create test quote price: %v", err)
	}
	return qp
}

// ReloadPortfolio fetches the committed state of a portfolio.
func ReloadPortfolio(t *testing.T, db *gorm.DB, id string) *models.Portfolio {
	t.Helper()

	var p models.Portfolio
	if err := db.First(&p, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to reload portfolio: %v", err)
	}
	return &p
}

// ReloadTrade fetches the committed state of a trade.
func ReloadTrade(t *testing.T, db *gorm.DB, id string) *models.Trade {
	t.Helper()

	var trade models.Trade
	if err := db.First(&trade, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to reload trade: %v", err)
	}
	return &trade
}

// Positions returns the open positions of a portfolio ordered by symbol.
func Positions(t *testing.T, db *gorm.DB, portfolioID string) []models.Position {
	t.Helper()

	var positions []models.Position
	if err := db.Where("portfolio_id = ?", portfolioID).Order("symbol").Find(&positions).Error; err != nil {
		t.Fatalf("failed to load positions: %v", err)
	}
	return positions
}

// AssertReconciled fails the test when the committed ledger of a portfolio
// does not reconcile.
func AssertReconciled(t *testing.T, db *gorm.DB, portfolioID string) {
	t.Helper()

	p := ReloadPortfolio(t, db, portfolioID)
	if err := ledger.Reconcile(p, Positions(t, db, portfolioID)); err != nil {
		t.Fatalf("ledger does not reconcile: %v", err)
	}
}
