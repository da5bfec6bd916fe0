package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/ledger"
	"papertrade/internal/logger"
	"papertrade/internal/metrics"
	"papertrade/internal/models"
	"papertrade/internal/pagination"
	"papertrade/internal/validator"

	"gorm.io/gorm"
)

// tradingService admits, cancels and lists orders.
type tradingService struct {
	db           *gorm.DB
	validator    OrderValidator
	engine       OrderExecutor
	locks        *ledger.Locks
	auditService AuditServicer
	metrics      *metrics.Metrics
}

// NewTradingService creates a new TradingServicer.
func NewTradingService(db *gorm.DB, orderValidator OrderValidator, engine OrderExecutor, locks *ledger.Locks, auditService AuditServicer, m *metrics.Metrics) TradingServicer {
	return &tradingService{
		db:           db,
		validator:    orderValidator,
		engine:       engine,
		locks:        locks,
		auditService: auditService,
		metrics:      m,
	}
}

// findOwnedPortfolio loads a portfolio that belongs to userID. Portfolios of
// other users are reported as not found.
func findOwnedPortfolio(db *gorm.DB, userID, portfolioID string) (*models.Portfolio, error) {
	var portfolio models.Portfolio
	if err := db.Where("id = ? AND user_id = ?", portfolioID, userID).First(&portfolio).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrPortfolioNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &portfolio, nil
}

// SubmitOrder validates an order, records it as PENDING and, for MARKET
// orders, executes it before returning. Validation failures create no trade.
// When a MARKET order is rejected at execution the REJECTED trade is
// returned together with the error.
func (s *tradingService) SubmitOrder(
	ctx context.Context,
	userID, portfolioID, symbol string,
	side models.OrderSide,
	orderType models.OrderType,
	quantity int64,
	limitPrice, stopPrice *int64,
	notes, ipAddress string,
) (*models.Trade, error) {
	portfolio, err := findOwnedPortfolio(s.db, userID, portfolioID)
	if err != nil {
		return nil, err
	}

	symbol = validator.NormalizeTicker(symbol)
	side = models.OrderSide(strings.ToUpper(string(side)))
	orderType = models.OrderType(strings.ToUpper(string(orderType)))

	spec, err := s.validator.Validate(ctx, portfolio, OrderRequest{
		Symbol:     symbol,
		Side:       side,
		Type:       orderType,
		Quantity:   quantity,
		LimitPrice: limitPrice,
		StopPrice:  stopPrice,
	})
	if err != nil {
		logger.For("orders").Infow("order rejected at validation",
			"portfolio_id", portfolioID, "symbol", symbol, "side", side, "type", orderType, "error", err)
		return nil, err
	}

	trade := &models.Trade{
		UserID:      userID,
		PortfolioID: portfolio.ID,
		Symbol:      symbol,
		Side:        side,
		OrderType:   orderType,
		Status:      models.OrderStatusPending,
		Quantity:    quantity,
		LimitPrice:  limitPrice,
		StopPrice:   stopPrice,
		Notes:       notes,
	}
	if err := s.db.Create(trade).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	s.auditService.Log(AuditEvent{
		UserID:       userID,
		PortfolioID:  portfolio.ID,
		Action:       models.AuditActionSubmitOrder,
		ResourceType: "trade",
		ResourceID:   trade.ID,
		IPAddress:    ipAddress,
		Changes: map[string]any{
			"symbol":      symbol,
			"side":        side,
			"order_type":  orderType,
			"quantity":    quantity,
			"limit_price": limitPrice,
			"stop_price":  stopPrice,
		},
	})

	if spec.Type().IsDeferred() {
		s.metrics.RecordOrder(string(side), string(orderType), string(models.OrderStatusPending))
		return trade, nil
	}
	return s.engine.Execute(ctx, trade.ID)
}

// CancelOrder cancels a PENDING trade. It takes the portfolio lock so it
// cannot race a trigger firing the same trade.
func (s *tradingService) CancelOrder(ctx context.Context, userID, portfolioID, tradeID, ipAddress string) (*models.Trade, error) {
	trade, err := s.GetTrade(userID, portfolioID, tradeID)
	if err != nil {
		return nil, err
	}
	if trade.Status.IsTerminal() {
		return trade, apperrors.ErrAlreadyExecuted
	}

	release, err := s.locks.Acquire(ctx, trade.PortfolioID)
	if err != nil {
		return trade, apperrors.Wrap(apperrors.ErrConcurrencyTimeout, err)
	}
	defer release()

	result := s.db.Model(&models.Trade{}).
		Where("id = ? AND status = ?", trade.ID, models.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":    models.OrderStatusCancelled,
			"closed_at": time.Now(),
		})
	if result.Error != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}

	current, err := s.GetTrade(userID, portfolioID, tradeID)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return current, apperrors.ErrAlreadyExecuted
	}

	s.metrics.RecordOrder(string(current.Side), string(current.OrderType), string(models.OrderStatusCancelled))
	s.auditService.Log(AuditEvent{
		UserID:       userID,
		PortfolioID:  trade.PortfolioID,
		Action:       models.AuditActionCancelOrder,
		ResourceType: "trade",
		ResourceID:   trade.ID,
		IPAddress:    ipAddress,
		Changes:      map[string]any{"symbol": trade.Symbol, "quantity": trade.Quantity},
	})
	return current, nil
}

// GetTrade returns one trade of a portfolio owned by userID.
func (s *tradingService) GetTrade(userID, portfolioID, tradeID string) (*models.Trade, error) {
	var trade models.Trade
	if err := s.db.Where("id = ? AND portfolio_id = ? AND user_id = ?", tradeID, portfolioID, userID).
		First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTradeNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &trade, nil
}

// ListTrades returns the trade history of a portfolio, newest first.
func (s *tradingService) ListTrades(userID, portfolioID string, filter TradeFilter, page pagination.PageRequest) (*pagination.PageResponse[models.Trade], error) {
	if _, err := findOwnedPortfolio(s.db, userID, portfolioID); err != nil {
		return nil, err
	}
	page.Defaults()

	query := s.db.Model(&models.Trade{}).Where("portfolio_id = ?", portfolioID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Side != nil {
		query = query.Where("side = ?", *filter.Side)
	}
	if filter.Symbol != nil {
		query = query.Where("symbol = ?", validator.NormalizeTicker(*filter.Symbol))
	}
	if filter.FromDate != nil {
		query = query.Where("created_at >= ?", *filter.FromDate)
	}
	if filter.ToDate != nil {
		query = query.Where("created_at <= ?", *filter.ToDate)
	}

	var totalItems int64
	if err := query.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var trades []models.Trade
	if err := query.Order("created_at DESC, id DESC").Scopes(pagination.Paginate(page)).Find(&trades).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(trades, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// DescribeTrade renders the outcome of a trade for people, e.g.
// "Successfully bought 10 shares of RELIANCE at ₹2,500.00".
func DescribeTrade(trade *models.Trade) string {
	verb := "buy"
	past := "bought"
	if trade.Side == models.OrderSideSell {
		verb, past = "sell", "sold"
	}

	switch trade.Status {
	case models.OrderStatusExecuted:
		return fmt.Sprintf("Successfully %s %d shares of %s at %s", past, trade.Quantity, trade.Symbol, ledger.FormatAmount(trade.Price))
	case models.OrderStatusPending:
		if price, ok := trade.TriggerPrice(); ok {
			kind := "Limit"
			if trade.OrderType == models.OrderTypeStopLoss {
				kind = "Stop-loss"
			}
			return fmt.Sprintf("%s order to %s %d shares of %s at %s placed", kind, verb, trade.Quantity, trade.Symbol, ledger.FormatAmount(price))
		}
		return fmt.Sprintf("Order to %s %d shares of %s is pending", verb, trade.Quantity, trade.Symbol)
	case models.OrderStatusCancelled:
		return fmt.Sprintf("Order to %s %d shares of %s cancelled", verb, trade.Quantity, trade.Symbol)
	default:
		return fmt.Sprintf("Order to %s %d shares of %s rejected: %s", verb, trade.Quantity, trade.Symbol, trade.RejectReason)
	}
}
