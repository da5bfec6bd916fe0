package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/ledger"
	"papertrade/internal/logger"
	"papertrade/internal/metrics"
	"papertrade/internal/models"
	"papertrade/internal/quote"

	"gorm.io/gorm"
)

const busyReason = "Portfolio is busy, please retry"

// executionEngine fills trades one portfolio at a time.
type executionEngine struct {
	db           *gorm.DB
	store        *ledger.Store
	locks        *ledger.Locks
	oracle       quote.Oracle
	quoteTimeout time.Duration
	metrics      *metrics.Metrics
	now          func() time.Time
}

// NewExecutionEngine creates a new OrderExecutor. locks must be shared with
// every other writer of the same portfolios, including cancellation.
func NewExecutionEngine(db *gorm.DB, store *ledger.Store, locks *ledger.Locks, oracle quote.Oracle, quoteTimeout time.Duration, m *metrics.Metrics) OrderExecutor {
	return &executionEngine{
		db:           db,
		store:        store,
		locks:        locks,
		oracle:       oracle,
		quoteTimeout: quoteTimeout,
		metrics:      m,
		now:          time.Now,
	}
}

// Execute fills a PENDING trade at the current quote.
//
// Outcomes:
//   - nil error: the trade is EXECUTED and the ledger changed atomically.
//   - ErrTriggerNotMet: a deferred order's condition no longer holds; it stays PENDING.
//   - ErrAlreadyExecuted: the trade left PENDING before we got the lock.
//   - ErrConcurrencyTimeout or ErrQuoteUnavailable: a MARKET order is
//     REJECTED; a deferred order stays PENDING for the next scan.
//   - any other error: the ledger is untouched and the trade is REJECTED.
//
// The returned trade reflects the committed row whenever it could be read.
func (e *executionEngine) Execute(ctx context.Context, tradeID string) (*models.Trade, error) {
	log := logger.For("engine")

	trade, err := e.loadTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade.Status.IsTerminal() {
		return trade, apperrors.ErrAlreadyExecuted
	}

	waitStart := e.now()
	release, err := e.locks.Acquire(ctx, trade.PortfolioID)
	e.metrics.ObserveLockWait(e.now().Sub(waitStart), errors.Is(err, ledger.ErrLockTimeout))
	if err != nil {
		log.Warnw("portfolio lock not acquired", "trade_id", trade.ID, "portfolio_id", trade.PortfolioID, "error", err)
		if trade.OrderType.IsDeferred() {
			return trade, apperrors.Wrap(apperrors.ErrConcurrencyTimeout, err)
		}
		return e.reject(trade, busyReason, apperrors.Wrap(apperrors.ErrConcurrencyTimeout, err))
	}
	defer release()

	// Re-read under the lock: a cancellation or another execution may have won.
	trade, err = e.loadTrade(tradeID)
	if err != nil {
		return nil, err
	}
	if trade.Status.IsTerminal() {
		return trade, apperrors.ErrAlreadyExecuted
	}

	spec, err := specOf(trade)
	if err != nil {
		return e.reject(trade, err.Error(), err)
	}

	price, err := e.currentPrice(ctx, trade.Symbol)
	if err != nil {
		log.Warnw("quote unavailable for execution", "trade_id", trade.ID, "symbol", trade.Symbol, "error", err)
		if trade.OrderType.IsDeferred() {
			return trade, err
		}
		return e.reject(trade, apperrors.ErrQuoteUnavailable.Message, err)
	}

	if !spec.Triggered(trade.Side, price) {
		return trade, apperrors.WithMessage(apperrors.ErrTriggerNotMet,
			fmt.Sprintf("Trigger not met for %s at %s", trade.Symbol, ledger.FormatAmount(price)))
	}

	err = e.store.Update(ctx, trade.PortfolioID, func(u *ledger.Unit) error {
		var (
			fill ledger.Fill
			err  error
		)
		if trade.Side == models.OrderSideBuy {
			fill, err = u.Buy(trade.Symbol, trade.Quantity, price)
		} else {
			fill, err = u.Sell(trade.Symbol, trade.Quantity, price)
		}
		if err != nil {
			return err
		}

		now := e.now()
		result := u.Tx().Model(&models.Trade{}).
			Where("id = ? AND status = ?", trade.ID, models.OrderStatusPending).
			Updates(map[string]interface{}{
				"status":       models.OrderStatusExecuted,
				"price":        price,
				"total_value":  fill.Value,
				"commission":   fill.Commission,
				"realized_pnl": fill.RealizedPnL,
				"executed_at":  now,
				"closed_at":    now,
			})
		if result.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.ErrAlreadyExecuted
		}
		return nil
	})
	if err != nil {
		return e.handleFillError(trade, err)
	}

	executed, err := e.loadTrade(tradeID)
	if err != nil {
		return nil, err
	}
	e.metrics.RecordOrder(string(executed.Side), string(executed.OrderType), string(executed.Status))
	log.Infow("trade executed",
		"trade_id", executed.ID,
		"portfolio_id", executed.PortfolioID,
		"symbol", executed.Symbol,
		"side", executed.Side,
		"quantity", executed.Quantity,
		"price", executed.Price,
		"commission", executed.Commission,
	)
	return executed, nil
}

// currentPrice fetches a fresh quote with the configured timeout. Stale
// quotes are refused.
func (e *executionEngine) currentPrice(ctx context.Context, symbol string) (int64, error) {
	qctx, cancel := context.WithTimeout(ctx, e.quoteTimeout)
	defer cancel()

	q, err := e.oracle.GetQuote(qctx, symbol)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrQuoteUnavailable, err)
	}
	if q.Stale || q.Price <= 0 {
		return 0, apperrors.Wrap(apperrors.ErrQuoteUnavailable,
			fmt.Errorf("no fresh quote for %s (as of %s)", symbol, q.AsOf))
	}
	return q.Price, nil
}

func (e *executionEngine) handleFillError(trade *models.Trade, err error) (*models.Trade, error) {
	log := logger.For("engine")

	switch {
	case errors.Is(err, apperrors.ErrAlreadyExecuted):
		current, loadErr := e.loadTrade(trade.ID)
		if loadErr != nil {
			return trade, err
		}
		return current, err

	case errors.Is(err, apperrors.ErrInconsistency):
		e.metrics.RecordInconsistency()
		log.Errorw("ledger inconsistency, fill rolled back",
			"trade_id", trade.ID,
			"portfolio_id", trade.PortfolioID,
			"symbol", trade.Symbol,
			"side", trade.Side,
			"quantity", trade.Quantity,
			"error", err,
		)
		return e.reject(trade, apperrors.ErrInconsistency.Message, err)

	case errors.Is(err, apperrors.ErrConcurrencyTimeout) && trade.OrderType.IsDeferred():
		log.Warnw("portfolio changed during fill, will retry", "trade_id", trade.ID, "error", err)
		return trade, err
	}

	reason := apperrors.ErrInternalServer.Message
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		reason = appErr.Message
	}
	log.Infow("trade rejected at execution",
		"trade_id", trade.ID,
		"portfolio_id", trade.PortfolioID,
		"symbol", trade.Symbol,
		"reason", reason,
		"error", err,
	)
	return e.reject(trade, reason, err)
}

// reject moves a PENDING trade to REJECTED and returns cause. A trade that
// already left PENDING is returned unchanged.
func (e *executionEngine) reject(trade *models.Trade, reason string, cause error) (*models.Trade, error) {
	now := e.now()
	result := e.db.Model(&models.Trade{}).
		Where("id = ? AND status = ?", trade.ID, models.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":        models.OrderStatusRejected,
			"reject_reason": reason,
			"closed_at":     now,
		})
	if result.Error != nil {
		logger.For("engine").Errorw("failed to mark trade rejected", "trade_id", trade.ID, "error", result.Error)
		return trade, cause
	}
	if result.RowsAffected > 0 {
		e.metrics.RecordOrder(string(trade.Side), string(trade.OrderType), string(models.OrderStatusRejected))
	}

	current, err := e.loadTrade(trade.ID)
	if err != nil {
		return trade, cause
	}
	return current, cause
}

func (e *executionEngine) loadTrade(id string) (*models.Trade, error) {
	var trade models.Trade
	if err := e.db.Where("id = ?", id).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrTradeNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &trade, nil
}
