package services

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/logger"
	"papertrade/internal/metrics"
	"papertrade/internal/models"
	"papertrade/internal/quote"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// triggerScanner evaluates pending LIMIT and STOP_LOSS orders.
type triggerScanner struct {
	db           *gorm.DB
	oracle       quote.Oracle
	engine       OrderExecutor
	concurrency  int
	quoteTimeout time.Duration
	metrics      *metrics.Metrics
}

// NewTriggerScanner creates a new TriggerScanner. concurrency bounds the
// number of quote lookups in flight.
func NewTriggerScanner(db *gorm.DB, oracle quote.Oracle, engine OrderExecutor, concurrency int, quoteTimeout time.Duration, m *metrics.Metrics) TriggerScanner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &triggerScanner{
		db:           db,
		oracle:       oracle,
		engine:       engine,
		concurrency:  concurrency,
		quoteTimeout: quoteTimeout,
		metrics:      m,
	}
}

// ScanTriggers fetches one quote per symbol with pending deferred orders
// and hands every order whose condition holds to the engine, oldest first.
// A symbol whose quote cannot be fetched is skipped until the next scan.
// It returns the number of orders executed.
func (s *triggerScanner) ScanTriggers(ctx context.Context) (int, error) {
	start := time.Now()
	log := logger.For("scanner")

	var pending []models.Trade
	if err := s.db.WithContext(ctx).
		Where("status = ? AND order_type IN ?", models.OrderStatusPending,
			[]models.OrderType{models.OrderTypeLimit, models.OrderTypeStopLoss}).
		Order("created_at ASC, id ASC").
		Find(&pending).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(pending) == 0 {
		s.metrics.ObserveScan(time.Since(start), 0)
		return 0, nil
	}

	prices := s.fetchPrices(ctx, pending)

	executed := 0
	for i := range pending {
		if err := ctx.Err(); err != nil {
			s.metrics.ObserveScan(time.Since(start), executed)
			return executed, err
		}

		trade := &pending[i]
		price, ok := prices[trade.Symbol]
		if !ok {
			continue
		}
		spec, err := specOf(trade)
		if err != nil {
			log.Warnw("pending trade has an invalid trigger", "trade_id", trade.ID, "error", err)
			continue
		}
		if !spec.Triggered(trade.Side, price) {
			continue
		}

		_, err = s.engine.Execute(ctx, trade.ID)
		switch {
		case err == nil:
			executed++
		case errors.Is(err, apperrors.ErrTriggerNotMet),
			errors.Is(err, apperrors.ErrAlreadyExecuted),
			errors.Is(err, apperrors.ErrConcurrencyTimeout),
			errors.Is(err, apperrors.ErrQuoteUnavailable):
			log.Debugw("triggered order left pending", "trade_id", trade.ID, "reason", err)
		default:
			log.Infow("triggered order not filled", "trade_id", trade.ID, "symbol", trade.Symbol, "error", err)
		}
	}

	s.metrics.ObserveScan(time.Since(start), executed)
	log.Infow("trigger scan finished", "pending", len(pending), "executed", executed, "duration_ms", time.Since(start).Milliseconds())
	return executed, nil
}

// fetchPrices returns the fresh price of every symbol it could quote.
func (s *triggerScanner) fetchPrices(ctx context.Context, trades []models.Trade) map[string]int64 {
	seen := make(map[string]bool)
	var symbols []string
	for i := range trades {
		if !seen[trades[i].Symbol] {
			seen[trades[i].Symbol] = true
			symbols = append(symbols, trades[i].Symbol)
		}
	}

	var mu sync.Mutex
	prices := make(map[string]int64, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, symbol := range symbols {
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, s.quoteTimeout)
			defer cancel()

			q, err := s.oracle.GetQuote(qctx, symbol)
			if err != nil || q.Stale {
				logger.For("scanner").Warnw("skipping symbol in trigger scan", "symbol", symbol, "error", err, "stale", q.Stale)
				return nil
			}
			mu.Lock()
			prices[symbol] = q.Price
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return prices
}
