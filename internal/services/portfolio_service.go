package services

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/logger"
	"papertrade/internal/models"
	"papertrade/internal/quote"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultPortfolioName = "Default Portfolio"

	// maxStateReads bounds the retries when fills keep landing between the
	// portfolio and positions reads.
	maxStateReads = 5
)

// portfolioService handles portfolio reads and valuation. It never changes
// cash or quantities; only the execution engine does.
type portfolioService struct {
	db             *gorm.DB
	oracle         quote.Oracle
	initialBalance int64
	concurrency    int
	quoteTimeout   time.Duration
	now            func() time.Time
}

// NewPortfolioService creates a new PortfolioServicer. New default
// portfolios start with initialBalance in cash.
func NewPortfolioService(db *gorm.DB, oracle quote.Oracle, initialBalance int64, concurrency int, quoteTimeout time.Duration) PortfolioServicer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &portfolioService{
		db:             db,
		oracle:         oracle,
		initialBalance: initialBalance,
		concurrency:    concurrency,
		quoteTimeout:   quoteTimeout,
		now:            time.Now,
	}
}

// CreateDefaultPortfolio creates the user's default portfolio. A user has at most one.
func (s *portfolioService) CreateDefaultPortfolio(userID string) (*models.Portfolio, error) {
	var portfolio models.Portfolio
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Portfolio{}).
			Where("user_id = ? AND is_default = ?", userID, true).
			Count(&count).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if count > 0 {
			return apperrors.ErrPortfolioExists
		}

		portfolio = models.Portfolio{
			UserID:         userID,
			Name:           defaultPortfolioName,
			CashBalance:    s.initialBalance,
			InitialBalance: s.initialBalance,
			IsDefault:      true,
		}
		if err := tx.Create(&portfolio).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &portfolio, nil
}

// GetUserPortfolios returns the user's portfolios, default first.
func (s *portfolioService) GetUserPortfolios(userID string) ([]models.Portfolio, error) {
	var portfolios []models.Portfolio
	if err := s.db.Where("user_id = ?", userID).
		Order("is_default DESC, created_at ASC").
		Find(&portfolios).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return portfolios, nil
}

// GetPortfolio returns a portfolio owned by userID.
func (s *portfolioService) GetPortfolio(userID, portfolioID string) (*models.Portfolio, error) {
	return findOwnedPortfolio(s.db, userID, portfolioID)
}

// ListPositions returns the committed open positions of a portfolio.
func (s *portfolioService) ListPositions(userID, portfolioID string) ([]models.Position, error) {
	if _, err := findOwnedPortfolio(s.db, userID, portfolioID); err != nil {
		return nil, err
	}
	return s.positions(portfolioID)
}

// GetPortfolioSummary values a portfolio owned by userID.
func (s *portfolioService) GetPortfolioSummary(ctx context.Context, userID, portfolioID string) (*PortfolioSummary, error) {
	if _, err := findOwnedPortfolio(s.db, userID, portfolioID); err != nil {
		return nil, err
	}
	return s.Summarize(ctx, portfolioID)
}

// Summarize values every position at the current quote. Cash and positions
// come from the same committed state. Quotes are fetched concurrently and
// best-effort: a position whose quote fails is valued at its last known
// price, or at its average cost if it was never priced, and flagged stale.
func (s *portfolioService) Summarize(ctx context.Context, portfolioID string) (*PortfolioSummary, error) {
	portfolio, positions, err := s.loadState(portfolioID)
	if err != nil {
		return nil, err
	}

	quotes := s.fetchQuotes(ctx, positions)
	now := s.now()

	summary := &PortfolioSummary{
		PortfolioID:     portfolio.ID,
		Name:            portfolio.Name,
		CashBalance:     portfolio.CashBalance,
		InitialBalance:  portfolio.InitialBalance,
		TotalInvested:   portfolio.TotalInvested,
		RealizedPnL:     portfolio.RealizedPnL,
		TotalCommission: portfolio.TotalCommission,
		NumPositions:    len(positions),
		ValuedAt:        now,
	}

	var refreshed []models.Position
	for i := range positions {
		pos := &positions[i]
		q, ok := quotes[pos.Symbol]
		switch {
		case ok && !q.Stale:
			pos.CurrentPrice = q.Price
			pos.LastPricedAt = &now
			refreshed = append(refreshed, *pos)
		case ok:
			pos.CurrentPrice = q.Price
			pos.Stale = true
		case pos.CurrentPrice > 0:
			pos.Stale = true
		default:
			pos.CurrentPrice = pos.AverageBuyPrice.Round(0).IntPart()
			pos.Stale = true
		}

		pos.CurrentValue = pos.Quantity * pos.CurrentPrice
		pos.UnrealizedPnL = pos.CurrentValue - pos.CostBasis
		if pos.CostBasis > 0 {
			pos.UnrealizedPnLPct = float64(pos.UnrealizedPnL) / float64(pos.CostBasis) * 100
		}

		summary.HoldingsValue += pos.CurrentValue
		summary.UnrealizedPnL += pos.UnrealizedPnL
		summary.Stale = summary.Stale || pos.Stale
	}

	summary.Positions = positions
	if summary.Positions == nil {
		summary.Positions = []models.Position{}
	}
	summary.TotalEquity = summary.CashBalance + summary.HoldingsValue
	summary.TotalPnL = summary.RealizedPnL + summary.UnrealizedPnL
	if summary.InitialBalance > 0 {
		summary.TotalPnLPct = float64(summary.TotalPnL) / float64(summary.InitialBalance) * 100
	}

	s.refreshLastPrices(refreshed)
	return summary, nil
}

// loadState reads a portfolio and its positions as one committed state.
// Every fill bumps the portfolio version in the transaction that writes the
// positions, so an unchanged version on both sides of the positions read
// means cash and holdings belong to the same commit.
func (s *portfolioService) loadState(portfolioID string) (*models.Portfolio, []models.Position, error) {
	for attempt := 0; attempt < maxStateReads; attempt++ {
		var portfolio models.Portfolio
		if err := s.db.First(&portfolio, "id = ?", portfolioID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, apperrors.ErrPortfolioNotFound
			}
			return nil, nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		positions, err := s.positions(portfolioID)
		if err != nil {
			return nil, nil, err
		}

		var versions []int64
		if err := s.db.Model(&models.Portfolio{}).
			Where("id = ?", portfolioID).
			Pluck("version", &versions).Error; err != nil {
			return nil, nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if len(versions) == 1 && versions[0] == portfolio.Version {
			return &portfolio, positions, nil
		}
	}
	return nil, nil, apperrors.ErrConcurrencyTimeout
}

func (s *portfolioService) positions(portfolioID string) ([]models.Position, error) {
	var positions []models.Position
	if err := s.db.Where("portfolio_id = ?", portfolioID).Order("symbol ASC").Find(&positions).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return positions, nil
}

func (s *portfolioService) fetchQuotes(ctx context.Context, positions []models.Position) map[string]quote.Quote {
	var mu sync.Mutex
	quotes := make(map[string]quote.Quote, len(positions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range positions {
		symbol := positions[i].Symbol
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, s.quoteTimeout)
			defer cancel()

			q, err := s.oracle.GetQuote(qctx, symbol)
			if err != nil {
				if !errors.Is(err, quote.ErrUnavailable) {
					logger.For("valuation").Warnw("quote lookup failed during valuation", "symbol", symbol, "error", err)
				}
				return nil
			}
			mu.Lock()
			quotes[symbol] = q
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return quotes
}

// refreshLastPrices stores fresh quotes as the positions' last known
// price. Only current_price and last_priced_at are written, so this needs
// no portfolio lock; a failure only costs a staler fallback later.
func (s *portfolioService) refreshLastPrices(positions []models.Position) {
	for i := range positions {
		pos := &positions[i]
		if err := s.db.Model(&models.Position{}).
			Where("id = ?", pos.ID).
			UpdateColumns(map[string]interface{}{
				"current_price":  pos.CurrentPrice,
				"last_priced_at": pos.LastPricedAt,
			}).Error; err != nil {
			logger.For("valuation").Warnw("failed to refresh last known price", "position_id", pos.ID, "error", err)
		}
	}
}
