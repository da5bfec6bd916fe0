package services

import (
	"sort"
	"time"

	"gorm.io/gorm"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/models"
	"papertrade/internal/pagination"
	"papertrade/internal/quote"
	"papertrade/internal/validator"
)

// QuoteObserver receives prices as they are recorded, so an in-process
// quote cache can serve them without another fetch.
type QuoteObserver interface {
	Observe(q quote.Quote)
}

// quotePriceService handles the recorded price series.
type quotePriceService struct {
	db       *gorm.DB
	observer QuoteObserver
}

// NewQuotePriceService creates a new QuotePriceServicer. observer may be nil.
func NewQuotePriceService(db *gorm.DB, observer QuoteObserver) QuotePriceServicer {
	return &quotePriceService{db: db, observer: observer}
}

// RecordPrices bulk-inserts prices, skipping duplicates on (symbol, recorded_at).
// Returns the number of newly inserted rows.
func (s *quotePriceService) RecordPrices(prices []QuotePriceInput) (int, error) {
	if len(prices) == 0 {
		return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "Prices array is empty")
	}
	for i := range prices {
		prices[i].Symbol = validator.NormalizeTicker(prices[i].Symbol)
		if !validator.IsTicker(prices[i].Symbol) {
			return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid symbol: "+prices[i].Symbol)
		}
		if prices[i].Price <= 0 {
			return 0, apperrors.WithMessage(apperrors.ErrInvalidInput, "Price must be positive for "+prices[i].Symbol)
		}
	}

	count := 0
	for _, p := range prices {
		qp := models.QuotePrice{
			Symbol:     p.Symbol,
			Price:      p.Price,
			RecordedAt: p.RecordedAt,
		}
		result := s.db.Where("symbol = ? AND recorded_at = ?", qp.Symbol, qp.RecordedAt).
			FirstOrCreate(&qp)
		if result.Error != nil {
			return count, apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
		}
		if result.RowsAffected > 0 {
			count++
		}
		if s.observer != nil {
			s.observer.Observe(quote.Quote{Symbol: qp.Symbol, Price: qp.Price, AsOf: qp.RecordedAt})
		}
	}

	return count, nil
}

// GetPriceHistory returns paginated price history for a symbol within a time range.
func (s *quotePriceService) GetPriceHistory(
	symbol string,
	from, to time.Time,
	page pagination.PageRequest,
) (*pagination.PageResponse[models.QuotePrice], error) {
	symbol = validator.NormalizeTicker(symbol)
	if !validator.IsTicker(symbol) {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid symbol")
	}
	page.Defaults()

	window := pagination.TimeRange{From: from, To: to}
	var totalItems int64
	base := s.db.Model(&models.QuotePrice{}).
		Where("symbol = ?", symbol).
		Scopes(window.Scope("recorded_at"))
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var prices []models.QuotePrice
	if err := base.Order("recorded_at DESC").Scopes(pagination.Paginate(page)).Find(&prices).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(prices, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// TrackedSymbols returns every symbol that is held or has a pending order,
// sorted. These are the symbols the pipeline needs prices for.
func (s *quotePriceService) TrackedSymbols() ([]string, error) {
	var held []string
	if err := s.db.Model(&models.Position{}).
		Where("quantity > 0").
		Distinct("symbol").
		Pluck("symbol", &held).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var pending []string
	if err := s.db.Model(&models.Trade{}).
		Where("status = ?", models.OrderStatusPending).
		Distinct("symbol").
		Pluck("symbol", &pending).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	seen := make(map[string]struct{}, len(held)+len(pending))
	symbols := make([]string, 0, len(held)+len(pending))
	for _, list := range [][]string{held, pending} {
		for _, sym := range list {
			if _, ok := seen[sym]; ok {
				continue
			}
			seen[sym] = struct{}{}
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}
