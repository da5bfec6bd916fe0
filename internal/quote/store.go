package quote

import (
	"context"
	"errors"

	"papertrade/internal/models"

	"gorm.io/gorm"
)

// StoreSource serves the latest price recorded in quote_prices by the
// pipeline job. AsOf is the recording time, so the cache layer decides
// whether it is still fresh.
type StoreSource struct {
	db *gorm.DB
}

// NewStoreSource creates a source backed by the quote_prices table.
func NewStoreSource(db *gorm.DB) *StoreSource {
	return &StoreSource{db: db}
}

// Name returns the source's display name.
func (s *StoreSource) Name() string { return "store" }

// GetQuote returns the most recent recorded price of symbol.
func (s *StoreSource) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	var qp models.QuotePrice
	err := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("recorded_at DESC").
		First(&qp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Quote{}, unavailable(symbol, nil)
		}
		return Quote{}, unavailable(symbol, err)
	}
	return Quote{Symbol: symbol, Price: qp.Price, AsOf: qp.RecordedAt}, nil
}
