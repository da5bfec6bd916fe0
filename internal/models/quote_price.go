package models

import (
	"time"

	"papertrade/internal/uuid"

	"gorm.io/gorm"
)

// QuotePrice is a recorded market price for a symbol.
// Append-only time-series data: no Base embed, no soft deletes.
type QuotePrice struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	Symbol     string    `gorm:"not null;uniqueIndex:uq_quote_prices_symbol_recorded" json:"symbol"`
	Price      int64     `gorm:"type:bigint;not null" json:"price"`
	RecordedAt time.Time `gorm:"not null;uniqueIndex:uq_quote_prices_symbol_recorded" json:"recorded_at"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (q *QuotePrice) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.New()
	}
	return nil
}
