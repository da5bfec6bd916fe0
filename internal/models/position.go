package models

import (
	"time"

	"papertrade/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Position is the open holding of one symbol in one portfolio. Rows only
// exist while Quantity > 0 and are hard-deleted when a sell closes them.
type Position struct {
	ID              string          `gorm:"type:uuid;primaryKey" json:"id"`
	PortfolioID     string          `gorm:"type:uuid;not null;uniqueIndex:uq_positions_portfolio_symbol" json:"portfolio_id"`
	Symbol          string          `gorm:"not null;uniqueIndex:uq_positions_portfolio_symbol" json:"symbol"`
	Quantity        int64           `gorm:"not null" json:"quantity"`
	CostBasis       int64           `gorm:"type:bigint;not null" json:"cost_basis"`
	AverageBuyPrice decimal.Decimal `gorm:"type:decimal(24,8);not null" json:"average_buy_price"`
	CurrentPrice    int64           `gorm:"type:bigint;not null;default:0" json:"current_price"`
	LastPricedAt    *time.Time      `json:"last_priced_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	// Populated at read time by the valuator.
	CurrentValue     int64   `gorm:"-" json:"current_value"`
	UnrealizedPnL    int64   `gorm:"-" json:"unrealized_pnl"`
	UnrealizedPnLPct float64 `gorm:"-" json:"unrealized_pnl_pct"`
	Stale            bool    `gorm:"-" json:"stale"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (p *Position) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New()
	}
	return nil
}
