package models

import (
	"encoding/json"
	"time"

	"papertrade/internal/uuid"

	"gorm.io/gorm"
)

// PortfolioSnapshot is a point-in-time valuation of a portfolio.
// Time-series data: no Base embed, no soft deletes. One row per
// (portfolio, recorded_at); recording the same instant again returns the stored row.
type PortfolioSnapshot struct {
	ID            string          `gorm:"type:uuid;primaryKey" json:"id"`
	PortfolioID   string          `gorm:"type:uuid;not null;uniqueIndex:uq_snapshots_portfolio_recorded" json:"portfolio_id"`
	RecordedAt    time.Time       `gorm:"not null;uniqueIndex:uq_snapshots_portfolio_recorded" json:"recorded_at"`
	CashBalance   int64           `gorm:"type:bigint;not null" json:"cash_balance"`
	HoldingsValue int64           `gorm:"type:bigint;not null" json:"holdings_value"`
	TotalEquity   int64           `gorm:"type:bigint;not null" json:"total_equity"`
	RealizedPnL   int64           `gorm:"column:realized_pnl;type:bigint;not null" json:"realized_pnl"`
	UnrealizedPnL int64           `gorm:"column:unrealized_pnl;type:bigint;not null" json:"unrealized_pnl"`
	TotalPnL      int64           `gorm:"column:total_pnl;type:bigint;not null" json:"total_pnl"`
	TotalPnLPct   float64         `gorm:"column:total_pnl_pct;not null" json:"total_pnl_pct"`
	Stale         bool            `gorm:"not null;default:false" json:"stale"`
	Positions     json.RawMessage `gorm:"type:jsonb" json:"positions,omitempty"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (p *PortfolioSnapshot) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New()
	}
	return nil
}
