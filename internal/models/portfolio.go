package models

// Portfolio is a user's virtual trading account. CashBalance and the
// cumulative fields are only written by the execution engine inside the
// per-portfolio atomic unit.
type Portfolio struct {
	Base
	UserID          string `gorm:"type:uuid;not null;index" json:"user_id"`
	Name            string `gorm:"not null;default:'Default Portfolio'" json:"name"`
	CashBalance     int64  `gorm:"type:bigint;not null" json:"cash_balance"`
	InitialBalance  int64  `gorm:"type:bigint;not null" json:"initial_balance"`
	TotalInvested   int64  `gorm:"type:bigint;not null;default:0" json:"total_invested"`
	RealizedPnL     int64  `gorm:"column:realized_pnl;type:bigint;not null;default:0" json:"realized_pnl"`
	TotalCommission int64  `gorm:"type:bigint;not null;default:0" json:"total_commission"`
	BuyCommission   int64  `gorm:"type:bigint;not null;default:0" json:"-"`
	IsDefault       bool   `gorm:"not null;default:false" json:"is_default"`
	Version         int64  `gorm:"not null;default:0" json:"-"`

	Positions []Position `gorm:"foreignKey:PortfolioID" json:"positions,omitempty"`
}
