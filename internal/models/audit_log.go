package models

// AuditAction names a user action on a portfolio.
type AuditAction string

const (
	AuditActionCreatePortfolio AuditAction = "CREATE_PORTFOLIO"
	AuditActionSubmitOrder     AuditAction = "SUBMIT_ORDER"
	AuditActionCancelOrder     AuditAction = "CANCEL_ORDER"
)

// AuditLog records portfolio creation, order submissions and cancellations.
// Fills are not audited here; the trade row itself is the record of a fill.
type AuditLog struct {
	Base
	UserID       string      `gorm:"type:uuid;not null;index" json:"user_id"`
	PortfolioID  string      `gorm:"type:uuid;index" json:"portfolio_id"`
	Action       AuditAction `gorm:"type:varchar(64);not null" json:"action"`
	ResourceType string      `gorm:"not null" json:"resource_type"`
	ResourceID   string      `gorm:"type:uuid" json:"resource_id"`
	IPAddress    string      `json:"ip_address"`
	Changes      string      `json:"changes,omitempty"`
}
