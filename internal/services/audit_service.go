package services

import (
	"encoding/json"

	"papertrade/internal/logger"
	"papertrade/internal/models"

	"gorm.io/gorm"
)

// AuditEvent is one user action to record. Changes is stored as JSON.
type AuditEvent struct {
	UserID       string
	PortfolioID  string
	Action       models.AuditAction
	ResourceType string
	ResourceID   string
	IPAddress    string
	Changes      map[string]any
}

// auditService writes the audit trail of portfolio and order actions.
type auditService struct {
	db *gorm.DB
}

// NewAuditService creates a new AuditServicer.
func NewAuditService(db *gorm.DB) AuditServicer {
	return &auditService{db: db}
}

// Log records event after the action it describes has committed. A failed
// write is logged and dropped: the trade or portfolio row is authoritative.
func (s *auditService) Log(event AuditEvent) {
	log := logger.For("audit").With(
		"user_id", event.UserID,
		"portfolio_id", event.PortfolioID,
		"action", event.Action,
		"resource_id", event.ResourceID,
	)

	changes := ""
	if len(event.Changes) > 0 {
		data, err := json.Marshal(event.Changes)
		if err != nil {
			log.Warnw("dropping unencodable audit changes", "error", err)
		} else {
			changes = string(data)
		}
	}

	entry := &models.AuditLog{
		UserID:       event.UserID,
		PortfolioID:  event.PortfolioID,
		Action:       event.Action,
		ResourceType: event.ResourceType,
		ResourceID:   event.ResourceID,
		IPAddress:    event.IPAddress,
		Changes:      changes,
	}
	if err := s.db.Create(entry).Error; err != nil {
		log.Errorw("failed to write audit entry", "error", err)
	}
}
