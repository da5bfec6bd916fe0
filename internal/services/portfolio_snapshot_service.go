package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/logger"
	"papertrade/internal/models"
	"papertrade/internal/pagination"
)

// snapshotPosition is the per-position breakdown stored with a snapshot.
type snapshotPosition struct {
	Symbol        string `json:"symbol"`
	Quantity      int64  `json:"quantity"`
	CostBasis     int64  `json:"cost_basis"`
	CurrentPrice  int64  `json:"current_price"`
	CurrentValue  int64  `json:"current_value"`
	UnrealizedPnL int64  `json:"unrealized_pnl"`
	Stale         bool   `json:"stale,omitempty"`
}

// portfolioSnapshotService handles portfolio snapshot operations.
type portfolioSnapshotService struct {
	db         *gorm.DB
	portfolios PortfolioServicer
}

// NewPortfolioSnapshotService creates a new PortfolioSnapshotServicer.
func NewPortfolioSnapshotService(db *gorm.DB, portfolios PortfolioServicer) PortfolioSnapshotServicer {
	return &portfolioSnapshotService{db: db, portfolios: portfolios}
}

// ComputeAndRecordSnapshots values every portfolio and stores one snapshot
// each at recordedAt. Snapshots already stored for recordedAt are kept as
// they are.
func (s *portfolioSnapshotService) ComputeAndRecordSnapshots(ctx context.Context, recordedAt time.Time) (int, error) {
	var portfolioIDs []string
	if err := s.db.Model(&models.Portfolio{}).
		Order("created_at ASC, id ASC").
		Pluck("id", &portfolioIDs).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	count := 0
	for _, portfolioID := range portfolioIDs {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		if _, err := s.record(ctx, portfolioID, recordedAt); err != nil {
			return count, err
		}
		count++
	}

	logger.For("valuation").Infow("portfolio snapshots recorded", "count", count, "recorded_at", recordedAt)
	return count, nil
}

// RecordSnapshot values and stores a single portfolio owned by userID.
func (s *portfolioSnapshotService) RecordSnapshot(ctx context.Context, userID, portfolioID string, recordedAt time.Time) (*models.PortfolioSnapshot, error) {
	if _, err := findOwnedPortfolio(s.db, userID, portfolioID); err != nil {
		return nil, err
	}
	return s.record(ctx, portfolioID, recordedAt)
}

// record stores the valuation of a portfolio at recordedAt. Snapshots are
// append-only: when one already exists for the instant it is returned
// unchanged.
func (s *portfolioSnapshotService) record(ctx context.Context, portfolioID string, recordedAt time.Time) (*models.PortfolioSnapshot, error) {
	if existing, err := s.find(portfolioID, recordedAt); err != nil || existing != nil {
		return existing, err
	}

	summary, err := s.portfolios.Summarize(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	breakdown := make([]snapshotPosition, 0, len(summary.Positions))
	for i := range summary.Positions {
		pos := &summary.Positions[i]
		breakdown = append(breakdown, snapshotPosition{
			Symbol:        pos.Symbol,
			Quantity:      pos.Quantity,
			CostBasis:     pos.CostBasis,
			CurrentPrice:  pos.CurrentPrice,
			CurrentValue:  pos.CurrentValue,
			UnrealizedPnL: pos.UnrealizedPnL,
			Stale:         pos.Stale,
		})
	}
	positionsJSON, err := json.Marshal(breakdown)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	snapshot := models.PortfolioSnapshot{
		PortfolioID:   portfolioID,
		RecordedAt:    recordedAt,
		CashBalance:   summary.CashBalance,
		HoldingsValue: summary.HoldingsValue,
		TotalEquity:   summary.TotalEquity,
		RealizedPnL:   summary.RealizedPnL,
		UnrealizedPnL: summary.UnrealizedPnL,
		TotalPnL:      summary.TotalPnL,
		TotalPnLPct:   summary.TotalPnLPct,
		Stale:         summary.Stale,
		Positions:     positionsJSON,
	}

	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "portfolio_id"}, {Name: "recorded_at"}},
		DoNothing: true,
	}).Create(&snapshot)
	if result.Error != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost the race to a concurrent writer for the same instant.
		return s.find(portfolioID, recordedAt)
	}
	return &snapshot, nil
}

func (s *portfolioSnapshotService) find(portfolioID string, recordedAt time.Time) (*models.PortfolioSnapshot, error) {
	var snapshot models.PortfolioSnapshot
	err := s.db.Where("portfolio_id = ? AND recorded_at = ?", portfolioID, recordedAt).First(&snapshot).Error
	switch {
	case err == nil:
		return &snapshot, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	default:
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
}

// GetSnapshots returns paginated snapshots for a portfolio within a time range.
func (s *portfolioSnapshotService) GetSnapshots(
	userID, portfolioID string,
	from, to time.Time,
	page pagination.PageRequest,
) (*pagination.PageResponse[models.PortfolioSnapshot], error) {
	if _, err := findOwnedPortfolio(s.db, userID, portfolioID); err != nil {
		return nil, err
	}
	page.Defaults()

	window := pagination.TimeRange{From: from, To: to}
	var totalItems int64
	base := s.db.Model(&models.PortfolioSnapshot{}).
		Where("portfolio_id = ?", portfolioID).
		Scopes(window.Scope("recorded_at"))
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var snapshots []models.PortfolioSnapshot
	if err := base.Order("recorded_at DESC").Scopes(pagination.Paginate(page)).Find(&snapshots).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(snapshots, page.Page, page.PageSize, totalItems)
	return &result, nil
}
