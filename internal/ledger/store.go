package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrVersionConflict means the portfolio row changed under the unit. With the
// in-process lock held this only happens when another process wrote it.
var ErrVersionConflict = errors.New("ledger: portfolio version changed during update")

// Store runs atomic read-modify-write units against one portfolio.
type Store struct {
	db   *gorm.DB
	rate decimal.Decimal
	now  func() time.Time
}

// NewStore creates a Store that charges rate on every fill.
func NewStore(db *gorm.DB, rate decimal.Decimal) *Store {
	return &Store{db: db, rate: rate, now: time.Now}
}

// Rate returns the commission rate applied to fills.
func (s *Store) Rate() decimal.Decimal {
	return s.rate
}

// Unit is the view of one portfolio inside a Store.Update transaction.
type Unit struct {
	tx        *gorm.DB
	Portfolio *models.Portfolio
	positions map[string]*models.Position
	dirty     map[string]bool
	rate      decimal.Decimal
	now       time.Time
}

// Tx exposes the transaction so callers can write rows that must commit
// together with the ledger change.
func (u *Unit) Tx() *gorm.DB {
	return u.tx
}

// Position returns the open position in symbol, or nil.
func (u *Unit) Position(symbol string) *models.Position {
	return u.positions[symbol]
}

// Buy applies a buy fill at price.
func (u *Unit) Buy(symbol string, quantity, price int64) (Fill, error) {
	pos, fill, err := ApplyBuy(u.Portfolio, u.positions[symbol], symbol, quantity, price, u.rate, u.now)
	if err != nil {
		return Fill{}, err
	}
	u.positions[symbol] = pos
	u.dirty[symbol] = true
	return fill, nil
}

// Sell applies a sell fill at price.
func (u *Unit) Sell(symbol string, quantity, price int64) (Fill, error) {
	pos, fill, err := ApplySell(u.Portfolio, u.positions[symbol], quantity, price, u.rate, u.now)
	if err != nil {
		return Fill{}, err
	}
	u.positions[symbol] = pos
	u.dirty[symbol] = true
	return fill, nil
}

// Update loads the portfolio and its positions with the row locked, runs fn,
// persists the changed positions, reconciles and commits. Any error from fn
// or from reconciliation rolls back every write made in the unit. A
// reconciliation failure is returned as a *Discrepancy wrapped in
// apperrors.ErrInconsistency.
func (s *Store) Update(ctx context.Context, portfolioID string, fn func(u *Unit) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var portfolio models.Portfolio
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", portfolioID).
			First(&portfolio).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrPortfolioNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		var positions []models.Position
		if err := tx.Where("portfolio_id = ?", portfolioID).Find(&positions).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		u := &Unit{
			tx:        tx,
			Portfolio: &portfolio,
			positions: make(map[string]*models.Position, len(positions)),
			dirty:     make(map[string]bool),
			rate:      s.rate,
			now:       s.now(),
		}
		for i := range positions {
			u.positions[positions[i].Symbol] = &positions[i]
		}

		if err := fn(u); err != nil {
			return err
		}

		if err := u.flush(); err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}

		var after []models.Position
		if err := tx.Where("portfolio_id = ?", portfolioID).Find(&after).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		if err := Reconcile(&portfolio, after); err != nil {
			return apperrors.Wrap(apperrors.ErrInconsistency, err)
		}

		version := portfolio.Version
		result := tx.Model(&models.Portfolio{}).
			Where("id = ? AND version = ?", portfolio.ID, version).
			Updates(map[string]interface{}{
				"cash_balance":     portfolio.CashBalance,
				"total_invested":   portfolio.TotalInvested,
				"realized_pnl":     portfolio.RealizedPnL,
				"total_commission": portfolio.TotalCommission,
				"buy_commission":   portfolio.BuyCommission,
				"version":          version + 1,
			})
		if result.Error != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
		}
		if result.RowsAffected == 0 {
			return apperrors.Wrap(apperrors.ErrConcurrencyTimeout, ErrVersionConflict)
		}
		portfolio.Version = version + 1
		return nil
	})
}

func (u *Unit) flush() error {
	symbols := make([]string, 0, len(u.dirty))
	for symbol := range u.dirty {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		pos := u.positions[symbol]
		switch {
		case pos.Quantity == 0:
			if pos.ID != "" {
				if err := u.tx.Delete(pos).Error; err != nil {
					return fmt.Errorf("delete position %s: %w", symbol, err)
				}
			}
			delete(u.positions, symbol)
		case pos.ID == "":
			if err := u.tx.Create(pos).Error; err != nil {
				return fmt.Errorf("create position %s: %w", symbol, err)
			}
		default:
			if err := u.tx.Save(pos).Error; err != nil {
				return fmt.Errorf("update position %s: %w", symbol, err)
			}
		}
	}
	u.dirty = make(map[string]bool)
	return nil
}
