package services

import (
	"errors"
	"fmt"
	"time"

	"property-ledger-system/models"
	"property-ledger-system/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerStore is the single authority over investment balances and their
// rollups. Write methods take the caller's in-flight transaction; only
// services constructed with the store injected (the investment manager
// and the rental distributor) can reach them, which is the extent of the
// "ledger-writer" capability. Nothing else may touch these tables.
type LedgerStore struct {
	DB *gorm.DB
}

func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{DB: db}
}

// ApplyInvestmentDelta moves `delta` micro-units into (or, negative, out
// of) the (property, user) position and keeps PropertyTotals and
// UserPortfolio in lockstep within the same transaction. Returns whether
// the user is new to the property. The first-investment height is never
// overwritten, so resale holding periods survive top-ups.
func (ls *LedgerStore) ApplyInvestmentDelta(tx *gorm.DB, propertyID, userID string, delta, height int64) (bool, error) {
	var inv models.Investment
	newInvestor := false
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("property_id = ? AND user_id = ?", propertyID, userID).
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if delta < 0 {
			return false, fmt.Errorf("no position to debit for user %s on property %s", userID, propertyID)
		}
		newInvestor = true
		inv = models.Investment{
			ID:               uuid.NewString(),
			PropertyID:       propertyID,
			UserID:           userID,
			Amount:           delta,
			InvestedAtHeight: height,
			UpdatedAtHeight:  height,
		}
		if err := tx.Create(&inv).Error; err != nil {
			return false, err
		}
	} else if err != nil {
		return false, err
	} else {
		if inv.Amount+delta < 0 {
			return false, fmt.Errorf("position underflow: have %d, delta %d", inv.Amount, delta)
		}
		inv.Amount += delta
		inv.UpdatedAtHeight = height
		if err := tx.Save(&inv).Error; err != nil {
			return false, err
		}
	}

	if err := ls.updatePropertyTotals(tx, propertyID, delta, newInvestor); err != nil {
		return false, err
	}
	if err := ls.updateUserPortfolio(tx, userID, delta, newInvestor); err != nil {
		return false, err
	}
	return newInvestor, nil
}

// updatePropertyTotals maintains the per-property rollup incrementally.
func (ls *LedgerStore) updatePropertyTotals(tx *gorm.DB, propertyID string, delta int64, newInvestor bool) error {
	var totals models.PropertyTotals
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("property_id = ?", propertyID).
		First(&totals).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		totals = models.PropertyTotals{PropertyID: propertyID}
		if err := tx.Create(&totals).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	totals.TotalInvested += delta
	if newInvestor {
		totals.InvestorCount++
	}
	if totals.TotalInvested < 0 {
		return fmt.Errorf("property totals underflow for %s", propertyID)
	}
	return tx.Save(&totals).Error
}

// updateUserPortfolio maintains the per-user rollup incrementally.
func (ls *LedgerStore) updateUserPortfolio(tx *gorm.DB, userID string, delta int64, newProperty bool) error {
	portfolio, err := ls.lockPortfolio(tx, userID)
	if err != nil {
		return err
	}
	portfolio.TotalInvested += delta
	if newProperty {
		portfolio.PropertyCount++
	}
	if portfolio.TotalInvested < 0 {
		return fmt.Errorf("portfolio underflow for %s", userID)
	}
	return tx.Save(portfolio).Error
}

// AddEarnings credits distributed rental income into the portfolio
// rollup. Callers bound the amount before calling.
func (ls *LedgerStore) AddEarnings(tx *gorm.DB, userID string, amount int64) error {
	portfolio, err := ls.lockPortfolio(tx, userID)
	if err != nil {
		return err
	}
	portfolio.TotalEarnings += amount
	return tx.Save(portfolio).Error
}

// TouchWithdrawal stamps the shared withdrawal cooldown.
func (ls *LedgerStore) TouchWithdrawal(tx *gorm.DB, userID string, height int64) error {
	portfolio, err := ls.lockPortfolio(tx, userID)
	if err != nil {
		return err
	}
	portfolio.LastWithdrawalHeight = height
	return tx.Save(portfolio).Error
}

func (ls *LedgerStore) lockPortfolio(tx *gorm.DB, userID string) (*models.UserPortfolio, error) {
	var portfolio models.UserPortfolio
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&portfolio).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		portfolio = models.UserPortfolio{UserID: userID}
		if err := tx.Create(&portfolio).Error; err != nil {
			return nil, err
		}
		return &portfolio, nil
	}
	if err != nil {
		return nil, err
	}
	return &portfolio, nil
}

// --- Read mirrors (no capability needed) ---

func (ls *LedgerStore) GetUserInvestment(db *gorm.DB, propertyID, userID string) (*models.Investment, error) {
	var inv models.Investment
	if err := db.Where("property_id = ? AND user_id = ?", propertyID, userID).First(&inv).Error; err != nil {
		return nil, err
	}
	return &inv, nil
}

func (ls *LedgerStore) GetPropertyTotals(db *gorm.DB, propertyID string) (*models.PropertyTotals, error) {
	var totals models.PropertyTotals
	if err := db.Where("property_id = ?", propertyID).First(&totals).Error; err != nil {
		return nil, err
	}
	return &totals, nil
}

func (ls *LedgerStore) GetUserPortfolio(db *gorm.DB, userID string) (*models.UserPortfolio, error) {
	var portfolio models.UserPortfolio
	if err := db.Where("user_id = ?", userID).First(&portfolio).Error; err != nil {
		return nil, err
	}
	return &portfolio, nil
}

// --- Shared helpers used across services ---

// currentHeight reads the mirrored chain height (single LedgerState row).
func currentHeight(db *gorm.DB) (int64, error) {
	var state models.LedgerState
	err := db.First(&state, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, utils.Unavailable(1012, "ledger height not yet synced")
	}
	if err != nil {
		return 0, err
	}
	return state.CurrentHeight, nil
}

// loadConfig fetches the single-row platform parameter table, creating
// it with defaults on first touch.
func loadConfig(db *gorm.DB) (*models.PlatformConfig, error) {
	var cfg models.PlatformConfig
	err := db.First(&cfg, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = models.PlatformConfig{ID: 1, PlatformFeeBPS: DefaultPlatformFeeBPS}
		if err := db.Create(&cfg).Error; err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// recordEvent appends an audit row inside the caller's transaction.
func recordEvent(tx *gorm.DB, kind, propertyID, userID string, amount, height int64, metadata string) error {
	return tx.Create(&models.LedgerEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		PropertyID: propertyID,
		UserID:     userID,
		Amount:     amount,
		Height:     height,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}).Error
}
