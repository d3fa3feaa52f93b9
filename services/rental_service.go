package services

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"property-ledger-system/models"
	"property-ledger-system/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RentalService is the rental distributor: it takes period deposits from
// property owners, derives the platform fee and net distributable, and
// lets investors pull their proportional share once the period is marked
// distributed. The second holder of the ledger-writer capability.
type RentalService struct {
	DB          *gorm.DB
	Ledger      *LedgerStore
	Investments *InvestmentService
	Governance  *GovernanceService
}

func NewRentalService(db *gorm.DB, ledger *LedgerStore, investments *InvestmentService, governance *GovernanceService) *RentalService {
	return &RentalService{DB: db, Ledger: ledger, Investments: investments, Governance: governance}
}

type DepositRequest struct {
	PropertyID    string `json:"property_id"`
	Month         int    `json:"month"`
	Year          int    `json:"year"`
	GrossRent     int64  `json:"gross_rent"`
	Expenses      int64  `json:"expenses"`
	Justification string `json:"justification"`
}

// Deposit records a period's rental income. With override=false the
// gross must sit inside the tolerance band around the recorded monthly
// rent and expenses below their cap; the admin override bypasses both
// but demands a long-form justification.
func (s *RentalService) Deposit(caller string, req DepositRequest, override bool) (*models.RentalPayment, error) {
	cfg, err := loadConfig(s.DB)
	if err != nil {
		return nil, err
	}
	if cfg.RentalPaused {
		return nil, utils.Unavailable(3009, "rental distributor is paused")
	}
	if req.Month < 1 || req.Month > 12 {
		return nil, utils.Invalid(3008, "month must be between 1 and 12")
	}
	if req.Year < time.Now().Year() {
		return nil, utils.Invalid(3008, "year must not be in the past")
	}
	if req.GrossRent <= 0 || req.Expenses < 0 {
		return nil, utils.Invalid(3008, "gross rent must be positive and expenses non-negative")
	}
	if override {
		if !s.Governance.IsAdmin(caller) {
			return nil, utils.Unauthorized(3001, "override deposits are admin-only")
		}
		if len(strings.TrimSpace(req.Justification)) < MinJustificationLen {
			return nil, utils.Invalid(3008, "override requires a justification of at least 20 characters")
		}
	}

	var payment *models.RentalPayment
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var property models.Property
		if err := tx.First(&property, "id = ?", req.PropertyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound(3002, "property not found")
			}
			return err
		}
		if !override {
			if property.Owner != caller {
				return utils.Unauthorized(3001, "only the property owner may deposit rental income")
			}
			tolerance := property.MonthlyRent * RentToleranceBPS / BPSDenominator
			if req.GrossRent < property.MonthlyRent-tolerance || req.GrossRent > property.MonthlyRent+tolerance {
				return utils.Policy(3011, fmt.Sprintf("gross rent outside ±%d tolerance of recorded rent %d", tolerance, property.MonthlyRent))
			}
			if req.Expenses > req.GrossRent*MaxExpenseBPS/BPSDenominator {
				return utils.Policy(3014, "expenses exceed the allowed fraction of gross rent")
			}
		}

		var existing int64
		if err := tx.Model(&models.RentalPayment{}).
			Where("property_id = ? AND month = ? AND year = ?", req.PropertyID, req.Month, req.Year).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return utils.Conflict(3005, "rental income already deposited for this period")
		}

		txCfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		// Truncating division: the protocol keeps the remainder.
		fee := req.GrossRent * txCfg.PlatformFeeBPS / BPSDenominator
		net := req.GrossRent - req.Expenses - fee
		if net < 0 {
			return utils.Invalid(3008, "expenses and fee exceed gross rent")
		}

		payment = &models.RentalPayment{
			ID:                uuid.NewString(),
			PropertyID:        req.PropertyID,
			Month:             req.Month,
			Year:              req.Year,
			GrossRent:         req.GrossRent,
			Expenses:          req.Expenses,
			PlatformFee:       fee,
			NetDistributable:  net,
			DepositedBy:       caller,
			DepositedAtHeight: height,
			Override:          override,
			Justification:     strings.TrimSpace(req.Justification),
		}
		if err := tx.Create(payment).Error; err != nil {
			return err
		}
		txCfg.FeesCollected += fee
		if err := tx.Save(txCfg).Error; err != nil {
			return err
		}
		return recordEvent(tx, models.EventRentalDeposit, req.PropertyID, caller, req.GrossRent, height, fmt.Sprintf("%d-%02d", req.Year, req.Month))
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[RENTAL] deposit for %s %d-%02d: gross %d, fee %d, net %d",
		req.PropertyID, req.Year, req.Month, payment.GrossRent, payment.PlatformFee, payment.NetDistributable)
	return payment, nil
}

// Distribute flips the one-shot distributed flag, opening the period
// for claims. Owner or admin.
func (s *RentalService) Distribute(caller, propertyID string, month, year int) (*models.RentalPayment, error) {
	var payment models.RentalPayment
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var property models.Property
		if err := tx.First(&property, "id = ?", propertyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound(3002, "property not found")
			}
			return err
		}
		if property.Owner != caller && !s.Governance.IsAdmin(caller) {
			return utils.Unauthorized(3001, "only the property owner or an admin may distribute")
		}
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("property_id = ? AND month = ? AND year = ?", propertyID, month, year).
			First(&payment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFound(3002, "no rental payment for this period")
		}
		if err != nil {
			return err
		}
		if payment.Distributed {
			return utils.Conflict(3005, "period already distributed")
		}
		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		payment.Distributed = true
		payment.DistributedAtHeight = height
		if err := tx.Save(&payment).Error; err != nil {
			return err
		}
		return recordEvent(tx, models.EventDistribution, propertyID, caller, payment.NetDistributable, height, fmt.Sprintf("%d-%02d", year, month))
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UserShare computes an investor's proportional slice of a period's net
// distributable. Truncation favors the protocol.
func (s *RentalService) UserShare(db *gorm.DB, payment *models.RentalPayment, userID string) (int64, error) {
	totals, err := s.Ledger.GetPropertyTotals(db, payment.PropertyID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if totals.TotalInvested == 0 {
		return 0, nil
	}
	inv, err := s.Ledger.GetUserInvestment(db, payment.PropertyID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return payment.NetDistributable * inv.Amount / totals.TotalInvested, nil
}

// Claim pays the caller's share of a distributed period, once, subject
// to the minimum-claimable floor and the shared withdrawal cooldown.
func (s *RentalService) Claim(userID, propertyID string, month, year int) (*models.PeriodClaim, error) {
	cfg, err := loadConfig(s.DB)
	if err != nil {
		return nil, err
	}
	if cfg.RentalPaused {
		return nil, utils.Unavailable(3009, "rental distributor is paused")
	}

	var claim *models.PeriodClaim
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var payment models.RentalPayment
		err := tx.Where("property_id = ? AND month = ? AND year = ?", propertyID, month, year).
			First(&payment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFound(3002, "no rental payment for this period")
		}
		if err != nil {
			return err
		}
		if !payment.Distributed {
			return utils.Conflict(3004, "period has not been distributed")
		}
		var existing int64
		if err := tx.Model(&models.PeriodClaim{}).
			Where("property_id = ? AND month = ? AND year = ? AND user_id = ?", propertyID, month, year, userID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return utils.Conflict(3005, "earnings already claimed for this period")
		}

		share, err := s.UserShare(tx, &payment, userID)
		if err != nil {
			return err
		}
		if share <= MinClaimableShare {
			return utils.Policy(3015, fmt.Sprintf("share %d does not exceed minimum claimable %d", share, MinClaimableShare))
		}
		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		portfolio, err := s.Ledger.GetUserPortfolio(tx, userID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil && portfolio.LastWithdrawalHeight > 0 && height-portfolio.LastWithdrawalHeight < WithdrawalCooldown {
			return utils.Policy(3015, "withdrawal cooldown has not elapsed")
		}

		claim = &models.PeriodClaim{
			ID:              uuid.NewString(),
			PropertyID:      propertyID,
			Month:           month,
			Year:            year,
			UserID:          userID,
			Amount:          share,
			ClaimedAtHeight: height,
		}
		if err := tx.Create(claim).Error; err != nil {
			return err
		}
		if err := s.Investments.UpdateUserEarnings(tx, userID, share); err != nil {
			return err
		}
		if err := s.Ledger.TouchWithdrawal(tx, userID, height); err != nil {
			return err
		}
		return recordEvent(tx, models.EventRentalClaim, propertyID, userID, share, height, fmt.Sprintf("%d-%02d", year, month))
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// EmergencyWithdrawFees moves collected platform fees to the platform
// wallet, admin-only, only while a governance emergency window is open,
// bounded by the declaration's remaining cap.
func (s *RentalService) EmergencyWithdrawFees(admin string, amount int64) (int64, error) {
	if !s.Governance.IsAdmin(admin) {
		return 0, utils.Unauthorized(3001, "caller is not a protocol admin")
	}
	if amount <= 0 {
		return 0, utils.Invalid(3008, "amount must be positive")
	}
	var remaining int64
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		decl, err := s.Governance.ActiveEmergency(tx)
		if err != nil {
			return err
		}
		if decl == nil {
			return utils.Conflict(3004, "no active emergency declaration")
		}
		if decl.WithdrawnAmount+amount > decl.MaxAmount {
			return utils.Policy(3015, fmt.Sprintf("amount exceeds remaining emergency cap %d", decl.MaxAmount-decl.WithdrawnAmount))
		}
		cfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		if amount > cfg.FeesCollected {
			return utils.Policy(3015, fmt.Sprintf("amount exceeds collected fees %d", cfg.FeesCollected))
		}
		if cfg.PlatformWallet == "" {
			return utils.Conflict(3004, "platform wallet is not set")
		}
		cfg.FeesCollected -= amount
		if err := tx.Save(cfg).Error; err != nil {
			return err
		}
		decl.WithdrawnAmount += amount
		if err := tx.Save(decl).Error; err != nil {
			return err
		}
		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		remaining = cfg.FeesCollected
		return recordEvent(tx, models.EventEmergencyWithdraw, "", admin, amount, height, decl.ID)
	})
	if err != nil {
		return 0, err
	}
	log.Printf("[RENTAL] ⚠️ emergency fee withdrawal of %d by %s (remaining %d)", amount, admin, remaining)
	return remaining, nil
}

// SetPlatformWallet points fee withdrawals at a settlement principal.
func (s *RentalService) SetPlatformWallet(admin, wallet string) error {
	if !s.Governance.IsAdmin(admin) {
		return utils.Unauthorized(3001, "caller is not a protocol admin")
	}
	if wallet == "" {
		return utils.Invalid(3008, "wallet principal is required")
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		cfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		cfg.PlatformWallet = wallet
		return tx.Save(cfg).Error
	})
}
