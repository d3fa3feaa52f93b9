package services

import (
	"errors"
	"fmt"
	"log"

	"property-ledger-system/models"
	"property-ledger-system/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvestmentService is the investment manager: it validates and records
// primary investments, runs the secondary market, relays proposal votes
// to the registry and settles refunds after failed funding rounds. It is
// one of the two holders of the ledger-writer capability.
type InvestmentService struct {
	DB         *gorm.DB
	Ledger     *LedgerStore
	Properties *PropertyService
	Governance *GovernanceService
}

func NewInvestmentService(db *gorm.DB, ledger *LedgerStore, properties *PropertyService, governance *GovernanceService) *InvestmentService {
	return &InvestmentService{DB: db, Ledger: ledger, Properties: properties, Governance: governance}
}

func (s *InvestmentService) checkPaused(db *gorm.DB) error {
	cfg, err := loadConfig(db)
	if err != nil {
		return err
	}
	if cfg.InvestmentsPaused {
		return utils.Unavailable(2013, "investment manager is paused")
	}
	return nil
}

func (s *InvestmentService) checkInvestorStatus(db *gorm.DB, userID string) error {
	var status models.InvestorStatus
	err := db.Where("user_id = ?", userID).First(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.Policy(2015, "investor is not whitelisted")
	}
	if err != nil {
		return err
	}
	if status.Blacklisted {
		return utils.Policy(2015, "investor is blacklisted")
	}
	if !status.Whitelisted {
		return utils.Policy(2015, "investor is not whitelisted")
	}
	return nil
}

// PlaceInvestment records a primary investment. The gateway has already
// debited the caller's settlement balance; this call either fully
// credits the ledger or fails with zero mutation.
func (s *InvestmentService) PlaceInvestment(userID, propertyID string, amount int64) (*models.Investment, error) {
	if err := s.checkPaused(s.DB); err != nil {
		return nil, err
	}
	if err := s.checkInvestorStatus(s.DB, userID); err != nil {
		return nil, err
	}

	var result *models.Investment
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var property models.Property
		if err := tx.First(&property, "id = ?", propertyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound(2002, "property not found")
			}
			return err
		}
		if !property.Verified || !property.Active || property.Status != models.PropertyStatusActive {
			return utils.Conflict(2004, "property is not open for investment")
		}
		if amount < GlobalMinInvestment || amount < property.MinInvestment {
			return utils.Invalid(2007, fmt.Sprintf("amount below minimum investment of %d", max64(GlobalMinInvestment, property.MinInvestment)))
		}

		var existing models.Investment
		current := int64(0)
		err := tx.Where("property_id = ? AND user_id = ?", propertyID, userID).First(&existing).Error
		if err == nil {
			current = existing.Amount
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if current+amount > MaxPerUserInvestment {
			return utils.Policy(2016, fmt.Sprintf("investment would exceed per-user cap of %d", MaxPerUserInvestment))
		}

		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		newInvestor, err := s.Ledger.ApplyInvestmentDelta(tx, propertyID, userID, amount, height)
		if err != nil {
			return err
		}
		if err := s.Properties.UpdatePropertyInvestment(tx, propertyID, amount, newInvestor); err != nil {
			return err
		}
		if err := recordEvent(tx, models.EventInvestment, propertyID, userID, amount, height, ""); err != nil {
			return err
		}
		inv, err := s.Ledger.GetUserInvestment(tx, propertyID, userID)
		if err != nil {
			return err
		}
		result = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INVEST] %s invested %d in property %s", userID, amount, propertyID)
	return result, nil
}

// CanListShares mirrors the resale gates as a read-only predicate: a
// position exists and the holding period since first investment elapsed.
func (s *InvestmentService) CanListShares(userID, propertyID string) (bool, string, error) {
	inv, err := s.Ledger.GetUserInvestment(s.DB, propertyID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, "no investment in this property", nil
	}
	if err != nil {
		return false, "", err
	}
	if inv.Amount <= 0 {
		return false, "no remaining stake in this property", nil
	}
	height, err := currentHeight(s.DB)
	if err != nil {
		return false, "", err
	}
	if height-inv.InvestedAtHeight < HoldingPeriod {
		return false, fmt.Sprintf("holding period not met: %d of %d heights", height-inv.InvestedAtHeight, HoldingPeriod), nil
	}
	return true, "", nil
}

// CreateListing puts part of a position up for resale. One listing per
// (property, seller); a cancelled listing can be reopened.
func (s *InvestmentService) CreateListing(userID, propertyID string, shares, pricePerShare int64) (*models.ShareListing, error) {
	if err := s.checkPaused(s.DB); err != nil {
		return nil, err
	}
	if shares <= 0 || pricePerShare <= 0 {
		return nil, utils.Invalid(2007, "shares and price must be positive")
	}

	var listing *models.ShareListing
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var property models.Property
		if err := tx.First(&property, "id = ?", propertyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound(2002, "property not found")
			}
			return err
		}
		if property.Liquidated {
			return utils.Conflict(2004, "property is liquidated")
		}
		if property.Status == models.PropertyStatusFailed {
			return utils.Conflict(2004, "property funding failed, positions are refundable only")
		}
		inv, err := s.Ledger.GetUserInvestment(tx, propertyID, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && inv.Amount <= 0) {
			return utils.Conflict(2004, "no investment in this property")
		}
		if err != nil {
			return err
		}
		if shares > inv.Amount {
			return utils.Invalid(2007, fmt.Sprintf("cannot list %d shares, position holds %d", shares, inv.Amount))
		}
		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		if height-inv.InvestedAtHeight < HoldingPeriod {
			return utils.Conflict(2004, "holding period not met")
		}

		var existing models.ShareListing
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("property_id = ? AND seller = ?", propertyID, userID).
			First(&existing).Error
		switch {
		case err == nil && existing.Active:
			return utils.Conflict(2004, "an active listing already exists for this property")
		case err == nil:
			existing.SharesForSale = shares
			existing.PricePerShare = pricePerShare
			existing.Active = true
			existing.Version++
			existing.ListedAt = height
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			listing = &existing
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			listing = &models.ShareListing{
				ID:            uuid.NewString(),
				PropertyID:    propertyID,
				Seller:        userID,
				SharesForSale: shares,
				PricePerShare: pricePerShare,
				Active:        true,
				Version:       1,
				ListedAt:      height,
			}
			return tx.Create(listing).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// CancelListing deactivates the seller's own listing.
func (s *InvestmentService) CancelListing(userID, propertyID string) error {
	res := s.DB.Model(&models.ShareListing{}).
		Where("property_id = ? AND seller = ? AND active = ?", propertyID, userID, true).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.NotFound(2002, "no active listing to cancel")
	}
	return nil
}

// UpdateListingPrice reprices an active listing and bumps its version.
func (s *InvestmentService) UpdateListingPrice(userID, propertyID string, pricePerShare int64) (*models.ShareListing, error) {
	if pricePerShare <= 0 {
		return nil, utils.Invalid(2007, "price must be positive")
	}
	var listing models.ShareListing
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("property_id = ? AND seller = ? AND active = ?", propertyID, userID, true).
			First(&listing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFound(2002, "no active listing to update")
		}
		if err != nil {
			return err
		}
		listing.PricePerShare = pricePerShare
		listing.Version++
		return tx.Save(&listing).Error
	})
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// PurchaseShares atomically moves `shares` micro-units of stake from the
// seller's position to the buyer's at the listed price. Property totals
// are untouched; the investor count grows only if the buyer is new.
func (s *InvestmentService) PurchaseShares(buyer, propertyID, seller string, shares, maxPricePerShare int64) (*models.Investment, error) {
	if err := s.checkPaused(s.DB); err != nil {
		return nil, err
	}
	if err := s.checkInvestorStatus(s.DB, buyer); err != nil {
		return nil, err
	}
	if buyer == seller {
		return nil, utils.Invalid(2007, "buyer and seller cannot be the same principal")
	}
	if shares <= 0 {
		return nil, utils.Invalid(2007, "shares must be positive")
	}

	var result *models.Investment
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var property models.Property
		if err := tx.First(&property, "id = ?", propertyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound(2002, "property not found")
			}
			return err
		}
		if property.Liquidated || property.Status == models.PropertyStatusFailed {
			return utils.Conflict(2004, "property positions are no longer transferable")
		}
		var listing models.ShareListing
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("property_id = ? AND seller = ? AND active = ?", propertyID, seller, true).
			First(&listing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFound(2002, "no active listing for this property and seller")
		}
		if err != nil {
			return err
		}
		if shares > listing.SharesForSale {
			return utils.Invalid(2007, fmt.Sprintf("listing only offers %d shares", listing.SharesForSale))
		}
		if listing.PricePerShare > maxPricePerShare {
			return utils.Policy(2007, fmt.Sprintf("listing price %d exceeds buyer maximum %d", listing.PricePerShare, maxPricePerShare))
		}

		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		// Seller first so the debit fails before any credit happens.
		if _, err := s.Ledger.ApplyInvestmentDelta(tx, propertyID, seller, -shares, height); err != nil {
			return err
		}
		newInvestor, err := s.Ledger.ApplyInvestmentDelta(tx, propertyID, buyer, shares, height)
		if err != nil {
			return err
		}
		// Aggregate invested total is unchanged by a transfer; only the
		// investor count may move.
		if newInvestor {
			if err := s.Properties.UpdatePropertyInvestment(tx, propertyID, 0, true); err != nil {
				return err
			}
		}

		listing.SharesForSale -= shares
		if listing.SharesForSale == 0 {
			listing.Active = false
		}
		if err := tx.Save(&listing).Error; err != nil {
			return err
		}
		cost := shares * listing.PricePerShare / MicroUnit
		if err := recordEvent(tx, models.EventSharePurchase, propertyID, buyer, shares, height, fmt.Sprintf("seller=%s price=%d", seller, cost)); err != nil {
			return err
		}
		inv, err := s.Ledger.GetUserInvestment(tx, propertyID, buyer)
		if err != nil {
			return err
		}
		result = inv
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INVEST] %s bought %d shares of %s from %s", buyer, shares, propertyID, seller)
	return result, nil
}

// CastVote validates the voter's live position and relays the vote to
// the registry, weighted by their investment amount.
func (s *InvestmentService) CastVote(voter, proposalID string, support bool) error {
	if err := s.checkPaused(s.DB); err != nil {
		return err
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var proposal models.GovernanceProposal
		if err := tx.First(&proposal, "id = ?", proposalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound(2002, "proposal not found")
			}
			return err
		}
		inv, err := s.Ledger.GetUserInvestment(tx, proposal.PropertyID, voter)
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && inv.Amount <= 0) {
			return utils.Unauthorized(2001, "voter holds no investment in this property")
		}
		if err != nil {
			return err
		}
		return s.Properties.RecordVote(tx, proposalID, voter, support, inv.Amount)
	})
}

// ClaimRefund pays back the full invested amount after a failed funding
// round, once, subject to the shared withdrawal cooldown.
func (s *InvestmentService) ClaimRefund(userID, propertyID string) (*models.RefundClaim, error) {
	if err := s.checkPaused(s.DB); err != nil {
		return nil, err
	}
	var claim *models.RefundClaim
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var property models.Property
		if err := tx.First(&property, "id = ?", propertyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound(2002, "property not found")
			}
			return err
		}
		if property.Status != models.PropertyStatusFailed {
			return utils.Conflict(2004, "property funding has not failed")
		}
		var existing int64
		if err := tx.Model(&models.RefundClaim{}).
			Where("property_id = ? AND user_id = ?", propertyID, userID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return utils.Conflict(2025, "refund already claimed")
		}
		inv, err := s.Ledger.GetUserInvestment(tx, propertyID, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && inv.Amount <= 0) {
			return utils.NotFound(2002, "no investment to refund")
		}
		if err != nil {
			return err
		}
		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		portfolio, err := s.Ledger.GetUserPortfolio(tx, userID)
		if err == nil && portfolio.LastWithdrawalHeight > 0 && height-portfolio.LastWithdrawalHeight < WithdrawalCooldown {
			return utils.Policy(2017, "withdrawal cooldown has not elapsed")
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		claim = &models.RefundClaim{
			ID:              uuid.NewString(),
			PropertyID:      propertyID,
			UserID:          userID,
			Amount:          inv.Amount,
			ClaimedAtHeight: height,
		}
		if err := tx.Create(claim).Error; err != nil {
			return err
		}
		// Close the position so the refunded stake can never re-enter
		// the secondary market and be refunded again by a later holder.
		if _, err := s.Ledger.ApplyInvestmentDelta(tx, propertyID, userID, -claim.Amount, height); err != nil {
			return err
		}
		if err := s.Properties.UpdatePropertyInvestment(tx, propertyID, -claim.Amount, false); err != nil {
			return err
		}
		if err := s.Ledger.TouchWithdrawal(tx, userID, height); err != nil {
			return err
		}
		return recordEvent(tx, models.EventRefund, propertyID, userID, claim.Amount, height, "")
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[INVEST] %s refunded %d from failed property %s", userID, claim.Amount, propertyID)
	return claim, nil
}

// UpdateUserEarnings is the privileged write path the rental distributor
// uses inside its own transaction. Not exposed over HTTP.
func (s *InvestmentService) UpdateUserEarnings(tx *gorm.DB, userID string, amount int64) error {
	if amount < 0 || amount > MaxEarningsUpdate {
		return utils.Invalid(2007, "earnings update out of bounds")
	}
	return s.Ledger.AddEarnings(tx, userID, amount)
}

// OwnershipBPS computes an investor's stake in basis points; zero when
// nothing is invested yet.
func (s *InvestmentService) OwnershipBPS(userID, propertyID string) (int64, error) {
	totals, err := s.Ledger.GetPropertyTotals(s.DB, propertyID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if totals.TotalInvested == 0 {
		return 0, nil
	}
	inv, err := s.Ledger.GetUserInvestment(s.DB, propertyID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return inv.Amount * BPSDenominator / totals.TotalInvested, nil
}

// SetInvestmentsPaused toggles the investment-manager pause.
func (s *InvestmentService) SetInvestmentsPaused(admin string, paused bool) error {
	if !s.Governance.IsAdmin(admin) {
		return utils.Unauthorized(2001, "caller is not a protocol admin")
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		cfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		cfg.InvestmentsPaused = paused
		return tx.Save(cfg).Error
	})
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
