package services

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"property-ledger-system/models"
	"property-ledger-system/utils"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PropertyService is the property registry: the lifecycle state machine
// (submission → verification → funding → funded/failed → liquidation),
// owner-scoped governance proposals with investor voting, and the
// secondary-market listing table's administration.
type PropertyService struct {
	DB         *gorm.DB
	Governance *GovernanceService
}

func NewPropertyService(db *gorm.DB, governance *GovernanceService) *PropertyService {
	return &PropertyService{DB: db, Governance: governance}
}

type SubmitPropertyRequest struct {
	Title               string `json:"title"`
	Location            string `json:"location"`
	TotalValue          int64  `json:"total_value"`
	MonthlyRent         int64  `json:"monthly_rent"`
	MinInvestment       int64  `json:"min_investment"`
	FundingDays         int64  `json:"funding_days"`
	FundingThresholdBPS int64  `json:"funding_threshold_bps"`
}

// CreateProperty validates the submission bands and registers the
// property in pending state. Document URLs have already been uploaded
// to object storage by the handler.
func (s *PropertyService) CreateProperty(owner string, req SubmitPropertyRequest, documentURLs []string) (*models.Property, error) {
	cfg, err := loadConfig(s.DB)
	if err != nil {
		return nil, err
	}
	if cfg.RegistryPaused {
		return nil, utils.Unavailable(1012, "property registry is paused")
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Location) == "" {
		return nil, utils.Invalid(1007, "title and location are required")
	}
	if req.TotalValue < MinPropertyValue || req.TotalValue > MaxPropertyValue {
		return nil, utils.Invalid(1005, fmt.Sprintf("total value must be between %d and %d", MinPropertyValue, MaxPropertyValue))
	}
	if req.MonthlyRent <= 0 || req.MonthlyRent > MaxMonthlyRent {
		return nil, utils.Invalid(1006, fmt.Sprintf("monthly rent must be between 1 and %d", MaxMonthlyRent))
	}
	// Implied annual yield band: monthly_rent * 12 as a share of value.
	// The rent cap above keeps the product inside int64.
	yieldBPS := req.MonthlyRent * 12 * BPSDenominator / req.TotalValue
	if yieldBPS < MinAnnualYieldBPS || yieldBPS > MaxAnnualYieldBPS {
		return nil, utils.Invalid(1006, fmt.Sprintf("implied annual yield %d bps outside [%d, %d]", yieldBPS, MinAnnualYieldBPS, MaxAnnualYieldBPS))
	}
	if req.FundingDays < MinFundingDays || req.FundingDays > MaxFundingDays {
		return nil, utils.Invalid(1007, fmt.Sprintf("funding window must be between %d and %d days", MinFundingDays, MaxFundingDays))
	}
	if req.FundingThresholdBPS < MinThresholdBPS || req.FundingThresholdBPS > MaxThresholdBPS {
		return nil, utils.Invalid(1007, "funding threshold out of range")
	}
	maxMinInvestment := req.TotalValue * MinInvestmentCapBPS / BPSDenominator
	if req.MinInvestment < GlobalMinInvestment || req.MinInvestment > maxMinInvestment {
		return nil, utils.Invalid(1007, fmt.Sprintf("minimum investment must be between %d and %d", GlobalMinInvestment, maxMinInvestment))
	}

	height, err := currentHeight(s.DB)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	property := &models.Property{
		ID:                  id,
		Slug:                slug.Make(req.Title) + "-" + id[:8],
		Owner:               owner,
		Title:               strings.TrimSpace(req.Title),
		Location:            strings.TrimSpace(req.Location),
		TotalValue:          req.TotalValue,
		MonthlyRent:         req.MonthlyRent,
		MinInvestment:       req.MinInvestment,
		FundingDeadline:     height + req.FundingDays*HeightsPerDay,
		FundingThresholdBPS: req.FundingThresholdBPS,
		Status:              models.PropertyStatusPending,
		SubmittedAtHeight:   height,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(property).Error; err != nil {
			return err
		}
		for i, url := range documentURLs {
			doc := models.PropertyDocument{
				ID:         uuid.NewString(),
				PropertyID: property.ID,
				Name:       filepath.Base(url),
				URL:        url,
				SortOrder:  i,
			}
			if err := tx.Create(&doc).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[REGISTRY] property %s submitted by %s (value %d)", property.ID, owner, property.TotalValue)
	return property, nil
}

// VerifyProperty flips the one-shot verified flag and opens funding.
func (s *PropertyService) VerifyProperty(admin, propertyID string) (*models.Property, error) {
	if !s.Governance.IsAdmin(admin) {
		return nil, utils.Unauthorized(1001, "caller is not a protocol admin")
	}
	var property models.Property
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.lockProperty(tx, propertyID, &property); err != nil {
			return err
		}
		if property.Verified {
			return utils.Conflict(1018, "property already verified")
		}
		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		property.Verified = true
		property.Active = true
		property.Status = models.PropertyStatusActive
		property.VerifiedAtHeight = height
		return tx.Save(&property).Error
	})
	if err != nil {
		return nil, err
	}
	return &property, nil
}

// SettleFunding compares invested capital against the threshold once the
// deadline height has passed. Already-settled properties return their
// status unchanged so retries (and the sweeper) are harmless.
func (s *PropertyService) SettleFunding(propertyID string) (models.PropertyStatus, error) {
	var status models.PropertyStatus
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var property models.Property
		if err := s.lockProperty(tx, propertyID, &property); err != nil {
			return err
		}
		if property.Status == models.PropertyStatusFunded || property.Status == models.PropertyStatusFailed {
			status = property.Status
			return nil
		}
		if property.Status != models.PropertyStatusActive {
			return utils.Conflict(1004, "property is not in active funding")
		}
		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		if height <= property.FundingDeadline {
			return utils.Conflict(1022, "funding deadline not reached")
		}
		target := property.TotalValue * property.FundingThresholdBPS / BPSDenominator
		if property.TotalInvested >= target {
			property.Status = models.PropertyStatusFunded
			property.FundedAtHeight = height
		} else {
			property.Status = models.PropertyStatusFailed
			property.Active = false
		}
		status = property.Status
		if err := tx.Save(&property).Error; err != nil {
			return err
		}
		return recordEvent(tx, models.EventFundingSettled, property.ID, "", property.TotalInvested, height, string(status))
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

// ReleaseFunds hands the raised capital to the owner, one-shot, only
// after funded status plus the post-funding delay.
func (s *PropertyService) ReleaseFunds(caller, propertyID string) (*models.Property, error) {
	var property models.Property
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := s.lockProperty(tx, propertyID, &property); err != nil {
			return err
		}
		if property.Owner != caller {
			return utils.Unauthorized(1001, "only the property owner may release funds")
		}
		if property.Status != models.PropertyStatusFunded {
			return utils.Conflict(1004, "property is not funded")
		}
		if property.FundsReleased {
			return utils.Conflict(1024, "funds already released")
		}
		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		if height-property.FundedAtHeight < FundsReleaseDelay {
			return utils.Policy(1004, "post-funding release delay has not elapsed")
		}
		property.FundsReleased = true
		if err := tx.Save(&property).Error; err != nil {
			return err
		}
		return recordEvent(tx, models.EventFundsReleased, property.ID, caller, property.TotalInvested, height, "")
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[REGISTRY] funds released to owner for property %s", propertyID)
	return &property, nil
}

// UpdatePropertyInvestment is the writer-restricted aggregate update
// used by the investment manager inside its own transaction. It is not
// exposed over HTTP.
func (s *PropertyService) UpdatePropertyInvestment(tx *gorm.DB, propertyID string, delta int64, newInvestor bool) error {
	var property models.Property
	if err := s.lockProperty(tx, propertyID, &property); err != nil {
		return err
	}
	if property.TotalInvested+delta < 0 {
		return fmt.Errorf("property invested total underflow for %s", propertyID)
	}
	property.TotalInvested += delta
	if newInvestor {
		property.InvestorCount++
	}
	return tx.Save(&property).Error
}

type CreateProposalRequest struct {
	Type         models.ProposalType `json:"type"`
	Description  string              `json:"description"`
	NewAmount    int64               `json:"new_amount"`
	NewPrincipal string              `json:"new_principal"`
}

// CreateProposal opens an owner-scoped proposal, freezing the quorum
// denominator at the current invested total.
func (s *PropertyService) CreateProposal(proposer, propertyID string, req CreateProposalRequest) (*models.GovernanceProposal, error) {
	if !validProposalType(req.Type) {
		return nil, utils.Invalid(1007, "unknown proposal type: "+string(req.Type))
	}
	if len(strings.TrimSpace(req.Description)) < MinDescriptionLen {
		return nil, utils.Invalid(1007, "proposal description too short")
	}

	var proposal *models.GovernanceProposal
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var property models.Property
		if err := s.lockProperty(tx, propertyID, &property); err != nil {
			return err
		}
		if property.Owner != proposer {
			return utils.Unauthorized(1001, "only the property owner may create proposals")
		}
		if req.Type == models.ProposalLiquidate {
			minValue := property.TotalInvested * LiquidationMinBPS / BPSDenominator
			if req.NewAmount < minValue {
				return utils.Policy(1032, fmt.Sprintf("liquidation value %d below minimum %d", req.NewAmount, minValue))
			}
		}
		if req.Type == models.ProposalChangeOwner && req.NewPrincipal == "" {
			return utils.Invalid(1007, "change-owner proposal requires a principal")
		}
		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		proposal = &models.GovernanceProposal{
			ID:                    uuid.NewString(),
			PropertyID:            propertyID,
			Proposer:              proposer,
			Type:                  req.Type,
			Description:           strings.TrimSpace(req.Description),
			NewAmount:             req.NewAmount,
			NewPrincipal:          req.NewPrincipal,
			SnapshotTotalInvested: property.TotalInvested,
			CreatedAtHeight:       height,
		}
		return tx.Create(proposal).Error
	})
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

// RecordVote is the relay target from the investment manager: the voter
// has already been checked for a live position and `weight` is their
// investment amount. Write-once per (proposal, voter).
func (s *PropertyService) RecordVote(tx *gorm.DB, proposalID, voter string, support bool, weight int64) error {
	var proposal models.GovernanceProposal
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&proposal, "id = ?", proposalID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.NotFound(1002, "proposal not found")
		}
		return err
	}
	if proposal.Executed {
		return utils.Conflict(1004, "proposal already executed")
	}
	var existing int64
	if err := tx.Model(&models.ProposalVote{}).
		Where("proposal_id = ? AND voter = ?", proposalID, voter).
		Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return utils.Conflict(2025, "voter already voted on this proposal")
	}
	height, err := currentHeight(tx)
	if err != nil {
		return err
	}
	vote := models.ProposalVote{
		ID:            uuid.NewString(),
		ProposalID:    proposalID,
		Voter:         voter,
		Support:       support,
		Weight:        weight,
		VotedAtHeight: height,
	}
	if err := tx.Create(&vote).Error; err != nil {
		return err
	}
	if support {
		proposal.VotesFor += weight
	} else {
		proposal.VotesAgainst += weight
	}
	return tx.Save(&proposal).Error
}

// ExecuteProposal applies the type-specific mutation once the proposal's
// timelock has elapsed and votes-for exceed half the snapshotted total
// investment (quorum over the snapshot, not over votes cast).
func (s *PropertyService) ExecuteProposal(caller, proposalID string) (*models.GovernanceProposal, error) {
	var proposal models.GovernanceProposal
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&proposal, "id = ?", proposalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound(1002, "proposal not found")
			}
			return err
		}
		if proposal.Executed {
			return utils.Conflict(1004, "proposal already executed")
		}
		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		age := height - proposal.CreatedAtHeight
		if age < proposalTimelocks[proposal.Type] {
			return utils.Policy(1004, fmt.Sprintf("proposal timelock not elapsed: age %d, need %d", age, proposalTimelocks[proposal.Type]))
		}
		if proposal.VotesFor*2 <= proposal.SnapshotTotalInvested {
			return utils.Conflict(1004, "quorum not reached over snapshotted investment")
		}

		var property models.Property
		if err := s.lockProperty(tx, proposal.PropertyID, &property); err != nil {
			return err
		}
		switch proposal.Type {
		case models.ProposalUpdateRent:
			if proposal.NewAmount <= 0 || proposal.NewAmount > MaxMonthlyRent {
				return utils.Invalid(1006, "proposed rent out of range")
			}
			yieldBPS := proposal.NewAmount * 12 * BPSDenominator / property.TotalValue
			if yieldBPS < MinAnnualYieldBPS || yieldBPS > MaxAnnualYieldBPS {
				return utils.Invalid(1006, "proposed rent leaves yield outside allowed band")
			}
			property.MonthlyRent = proposal.NewAmount
		case models.ProposalUpdateThreshold:
			if proposal.NewAmount < MinThresholdBPS || proposal.NewAmount > MaxThresholdBPS {
				return utils.Invalid(1007, "proposed threshold out of range")
			}
			property.FundingThresholdBPS = proposal.NewAmount
		case models.ProposalChangeOwner:
			property.Owner = proposal.NewPrincipal
		case models.ProposalLiquidate:
			property.Liquidated = true
			property.LiquidationValue = proposal.NewAmount
			property.Active = false
		}
		if err := tx.Save(&property).Error; err != nil {
			return err
		}
		proposal.Executed = true
		proposal.ExecutedAtHeight = height
		return tx.Save(&proposal).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[REGISTRY] proposal %s (%s) executed on property %s", proposal.ID, proposal.Type, proposal.PropertyID)
	return &proposal, nil
}

// ClaimLiquidationProceeds pays an investor their proportional slice of
// the liquidation value, once.
func (s *PropertyService) ClaimLiquidationProceeds(userID, propertyID string) (*models.LiquidationClaim, error) {
	var claim *models.LiquidationClaim
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var property models.Property
		if err := s.lockProperty(tx, propertyID, &property); err != nil {
			return err
		}
		if !property.Liquidated {
			return utils.Conflict(1004, "property is not liquidated")
		}
		var inv models.Investment
		if err := tx.Where("property_id = ? AND user_id = ?", propertyID, userID).First(&inv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound(1002, "no investment in this property")
			}
			return err
		}
		if inv.Amount <= 0 {
			return utils.Conflict(1004, "no remaining stake in this property")
		}
		var existing int64
		if err := tx.Model(&models.LiquidationClaim{}).
			Where("property_id = ? AND user_id = ?", propertyID, userID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return utils.Conflict(1004, "liquidation proceeds already claimed")
		}
		if property.TotalInvested <= 0 {
			return utils.Conflict(1004, "property has no invested capital")
		}
		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		// Truncating division favors the protocol.
		amount := property.LiquidationValue * inv.Amount / property.TotalInvested
		claim = &models.LiquidationClaim{
			ID:              uuid.NewString(),
			PropertyID:      propertyID,
			UserID:          userID,
			Amount:          amount,
			ClaimedAtHeight: height,
		}
		if err := tx.Create(claim).Error; err != nil {
			return err
		}
		return recordEvent(tx, models.EventLiquidationClaim, propertyID, userID, amount, height, "")
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// AdminCancelListing is the emergency override for listings left behind
// by liquidation or blacklisting.
func (s *PropertyService) AdminCancelListing(admin, propertyID, seller string) error {
	if !s.Governance.IsAdmin(admin) {
		return utils.Unauthorized(1001, "caller is not a protocol admin")
	}
	res := s.DB.Model(&models.ShareListing{}).
		Where("property_id = ? AND seller = ? AND active = ?", propertyID, seller, true).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.NotFound(1002, "no active listing for this property and seller")
	}
	log.Printf("[REGISTRY] admin %s cancelled listing %s/%s", admin, propertyID, seller)
	return nil
}

// SetInvestorStatus is the direct admin path mirrored by the equivalent
// governance actions; governance writes use the same table.
func (s *PropertyService) SetInvestorStatus(admin, userID string, whitelisted bool) error {
	if !s.Governance.IsAdmin(admin) {
		return utils.Unauthorized(1001, "caller is not a protocol admin")
	}
	status := models.InvestorStatus{
		UserID:      userID,
		Whitelisted: whitelisted,
		Blacklisted: !whitelisted,
		Source:      "governance",
	}
	return s.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"whitelisted", "blacklisted", "source"}),
	}).Create(&status).Error
}

// SetRegistryPaused toggles the registry-wide pause.
func (s *PropertyService) SetRegistryPaused(admin string, paused bool) error {
	if !s.Governance.IsAdmin(admin) {
		return utils.Unauthorized(1001, "caller is not a protocol admin")
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		cfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		cfg.RegistryPaused = paused
		return tx.Save(cfg).Error
	})
}

func (s *PropertyService) lockProperty(tx *gorm.DB, propertyID string, out *models.Property) error {
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(out, "id = ?", propertyID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.NotFound(1002, "property not found")
	}
	return err
}

// SweepFundingDeadlines settles every verified property whose deadline
// has passed. Shared by the scheduler and exposed for ops use.
func (s *PropertyService) SweepFundingDeadlines() (int, error) {
	height, err := currentHeight(s.DB)
	if err != nil {
		return 0, err
	}
	var due []models.Property
	if err := s.DB.Where("status = ? AND verified = ? AND funding_deadline < ?",
		models.PropertyStatusActive, true, height).Find(&due).Error; err != nil {
		return 0, err
	}
	settled := 0
	for _, property := range due {
		status, err := s.SettleFunding(property.ID)
		if err != nil {
			log.Printf("[SCHEDULER] failed to settle funding for %s: %v", property.ID, err)
			continue
		}
		log.Printf("[SCHEDULER] property %s settled as %s", property.ID, status)
		settled++
	}
	return settled, nil
}
