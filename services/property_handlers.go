package services

import (
	"errors"
	"log"
	"path/filepath"
	"strconv"

	"property-ledger-system/models"
	"property-ledger-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HTTP surface of the property registry.

// HandleSubmitProperty accepts a multipart form: the submission fields
// plus optional supporting documents (deed scans, photos) uploaded to R2
// before the property row is created.
func (s *PropertyService) HandleSubmitProperty(c *fiber.Ctx) error {
	owner := c.Locals("user_id").(string)

	req := SubmitPropertyRequest{
		Title:    c.FormValue("title"),
		Location: c.FormValue("location"),
	}
	var err error
	if req.TotalValue, err = strconv.ParseInt(c.FormValue("total_value", "0"), 10, 64); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid total_value"})
	}
	if req.MonthlyRent, err = strconv.ParseInt(c.FormValue("monthly_rent", "0"), 10, 64); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid monthly_rent"})
	}
	if req.MinInvestment, err = strconv.ParseInt(c.FormValue("min_investment", "0"), 10, 64); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid min_investment"})
	}
	if req.FundingDays, err = strconv.ParseInt(c.FormValue("funding_days", "0"), 10, 64); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid funding_days"})
	}
	if req.FundingThresholdBPS, err = strconv.ParseInt(c.FormValue("funding_threshold_bps", "0"), 10, 64); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid funding_threshold_bps"})
	}

	// Upload supporting documents before touching the DB, same flow as
	// any other asset upload: documents[0], documents[1], ...
	var documentURLs []string
	for i := 0; ; i++ {
		file, err := c.FormFile("documents[" + strconv.Itoa(i) + "]")
		if err != nil {
			break
		}
		ext := filepath.Ext(file.Filename)
		key := "documents/" + uuid.NewString() + ext
		url, err := utils.UploadPropertyDocument(file, key)
		if err != nil {
			log.Printf("[REGISTRY] document upload failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).
				JSON(fiber.Map{"error": "failed to upload document"})
		}
		documentURLs = append(documentURLs, url)
	}

	property, err := s.CreateProperty(owner, req, documentURLs)
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(property)
}

func (s *PropertyService) HandleVerifyProperty(c *fiber.Ctx) error {
	admin := c.Locals("user_id").(string)
	property, err := s.VerifyProperty(admin, c.Params("id"))
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(property)
}

func (s *PropertyService) HandleCheckFundingDeadline(c *fiber.Ctx) error {
	status, err := s.SettleFunding(c.Params("id"))
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(fiber.Map{"property_id": c.Params("id"), "status": status})
}

func (s *PropertyService) HandleReleaseFunds(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	property, err := s.ReleaseFunds(caller, c.Params("id"))
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(property)
}

func (s *PropertyService) HandleCreateProposal(c *fiber.Ctx) error {
	proposer := c.Locals("user_id").(string)
	var req CreateProposalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	proposal, err := s.CreateProposal(proposer, c.Params("id"), req)
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(proposal)
}

func (s *PropertyService) HandleExecuteProposal(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	proposal, err := s.ExecuteProposal(caller, c.Params("proposal_id"))
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(proposal)
}

func (s *PropertyService) HandleClaimLiquidationProceeds(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	claim, err := s.ClaimLiquidationProceeds(userID, c.Params("id"))
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(claim)
}

func (s *PropertyService) HandleAdminCancelListing(c *fiber.Ctx) error {
	admin := c.Locals("user_id").(string)
	if err := s.AdminCancelListing(admin, c.Params("id"), c.Params("seller")); err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(fiber.Map{"message": "listing cancelled"})
}

func (s *PropertyService) HandleWhitelistInvestor(c *fiber.Ctx) error {
	admin := c.Locals("user_id").(string)
	if err := s.SetInvestorStatus(admin, c.Params("user_id"), true); err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(fiber.Map{"message": "investor whitelisted"})
}

func (s *PropertyService) HandleBlacklistInvestor(c *fiber.Ctx) error {
	admin := c.Locals("user_id").(string)
	if err := s.SetInvestorStatus(admin, c.Params("user_id"), false); err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(fiber.Map{"message": "investor blacklisted"})
}

func (s *PropertyService) HandlePause(c *fiber.Ctx) error {
	admin := c.Locals("user_id").(string)
	if err := s.SetRegistryPaused(admin, true); err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(fiber.Map{"message": "registry paused"})
}

func (s *PropertyService) HandleUnpause(c *fiber.Ctx) error {
	admin := c.Locals("user_id").(string)
	if err := s.SetRegistryPaused(admin, false); err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(fiber.Map{"message": "registry unpaused"})
}

// --- Read accessors ---

func (s *PropertyService) HandleGetProperty(c *fiber.Ctx) error {
	var property models.Property
	if err := s.DB.Preload("Documents").First(&property, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.RenderError(c, utils.NotFound(1002, "property not found"))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(property)
}

func (s *PropertyService) HandleGetAllProperties(c *fiber.Ctx) error {
	query := s.DB.Order("created_at DESC")
	if owner := c.Query("owner"); owner != "" {
		query = query.Where("owner = ?", owner)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	var properties []models.Property
	if err := query.Find(&properties).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(properties)
}

func (s *PropertyService) HandleGetFundingInfo(c *fiber.Ctx) error {
	var property models.Property
	if err := s.DB.First(&property, "id = ?", c.Params("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.RenderError(c, utils.NotFound(1002, "property not found"))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	target := property.TotalValue * property.FundingThresholdBPS / BPSDenominator
	remaining := target - property.TotalInvested
	if remaining < 0 {
		remaining = 0
	}
	return c.JSON(fiber.Map{
		"property_id":      property.ID,
		"status":           property.Status,
		"funding_target":   target,
		"total_invested":   property.TotalInvested,
		"remaining":        remaining,
		"funding_deadline": property.FundingDeadline,
		"investor_count":   property.InvestorCount,
	})
}

func (s *PropertyService) HandleGetShareListing(c *fiber.Ctx) error {
	var listing models.ShareListing
	err := s.DB.Where("property_id = ? AND seller = ?", c.Params("id"), c.Params("seller")).
		First(&listing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.RenderError(c, utils.NotFound(1002, "listing not found"))
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(listing)
}

func (s *PropertyService) HandleGetPropertyListings(c *fiber.Ctx) error {
	var listings []models.ShareListing
	if err := s.DB.Where("property_id = ? AND active = ?", c.Params("id"), true).
		Order("price_per_share ASC").Find(&listings).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(listings)
}

func (s *PropertyService) HandleGetProposal(c *fiber.Ctx) error {
	var proposal models.GovernanceProposal
	if err := s.DB.First(&proposal, "id = ?", c.Params("proposal_id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.RenderError(c, utils.NotFound(1002, "proposal not found"))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(proposal)
}

func (s *PropertyService) HandleGetPropertyProposals(c *fiber.Ctx) error {
	var proposals []models.GovernanceProposal
	if err := s.DB.Where("property_id = ?", c.Params("id")).
		Order("created_at DESC").Find(&proposals).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(proposals)
}
