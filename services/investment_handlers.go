package services

import (
	"errors"

	"property-ledger-system/models"
	"property-ledger-system/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// HTTP surface of the investment manager.

func (s *InvestmentService) HandleInvest(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	inv, err := s.PlaceInvestment(userID, c.Params("id"), req.Amount)
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(inv)
}

func (s *InvestmentService) HandleCreateListing(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	var req struct {
		Shares        int64 `json:"shares"`
		PricePerShare int64 `json:"price_per_share"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	listing, err := s.CreateListing(userID, c.Params("id"), req.Shares, req.PricePerShare)
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(listing)
}

func (s *InvestmentService) HandleCancelListing(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	if err := s.CancelListing(userID, c.Params("id")); err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(fiber.Map{"message": "listing cancelled"})
}

func (s *InvestmentService) HandleUpdateListingPrice(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	var req struct {
		PricePerShare int64 `json:"price_per_share"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	listing, err := s.UpdateListingPrice(userID, c.Params("id"), req.PricePerShare)
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(listing)
}

func (s *InvestmentService) HandlePurchaseShares(c *fiber.Ctx) error {
	buyer := c.Locals("user_id").(string)
	var req struct {
		Shares           int64 `json:"shares"`
		MaxPricePerShare int64 `json:"max_price_per_share"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	inv, err := s.PurchaseShares(buyer, c.Params("id"), c.Params("seller"), req.Shares, req.MaxPricePerShare)
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(inv)
}

func (s *InvestmentService) HandleCastVote(c *fiber.Ctx) error {
	voter := c.Locals("user_id").(string)
	var req struct {
		Support bool `json:"support"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.CastVote(voter, c.Params("proposal_id"), req.Support); err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(fiber.Map{"message": "vote recorded"})
}

func (s *InvestmentService) HandleClaimRefund(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	claim, err := s.ClaimRefund(userID, c.Params("id"))
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(claim)
}

func (s *InvestmentService) HandlePause(c *fiber.Ctx) error {
	admin := c.Locals("user_id").(string)
	if err := s.SetInvestmentsPaused(admin, true); err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(fiber.Map{"message": "investment manager paused"})
}

func (s *InvestmentService) HandleUnpause(c *fiber.Ctx) error {
	admin := c.Locals("user_id").(string)
	if err := s.SetInvestmentsPaused(admin, false); err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(fiber.Map{"message": "investment manager unpaused"})
}

// --- Read accessors ---

func (s *InvestmentService) HandleGetUserInvestment(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	inv, err := s.Ledger.GetUserInvestment(s.DB, c.Params("id"), userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return utils.RenderError(c, utils.NotFound(2002, "no investment in this property"))
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(inv)
}

func (s *InvestmentService) HandleGetPropertyTotals(c *fiber.Ctx) error {
	totals, err := s.Ledger.GetPropertyTotals(s.DB, c.Params("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(models.PropertyTotals{PropertyID: c.Params("id")})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(totals)
}

func (s *InvestmentService) HandleGetPortfolio(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	portfolio, err := s.Ledger.GetUserPortfolio(s.DB, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(models.UserPortfolio{UserID: userID})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	var positions []models.Investment
	if err := s.DB.Where("user_id = ? AND amount > 0", userID).Find(&positions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(fiber.Map{"portfolio": portfolio, "positions": positions})
}

// HandleGetAvailableShares returns what the caller could still list:
// current position minus what is already on the market.
func (s *InvestmentService) HandleGetAvailableShares(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	propertyID := c.Params("id")
	inv, err := s.Ledger.GetUserInvestment(s.DB, propertyID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(fiber.Map{"property_id": propertyID, "available": 0})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	var listed int64
	row := s.DB.Model(&models.ShareListing{}).
		Where("property_id = ? AND seller = ? AND active = ?", propertyID, userID, true).
		Select("COALESCE(SUM(shares_for_sale), 0)")
	if err := row.Scan(&listed).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	available := inv.Amount - listed
	if available < 0 {
		available = 0
	}
	return c.JSON(fiber.Map{"property_id": propertyID, "available": available, "listed": listed})
}

func (s *InvestmentService) HandleCanListShares(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	ok, reason, err := s.CanListShares(userID, c.Params("id"))
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(fiber.Map{"can_list": ok, "reason": reason})
}

func (s *InvestmentService) HandleGetOwnershipBPS(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	bps, err := s.OwnershipBPS(userID, c.Params("id"))
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(fiber.Map{"property_id": c.Params("id"), "ownership_bps": bps})
}
