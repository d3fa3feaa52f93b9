package services

import (
	"errors"
	"strconv"

	"property-ledger-system/models"
	"property-ledger-system/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// HTTP surface of the rental distributor.

func (s *RentalService) HandleDeposit(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	payment, err := s.Deposit(caller, req, false)
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(payment)
}

func (s *RentalService) HandleDepositOverride(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	payment, err := s.Deposit(caller, req, true)
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(payment)
}

func (s *RentalService) HandleDistribute(c *fiber.Ctx) error {
	caller := c.Locals("user_id").(string)
	month, year, err := periodParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	payment, err := s.Distribute(caller, c.Params("id"), month, year)
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(payment)
}

func (s *RentalService) HandleClaim(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	month, year, err := periodParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	claim, err := s.Claim(userID, c.Params("id"), month, year)
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(claim)
}

func (s *RentalService) HandleEmergencyWithdraw(c *fiber.Ctx) error {
	admin := c.Locals("user_id").(string)
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	remaining, err := s.EmergencyWithdrawFees(admin, req.Amount)
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(fiber.Map{"withdrawn": req.Amount, "fees_remaining": remaining})
}

func (s *RentalService) HandleSetPlatformWallet(c *fiber.Ctx) error {
	admin := c.Locals("user_id").(string)
	var req struct {
		Wallet string `json:"wallet"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.SetPlatformWallet(admin, req.Wallet); err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *RentalService) HandleSetPaused(paused bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		admin := c.Locals("user_id").(string)
		if !s.Governance.IsAdmin(admin) {
			return utils.RenderError(c, utils.Unauthorized(3001, "caller is not a protocol admin"))
		}
		err := s.DB.Transaction(func(tx *gorm.DB) error {
			cfg, err := loadConfig(tx)
			if err != nil {
				return err
			}
			cfg.RentalPaused = paused
			return tx.Save(cfg).Error
		})
		if err != nil {
			return utils.RenderError(c, err)
		}
		return c.JSON(fiber.Map{"rental_paused": paused})
	}
}

func (s *RentalService) HandleGetPayment(c *fiber.Ctx) error {
	month, year, err := periodParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	var payment models.RentalPayment
	err = s.DB.Where("property_id = ? AND month = ? AND year = ?", c.Params("id"), month, year).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No rental payment for this period"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(payment)
}

func (s *RentalService) HandleGetPropertyPayments(c *fiber.Ctx) error {
	var payments []models.RentalPayment
	if err := s.DB.Where("property_id = ?", c.Params("id")).
		Order("year DESC, month DESC").
		Find(&payments).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(payments)
}

func (s *RentalService) HandleGetClaim(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	month, year, err := periodParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	var claim models.PeriodClaim
	err = s.DB.Where("property_id = ? AND month = ? AND year = ? AND user_id = ?",
		c.Params("id"), month, year, userID).First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.JSON(fiber.Map{"claimed": false})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(fiber.Map{"claimed": true, "claim": claim})
}

// HandleGetClaimable previews the caller's share of a period without
// claiming it.
func (s *RentalService) HandleGetClaimable(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	month, year, err := periodParams(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	var payment models.RentalPayment
	err = s.DB.Where("property_id = ? AND month = ? AND year = ?", c.Params("id"), month, year).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No rental payment for this period"})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	share, err := s.UserShare(s.DB, &payment, userID)
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(fiber.Map{
		"share":       share,
		"claimable":   payment.Distributed && share > MinClaimableShare,
		"distributed": payment.Distributed,
	})
}

func periodParams(c *fiber.Ctx) (int, int, error) {
	month, err := strconv.Atoi(c.Params("month", c.Query("month")))
	if err != nil {
		return 0, 0, errors.New("invalid month")
	}
	year, err := strconv.Atoi(c.Params("year", c.Query("year")))
	if err != nil {
		return 0, 0, errors.New("invalid year")
	}
	return month, year, nil
}
