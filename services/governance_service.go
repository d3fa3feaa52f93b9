package services

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"property-ledger-system/models"
	"property-ledger-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GovernanceService is the protocol authority: a fixed admin set with
// M-of-N approval over timelocked actions, plus the emergency mechanism
// with its own cooldown and spending cap. Property-scoped proposals live
// in the property registry, not here.
type GovernanceService struct {
	DB *gorm.DB
}

func NewGovernanceService(db *gorm.DB) *GovernanceService {
	return &GovernanceService{DB: db}
}

// IsAdmin reports whether the principal is an active protocol admin.
func (s *GovernanceService) IsAdmin(principal string) bool {
	var count int64
	if err := s.DB.Model(&models.Admin{}).
		Where("principal = ? AND active = ?", principal, true).
		Count(&count).Error; err != nil {
		log.Printf("[GOVERNANCE] admin lookup failed for %s: %v", principal, err)
		return false
	}
	return count > 0
}

func (s *GovernanceService) requireAdmin(principal string) error {
	if !s.IsAdmin(principal) {
		return utils.Unauthorized(5001, "caller is not a protocol admin")
	}
	return nil
}

func (s *GovernanceService) loadGovConfig(tx *gorm.DB) (*models.GovernanceConfig, error) {
	var cfg models.GovernanceConfig
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&cfg, "id = ?", 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = models.GovernanceConfig{ID: 1, RequiredApprovals: RequiredApprovals}
		if err := tx.Create(&cfg).Error; err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AdminSeed struct {
	Principal string `json:"principal"`
	Name      string `json:"name"`
}

// InitializeAdmins seeds the admin set. One-shot: a second call fails
// regardless of payload.
func (s *GovernanceService) InitializeAdmins(seeds []AdminSeed) error {
	if len(seeds) < RequiredApprovals || len(seeds) > MaxAdmins {
		return utils.Invalid(5008, fmt.Sprintf("admin set must have between %d and %d members", RequiredApprovals, MaxAdmins))
	}
	seen := make(map[string]bool, len(seeds))
	for _, seed := range seeds {
		if len(strings.TrimSpace(seed.Name)) < MinAdminNameLen {
			return utils.Invalid(5008, "admin name too short")
		}
		if seed.Principal == "" || seen[seed.Principal] {
			return utils.Invalid(5008, "duplicate or empty admin principal")
		}
		seen[seed.Principal] = true
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		cfg, err := s.loadGovConfig(tx)
		if err != nil {
			return err
		}
		if cfg.Initialized {
			return utils.Conflict(5003, "admin set already initialized")
		}
		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		for _, seed := range seeds {
			admin := models.Admin{
				ID:            uuid.NewString(),
				Principal:     seed.Principal,
				Name:          strings.TrimSpace(seed.Name),
				Active:        true,
				AddedAtHeight: height,
			}
			if err := tx.Create(&admin).Error; err != nil {
				return err
			}
		}
		cfg.Initialized = true
		return tx.Save(cfg).Error
	})
}

type ProposeActionRequest struct {
	Type         models.ActionType `json:"type"`
	Description  string            `json:"description"`
	TargetModule string            `json:"target_module"`
	Principal    string            `json:"principal"`
	Param        int64             `json:"param"`
	Name         string            `json:"name"`
}

// ProposeAction opens a timelocked action. The proposer counts as the
// first approval.
func (s *GovernanceService) ProposeAction(proposer string, req ProposeActionRequest) (*models.GovernanceAction, error) {
	if err := s.requireAdmin(proposer); err != nil {
		return nil, err
	}
	if !validActionType(req.Type) {
		return nil, utils.Invalid(5008, "unknown action type: "+string(req.Type))
	}
	if len(strings.TrimSpace(req.Description)) < MinDescriptionLen {
		return nil, utils.Invalid(5008, "action description too short")
	}

	var action *models.GovernanceAction
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		cfg, err := s.loadGovConfig(tx)
		if err != nil {
			return err
		}
		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		cfg.ActionCounter++
		action = &models.GovernanceAction{
			ID:              cfg.ActionCounter,
			Type:            req.Type,
			Description:     strings.TrimSpace(req.Description),
			TargetModule:    req.TargetModule,
			Principal:       req.Principal,
			Param:           req.Param,
			Name:            req.Name,
			Proposer:        proposer,
			Approvals:       1,
			CreatedAtHeight: height,
		}
		if err := tx.Create(action).Error; err != nil {
			return err
		}
		approval := models.ActionApproval{
			ID:               uuid.NewString(),
			ActionID:         action.ID,
			Admin:            proposer,
			ApprovedAtHeight: height,
		}
		if err := tx.Create(&approval).Error; err != nil {
			return err
		}
		return tx.Save(cfg).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[GOVERNANCE] action %d (%s) proposed by %s", action.ID, action.Type, proposer)
	return action, nil
}

// ApproveAction records one approval per admin per action.
func (s *GovernanceService) ApproveAction(admin string, actionID int64) (*models.GovernanceAction, error) {
	if err := s.requireAdmin(admin); err != nil {
		return nil, err
	}
	var action models.GovernanceAction
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&action, "id = ?", actionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound(5003, "governance action not found")
			}
			return err
		}
		if action.Executed {
			return utils.Conflict(5004, "action already executed")
		}
		var existing int64
		if err := tx.Model(&models.ActionApproval{}).
			Where("action_id = ? AND admin = ?", actionID, admin).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return utils.Conflict(5004, "admin already approved this action")
		}
		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		approval := models.ActionApproval{
			ID:               uuid.NewString(),
			ActionID:         actionID,
			Admin:            admin,
			ApprovedAtHeight: height,
		}
		if err := tx.Create(&approval).Error; err != nil {
			return err
		}
		action.Approvals++
		return tx.Save(&action).Error
	})
	if err != nil {
		return nil, err
	}
	return &action, nil
}

// ExecuteAction runs an approved action once its timelock has elapsed
// and before its expiration window closes, then dispatches the
// type-specific effect.
func (s *GovernanceService) ExecuteAction(admin string, actionID int64) (*models.GovernanceAction, error) {
	if err := s.requireAdmin(admin); err != nil {
		return nil, err
	}
	var action models.GovernanceAction
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&action, "id = ?", actionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound(5003, "governance action not found")
			}
			return err
		}
		if action.Executed {
			return utils.Conflict(5004, "action already executed")
		}
		cfg, err := s.loadGovConfig(tx)
		if err != nil {
			return err
		}
		if action.Approvals < cfg.RequiredApprovals {
			return utils.Conflict(5003, fmt.Sprintf("action has %d of %d required approvals", action.Approvals, cfg.RequiredApprovals))
		}
		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		age := height - action.CreatedAtHeight
		if age < actionTimelock(action.Type) {
			return utils.Policy(5005, fmt.Sprintf("timelock not elapsed: action age %d, need %d", age, actionTimelock(action.Type)))
		}
		if age >= ActionExpiration {
			return utils.Policy(5006, "action expired")
		}
		if err := s.dispatchAction(tx, &action, height); err != nil {
			return err
		}
		action.Executed = true
		action.ExecutedAtHeight = height
		return tx.Save(&action).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[GOVERNANCE] action %d (%s) executed by %s", action.ID, action.Type, admin)
	return &action, nil
}

// dispatchAction applies the type-specific effect on dependent modules'
// parameter tables.
func (s *GovernanceService) dispatchAction(tx *gorm.DB, action *models.GovernanceAction, height int64) error {
	switch action.Type {
	case models.ActionUpdatePlatformFee:
		if action.Param < 0 || action.Param > BPSDenominator {
			return utils.Invalid(5008, "platform fee out of range")
		}
		cfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		cfg.PlatformFeeBPS = action.Param
		return tx.Save(cfg).Error

	case models.ActionAddAdmin:
		if len(strings.TrimSpace(action.Name)) < MinAdminNameLen {
			return utils.Invalid(5008, "admin name too short")
		}
		var count int64
		if err := tx.Model(&models.Admin{}).Where("active = ?", true).Count(&count).Error; err != nil {
			return err
		}
		if count >= MaxAdmins {
			return utils.Policy(5008, "admin set full")
		}
		var existing models.Admin
		err := tx.Where("principal = ?", action.Principal).First(&existing).Error
		if err == nil {
			if existing.Active {
				return utils.Conflict(5003, "principal is already an admin")
			}
			existing.Active = true
			existing.Name = strings.TrimSpace(action.Name)
			existing.AddedAtHeight = height
			return tx.Save(&existing).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(&models.Admin{
			ID:            uuid.NewString(),
			Principal:     action.Principal,
			Name:          strings.TrimSpace(action.Name),
			Active:        true,
			AddedAtHeight: height,
		}).Error

	case models.ActionRemoveAdmin:
		var count int64
		if err := tx.Model(&models.Admin{}).Where("active = ?", true).Count(&count).Error; err != nil {
			return err
		}
		cfg, err := s.loadGovConfig(tx)
		if err != nil {
			return err
		}
		if int(count)-1 < cfg.RequiredApprovals {
			return utils.Policy(5008, "cannot shrink admin set below required approvals")
		}
		res := tx.Model(&models.Admin{}).
			Where("principal = ? AND active = ?", action.Principal, true).
			Update("active", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return utils.NotFound(5003, "principal is not an active admin")
		}
		return nil

	case models.ActionWhitelistInvestor, models.ActionBlacklistInvestor:
		status := models.InvestorStatus{
			UserID:      action.Principal,
			Whitelisted: action.Type == models.ActionWhitelistInvestor,
			Blacklisted: action.Type == models.ActionBlacklistInvestor,
			Source:      "governance",
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"whitelisted", "blacklisted", "source"}),
		}).Create(&status).Error

	case models.ActionSetPlatformWallet:
		cfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		cfg.PlatformWallet = action.Principal
		return tx.Save(cfg).Error

	case models.ActionVerificationCriteria:
		cfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		cfg.VerificationCriteria = action.Description
		return tx.Save(cfg).Error
	}
	return utils.Invalid(5008, "unknown action type: "+string(action.Type))
}

// DeclareEmergency opens a capped spending window. A new declaration is
// rejected until the previous one's cooldown has fully elapsed.
func (s *GovernanceService) DeclareEmergency(admin, emergencyType, reason string, maxAmount int64) (*models.EmergencyDeclaration, error) {
	if err := s.requireAdmin(admin); err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(reason)) < MinDescriptionLen {
		return nil, utils.Invalid(5008, "emergency reason too short")
	}
	if maxAmount <= 0 || maxAmount > MaxEmergencyAmount {
		return nil, utils.Invalid(5008, "emergency amount cap out of range")
	}

	var decl *models.EmergencyDeclaration
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		cfg, err := s.loadGovConfig(tx)
		if err != nil {
			return err
		}
		height, err := currentHeight(tx)
		if err != nil {
			return err
		}
		if cfg.LastEmergencyHeight > 0 && height-cfg.LastEmergencyHeight < EmergencyCooldown {
			return utils.Policy(5007, "emergency cooldown has not elapsed")
		}
		decl = &models.EmergencyDeclaration{
			ID:               uuid.NewString(),
			Type:             emergencyType,
			Reason:           strings.TrimSpace(reason),
			MaxAmount:        maxAmount,
			DeclaredBy:       admin,
			DeclaredAtHeight: height,
		}
		if err := tx.Create(decl).Error; err != nil {
			return err
		}
		cfg.LastEmergencyHeight = height
		return tx.Save(cfg).Error
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[GOVERNANCE] ⚠️ emergency declared by %s: %s (cap %d)", admin, emergencyType, maxAmount)
	return decl, nil
}

// CanTriggerEmergency mirrors the declare-emergency cooldown gate as a
// pure predicate for dependents.
func (s *GovernanceService) CanTriggerEmergency() (bool, error) {
	var cfg models.GovernanceConfig
	if err := s.DB.First(&cfg, "id = ?", 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return true, nil
		}
		return false, err
	}
	height, err := currentHeight(s.DB)
	if err != nil {
		return false, err
	}
	return cfg.LastEmergencyHeight == 0 || height-cfg.LastEmergencyHeight >= EmergencyCooldown, nil
}

// ActiveEmergency returns the declaration whose spending window is still
// open, or nil. Used by the rental distributor instead of duplicating
// the cooldown math.
func (s *GovernanceService) ActiveEmergency(tx *gorm.DB) (*models.EmergencyDeclaration, error) {
	height, err := currentHeight(tx)
	if err != nil {
		return nil, err
	}
	var decl models.EmergencyDeclaration
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Order("declared_at_height DESC").
		First(&decl).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if height-decl.DeclaredAtHeight >= EmergencyCooldown {
		return nil, nil
	}
	return &decl, nil
}

// IsActionExecutable mirrors the execute-action gates without mutating.
func (s *GovernanceService) IsActionExecutable(actionID int64) (bool, string, error) {
	var action models.GovernanceAction
	if err := s.DB.First(&action, "id = ?", actionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, "not found", nil
		}
		return false, "", err
	}
	var cfg models.GovernanceConfig
	if err := s.DB.First(&cfg, "id = ?", 1).Error; err != nil {
		return false, "", err
	}
	height, err := currentHeight(s.DB)
	if err != nil {
		return false, "", err
	}
	switch {
	case action.Executed:
		return false, "already executed", nil
	case action.Approvals < cfg.RequiredApprovals:
		return false, "insufficient approvals", nil
	case height-action.CreatedAtHeight < actionTimelock(action.Type):
		return false, "timelock not elapsed", nil
	case height-action.CreatedAtHeight >= ActionExpiration:
		return false, "expired", nil
	}
	return true, "", nil
}

// SetVerificationCriteria updates the published verification criteria
// text directly (admin-only; no timelock, it gates nothing financial).
func (s *GovernanceService) SetVerificationCriteria(admin, criteria string) error {
	if err := s.requireAdmin(admin); err != nil {
		return err
	}
	return s.DB.Transaction(func(tx *gorm.DB) error {
		cfg, err := loadConfig(tx)
		if err != nil {
			return err
		}
		cfg.VerificationCriteria = criteria
		return tx.Save(cfg).Error
	})
}

// RecordVerificationCheck stores an admin due-diligence result for a
// property. Verification itself stays one-shot on the registry.
func (s *GovernanceService) RecordVerificationCheck(admin, propertyID string, passed bool, notes string) (*models.VerificationCheck, error) {
	if err := s.requireAdmin(admin); err != nil {
		return nil, err
	}
	height, err := currentHeight(s.DB)
	if err != nil {
		return nil, err
	}
	check := &models.VerificationCheck{
		ID:              uuid.NewString(),
		PropertyID:      propertyID,
		CheckedBy:       admin,
		Passed:          passed,
		Notes:           notes,
		CheckedAtHeight: height,
	}
	if err := s.DB.Create(check).Error; err != nil {
		return nil, err
	}
	return check, nil
}

// --- HTTP handlers ---

func (s *GovernanceService) HandleInitializeAdmins(c *fiber.Ctx) error {
	var req struct {
		Admins []AdminSeed `json:"admins"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.InitializeAdmins(req.Admins); err != nil {
		return utils.RenderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "admin set initialized"})
}

func (s *GovernanceService) HandleProposeAction(c *fiber.Ctx) error {
	proposer := c.Locals("user_id").(string)
	var req ProposeActionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	action, err := s.ProposeAction(proposer, req)
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(action)
}

func (s *GovernanceService) HandleApproveAction(c *fiber.Ctx) error {
	admin := c.Locals("user_id").(string)
	actionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid action ID"})
	}
	action, err := s.ApproveAction(admin, int64(actionID))
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(action)
}

func (s *GovernanceService) HandleExecuteAction(c *fiber.Ctx) error {
	admin := c.Locals("user_id").(string)
	actionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid action ID"})
	}
	action, err := s.ExecuteAction(admin, int64(actionID))
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(action)
}

func (s *GovernanceService) HandleDeclareEmergency(c *fiber.Ctx) error {
	admin := c.Locals("user_id").(string)
	var req struct {
		Type      string `json:"type"`
		Reason    string `json:"reason"`
		MaxAmount int64  `json:"max_amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	decl, err := s.DeclareEmergency(admin, req.Type, req.Reason, req.MaxAmount)
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(decl)
}

func (s *GovernanceService) HandleSetVerificationCriteria(c *fiber.Ctx) error {
	admin := c.Locals("user_id").(string)
	var req struct {
		Criteria string `json:"criteria"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := s.SetVerificationCriteria(admin, req.Criteria); err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(fiber.Map{"message": "verification criteria updated"})
}

func (s *GovernanceService) HandleRecordVerificationCheck(c *fiber.Ctx) error {
	admin := c.Locals("user_id").(string)
	var req struct {
		PropertyID string `json:"property_id"`
		Passed     bool   `json:"passed"`
		Notes      string `json:"notes"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	check, err := s.RecordVerificationCheck(admin, req.PropertyID, req.Passed, req.Notes)
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(check)
}

func (s *GovernanceService) HandleIsAdmin(c *fiber.Ctx) error {
	principal := c.Params("principal")
	return c.JSON(fiber.Map{"principal": principal, "is_admin": s.IsAdmin(principal)})
}

func (s *GovernanceService) HandleGetAction(c *fiber.Ctx) error {
	actionID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid action ID"})
	}
	var action models.GovernanceAction
	if err := s.DB.First(&action, "id = ?", int64(actionID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.RenderError(c, utils.NotFound(5003, "governance action not found"))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	executable, reason, err := s.IsActionExecutable(action.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"action": action, "executable": executable, "blocked_reason": reason})
}

func (s *GovernanceService) HandleCanTriggerEmergency(c *fiber.Ctx) error {
	ok, err := s.CanTriggerEmergency()
	if err != nil {
		return utils.RenderError(c, err)
	}
	return c.JSON(fiber.Map{"can_trigger": ok})
}

func (s *GovernanceService) HandleGetEmergencyStats(c *fiber.Ctx) error {
	var cfg models.GovernanceConfig
	if err := s.DB.First(&cfg, "id = ?", 1).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	active, err := s.ActiveEmergency(s.DB)
	if err != nil {
		return utils.RenderError(c, err)
	}
	var total int64
	if err := s.DB.Model(&models.EmergencyDeclaration{}).Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	resp := fiber.Map{
		"last_emergency_height": cfg.LastEmergencyHeight,
		"total_declarations":    total,
		"active":                active != nil,
	}
	if active != nil {
		resp["declaration"] = active
	}
	return c.JSON(resp)
}
