package services

import (
	"testing"

	"property-ledger-system/models"

	"github.com/stretchr/testify/assert"
)

func TestInitializeAdminsOneShot(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)

	err := svc.governance.InitializeAdmins([]AdminSeed{{Principal: "a1", Name: "Ann"}})
	assertCode(t, err, 5008) // below required approvals

	err = svc.governance.InitializeAdmins([]AdminSeed{
		{Principal: "a1", Name: "Ann"},
		{Principal: "a1", Name: "Ann Again"},
		{Principal: "a3", Name: "Cal"},
	})
	assertCode(t, err, 5008) // duplicate principal

	err = svc.governance.InitializeAdmins([]AdminSeed{
		{Principal: "a1", Name: "Ann"},
		{Principal: "a2", Name: "B"}, // single-rune name
		{Principal: "a3", Name: "Cal"},
	})
	assertCode(t, err, 5008)

	seedAdmins(t, svc, "a1", "a2", "a3")
	assert.True(t, svc.governance.IsAdmin("a1"))
	assert.False(t, svc.governance.IsAdmin("outsider"))

	err = svc.governance.InitializeAdmins([]AdminSeed{
		{Principal: "x1", Name: "Mallory"},
		{Principal: "x2", Name: "Trudy"},
	})
	assertCode(t, err, 5003)
}

func TestActionApprovalAndTimelock(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "a1", "a2", "a3")

	_, err := svc.governance.ProposeAction("outsider", ProposeActionRequest{
		Type:        models.ActionUpdatePlatformFee,
		Description: "raise the platform fee",
		Param:       400,
	})
	assertCode(t, err, 5001)

	action, err := svc.governance.ProposeAction("a1", ProposeActionRequest{
		Type:        models.ActionUpdatePlatformFee,
		Description: "raise the platform fee",
		Param:       400,
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, action.Approvals) // proposer counts

	// One approval per admin.
	_, err = svc.governance.ApproveAction("a1", action.ID)
	assertCode(t, err, 5004)

	// Approvals short of quorum block execution outright.
	setHeight(t, svc.db, 1_000+StandardTimelock)
	_, err = svc.governance.ExecuteAction("a1", action.ID)
	assertCode(t, err, 5003)

	action, err = svc.governance.ApproveAction("a2", action.ID)
	assert.NoError(t, err)
	assert.Equal(t, 2, action.Approvals)

	// One height short of the timelock.
	setHeight(t, svc.db, 1_000+StandardTimelock-1)
	_, err = svc.governance.ExecuteAction("a1", action.ID)
	assertCode(t, err, 5005)

	setHeight(t, svc.db, 1_000+StandardTimelock)
	executed, err := svc.governance.ExecuteAction("a1", action.ID)
	assert.NoError(t, err)
	assert.True(t, executed.Executed)

	cfg, err := loadConfig(svc.db)
	assert.NoError(t, err)
	assert.Equal(t, int64(400), cfg.PlatformFeeBPS)

	_, err = svc.governance.ExecuteAction("a2", action.ID)
	assertCode(t, err, 5004)
}

func TestActionExpiration(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "a1", "a2", "a3")

	action, err := svc.governance.ProposeAction("a1", ProposeActionRequest{
		Type:        models.ActionSetPlatformWallet,
		Description: "rotate the treasury wallet",
		Principal:   "treasury-2",
	})
	assert.NoError(t, err)
	_, err = svc.governance.ApproveAction("a2", action.ID)
	assert.NoError(t, err)

	setHeight(t, svc.db, 1_000+ActionExpiration)
	_, err = svc.governance.ExecuteAction("a1", action.ID)
	assertCode(t, err, 5006)
}

func TestAdminMutationsUseCriticalTimelock(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "a1", "a2")

	action, err := svc.governance.ProposeAction("a1", ProposeActionRequest{
		Type:        models.ActionAddAdmin,
		Description: "add a third admin",
		Principal:   "a3",
		Name:        "Cal",
	})
	assert.NoError(t, err)
	_, err = svc.governance.ApproveAction("a2", action.ID)
	assert.NoError(t, err)

	// The standard timelock is not enough for admin-set changes.
	setHeight(t, svc.db, 1_000+StandardTimelock)
	_, err = svc.governance.ExecuteAction("a1", action.ID)
	assertCode(t, err, 5005)

	setHeight(t, svc.db, 1_000+CriticalTimelock)
	_, err = svc.governance.ExecuteAction("a1", action.ID)
	assert.NoError(t, err)
	assert.True(t, svc.governance.IsAdmin("a3"))

	// Removing below the approval quorum is blocked.
	h := int64(1_000 + CriticalTimelock)
	remove := func(principal string) (*models.GovernanceAction, error) {
		a, err := svc.governance.ProposeAction("a1", ProposeActionRequest{
			Type:        models.ActionRemoveAdmin,
			Description: "remove admin " + principal,
			Principal:   principal,
		})
		if err != nil {
			return nil, err
		}
		if _, err := svc.governance.ApproveAction("a2", a.ID); err != nil {
			return nil, err
		}
		setHeight(t, svc.db, h+CriticalTimelock)
		return svc.governance.ExecuteAction("a1", a.ID)
	}

	_, err = remove("a3")
	assert.NoError(t, err)
	assert.False(t, svc.governance.IsAdmin("a3"))

	h += CriticalTimelock
	_, err = remove("a2")
	assertCode(t, err, 5008)
}

func TestGovernanceInvestorStatusActions(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "a1", "a2", "a3")

	action, err := svc.governance.ProposeAction("a1", ProposeActionRequest{
		Type:        models.ActionWhitelistInvestor,
		Description: "whitelist a vetted investor",
		Principal:   "carol",
	})
	assert.NoError(t, err)
	_, err = svc.governance.ApproveAction("a2", action.ID)
	assert.NoError(t, err)
	setHeight(t, svc.db, 1_000+StandardTimelock)
	_, err = svc.governance.ExecuteAction("a1", action.ID)
	assert.NoError(t, err)

	var status models.InvestorStatus
	assert.NoError(t, svc.db.First(&status, "user_id = ?", "carol").Error)
	assert.True(t, status.Whitelisted)
	assert.Equal(t, "governance", status.Source)
}

func TestEmergencyCooldownAndCap(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "a1", "a2", "a3")

	_, err := svc.governance.DeclareEmergency("a1", "halt", "too short", 1_000_000)
	assertCode(t, err, 5008)

	_, err = svc.governance.DeclareEmergency("a1", "halt", "settlement host compromised", MaxEmergencyAmount+1)
	assertCode(t, err, 5008)

	decl, err := svc.governance.DeclareEmergency("a1", "halt", "settlement host compromised", 1_000_000)
	assert.NoError(t, err)
	assert.Equal(t, int64(1_000), decl.DeclaredAtHeight)

	ok, err := svc.governance.CanTriggerEmergency()
	assert.NoError(t, err)
	assert.False(t, ok)

	_, err = svc.governance.DeclareEmergency("a2", "halt", "second incident same week", 1_000_000)
	assertCode(t, err, 5007)

	setHeight(t, svc.db, 1_000+EmergencyCooldown)
	ok, err = svc.governance.CanTriggerEmergency()
	assert.NoError(t, err)
	assert.True(t, ok)

	_, err = svc.governance.DeclareEmergency("a2", "halt", "second incident same week", 1_000_000)
	assert.NoError(t, err)
}

func TestVerificationCriteriaAndChecks(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "a1", "a2", "a3")

	assert.NoError(t, svc.governance.SetVerificationCriteria("a1", "deed on file, insurance current"))
	cfg, err := loadConfig(svc.db)
	assert.NoError(t, err)
	assert.Equal(t, "deed on file, insurance current", cfg.VerificationCriteria)

	check, err := svc.governance.RecordVerificationCheck("a2", "prop-1", true, "all documents match")
	assert.NoError(t, err)
	assert.True(t, check.Passed)
	assert.Equal(t, int64(1_000), check.CheckedAtHeight)

	_, err = svc.governance.RecordVerificationCheck("outsider", "prop-1", true, "")
	assertCode(t, err, 5001)
}
