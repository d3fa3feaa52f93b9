package services

import (
	"testing"

	"property-ledger-system/models"

	"github.com/stretchr/testify/assert"
)

func TestCreatePropertyValidatesBands(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)

	base := SubmitPropertyRequest{
		Title:               "Harbor View Apartments",
		Location:            "12 Quay Street",
		TotalValue:          100_000_000,
		MonthlyRent:         1_666_666,
		MinInvestment:       1_000_000,
		FundingDays:         30,
		FundingThresholdBPS: 8_000,
	}

	tooCheap := base
	tooCheap.TotalValue = 9_999_999
	_, err := svc.properties.CreateProperty("owner1", tooCheap, nil)
	assertCode(t, err, 1005)

	badYield := base
	badYield.MonthlyRent = 100_000 // 120 bps annual, far below the floor
	_, err = svc.properties.CreateProperty("owner1", badYield, nil)
	assertCode(t, err, 1006)

	// A rent large enough to wrap the bps product back into the allowed
	// band is stopped by the rent cap, not waved through.
	wrapRent := base
	wrapRent.MonthlyRent = 153_722_868_947_580
	_, err = svc.properties.CreateProperty("owner1", wrapRent, nil)
	assertCode(t, err, 1006)

	badWindow := base
	badWindow.FundingDays = 91
	_, err = svc.properties.CreateProperty("owner1", badWindow, nil)
	assertCode(t, err, 1007)

	badMin := base
	badMin.MinInvestment = 10_000_001 // above 10% of total value
	_, err = svc.properties.CreateProperty("owner1", badMin, nil)
	assertCode(t, err, 1007)

	property, err := svc.properties.CreateProperty("owner1", base, nil)
	assert.NoError(t, err)
	assert.Equal(t, models.PropertyStatusPending, property.Status)
	assert.Equal(t, int64(1_000+30*HeightsPerDay), property.FundingDeadline)
	assert.False(t, property.Verified)
	assert.NotEmpty(t, property.Slug)
}

func TestVerifyPropertyIsAdminOnlyAndOneShot(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "admin1", "admin2", "admin3")

	property, err := svc.properties.CreateProperty("owner1", SubmitPropertyRequest{
		Title:               "Mill Lofts",
		Location:            "3 Mill Road",
		TotalValue:          50_000_000,
		MonthlyRent:         833_333,
		MinInvestment:       1_000_000,
		FundingDays:         10,
		FundingThresholdBPS: 6_000,
	}, nil)
	assert.NoError(t, err)

	_, err = svc.properties.VerifyProperty("nobody", property.ID)
	assertCode(t, err, 1001)

	verified, err := svc.properties.VerifyProperty("admin1", property.ID)
	assert.NoError(t, err)
	assert.True(t, verified.Verified)
	assert.Equal(t, models.PropertyStatusActive, verified.Status)

	_, err = svc.properties.VerifyProperty("admin2", property.ID)
	assertCode(t, err, 1018)
}

func TestSettleFundingFundedAndFailed(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "admin1", "admin2", "admin3")
	whitelist(t, svc.db, "alice", "bob")

	funded := newFundingProperty(t, svc, "owner1")
	failed := newFundingProperty(t, svc, "owner2")

	// Target is 80M. Fund one property fully, the other 1 unit short.
	_, err := svc.invest.PlaceInvestment("alice", funded.ID, 40_000_000)
	assert.NoError(t, err)
	_, err = svc.invest.PlaceInvestment("bob", funded.ID, 40_000_000)
	assert.NoError(t, err)
	_, err = svc.invest.PlaceInvestment("alice", failed.ID, 40_000_000)
	assert.NoError(t, err)
	_, err = svc.invest.PlaceInvestment("bob", failed.ID, 39_000_000)
	assert.NoError(t, err)

	// Before the deadline nothing settles.
	_, err = svc.properties.SettleFunding(funded.ID)
	assertCode(t, err, 1022)

	setHeight(t, svc.db, funded.FundingDeadline+1)

	status, err := svc.properties.SettleFunding(funded.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.PropertyStatusFunded, status)

	status, err = svc.properties.SettleFunding(failed.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.PropertyStatusFailed, status)

	// Settlement is idempotent.
	status, err = svc.properties.SettleFunding(funded.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.PropertyStatusFunded, status)

	// Refund against the failed round pays back the full stake.
	claim, err := svc.invest.ClaimRefund("bob", failed.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(39_000_000), claim.Amount)

	_, err = svc.invest.ClaimRefund("bob", failed.ID)
	assertCode(t, err, 2025)

	// Refund against the funded property is rejected.
	_, err = svc.invest.ClaimRefund("alice", funded.ID)
	assertCode(t, err, 2004)
}

func TestReleaseFundsWaitsForDelay(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "admin1", "admin2", "admin3")
	whitelist(t, svc.db, "alice", "bob")

	property := newFundingProperty(t, svc, "owner1")
	_, err := svc.invest.PlaceInvestment("alice", property.ID, 40_000_000)
	assert.NoError(t, err)
	_, err = svc.invest.PlaceInvestment("bob", property.ID, 40_000_000)
	assert.NoError(t, err)

	settleAt := property.FundingDeadline + 1
	setHeight(t, svc.db, settleAt)
	_, err = svc.properties.SettleFunding(property.ID)
	assert.NoError(t, err)

	_, err = svc.properties.ReleaseFunds("mallory", property.ID)
	assertCode(t, err, 1001)

	setHeight(t, svc.db, settleAt+FundsReleaseDelay-1)
	_, err = svc.properties.ReleaseFunds("owner1", property.ID)
	assertCode(t, err, 1004)

	setHeight(t, svc.db, settleAt+FundsReleaseDelay)
	released, err := svc.properties.ReleaseFunds("owner1", property.ID)
	assert.NoError(t, err)
	assert.True(t, released.FundsReleased)

	_, err = svc.properties.ReleaseFunds("owner1", property.ID)
	assertCode(t, err, 1024)
}

func TestSweepFundingDeadlines(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "admin1", "admin2", "admin3")
	whitelist(t, svc.db, "alice")

	a := newFundingProperty(t, svc, "owner1")
	b := newFundingProperty(t, svc, "owner2")
	_, err := svc.invest.PlaceInvestment("alice", a.ID, 80_000_000)
	assert.NoError(t, err)

	setHeight(t, svc.db, a.FundingDeadline+1)
	settled, err := svc.properties.SweepFundingDeadlines()
	assert.NoError(t, err)
	assert.Equal(t, 2, settled)

	var after models.Property
	assert.NoError(t, svc.db.First(&after, "id = ?", a.ID).Error)
	assert.Equal(t, models.PropertyStatusFunded, after.Status)
	after = models.Property{}
	assert.NoError(t, svc.db.First(&after, "id = ?", b.ID).Error)
	assert.Equal(t, models.PropertyStatusFailed, after.Status)
}

func TestProposalLifecycle(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "admin1", "admin2", "admin3")
	whitelist(t, svc.db, "alice", "bob")

	property := newFundingProperty(t, svc, "owner1")
	_, err := svc.invest.PlaceInvestment("alice", property.ID, 40_000_000)
	assert.NoError(t, err)
	_, err = svc.invest.PlaceInvestment("bob", property.ID, 40_000_000)
	assert.NoError(t, err)

	_, err = svc.properties.CreateProposal("alice", property.ID, CreateProposalRequest{
		Type:        models.ProposalUpdateRent,
		Description: "raise rent to market",
		NewAmount:   1_750_000,
	})
	assertCode(t, err, 1001) // only the owner proposes

	proposal, err := svc.properties.CreateProposal("owner1", property.ID, CreateProposalRequest{
		Type:        models.ProposalUpdateRent,
		Description: "raise rent to market",
		NewAmount:   1_750_000,
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(80_000_000), proposal.SnapshotTotalInvested)

	assert.NoError(t, svc.invest.CastVote("alice", proposal.ID, true))

	// Duplicate votes are write-once.
	err = svc.invest.CastVote("alice", proposal.ID, false)
	assertCode(t, err, 2025)

	// 40M of an 80M snapshot is not a majority.
	setHeight(t, svc.db, 1_000+proposalTimelocks[models.ProposalUpdateRent])
	_, err = svc.properties.ExecuteProposal("owner1", proposal.ID)
	assertCode(t, err, 1004)

	assert.NoError(t, svc.invest.CastVote("bob", proposal.ID, true))
	executed, err := svc.properties.ExecuteProposal("owner1", proposal.ID)
	assert.NoError(t, err)
	assert.True(t, executed.Executed)

	var after models.Property
	assert.NoError(t, svc.db.First(&after, "id = ?", property.ID).Error)
	assert.Equal(t, int64(1_750_000), after.MonthlyRent)

	_, err = svc.properties.ExecuteProposal("owner1", proposal.ID)
	assertCode(t, err, 1004)
}

func TestLiquidationProposalAndClaims(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "admin1", "admin2", "admin3")
	whitelist(t, svc.db, "alice", "bob")

	property := newFundingProperty(t, svc, "owner1")
	_, err := svc.invest.PlaceInvestment("alice", property.ID, 60_000_000)
	assert.NoError(t, err)
	_, err = svc.invest.PlaceInvestment("bob", property.ID, 20_000_000)
	assert.NoError(t, err)

	// Below half of invested capital the proposal is rejected.
	_, err = svc.properties.CreateProposal("owner1", property.ID, CreateProposalRequest{
		Type:        models.ProposalLiquidate,
		Description: "sell the building",
		NewAmount:   39_999_999,
	})
	assertCode(t, err, 1032)

	proposal, err := svc.properties.CreateProposal("owner1", property.ID, CreateProposalRequest{
		Type:        models.ProposalLiquidate,
		Description: "sell the building",
		NewAmount:   90_000_001,
	})
	assert.NoError(t, err)

	assert.NoError(t, svc.invest.CastVote("alice", proposal.ID, true))
	setHeight(t, svc.db, 1_000+proposalTimelocks[models.ProposalLiquidate])
	_, err = svc.properties.ExecuteProposal("owner1", proposal.ID)
	assert.NoError(t, err)

	// Proportional, truncating: alice 3/4, bob 1/4.
	claim, err := svc.properties.ClaimLiquidationProceeds("alice", property.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(90_000_001)*60_000_000/80_000_000, claim.Amount)

	claim, err = svc.properties.ClaimLiquidationProceeds("bob", property.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(22_500_000), claim.Amount)

	_, err = svc.properties.ClaimLiquidationProceeds("bob", property.ID)
	assertCode(t, err, 1004)
}

func TestRegistryPauseBlocksSubmission(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "admin1", "admin2", "admin3")

	assert.NoError(t, svc.properties.SetRegistryPaused("admin1", true))
	_, err := svc.properties.CreateProperty("owner1", SubmitPropertyRequest{
		Title:               "Paused Plaza",
		Location:            "1 Closed Court",
		TotalValue:          100_000_000,
		MonthlyRent:         1_666_666,
		MinInvestment:       1_000_000,
		FundingDays:         30,
		FundingThresholdBPS: 8_000,
	}, nil)
	assertCode(t, err, 1012)

	assert.NoError(t, svc.properties.SetRegistryPaused("admin1", false))
	_, err = svc.properties.CreateProperty("owner1", SubmitPropertyRequest{
		Title:               "Paused Plaza",
		Location:            "1 Closed Court",
		TotalValue:          100_000_000,
		MonthlyRent:         1_666_666,
		MinInvestment:       1_000_000,
		FundingDays:         30,
		FundingThresholdBPS: 8_000,
	}, nil)
	assert.NoError(t, err)
}
