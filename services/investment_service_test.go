package services

import (
	"testing"

	"property-ledger-system/models"

	"github.com/stretchr/testify/assert"
)

func TestPlaceInvestmentGates(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "admin1", "admin2", "admin3")
	whitelist(t, svc.db, "alice")

	property := newFundingProperty(t, svc, "owner1")

	// Unknown and blacklisted users are rejected before the property
	// is even looked at.
	_, err := svc.invest.PlaceInvestment("stranger", property.ID, 5_000_000)
	assertCode(t, err, 2015)

	assert.NoError(t, svc.db.Create(&models.InvestorStatus{
		UserID: "mallory", Whitelisted: true, Blacklisted: true, Source: "governance",
	}).Error)
	_, err = svc.invest.PlaceInvestment("mallory", property.ID, 5_000_000)
	assertCode(t, err, 2015)

	_, err = svc.invest.PlaceInvestment("alice", "no-such-id", 5_000_000)
	assertCode(t, err, 2002)

	_, err = svc.invest.PlaceInvestment("alice", property.ID, 999_999)
	assertCode(t, err, 2007)

	inv, err := svc.invest.PlaceInvestment("alice", property.ID, 5_000_000)
	assert.NoError(t, err)
	assert.Equal(t, int64(5_000_000), inv.Amount)
	assert.Equal(t, int64(1_000), inv.InvestedAtHeight)

	// Top-ups accumulate but the per-user cap is enforced over the
	// combined position.
	_, err = svc.invest.PlaceInvestment("alice", property.ID, 95_000_001)
	assertCode(t, err, 2016)

	setHeight(t, svc.db, 1_100)
	inv, err = svc.invest.PlaceInvestment("alice", property.ID, 95_000_000)
	assert.NoError(t, err)
	assert.Equal(t, int64(100_000_000), inv.Amount)
	// First-investment height survives top-ups.
	assert.Equal(t, int64(1_000), inv.InvestedAtHeight)
}

func TestInvestmentRollupsStayConsistent(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "admin1", "admin2", "admin3")
	whitelist(t, svc.db, "alice", "bob")

	property := newFundingProperty(t, svc, "owner1")
	_, err := svc.invest.PlaceInvestment("alice", property.ID, 10_000_000)
	assert.NoError(t, err)
	_, err = svc.invest.PlaceInvestment("bob", property.ID, 30_000_000)
	assert.NoError(t, err)
	_, err = svc.invest.PlaceInvestment("alice", property.ID, 5_000_000)
	assert.NoError(t, err)

	totals, err := svc.ledger.GetPropertyTotals(svc.db, property.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(45_000_000), totals.TotalInvested)
	assert.Equal(t, int64(2), totals.InvestorCount)

	var after models.Property
	assert.NoError(t, svc.db.First(&after, "id = ?", property.ID).Error)
	assert.Equal(t, int64(45_000_000), after.TotalInvested)
	assert.Equal(t, int64(2), after.InvestorCount)

	portfolio, err := svc.ledger.GetUserPortfolio(svc.db, "alice")
	assert.NoError(t, err)
	assert.Equal(t, int64(15_000_000), portfolio.TotalInvested)
	assert.Equal(t, int64(1), portfolio.PropertyCount)

	bps, err := svc.invest.OwnershipBPS("bob", property.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(30_000_000)*BPSDenominator/45_000_000, bps)
}

func TestCreateListingRequiresHoldingPeriod(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "admin1", "admin2", "admin3")
	whitelist(t, svc.db, "alice")

	property := newFundingProperty(t, svc, "owner1")
	_, err := svc.invest.PlaceInvestment("alice", property.ID, 50_000_000)
	assert.NoError(t, err)

	ok, reason, err := svc.invest.CanListShares("alice", property.ID)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "holding period")

	_, err = svc.invest.CreateListing("alice", property.ID, 25_000_000, 1_100_000)
	assertCode(t, err, 2004)

	setHeight(t, svc.db, 1_000+HoldingPeriod)
	ok, _, err = svc.invest.CanListShares("alice", property.ID)
	assert.NoError(t, err)
	assert.True(t, ok)

	listing, err := svc.invest.CreateListing("alice", property.ID, 25_000_000, 1_100_000)
	assert.NoError(t, err)
	assert.True(t, listing.Active)
	assert.Equal(t, int64(1), listing.Version)

	// One active listing per (property, seller).
	_, err = svc.invest.CreateListing("alice", property.ID, 10_000_000, 1_000_000)
	assertCode(t, err, 2004)

	// Cancel and relist bumps the version instead of a new row.
	assert.NoError(t, svc.invest.CancelListing("alice", property.ID))
	listing, err = svc.invest.CreateListing("alice", property.ID, 10_000_000, 1_200_000)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), listing.Version)
}

func TestPurchaseSharesMovesStakeAtomically(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "admin1", "admin2", "admin3")
	whitelist(t, svc.db, "alice", "bob")

	property := newFundingProperty(t, svc, "owner1")
	_, err := svc.invest.PlaceInvestment("alice", property.ID, 50_000_000)
	assert.NoError(t, err)
	_, err = svc.invest.PlaceInvestment("bob", property.ID, 10_000_000)
	assert.NoError(t, err)

	setHeight(t, svc.db, 1_000+HoldingPeriod)
	_, err = svc.invest.CreateListing("alice", property.ID, 25_000_000, 1_100_000)
	assert.NoError(t, err)

	_, err = svc.invest.PurchaseShares("alice", property.ID, "alice", 5_000_000, 1_100_000)
	assertCode(t, err, 2007) // self-deal

	// Buyer price protection against repricing.
	_, err = svc.invest.PurchaseShares("bob", property.ID, "alice", 5_000_000, 1_000_000)
	assertCode(t, err, 2007)

	buyerInv, err := svc.invest.PurchaseShares("bob", property.ID, "alice", 25_000_000, 1_100_000)
	assert.NoError(t, err)
	assert.Equal(t, int64(35_000_000), buyerInv.Amount)

	sellerInv, err := svc.ledger.GetUserInvestment(svc.db, property.ID, "alice")
	assert.NoError(t, err)
	assert.Equal(t, int64(25_000_000), sellerInv.Amount)

	// A transfer never changes the invested aggregate or the count of
	// existing investors.
	totals, err := svc.ledger.GetPropertyTotals(svc.db, property.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(60_000_000), totals.TotalInvested)
	assert.Equal(t, int64(2), totals.InvestorCount)

	// Fully sold listings deactivate.
	var listing models.ShareListing
	assert.NoError(t, svc.db.Where("property_id = ? AND seller = ?", property.ID, "alice").First(&listing).Error)
	assert.False(t, listing.Active)
	assert.Equal(t, int64(0), listing.SharesForSale)
}

func TestPurchaseSharesNewInvestorCountsOnce(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "admin1", "admin2", "admin3")
	whitelist(t, svc.db, "alice", "carol")

	property := newFundingProperty(t, svc, "owner1")
	_, err := svc.invest.PlaceInvestment("alice", property.ID, 50_000_000)
	assert.NoError(t, err)

	setHeight(t, svc.db, 1_000+HoldingPeriod)
	_, err = svc.invest.CreateListing("alice", property.ID, 20_000_000, 1_000_000)
	assert.NoError(t, err)

	// Partial purchase by a brand-new investor.
	_, err = svc.invest.PurchaseShares("carol", property.ID, "alice", 8_000_000, 1_000_000)
	assert.NoError(t, err)

	totals, err := svc.ledger.GetPropertyTotals(svc.db, property.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(50_000_000), totals.TotalInvested)
	assert.Equal(t, int64(2), totals.InvestorCount)

	var after models.Property
	assert.NoError(t, svc.db.First(&after, "id = ?", property.ID).Error)
	assert.Equal(t, int64(2), after.InvestorCount)

	// Second partial purchase must not count carol again.
	_, err = svc.invest.PurchaseShares("carol", property.ID, "alice", 7_000_000, 1_000_000)
	assert.NoError(t, err)
	assert.NoError(t, svc.db.First(&after, "id = ?", property.ID).Error)
	assert.Equal(t, int64(2), after.InvestorCount)

	var listing models.ShareListing
	assert.NoError(t, svc.db.Where("property_id = ? AND seller = ?", property.ID, "alice").First(&listing).Error)
	assert.True(t, listing.Active)
	assert.Equal(t, int64(5_000_000), listing.SharesForSale)
}

func TestRefundCooldownIsShared(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "admin1", "admin2", "admin3")
	whitelist(t, svc.db, "alice")

	a := newFundingProperty(t, svc, "owner1")
	b := newFundingProperty(t, svc, "owner2")
	_, err := svc.invest.PlaceInvestment("alice", a.ID, 10_000_000)
	assert.NoError(t, err)
	_, err = svc.invest.PlaceInvestment("alice", b.ID, 10_000_000)
	assert.NoError(t, err)

	setHeight(t, svc.db, a.FundingDeadline+1)
	_, err = svc.properties.SettleFunding(a.ID)
	assert.NoError(t, err)
	_, err = svc.properties.SettleFunding(b.ID)
	assert.NoError(t, err)

	_, err = svc.invest.ClaimRefund("alice", a.ID)
	assert.NoError(t, err)

	// The withdrawal cooldown spans properties.
	_, err = svc.invest.ClaimRefund("alice", b.ID)
	assertCode(t, err, 2017)

	setHeight(t, svc.db, a.FundingDeadline+1+WithdrawalCooldown)
	claim, err := svc.invest.ClaimRefund("alice", b.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(10_000_000), claim.Amount)
}

func TestRefundClosesPositionAgainstResale(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "admin1", "admin2", "admin3")
	whitelist(t, svc.db, "alice", "bob")

	property := newFundingProperty(t, svc, "owner1")
	_, err := svc.invest.PlaceInvestment("alice", property.ID, 79_000_000)
	assert.NoError(t, err)

	// Listing opened while the funding round is still live.
	setHeight(t, svc.db, 1_000+HoldingPeriod)
	_, err = svc.invest.CreateListing("alice", property.ID, 79_000_000, 1_000_000)
	assert.NoError(t, err)

	// Below the threshold at the deadline, the round fails.
	setHeight(t, svc.db, property.FundingDeadline+1)
	_, err = svc.properties.SettleFunding(property.ID)
	assert.NoError(t, err)

	// The stale listing cannot be bought into a fresh refundable stake.
	_, err = svc.invest.PurchaseShares("bob", property.ID, "alice", 79_000_000, 1_000_000)
	assertCode(t, err, 2004)

	claim, err := svc.invest.ClaimRefund("alice", property.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(79_000_000), claim.Amount)

	// The refund closes the position everywhere: record, property
	// rollups and portfolio all drop to zero.
	inv, err := svc.ledger.GetUserInvestment(svc.db, property.ID, "alice")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), inv.Amount)

	totals, err := svc.ledger.GetPropertyTotals(svc.db, property.ID)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), totals.TotalInvested)

	var after models.Property
	assert.NoError(t, svc.db.First(&after, "id = ?", property.ID).Error)
	assert.Equal(t, int64(0), after.TotalInvested)

	portfolio, err := svc.ledger.GetUserPortfolio(svc.db, "alice")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), portfolio.TotalInvested)

	// Nothing left to list, and nothing left to refund twice.
	_, err = svc.invest.CreateListing("alice", property.ID, 10_000_000, 1_000_000)
	assertCode(t, err, 2004)
	_, err = svc.invest.ClaimRefund("alice", property.ID)
	assertCode(t, err, 2025)
}

func TestInvestmentsPauseBlocksMutations(t *testing.T) {
	svc := setupServices(t)
	setHeight(t, svc.db, 1_000)
	seedAdmins(t, svc, "admin1", "admin2", "admin3")
	whitelist(t, svc.db, "alice")

	property := newFundingProperty(t, svc, "owner1")

	assert.NoError(t, svc.invest.SetInvestmentsPaused("admin1", true))
	_, err := svc.invest.PlaceInvestment("alice", property.ID, 5_000_000)
	assertCode(t, err, 2013)

	assert.NoError(t, svc.invest.SetInvestmentsPaused("admin1", false))
	_, err = svc.invest.PlaceInvestment("alice", property.ID, 5_000_000)
	assert.NoError(t, err)
}
