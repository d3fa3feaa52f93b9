package services

import (
	"fmt"
	"sync/atomic"
	"testing"

	"property-ledger-system/models"
	"property-ledger-system/utils"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testDBCounter atomic.Int64

// setupTestDB creates an in-memory SQLite database for testing. Each test gets
// its own named shared-cache database so every pooled connection sees the same
// schema (a plain ":memory:" DSN gives each connection a separate empty DB).
func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Property{},
		&models.PropertyDocument{},
		&models.ShareListing{},
		&models.VerificationCheck{},
		&models.Investment{},
		&models.PropertyTotals{},
		&models.UserPortfolio{},
		&models.RefundClaim{},
		&models.LiquidationClaim{},
		&models.InvestorStatus{},
		&models.RentalPayment{},
		&models.PeriodClaim{},
		&models.PlatformConfig{},
		&models.GovernanceProposal{},
		&models.ProposalVote{},
		&models.Admin{},
		&models.GovernanceConfig{},
		&models.GovernanceAction{},
		&models.ActionApproval{},
		&models.EmergencyDeclaration{},
		&models.LedgerState{},
		&models.LedgerEvent{},
	); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	return db
}

type testServices struct {
	db         *gorm.DB
	governance *GovernanceService
	properties *PropertyService
	ledger     *LedgerStore
	invest     *InvestmentService
	rental     *RentalService
}

func setupServices(t *testing.T) *testServices {
	db := setupTestDB(t)
	governance := NewGovernanceService(db)
	properties := NewPropertyService(db, governance)
	ledger := NewLedgerStore(db)
	invest := NewInvestmentService(db, ledger, properties, governance)
	rental := NewRentalService(db, ledger, invest, governance)
	return &testServices{
		db:         db,
		governance: governance,
		properties: properties,
		ledger:     ledger,
		invest:     invest,
		rental:     rental,
	}
}

// setHeight pins the mirrored chain height, standing in for the height
// sync worker.
func setHeight(t *testing.T, db *gorm.DB, height int64) {
	var state models.LedgerState
	if err := db.FirstOrCreate(&state, models.LedgerState{ID: 1}).Error; err != nil {
		t.Fatalf("failed to seed ledger state: %v", err)
	}
	state.CurrentHeight = height
	if err := db.Save(&state).Error; err != nil {
		t.Fatalf("failed to set ledger height: %v", err)
	}
}

func seedAdmins(t *testing.T, svc *testServices, principals ...string) {
	seeds := make([]AdminSeed, 0, len(principals))
	for _, p := range principals {
		seeds = append(seeds, AdminSeed{Principal: p, Name: "Admin " + p})
	}
	if err := svc.governance.InitializeAdmins(seeds); err != nil {
		t.Fatalf("failed to seed admins: %v", err)
	}
}

func whitelist(t *testing.T, db *gorm.DB, userIDs ...string) {
	for _, id := range userIDs {
		status := models.InvestorStatus{UserID: id, Whitelisted: true, Source: "compliance"}
		if err := db.Create(&status).Error; err != nil {
			t.Fatalf("failed to whitelist %s: %v", id, err)
		}
	}
}

// newFundingProperty submits and verifies a 100M property: rent
// 1,666,666 (implied yield ~2000 bps), threshold 8000 bps, so the
// funding target is 80,000,000.
func newFundingProperty(t *testing.T, svc *testServices, owner string) *models.Property {
	property, err := svc.properties.CreateProperty(owner, SubmitPropertyRequest{
		Title:               "Harbor View Apartments",
		Location:            "12 Quay Street",
		TotalValue:          100_000_000,
		MonthlyRent:         1_666_666,
		MinInvestment:       1_000_000,
		FundingDays:         30,
		FundingThresholdBPS: 8_000,
	}, nil)
	if err != nil {
		t.Fatalf("failed to create property: %v", err)
	}
	if _, err := svc.properties.VerifyProperty("admin1", property.ID); err != nil {
		t.Fatalf("failed to verify property: %v", err)
	}
	var out models.Property
	if err := svc.db.First(&out, "id = ?", property.ID).Error; err != nil {
		t.Fatalf("failed to reload property: %v", err)
	}
	return &out
}

// assertCode checks an error is a CodedError with the given code.
func assertCode(t *testing.T, err error, code int) {
	t.Helper()
	assert.Error(t, err)
	coded, ok := err.(*utils.CodedError)
	if !ok {
		t.Fatalf("expected coded error, got %T: %v", err, err)
	}
	assert.Equal(t, code, coded.Code)
}
