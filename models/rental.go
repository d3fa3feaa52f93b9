package models

import "time"

// RentalPayment is the deposit record for one (property, month, year)
// period. PlatformFee and NetDistributable are derived once at deposit
// time and never recomputed.
type RentalPayment struct {
	ID               string `json:"id" gorm:"primaryKey;type:uuid"`
	PropertyID       string `json:"property_id" gorm:"not null;index;uniqueIndex:idx_rental_property_period"`
	Month            int    `json:"month" gorm:"not null;uniqueIndex:idx_rental_property_period"`
	Year             int    `json:"year" gorm:"not null;uniqueIndex:idx_rental_property_period"`
	GrossRent        int64  `json:"gross_rent" gorm:"not null"`
	Expenses         int64  `json:"expenses" gorm:"not null"`
	PlatformFee      int64  `json:"platform_fee" gorm:"not null"`
	NetDistributable int64  `json:"net_distributable" gorm:"not null"`

	Distributed         bool  `json:"distributed" gorm:"default:false"`
	DistributedAtHeight int64 `json:"distributed_at_height"`

	DepositedBy       string `json:"deposited_by" gorm:"not null"`
	DepositedAtHeight int64  `json:"deposited_at_height"`

	// Admin override bypasses the tolerance and expense bounds and must
	// carry a long-form justification.
	Override      bool   `json:"override" gorm:"default:false"`
	Justification string `json:"justification,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// PeriodClaim records one investor's one-shot claim against a
// distributed rental period.
type PeriodClaim struct {
	ID              string    `json:"id" gorm:"primaryKey;type:uuid"`
	PropertyID      string    `json:"property_id" gorm:"not null;index;uniqueIndex:idx_period_claim"`
	Month           int       `json:"month" gorm:"not null;uniqueIndex:idx_period_claim"`
	Year            int       `json:"year" gorm:"not null;uniqueIndex:idx_period_claim"`
	UserID          string    `json:"user_id" gorm:"not null;index;uniqueIndex:idx_period_claim"`
	Amount          int64     `json:"amount" gorm:"not null"`
	ClaimedAtHeight int64     `json:"claimed_at_height"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// PlatformConfig is the single-row protocol parameter table (id=1).
// Mutated only through executed governance actions, pause endpoints and
// the rental distributor's fee accumulation.
type PlatformConfig struct {
	ID                   uint      `json:"id" gorm:"primaryKey"`
	PlatformFeeBPS       int64     `json:"platform_fee_bps" gorm:"default:300"`
	PlatformWallet       string    `json:"platform_wallet"`
	FeesCollected        int64     `json:"fees_collected" gorm:"default:0"`
	RegistryPaused       bool      `json:"registry_paused" gorm:"default:false"`
	InvestmentsPaused    bool      `json:"investments_paused" gorm:"default:false"`
	RentalPaused         bool      `json:"rental_paused" gorm:"default:false"`
	VerificationCriteria string    `json:"verification_criteria" gorm:"type:text"`
	UpdatedAt            time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
