package models

import (
	"time"
)

type PropertyStatus string

const (
	PropertyStatusPending PropertyStatus = "pending"
	PropertyStatusActive  PropertyStatus = "active"
	PropertyStatusFunded  PropertyStatus = "funded"
	PropertyStatusFailed  PropertyStatus = "failed"
)

// Property is the lifecycle record for a listed property.
// All monetary fields are micro-units of the settlement asset,
// all percentages are basis points out of 10000.
type Property struct {
	ID       string `json:"id" gorm:"primaryKey;type:uuid"`
	Slug     string `json:"slug" gorm:"uniqueIndex"`
	Owner    string `json:"owner" gorm:"index;not null"`
	Title    string `json:"title" gorm:"not null"`
	Location string `json:"location" gorm:"not null"`

	TotalValue          int64 `json:"total_value" gorm:"not null"`
	MonthlyRent         int64 `json:"monthly_rent" gorm:"not null"`
	MinInvestment       int64 `json:"min_investment" gorm:"not null"`
	FundingDeadline     int64 `json:"funding_deadline"` // ledger height
	FundingThresholdBPS int64 `json:"funding_threshold_bps"`

	TotalInvested int64 `json:"total_invested" gorm:"default:0"`
	InvestorCount int64 `json:"investor_count" gorm:"default:0"`

	Verified bool           `json:"verified" gorm:"default:false"`
	Active   bool           `json:"active" gorm:"default:false"`
	Status   PropertyStatus `json:"status" gorm:"type:varchar(16);default:'pending'"`

	Liquidated       bool  `json:"liquidated" gorm:"default:false"`
	LiquidationValue int64 `json:"liquidation_value" gorm:"default:0"`
	FundsReleased    bool  `json:"funds_released" gorm:"default:false"`

	SubmittedAtHeight int64 `json:"submitted_at_height"`
	VerifiedAtHeight  int64 `json:"verified_at_height"`
	FundedAtHeight    int64 `json:"funded_at_height"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Documents []PropertyDocument `json:"documents,omitempty" gorm:"foreignKey:PropertyID"`
}

// PropertyDocument is a supporting file (deed scan, photo, appraisal)
// uploaded at submission and stored in R2.
type PropertyDocument struct {
	ID         string    `json:"id" gorm:"primaryKey;type:uuid"`
	PropertyID string    `json:"property_id" gorm:"not null;index"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	SortOrder  int       `json:"sort_order" gorm:"column:sort_order;default:0"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// ShareListing is a secondary-market offer. One listing per
// (property, seller) pair; Version bumps on every price update.
type ShareListing struct {
	ID            string    `json:"id" gorm:"primaryKey;type:uuid"`
	PropertyID    string    `json:"property_id" gorm:"not null;index;uniqueIndex:idx_listing_property_seller"`
	Seller        string    `json:"seller" gorm:"not null;index;uniqueIndex:idx_listing_property_seller"`
	SharesForSale int64     `json:"shares_for_sale"`
	PricePerShare int64     `json:"price_per_share"` // micro-units per 1,000,000 units of stake
	Active        bool      `json:"active" gorm:"default:true"`
	Version       int64     `json:"version" gorm:"default:1"`
	ListedAt      int64     `json:"listed_at"` // ledger height
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// VerificationCheck is an admin's recorded due-diligence result for a
// property, kept alongside the registry's one-shot verified flag.
type VerificationCheck struct {
	ID              string    `json:"id" gorm:"primaryKey;type:uuid"`
	PropertyID      string    `json:"property_id" gorm:"not null;index"`
	CheckedBy       string    `json:"checked_by" gorm:"not null"`
	Passed          bool      `json:"passed"`
	Notes           string    `json:"notes" gorm:"type:text"`
	CheckedAtHeight int64     `json:"checked_at_height"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
}
