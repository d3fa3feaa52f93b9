package models

import "time"

// Investment is the per-(property, investor) position. Created on first
// investment, incremented on top-ups and secondary-market transfers,
// never deleted. InvestedAtHeight keeps the height of the *first*
// investment so the resale holding period survives top-ups.
type Investment struct {
	ID               string    `json:"id" gorm:"primaryKey;type:uuid"`
	PropertyID       string    `json:"property_id" gorm:"not null;index;uniqueIndex:idx_investment_property_user"`
	UserID           string    `json:"user_id" gorm:"not null;index;uniqueIndex:idx_investment_property_user"`
	Amount           int64     `json:"amount" gorm:"not null;default:0"`
	InvestedAtHeight int64     `json:"invested_at_height"`
	UpdatedAtHeight  int64     `json:"updated_at_height"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// PropertyTotals is the per-property rollup maintained incrementally on
// every ledger write so reads stay O(1).
type PropertyTotals struct {
	PropertyID    string    `json:"property_id" gorm:"primaryKey"`
	TotalInvested int64     `json:"total_invested" gorm:"default:0"`
	InvestorCount int64     `json:"investor_count" gorm:"default:0"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// UserPortfolio is the per-user rollup. LastWithdrawalHeight gates the
// shared withdrawal cooldown across refunds, rental claims and
// liquidation payouts.
type UserPortfolio struct {
	UserID               string    `json:"user_id" gorm:"primaryKey"`
	TotalInvested        int64     `json:"total_invested" gorm:"default:0"`
	PropertyCount        int64     `json:"property_count" gorm:"default:0"`
	TotalEarnings        int64     `json:"total_earnings" gorm:"default:0"`
	LastWithdrawalHeight int64     `json:"last_withdrawal_height" gorm:"default:0"`
	UpdatedAt            time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// RefundClaim records a one-shot refund payout after a failed funding
// round. Existence of the row IS the claimed flag.
type RefundClaim struct {
	ID              string    `json:"id" gorm:"primaryKey;type:uuid"`
	PropertyID      string    `json:"property_id" gorm:"not null;index;uniqueIndex:idx_refund_property_user"`
	UserID          string    `json:"user_id" gorm:"not null;index;uniqueIndex:idx_refund_property_user"`
	Amount          int64     `json:"amount" gorm:"not null"`
	ClaimedAtHeight int64     `json:"claimed_at_height"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// LiquidationClaim records a one-shot liquidation-proceeds payout.
type LiquidationClaim struct {
	ID              string    `json:"id" gorm:"primaryKey;type:uuid"`
	PropertyID      string    `json:"property_id" gorm:"not null;index;uniqueIndex:idx_liquidation_property_user"`
	UserID          string    `json:"user_id" gorm:"not null;index;uniqueIndex:idx_liquidation_property_user"`
	Amount          int64     `json:"amount" gorm:"not null"`
	ClaimedAtHeight int64     `json:"claimed_at_height"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// InvestorStatus mirrors compliance state. Rows arrive from the
// compliance sync worker (source "compliance") or from executed
// governance actions (source "governance"); governance writes win.
type InvestorStatus struct {
	UserID      string    `json:"user_id" gorm:"primaryKey"`
	Whitelisted bool      `json:"whitelisted" gorm:"default:false"`
	Blacklisted bool      `json:"blacklisted" gorm:"default:false"`
	Source      string    `json:"source" gorm:"type:varchar(16)"`
	SyncedAt    time.Time `json:"synced_at"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
