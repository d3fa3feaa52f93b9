package models

import "time"

// LedgerState mirrors the settlement chain's current height (single row,
// id=1), refreshed by the height sync worker. All timelocks, cooldowns
// and holding periods are guards against this counter.
type LedgerState struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	CurrentHeight int64     `json:"current_height" gorm:"default:0"`
	SyncedAt      time.Time `json:"synced_at"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// LedgerEvent is an append-only audit row written inside the same
// transaction as the state change it describes. The SSE feed tails it.
type LedgerEvent struct {
	ID         string    `json:"id" gorm:"primaryKey;type:uuid"`
	Kind       string    `json:"kind" gorm:"type:varchar(32);not null;index"`
	PropertyID string    `json:"property_id" gorm:"index"`
	UserID     string    `json:"user_id" gorm:"index"`
	Amount     int64     `json:"amount"`
	Height     int64     `json:"height"`
	Metadata   string    `json:"metadata,omitempty"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime;index"`
}

const (
	EventInvestment        = "investment"
	EventSharePurchase     = "share-purchase"
	EventRefund            = "refund"
	EventLiquidationClaim  = "liquidation-claim"
	EventRentalDeposit     = "rental-deposit"
	EventDistribution      = "distribution"
	EventRentalClaim       = "rental-claim"
	EventEmergencyWithdraw = "emergency-withdraw"
	EventFundsReleased     = "funds-released"
	EventFundingSettled    = "funding-settled"
)
