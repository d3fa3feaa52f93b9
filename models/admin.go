package models

import "time"

// Admin is one member of the protocol authority set.
type Admin struct {
	ID            string    `json:"id" gorm:"primaryKey;type:uuid"`
	Principal     string    `json:"principal" gorm:"not null;uniqueIndex"`
	Name          string    `json:"name" gorm:"not null"`
	Active        bool      `json:"active" gorm:"default:true"`
	AddedAtHeight int64     `json:"added_at_height"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// GovernanceConfig is the single-row authority state (id=1): the M-of-N
// requirement, the monotonically increasing action counter and the last
// emergency mark.
type GovernanceConfig struct {
	ID                  uint      `json:"id" gorm:"primaryKey"`
	Initialized         bool      `json:"initialized" gorm:"default:false"`
	RequiredApprovals   int       `json:"required_approvals" gorm:"default:2"`
	ActionCounter       int64     `json:"action_counter" gorm:"default:0"`
	LastEmergencyHeight int64     `json:"last_emergency_height" gorm:"default:0"`
	UpdatedAt           time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

type ActionType string

const (
	ActionUpdatePlatformFee    ActionType = "update-platform-fee"
	ActionAddAdmin             ActionType = "add-admin"
	ActionRemoveAdmin          ActionType = "remove-admin"
	ActionWhitelistInvestor    ActionType = "whitelist-investor"
	ActionBlacklistInvestor    ActionType = "blacklist-investor"
	ActionSetPlatformWallet    ActionType = "set-platform-wallet"
	ActionVerificationCriteria ActionType = "update-verification-criteria"
)

// GovernanceAction is a timelocked protocol-level action. IDs come from
// the GovernanceConfig counter so approve/execute are addressable by a
// plain sequence number.
type GovernanceAction struct {
	ID           int64      `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Type         ActionType `json:"type" gorm:"type:varchar(32);not null"`
	Description  string     `json:"description" gorm:"type:text"`
	TargetModule string     `json:"target_module"`
	Principal    string     `json:"principal,omitempty"`
	Param        int64      `json:"param"`
	Name         string     `json:"name,omitempty"`
	Proposer     string     `json:"proposer" gorm:"not null"`

	Approvals        int   `json:"approvals" gorm:"default:0"`
	Executed         bool  `json:"executed" gorm:"default:false"`
	CreatedAtHeight  int64 `json:"created_at_height"`
	ExecutedAtHeight int64 `json:"executed_at_height"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// ActionApproval is write-once per (action, admin). The proposer's row
// is created with the action itself.
type ActionApproval struct {
	ID               string    `json:"id" gorm:"primaryKey;type:uuid"`
	ActionID         int64     `json:"action_id" gorm:"not null;index;uniqueIndex:idx_approval_action_admin"`
	Admin            string    `json:"admin" gorm:"not null;uniqueIndex:idx_approval_action_admin"`
	ApprovedAtHeight int64     `json:"approved_at_height"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// EmergencyDeclaration opens a spending window for platform-fee
// withdrawals. It stays active until the emergency cooldown re-elapses;
// WithdrawnAmount tracks spending against MaxAmount.
type EmergencyDeclaration struct {
	ID               string    `json:"id" gorm:"primaryKey;type:uuid"`
	Type             string    `json:"type" gorm:"type:varchar(32)"`
	Reason           string    `json:"reason" gorm:"type:text"`
	MaxAmount        int64     `json:"max_amount" gorm:"not null"`
	WithdrawnAmount  int64     `json:"withdrawn_amount" gorm:"default:0"`
	DeclaredBy       string    `json:"declared_by" gorm:"not null"`
	DeclaredAtHeight int64     `json:"declared_at_height" gorm:"index"`
	CreatedAt        time.Time `json:"created_at" gorm:"autoCreateTime"`
}
