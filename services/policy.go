package services

import "property-ledger-system/models"

// All protocol thresholds live here. Several of them interact (standard
// vs critical timelock vs expiration vs cooldown), so none are inlined
// at call sites. Amounts are micro-units, percentages are basis points,
// durations are ledger heights (~144 per day).
const (
	BPSDenominator = 10_000
	MicroUnit      = 1_000_000
	HeightsPerDay  = 144

	// Property submission bands. MaxMonthlyRent caps the rent before the
	// yield computation so the bps product cannot wrap int64.
	MinPropertyValue    = 10_000_000
	MaxPropertyValue    = 1_000_000_000
	MinAnnualYieldBPS   = 1_500
	MaxAnnualYieldBPS   = 2_500
	MaxMonthlyRent      = MaxPropertyValue * MaxAnnualYieldBPS / (12 * BPSDenominator)
	MinFundingDays      = 1
	MaxFundingDays      = 90
	MinThresholdBPS     = 5_000
	MaxThresholdBPS     = 10_000
	MinInvestmentCapBPS = 1_000 // property minimum may not exceed 10% of total value

	// Investment policy
	GlobalMinInvestment  = 1_000_000
	MaxPerUserInvestment = 100_000_000
	HoldingPeriod        = 1_500
	WithdrawalCooldown   = 144
	MaxEarningsUpdate    = 1_000_000_000

	// Funding settlement
	FundsReleaseDelay = 144

	// Rental policy
	DefaultPlatformFeeBPS = 300
	RentToleranceBPS      = 500
	MaxExpenseBPS         = 5_000
	MinClaimableShare     = 1_000

	// Governance authority
	StandardTimelock    = 1_440
	CriticalTimelock    = 4_320
	ActionExpiration    = 6 * StandardTimelock
	EmergencyCooldown   = 1_440
	MaxEmergencyAmount  = 10_000_000_000
	MaxAdmins           = 3
	RequiredApprovals   = 2
	MinAdminNameLen     = 2
	MinDescriptionLen   = 10
	MinJustificationLen = 20

	// Property governance
	LiquidationMinBPS = 5_000 // liquidation value must cover half of invested capital
)

// proposalTimelocks is the minimum age (heights) a property proposal
// must reach before execution, per type.
var proposalTimelocks = map[models.ProposalType]int64{
	models.ProposalUpdateRent:      144,
	models.ProposalUpdateThreshold: 720,
	models.ProposalChangeOwner:     1_008,
	models.ProposalLiquidate:       1_440,
}

// actionTimelock returns the governance timelock for an action type.
// Actions that alter the admin set are critical and wait ~3x longer.
func actionTimelock(t models.ActionType) int64 {
	switch t {
	case models.ActionAddAdmin, models.ActionRemoveAdmin:
		return CriticalTimelock
	default:
		return StandardTimelock
	}
}

func validActionType(t models.ActionType) bool {
	switch t {
	case models.ActionUpdatePlatformFee, models.ActionAddAdmin, models.ActionRemoveAdmin,
		models.ActionWhitelistInvestor, models.ActionBlacklistInvestor,
		models.ActionSetPlatformWallet, models.ActionVerificationCriteria:
		return true
	}
	return false
}

func validProposalType(t models.ProposalType) bool {
	_, ok := proposalTimelocks[t]
	return ok
}
