package models

import "time"

type ProposalType string

const (
	ProposalUpdateRent      ProposalType = "update-rent"
	ProposalUpdateThreshold ProposalType = "update-threshold"
	ProposalChangeOwner     ProposalType = "change-owner"
	ProposalLiquidate       ProposalType = "liquidate"
)

// GovernanceProposal is a property-scoped proposal. The total invested
// at creation is snapshotted so later investments cannot retroactively
// move the quorum denominator.
type GovernanceProposal struct {
	ID          string       `json:"id" gorm:"primaryKey;type:uuid"`
	PropertyID  string       `json:"property_id" gorm:"not null;index"`
	Proposer    string       `json:"proposer" gorm:"not null"`
	Type        ProposalType `json:"type" gorm:"type:varchar(24);not null"`
	Description string       `json:"description" gorm:"type:text"`

	NewAmount    int64  `json:"new_amount"`
	NewPrincipal string `json:"new_principal,omitempty"`

	VotesFor              int64 `json:"votes_for" gorm:"default:0"`
	VotesAgainst          int64 `json:"votes_against" gorm:"default:0"`
	SnapshotTotalInvested int64 `json:"snapshot_total_invested"`

	CreatedAtHeight  int64 `json:"created_at_height"`
	Executed         bool  `json:"executed" gorm:"default:false"`
	ExecutedAtHeight int64 `json:"executed_at_height"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// ProposalVote is write-once per (proposal, voter). Weight is the
// voter's investment amount at vote time.
type ProposalVote struct {
	ID            string    `json:"id" gorm:"primaryKey;type:uuid"`
	ProposalID    string    `json:"proposal_id" gorm:"not null;index;uniqueIndex:idx_vote_proposal_voter"`
	Voter         string    `json:"voter" gorm:"not null;uniqueIndex:idx_vote_proposal_voter"`
	Support       bool      `json:"support"`
	Weight        int64     `json:"weight" gorm:"not null"`
	VotedAtHeight int64     `json:"voted_at_height"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}
