package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Source names a funding pool drawn to cover a member-responsibility gap.
type Source string

const (
	SourceASO        Source = "aso"
	SourceBuffer     Source = "buffer"
	SourceNonBenefit Source = "non_benefit"
)

// EntryType distinguishes the ledger movements. Balances are always derived
// as SUM(amount) over the ledger; there is no mutable balance counter to
// drift under concurrency.
type EntryType string

const (
	EntryDraw     EntryType = "draw"
	EntryReversal EntryType = "reversal"
	EntryDeposit  EntryType = "deposit"
)

// LedgerEntry is one append-only ledger row. Draws are negative amounts,
// deposits positive; reversals mirror the draw they negate.
type LedgerEntry struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	PolicyID    snowflake.ID `json:"policy_id" gorm:"column:policy_id;not null;index:ix_funding_ledger_policy_source,priority:1"`
	Source      Source       `json:"source" gorm:"type:text;not null;index:ix_funding_ledger_policy_source,priority:2"`
	EntryType   EntryType    `json:"entry_type" gorm:"type:text;not null"`
	Amount      int64        `json:"amount" gorm:"not null"`
	ClaimLineID snowflake.ID `json:"claim_line_id" gorm:"column:claim_line_id;index"`
	OccurredAt  time.Time    `json:"occurred_at" gorm:"not null"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "funding_ledger_entries" }

// Config is the per-policy funding behavior resolved before adjudication.
type Config struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey"`
	PolicyID snowflake.ID `json:"policy_id" gorm:"column:policy_id;not null;uniqueIndex"`

	ASOApplicable   bool `json:"aso_applicable" gorm:"column:aso_applicable;not null;default:false"`
	AllowExcessDraw bool `json:"allow_excess_draw" gorm:"not null;default:false"`

	// DenyOnExhaustedFunding decides the open policy question for a gap no
	// fund will absorb: deny the line outright, or let member responsibility
	// stand. Default is the latter.
	DenyOnExhaustedFunding bool `json:"deny_on_exhausted_funding" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Config) TableName() string { return "funding_configs" }

// Allocation reports one funded draw against a claim line.
type Allocation struct {
	EntryID      snowflake.ID `json:"entry_id"`
	Source       Source       `json:"source"`
	Amount       int64        `json:"amount"`
	NeedsReview  bool         `json:"needs_review"`
}
