package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Status is the claim-level adjudication state machine. COMPLETED is
// terminal; a committed result is only ever undone by an explicit reversal
// transaction, never edited.
type Status string

const (
	StatusPending        Status = "pending"
	StatusInProgress     Status = "in_progress"
	StatusCompleted      Status = "completed"
	StatusRequiresReview Status = "requires_review"
	StatusFailed         Status = "failed"
)

// Denial reasons are line outcomes, not errors.
const (
	DenialBenefitNotCovered    = "benefit_not_covered"
	DenialAuthorizationMissing = "authorization_missing"
	DenialVisitLimitExhausted  = "visit_limit_exhausted"
	DenialFundingExhausted     = "funding_exhausted"
)

// Review reasons recorded on a requires_review result.
const (
	ReviewHighCost             = "high_cost"
	ReviewMissingAuthorization = "authorization_missing"
	ReviewNegativeFundBalance  = "funding_negative_balance"
)

// Result is one adjudication attempt for one claim. The (claim_id,
// attempt_id) pair is unique; replaying an attempt returns this row instead
// of touching accumulators again.
type Result struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	ClaimID   string       `json:"claim_id" gorm:"type:text;not null;uniqueIndex:ux_adjudication_attempt,priority:1"`
	AttemptID string       `json:"attempt_id" gorm:"type:text;not null;uniqueIndex:ux_adjudication_attempt,priority:2"`

	MemberID snowflake.ID `json:"member_id" gorm:"column:member_id;not null;index"`
	PlanID   snowflake.ID `json:"plan_id" gorm:"column:plan_id;not null"`
	PolicyID snowflake.ID `json:"policy_id" gorm:"column:policy_id;not null"`

	Status        Status `json:"status" gorm:"type:text;not null"`
	ReviewReasons string `json:"review_reasons,omitempty" gorm:"type:text"`

	TotalCharged       int64 `json:"total_charged" gorm:"not null;default:0"`
	TotalAllowed       int64 `json:"total_allowed" gorm:"not null;default:0"`
	TotalPaid          int64 `json:"total_paid" gorm:"not null;default:0"`
	TotalMemberResp    int64 `json:"total_member_responsibility" gorm:"column:total_member_resp;not null;default:0"`
	TotalCOBAdjustment int64 `json:"total_cob_adjustment" gorm:"column:total_cob_adjustment;not null;default:0"`
	TotalFunded        int64 `json:"total_funded" gorm:"not null;default:0"`

	ReversedAt  *time.Time `json:"reversed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName sets the database table name.
func (Result) TableName() string { return "adjudication_results" }

// LineResult is the immutable per-line breakdown of one attempt.
type LineResult struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	ResultID   snowflake.ID `json:"result_id" gorm:"column:result_id;not null;index"`
	LineNumber int          `json:"line_number" gorm:"not null"`

	BenefitCode    string                      `json:"benefit_code" gorm:"type:text;not null"`
	ServiceDate    time.Time                   `json:"service_date" gorm:"not null"`
	DiagnosisCodes datatypes.JSONSlice[string] `json:"diagnosis_codes,omitempty" gorm:"type:jsonb"`

	ChargedAmount        int64  `json:"charged_amount" gorm:"not null;default:0"`
	AllowedAmount        int64  `json:"allowed_amount" gorm:"not null;default:0"`
	DeductibleAmount     int64  `json:"deductible_amount" gorm:"not null;default:0"`
	CopayAmount          int64  `json:"copay_amount" gorm:"not null;default:0"`
	CoinsuranceAmount    int64  `json:"coinsurance_amount" gorm:"not null;default:0"`
	COBAdjustment        int64  `json:"cob_adjustment" gorm:"column:cob_adjustment;not null;default:0"`
	InnerLimitDraw       int64  `json:"inner_limit_draw" gorm:"not null;default:0"`
	AnnualCapDraw        int64  `json:"annual_cap_draw" gorm:"not null;default:0"`
	ExcessDraw           int64  `json:"excess_draw" gorm:"not null;default:0"`
	PaidAmount           int64  `json:"paid_amount" gorm:"not null;default:0"`
	FundedAmount         int64  `json:"funded_amount" gorm:"not null;default:0"`
	FundingSource        string `json:"funding_source,omitempty" gorm:"type:text"`
	MemberResponsibility int64  `json:"member_responsibility" gorm:"not null;default:0"`

	DenialReason *string `json:"denial_reason,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (LineResult) TableName() string { return "adjudication_line_results" }

// AppliedDelta records one accumulator mutation of an attempt so a reversal
// can negate exactly what was committed.
type AppliedDelta struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey"`
	ResultID snowflake.ID `json:"result_id" gorm:"column:result_id;not null;index"`
	RecordID snowflake.ID `json:"record_id" gorm:"column:record_id;not null"`

	Amount     int64 `json:"amount" gorm:"not null;default:0"`
	Visits     int   `json:"visits" gorm:"not null;default:0"`
	Deductible int64 `json:"deductible" gorm:"not null;default:0"`
	OOP        int64 `json:"oop" gorm:"column:oop;not null;default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AppliedDelta) TableName() string { return "adjudication_applied_deltas" }
