package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}

var (
	// ErrInvalidClaim indicates a structurally unusable request: missing
	// identifiers, no lines, or negative amounts.
	ErrInvalidClaim = errors.New("invalid_claim")

	// ErrClaimNotFound indicates no stored result for the requested
	// claim/attempt pair.
	ErrClaimNotFound = errors.New("claim_not_found")

	// ErrConcurrencyConflict indicates the attempt lost the accumulator
	// version race more times than the retry budget allows.
	ErrConcurrencyConflict = errors.New("concurrency_conflict")

	// ErrDependencyUnavailable indicates an external dependency (the
	// authorization service) could not answer.
	ErrDependencyUnavailable = errors.New("dependency_unavailable")

	// ErrAlreadyReversed indicates the attempt was reversed before.
	ErrAlreadyReversed = errors.New("already_reversed")

	// ErrNotReversible indicates the attempt never committed accumulator
	// or funding effects, so there is nothing to reverse.
	ErrNotReversible = errors.New("not_reversible")
)

// LineRequest is one service line of an inbound claim. Diagnosis codes are
// carried through to the stored line result for downstream review and audit;
// the engine itself does not price on them.
type LineRequest struct {
	BenefitCode    string    `json:"benefit_code" binding:"required"`
	ServiceDate    time.Time `json:"service_date" binding:"required"`
	DiagnosisCodes []string  `json:"diagnosis_codes"`
	ChargedAmount  int64     `json:"charged_amount"`
	AllowedAmount  int64     `json:"allowed_amount"`
	InNetwork      bool      `json:"in_network"`
}

// AdjudicateRequest is an inbound claim attempt. ClaimID and AttemptID
// together form the idempotency key; replays return the stored result.
type AdjudicateRequest struct {
	ClaimID   string `json:"claim_id" binding:"required"`
	AttemptID string `json:"attempt_id" binding:"required"`

	MemberID string `json:"member_id" binding:"required"`
	PlanID   string `json:"plan_id" binding:"required"`
	PolicyID string `json:"policy_id" binding:"required"`

	// OtherPayerPaid is the claim-level amount already paid by a primary
	// carrier, allocated across lines in order.
	OtherPayerPaid int64 `json:"other_payer_paid"`

	Lines []LineRequest `json:"lines" binding:"required"`
}

// Response is a full adjudication result with its line breakdown.
type Response struct {
	Result *Result      `json:"result"`
	Lines  []LineResult `json:"lines"`
}

type Service interface {
	// Adjudicate runs one claim attempt end to end and commits its
	// effects atomically. Replaying a (claim_id, attempt_id) pair
	// returns the stored result without re-applying anything.
	Adjudicate(ctx context.Context, req AdjudicateRequest) (*Response, error)

	// Reverse undoes a committed attempt by negating its accumulator
	// deltas and appending compensating funding entries.
	Reverse(ctx context.Context, claimID, attemptID string) (*Response, error)

	// Get returns a stored attempt result.
	Get(ctx context.Context, claimID, attemptID string) (*Response, error)
}
