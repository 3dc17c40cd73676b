package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// GetConfig loads the funding configuration for a policy.
	GetConfig(ctx context.Context, policyID snowflake.ID) (*Config, error)

	// Allocate draws the member-responsibility gap from the first source in
	// priority order that can take it: ASO, buffer, non-benefit fallback.
	// A nil allocation with nil error means no source accepted and the gap
	// stays with the member. ErrFundingExhausted is returned instead when the
	// policy is configured to deny on exhausted funding.
	// Must be called inside the claim's commit transaction.
	Allocate(ctx context.Context, db *gorm.DB, cfg Config, claimLineID snowflake.ID, gap int64) (*Allocation, error)

	// AppendExcessDraw attributes an over-limit accumulator draw to the
	// buffer fund, as an audit trail of permitted excess.
	AppendExcessDraw(ctx context.Context, db *gorm.DB, policyID, claimLineID snowflake.ID, amount int64) error

	// Reverse appends compensating entries for all draws of a claim line.
	Reverse(ctx context.Context, db *gorm.DB, claimLineID snowflake.ID) error

	// Balances reports the derived balance per source for a policy.
	Balances(ctx context.Context, policyID snowflake.ID) (map[Source]int64, error)

	// Deposit funds a pool; used by policy administration.
	Deposit(ctx context.Context, policyID snowflake.ID, source Source, amount int64) (*LedgerEntry, error)

	// CreateConfig registers the funding behavior of a policy.
	CreateConfig(ctx context.Context, cfg Config) (*Config, error)
}

var (
	ErrConfigNotFound    = errors.New("funding_config_not_found")
	ErrFundingExhausted  = errors.New("funding_exhausted")
	ErrInvalidPolicy     = errors.New("invalid_policy")
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidSource     = errors.New("invalid_source")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
