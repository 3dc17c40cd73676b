package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	benefitplandomain "github.com/SalamEnterprise/claims-askes/internal/benefitplan/domain"
	"gorm.io/gorm"
)

type Service interface {
	// LoadOrCreate returns the record for key, lazily creating it from the
	// benefit definition's limits on first use in a coverage year. Losing
	// the first-use insert race returns ErrVersionConflict; retry in a
	// fresh transaction.
	LoadOrCreate(ctx context.Context, db *gorm.DB, key Key, def benefitplandomain.BenefitDefinition) (*Record, error)

	// Commit applies all deltas conditionally on their observed versions.
	// It must run inside the caller's transaction; any version mismatch
	// returns ErrVersionConflict and the transaction must roll back.
	Commit(ctx context.Context, db *gorm.DB, deltas []Delta) error

	// Get reads one record by id, on the caller's connection when given.
	Get(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Record, error)

	ListByMember(ctx context.Context, memberID snowflake.ID, year int) ([]Record, error)
}

var (
	ErrVersionConflict = errors.New("accumulator_version_conflict")
	ErrNotFound        = errors.New("accumulator_not_found")
	ErrNegativeDelta   = errors.New("negative_delta_without_reversal")
	ErrInvalidMember   = errors.New("invalid_member")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
