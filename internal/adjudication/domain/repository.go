package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertResult(ctx context.Context, db *gorm.DB, result *Result) error
	InsertLineResults(ctx context.Context, db *gorm.DB, lines []LineResult) error
	InsertAppliedDeltas(ctx context.Context, db *gorm.DB, deltas []AppliedDelta) error

	FindResult(ctx context.Context, db *gorm.DB, claimID, attemptID string) (*Result, error)
	ListLineResults(ctx context.Context, db *gorm.DB, resultID snowflake.ID) ([]LineResult, error)
	ListAppliedDeltas(ctx context.Context, db *gorm.DB, resultID snowflake.ID) ([]AppliedDelta, error)

	MarkReversed(ctx context.Context, db *gorm.DB, result *Result) error
}
