package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	AppendEntry(ctx context.Context, db *gorm.DB, entry *LedgerEntry) error
	// Balance computes SUM(amount) for a (policy, source) pair; it reads the
	// ledger aggregate, never a cached counter.
	Balance(ctx context.Context, db *gorm.DB, policyID snowflake.ID, source Source) (int64, error)
	ListByClaimLine(ctx context.Context, db *gorm.DB, claimLineID snowflake.ID) ([]LedgerEntry, error)
	FindConfigByPolicy(ctx context.Context, db *gorm.DB, policyID snowflake.ID) (*Config, error)
	InsertConfig(ctx context.Context, db *gorm.DB, cfg *Config) error
}
