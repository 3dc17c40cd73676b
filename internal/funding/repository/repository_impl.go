package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	fundingdomain "github.com/SalamEnterprise/claims-askes/internal/funding/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() fundingdomain.Repository {
	return &repo{}
}

func (r *repo) AppendEntry(ctx context.Context, db *gorm.DB, entry *fundingdomain.LedgerEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO funding_ledger_entries (
			id, policy_id, source, entry_type, amount, claim_line_id, occurred_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.PolicyID,
		entry.Source,
		entry.EntryType,
		entry.Amount,
		entry.ClaimLineID,
		entry.OccurredAt,
		entry.CreatedAt,
	).Error
}

func (r *repo) Balance(ctx context.Context, db *gorm.DB, policyID snowflake.ID, source fundingdomain.Source) (int64, error) {
	var balance int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM funding_ledger_entries
		 WHERE policy_id = ? AND source = ?`,
		policyID,
		source,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *repo) ListByClaimLine(ctx context.Context, db *gorm.DB, claimLineID snowflake.ID) ([]fundingdomain.LedgerEntry, error) {
	var entries []fundingdomain.LedgerEntry
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM funding_ledger_entries
		 WHERE claim_line_id = ? ORDER BY created_at ASC`,
		claimLineID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) FindConfigByPolicy(ctx context.Context, db *gorm.DB, policyID snowflake.ID) (*fundingdomain.Config, error) {
	var cfg fundingdomain.Config
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM funding_configs WHERE policy_id = ?`,
		policyID,
	).Scan(&cfg).Error
	if err != nil {
		return nil, err
	}
	if cfg.ID == 0 {
		return nil, nil
	}
	return &cfg, nil
}

func (r *repo) InsertConfig(ctx context.Context, db *gorm.DB, cfg *fundingdomain.Config) error {
	return db.WithContext(ctx).Create(cfg).Error
}
