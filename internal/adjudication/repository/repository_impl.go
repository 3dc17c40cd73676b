package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/SalamEnterprise/claims-askes/internal/adjudication/domain"
)

type repo struct{}

// Provide constructs the adjudication result repository.
func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertResult(ctx context.Context, db *gorm.DB, result *domain.Result) error {
	return db.WithContext(ctx).Create(result).Error
}

func (r *repo) InsertLineResults(ctx context.Context, db *gorm.DB, lines []domain.LineResult) error {
	if len(lines) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&lines).Error
}

func (r *repo) InsertAppliedDeltas(ctx context.Context, db *gorm.DB, deltas []domain.AppliedDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&deltas).Error
}

func (r *repo) FindResult(ctx context.Context, db *gorm.DB, claimID, attemptID string) (*domain.Result, error) {
	var result domain.Result
	err := db.WithContext(ctx).
		Where("claim_id = ? AND attempt_id = ?", claimID, attemptID).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *repo) ListLineResults(ctx context.Context, db *gorm.DB, resultID snowflake.ID) ([]domain.LineResult, error) {
	var lines []domain.LineResult
	err := db.WithContext(ctx).
		Where("result_id = ?", resultID).
		Order("line_number ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repo) ListAppliedDeltas(ctx context.Context, db *gorm.DB, resultID snowflake.ID) ([]domain.AppliedDelta, error) {
	var deltas []domain.AppliedDelta
	err := db.WithContext(ctx).
		Where("result_id = ?", resultID).
		Order("id ASC").
		Find(&deltas).Error
	if err != nil {
		return nil, err
	}
	return deltas, nil
}

func (r *repo) MarkReversed(ctx context.Context, db *gorm.DB, result *domain.Result) error {
	return db.WithContext(ctx).
		Model(&domain.Result{}).
		Where("id = ? AND reversed_at IS NULL", result.ID).
		Update("reversed_at", result.ReversedAt).Error
}
