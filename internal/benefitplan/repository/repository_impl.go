package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	benefitplandomain "github.com/SalamEnterprise/claims-askes/internal/benefitplan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() benefitplandomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, def *benefitplandomain.BenefitDefinition) error {
	return db.WithContext(ctx).Create(def).Error
}

func (r *repo) ListByPlan(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]benefitplandomain.BenefitDefinition, error) {
	var defs []benefitplandomain.BenefitDefinition
	err := db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("benefit_code ASC, effective_from ASC").
		Find(&defs).Error
	if err != nil {
		return nil, err
	}
	return defs, nil
}

func (r *repo) ListAll(ctx context.Context, db *gorm.DB) ([]benefitplandomain.BenefitDefinition, error) {
	var defs []benefitplandomain.BenefitDefinition
	err := db.WithContext(ctx).
		Order("plan_id ASC, benefit_code ASC, effective_from ASC").
		Find(&defs).Error
	if err != nil {
		return nil, err
	}
	return defs, nil
}

func (r *repo) FindByPlanAndCode(ctx context.Context, db *gorm.DB, planID snowflake.ID, benefitCode string) ([]benefitplandomain.BenefitDefinition, error) {
	var defs []benefitplandomain.BenefitDefinition
	err := db.WithContext(ctx).
		Where("plan_id = ? AND benefit_code = ?", planID, benefitCode).
		Order("effective_from ASC").
		Find(&defs).Error
	if err != nil {
		return nil, err
	}
	return defs, nil
}
