package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, def *BenefitDefinition) error
	ListByPlan(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]BenefitDefinition, error)
	ListAll(ctx context.Context, db *gorm.DB) ([]BenefitDefinition, error)
	FindByPlanAndCode(ctx context.Context, db *gorm.DB, planID snowflake.ID, benefitCode string) ([]BenefitDefinition, error)
}
