package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// LimitType scopes a benefit limit to an incident, a day, or a coverage year.
type LimitType string

const (
	LimitPerIncident LimitType = "incident"
	LimitPerDay      LimitType = "day"
	LimitPerYear     LimitType = "year"
)

// Layer identifies which coverage layer an amount is drawn against.
type Layer string

const (
	LayerInnerLimit Layer = "inner_limit"
	LayerAnnualCap  Layer = "annual_cap"
)

// LayerApplicability declares the layers a benefit may draw from.
type LayerApplicability string

const (
	ApplicabilityInnerLimit LayerApplicability = "inner_limit"
	ApplicabilityAnnualCap  LayerApplicability = "annual_cap"
	ApplicabilityBoth       LayerApplicability = "both"
)

// BenefitDefinition is one versioned (plan, benefit_code) configuration row.
// It is owned by the plan configuration collaborator; the adjudication core
// treats loaded rows as immutable.
type BenefitDefinition struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	PlanID      snowflake.ID `json:"plan_id" gorm:"column:plan_id;not null;index:ix_benefit_defs_plan_code,priority:1"`
	BenefitCode string       `json:"benefit_code" gorm:"type:text;not null;index:ix_benefit_defs_plan_code,priority:2"`

	LimitType      LimitType       `json:"limit_type" gorm:"type:text;not null"`
	LimitAmount    int64           `json:"limit_amount" gorm:"not null"`
	LimitVisits    int             `json:"limit_visits" gorm:"not null;default:0"`
	CoinsurancePct decimal.Decimal `json:"coinsurance_pct" gorm:"type:decimal(7,4);not null"`
	CopayAmount    int64           `json:"copay_amount" gorm:"not null;default:0"`

	DeductibleLimit int64 `json:"deductible_limit" gorm:"not null;default:0"`
	OOPMax          int64 `json:"oop_max" gorm:"column:oop_max;not null;default:0"`

	RequiresAuthorization bool `json:"requires_authorization" gorm:"not null;default:false"`
	InNetworkOnly         bool `json:"in_network_only" gorm:"not null;default:false"`

	LayerApplicability LayerApplicability `json:"layer_applicability" gorm:"type:text;not null"`
	Precedence         Layer              `json:"precedence" gorm:"type:text;not null"`
	AllowSpillover     bool               `json:"allow_spillover" gorm:"not null;default:false"`

	EffectiveFrom time.Time  `json:"effective_from" gorm:"not null"`
	EffectiveTo   *time.Time `json:"effective_to,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (BenefitDefinition) TableName() string { return "benefit_definitions" }

// AppliesOn reports whether serviceDate falls in [EffectiveFrom, EffectiveTo).
func (d BenefitDefinition) AppliesOn(serviceDate time.Time) bool {
	if serviceDate.Before(d.EffectiveFrom) {
		return false
	}
	if d.EffectiveTo != nil && !serviceDate.Before(*d.EffectiveTo) {
		return false
	}
	return true
}

// Layers returns the drawable layers in draw order, precedence first.
func (d BenefitDefinition) Layers() []Layer {
	switch d.LayerApplicability {
	case ApplicabilityInnerLimit:
		return []Layer{LayerInnerLimit}
	case ApplicabilityAnnualCap:
		return []Layer{LayerAnnualCap}
	default:
	}
	if d.Precedence == LayerAnnualCap {
		return []Layer{LayerAnnualCap, LayerInnerLimit}
	}
	return []Layer{LayerInnerLimit, LayerAnnualCap}
}
