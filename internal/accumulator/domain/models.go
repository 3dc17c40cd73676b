package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	benefitplandomain "github.com/SalamEnterprise/claims-askes/internal/benefitplan/domain"
)

// Key identifies one accumulator record. Records exist per coverage year and
// per layer; a new year gets a fresh record, the old one is never deleted.
type Key struct {
	MemberID    snowflake.ID
	PlanID      snowflake.ID
	BenefitCode string
	Year        int
	Layer       benefitplandomain.Layer
}

// Record is the shared mutable resource of the engine. All writes go through
// the conditional-version commit; Version is the optimistic lock column.
type Record struct {
	ID          snowflake.ID             `json:"id" gorm:"primaryKey"`
	MemberID    snowflake.ID             `json:"member_id" gorm:"column:member_id;not null;uniqueIndex:ux_accumulators_key,priority:1"`
	PlanID      snowflake.ID             `json:"plan_id" gorm:"column:plan_id;not null;uniqueIndex:ux_accumulators_key,priority:2"`
	BenefitCode string                   `json:"benefit_code" gorm:"type:text;not null;uniqueIndex:ux_accumulators_key,priority:3"`
	Year        int                      `json:"year" gorm:"not null;uniqueIndex:ux_accumulators_key,priority:4"`
	Layer       benefitplandomain.Layer  `json:"layer" gorm:"type:text;not null;uniqueIndex:ux_accumulators_key,priority:5"`

	LimitAmount     int64 `json:"limit_amount" gorm:"not null"`
	LimitVisits     int   `json:"limit_visits" gorm:"not null;default:0"`
	UsedAmount      int64 `json:"used_amount" gorm:"not null;default:0"`
	VisitCount      int   `json:"visit_count" gorm:"not null;default:0"`
	DeductibleLimit int64 `json:"deductible_limit" gorm:"not null;default:0"`
	DeductibleMet   int64 `json:"deductible_met" gorm:"not null;default:0"`
	OOPMax          int64 `json:"oop_max" gorm:"column:oop_max;not null;default:0"`
	OOPMet          int64 `json:"oop_met" gorm:"column:oop_met;not null;default:0"`

	Version int64 `json:"version" gorm:"not null;default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Record) TableName() string { return "accumulator_records" }

func (r Record) Key() Key {
	return Key{
		MemberID:    r.MemberID,
		PlanID:      r.PlanID,
		BenefitCode: r.BenefitCode,
		Year:        r.Year,
		Layer:       r.Layer,
	}
}

// RemainingAmount is derived: limit minus used, floored at zero. Used can
// exceed the limit when an excess draw was permitted.
func (r Record) RemainingAmount() int64 {
	remaining := r.LimitAmount - r.UsedAmount
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (r Record) RemainingVisits() int {
	if r.LimitVisits <= 0 {
		return 0
	}
	remaining := r.LimitVisits - r.VisitCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Delta is one pending mutation against a record, conditional on the version
// observed when the orchestrator computed it.
type Delta struct {
	RecordID        snowflake.ID `json:"record_id" gorm:"column:record_id;not null"`
	ObservedVersion int64        `json:"observed_version" gorm:"-"`

	Amount     int64 `json:"amount" gorm:"not null;default:0"`
	Visits     int   `json:"visits" gorm:"not null;default:0"`
	Deductible int64 `json:"deductible" gorm:"not null;default:0"`
	OOP        int64 `json:"oop" gorm:"column:oop;not null;default:0"`

	// Reversal marks the only sanctioned decrease of used_amount.
	Reversal bool `json:"reversal" gorm:"not null;default:false"`
}

// Negate produces the reversal delta for an applied delta.
func (d Delta) Negate() Delta {
	return Delta{
		RecordID:   d.RecordID,
		Amount:     -d.Amount,
		Visits:     -d.Visits,
		Deductible: -d.Deductible,
		OOP:        -d.OOP,
		Reversal:   true,
	}
}
