package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Service interface {
	// Resolve returns the single benefit definition effective on serviceDate.
	// Lock-free: reads an immutable snapshot that is hot-swapped on reload.
	Resolve(ctx context.Context, planID snowflake.ID, benefitCode string, serviceDate time.Time) (*BenefitDefinition, error)

	Create(ctx context.Context, req CreateRequest) (*BenefitDefinition, error)
	List(ctx context.Context, planID string) ([]BenefitDefinition, error)

	// ReloadSnapshot rebuilds the resolver snapshot from storage and swaps it in.
	ReloadSnapshot(ctx context.Context) error
}

type CreateRequest struct {
	PlanID                string             `json:"plan_id"`
	BenefitCode           string             `json:"benefit_code"`
	LimitType             LimitType          `json:"limit_type"`
	LimitAmount           int64              `json:"limit_amount"`
	LimitVisits           int                `json:"limit_visits"`
	CoinsurancePct        decimal.Decimal    `json:"coinsurance_pct"`
	CopayAmount           int64              `json:"copay_amount"`
	DeductibleLimit       int64              `json:"deductible_limit"`
	OOPMax                int64              `json:"oop_max"`
	RequiresAuthorization bool               `json:"requires_authorization"`
	InNetworkOnly         bool               `json:"in_network_only"`
	LayerApplicability    LayerApplicability `json:"layer_applicability"`
	Precedence            Layer              `json:"precedence"`
	AllowSpillover        bool               `json:"allow_spillover"`
	EffectiveFrom         time.Time          `json:"effective_from"`
	EffectiveTo           *time.Time         `json:"effective_to,omitempty"`
}

var (
	ErrBenefitNotFound       = errors.New("benefit_not_found")
	ErrAmbiguousBenefit      = errors.New("ambiguous_benefit_definition")
	ErrInvalidPlan           = errors.New("invalid_plan")
	ErrInvalidBenefitCode    = errors.New("invalid_benefit_code")
	ErrInvalidLimitType      = errors.New("invalid_limit_type")
	ErrInvalidEffectiveRange = errors.New("invalid_effective_range")
	ErrInvalidCoinsurance    = errors.New("invalid_coinsurance_pct")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
