package service

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	benefitplandomain "github.com/SalamEnterprise/claims-askes/internal/benefitplan/domain"
	"github.com/SalamEnterprise/claims-askes/internal/clock"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock
	repo  benefitplandomain.Repository

	snap atomic.Pointer[snapshot]
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  benefitplandomain.Repository
}

func NewService(p ServiceParam) benefitplandomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("benefitplan.service"),

		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Resolve(ctx context.Context, planID snowflake.ID, benefitCode string, serviceDate time.Time) (*benefitplandomain.BenefitDefinition, error) {
	snap := s.snap.Load()

	var matched []benefitplandomain.BenefitDefinition
	if snap.has(planID, benefitCode) {
		matched = snap.match(planID, benefitCode, serviceDate)
	} else {
		// Snapshot miss: definitions created after the last reload are still
		// resolvable straight from storage.
		defs, err := s.repo.FindByPlanAndCode(ctx, s.db, planID, benefitCode)
		if err != nil {
			return nil, err
		}
		for _, def := range defs {
			if def.AppliesOn(serviceDate) {
				matched = append(matched, def)
			}
		}
	}

	switch len(matched) {
	case 0:
		return nil, benefitplandomain.ErrBenefitNotFound
	case 1:
		def := matched[0]
		return &def, nil
	default:
		// Overlapping effective intervals are a configuration-data integrity
		// violation, never retried.
		s.log.Error("ambiguous benefit definition",
			zap.String("plan_id", planID.String()),
			zap.String("benefit_code", benefitCode),
			zap.Int("matches", len(matched)),
		)
		return nil, benefitplandomain.ErrAmbiguousBenefit
	}
}

func (s *Service) Create(ctx context.Context, req benefitplandomain.CreateRequest) (*benefitplandomain.BenefitDefinition, error) {
	planID, err := benefitplandomain.ParseID(strings.TrimSpace(req.PlanID))
	if err != nil || planID == 0 {
		return nil, benefitplandomain.ErrInvalidPlan
	}

	benefitCode := strings.TrimSpace(req.BenefitCode)
	if benefitCode == "" {
		return nil, benefitplandomain.ErrInvalidBenefitCode
	}

	switch req.LimitType {
	case benefitplandomain.LimitPerIncident, benefitplandomain.LimitPerDay, benefitplandomain.LimitPerYear:
	default:
		return nil, benefitplandomain.ErrInvalidLimitType
	}

	if req.CoinsurancePct.IsNegative() || req.CoinsurancePct.GreaterThan(decimal.NewFromInt(100)) {
		return nil, benefitplandomain.ErrInvalidCoinsurance
	}

	if req.EffectiveFrom.IsZero() {
		return nil, benefitplandomain.ErrInvalidEffectiveRange
	}
	if req.EffectiveTo != nil && !req.EffectiveTo.After(req.EffectiveFrom) {
		return nil, benefitplandomain.ErrInvalidEffectiveRange
	}

	applicability := req.LayerApplicability
	if applicability == "" {
		applicability = benefitplandomain.ApplicabilityInnerLimit
	}
	precedence := req.Precedence
	if precedence == "" {
		precedence = benefitplandomain.LayerInnerLimit
	}

	now := s.clock.Now()
	def := &benefitplandomain.BenefitDefinition{
		ID:          s.genID.Generate(),
		PlanID:      planID,
		BenefitCode: benefitCode,

		LimitType:      req.LimitType,
		LimitAmount:    req.LimitAmount,
		LimitVisits:    req.LimitVisits,
		CoinsurancePct: req.CoinsurancePct,
		CopayAmount:    req.CopayAmount,

		DeductibleLimit: req.DeductibleLimit,
		OOPMax:          req.OOPMax,

		RequiresAuthorization: req.RequiresAuthorization,
		InNetworkOnly:         req.InNetworkOnly,

		LayerApplicability: applicability,
		Precedence:         precedence,
		AllowSpillover:     req.AllowSpillover,

		EffectiveFrom: req.EffectiveFrom.UTC(),
		EffectiveTo:   req.EffectiveTo,

		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, s.db, def); err != nil {
		return nil, err
	}

	return def, nil
}

func (s *Service) List(ctx context.Context, planID string) ([]benefitplandomain.BenefitDefinition, error) {
	if strings.TrimSpace(planID) == "" {
		return s.repo.ListAll(ctx, s.db)
	}
	id, err := benefitplandomain.ParseID(planID)
	if err != nil {
		return nil, benefitplandomain.ErrInvalidPlan
	}
	return s.repo.ListByPlan(ctx, s.db, id)
}

func (s *Service) ReloadSnapshot(ctx context.Context) error {
	defs, err := s.repo.ListAll(ctx, s.db)
	if err != nil {
		return err
	}

	next := buildSnapshot(defs, s.clock.Now())
	s.snap.Store(next)

	s.log.Info("benefit plan snapshot reloaded",
		zap.Int("definitions", len(defs)),
	)
	return nil
}
