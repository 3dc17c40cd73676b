package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	accumulatordomain "github.com/SalamEnterprise/claims-askes/internal/accumulator/domain"
	benefitplandomain "github.com/SalamEnterprise/claims-askes/internal/benefitplan/domain"
	"github.com/SalamEnterprise/claims-askes/internal/clock"
	"github.com/SalamEnterprise/claims-askes/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock
	repo  accumulatordomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  accumulatordomain.Repository
}

func NewService(p ServiceParam) accumulatordomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("accumulator.service"),

		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) LoadOrCreate(ctx context.Context, conn *gorm.DB, key accumulatordomain.Key, def benefitplandomain.BenefitDefinition) (*accumulatordomain.Record, error) {
	if conn == nil {
		conn = s.db
	}

	record, err := s.repo.FindByKey(ctx, conn, key)
	if err != nil {
		return nil, err
	}
	if record != nil {
		return record, nil
	}

	now := s.clock.Now()
	fresh := &accumulatordomain.Record{
		ID:          s.genID.Generate(),
		MemberID:    key.MemberID,
		PlanID:      key.PlanID,
		BenefitCode: key.BenefitCode,
		Year:        key.Year,
		Layer:       key.Layer,

		LimitAmount:     def.LimitAmount,
		LimitVisits:     def.LimitVisits,
		DeductibleLimit: def.DeductibleLimit,
		OOPMax:          def.OOPMax,

		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Insert(ctx, conn, fresh); err != nil {
		// Two workers touching the same key for the first time race on the
		// insert; the unique index arbitrates. On postgres the violation
		// has already aborted the surrounding transaction, so a re-read
		// here cannot succeed. Surface the conflict and let the caller
		// rebuild its transaction; the next cycle reads the winner's row.
		if db.IsDuplicateKeyErr(err) {
			return nil, accumulatordomain.ErrVersionConflict
		}
		return nil, err
	}

	return fresh, nil
}

func (s *Service) Commit(ctx context.Context, conn *gorm.DB, deltas []accumulatordomain.Delta) error {
	if conn == nil {
		conn = s.db
	}

	for _, delta := range deltas {
		if (delta.Amount < 0 || delta.Visits < 0 || delta.Deductible < 0 || delta.OOP < 0) && !delta.Reversal {
			return accumulatordomain.ErrNegativeDelta
		}

		ok, err := s.repo.ApplyDelta(ctx, conn, delta)
		if err != nil {
			return err
		}
		if !ok {
			s.log.Debug("accumulator version conflict",
				zap.String("record_id", delta.RecordID.String()),
				zap.Int64("observed_version", delta.ObservedVersion),
			)
			return accumulatordomain.ErrVersionConflict
		}
	}

	return nil
}

func (s *Service) Get(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*accumulatordomain.Record, error) {
	if conn == nil {
		conn = s.db
	}

	record, err := s.repo.FindByID(ctx, conn, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, accumulatordomain.ErrNotFound
	}
	return record, nil
}

func (s *Service) ListByMember(ctx context.Context, memberID snowflake.ID, year int) ([]accumulatordomain.Record, error) {
	if memberID == 0 {
		return nil, accumulatordomain.ErrInvalidMember
	}
	return s.repo.ListByMember(ctx, s.db, memberID, year)
}
