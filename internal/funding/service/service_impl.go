package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/SalamEnterprise/claims-askes/internal/clock"
	fundingdomain "github.com/SalamEnterprise/claims-askes/internal/funding/domain"
	obsmetrics "github.com/SalamEnterprise/claims-askes/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID   *snowflake.Node
	clock   clock.Clock
	repo    fundingdomain.Repository
	metrics *obsmetrics.Metrics
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    fundingdomain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) fundingdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("funding.service"),

		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *Service) GetConfig(ctx context.Context, policyID snowflake.ID) (*fundingdomain.Config, error) {
	if policyID == 0 {
		return nil, fundingdomain.ErrInvalidPolicy
	}
	cfg, err := s.repo.FindConfigByPolicy(ctx, s.db, policyID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fundingdomain.ErrConfigNotFound
	}
	return cfg, nil
}

// Allocate picks the first source in priority order that accepts the whole
// gap. ASO requires a sufficient derived balance; the buffer fund requires
// the policy's allow_excess_draw; the non-benefit fund always accepts and a
// negative resulting balance flags the claim for manual review instead of
// blocking adjudication.
func (s *Service) Allocate(ctx context.Context, tx *gorm.DB, cfg fundingdomain.Config, claimLineID snowflake.ID, gap int64) (*fundingdomain.Allocation, error) {
	if gap <= 0 {
		return nil, nil
	}
	if tx == nil {
		tx = s.db
	}

	if cfg.ASOApplicable {
		balance, err := s.repo.Balance(ctx, tx, cfg.PolicyID, fundingdomain.SourceASO)
		if err != nil {
			return nil, err
		}
		if balance >= gap {
			return s.draw(ctx, tx, cfg.PolicyID, fundingdomain.SourceASO, claimLineID, gap, false)
		}
	}

	if cfg.AllowExcessDraw {
		return s.draw(ctx, tx, cfg.PolicyID, fundingdomain.SourceBuffer, claimLineID, gap, false)
	}

	balance, err := s.repo.Balance(ctx, tx, cfg.PolicyID, fundingdomain.SourceNonBenefit)
	if err != nil {
		return nil, err
	}
	if balance < gap {
		if cfg.DenyOnExhaustedFunding {
			return nil, fundingdomain.ErrFundingExhausted
		}
		// The fallback fund goes negative; adjudication proceeds but the
		// claim is routed to manual review.
		return s.draw(ctx, tx, cfg.PolicyID, fundingdomain.SourceNonBenefit, claimLineID, gap, true)
	}
	return s.draw(ctx, tx, cfg.PolicyID, fundingdomain.SourceNonBenefit, claimLineID, gap, false)
}

func (s *Service) draw(ctx context.Context, tx *gorm.DB, policyID snowflake.ID, source fundingdomain.Source, claimLineID snowflake.ID, amount int64, needsReview bool) (*fundingdomain.Allocation, error) {
	now := s.clock.Now()
	entry := &fundingdomain.LedgerEntry{
		ID:          s.genID.Generate(),
		PolicyID:    policyID,
		Source:      source,
		EntryType:   fundingdomain.EntryDraw,
		Amount:      -amount,
		ClaimLineID: claimLineID,
		OccurredAt:  now,
		CreatedAt:   now,
	}
	if err := s.repo.AppendEntry(ctx, tx, entry); err != nil {
		return nil, err
	}

	s.metrics.RecordFundingDraw(ctx, string(source))
	s.log.Info("funding draw",
		zap.String("policy_id", policyID.String()),
		zap.String("source", string(source)),
		zap.Int64("amount", amount),
		zap.Bool("needs_review", needsReview),
	)

	return &fundingdomain.Allocation{
		EntryID:     entry.ID,
		Source:      source,
		Amount:      amount,
		NeedsReview: needsReview,
	}, nil
}

func (s *Service) AppendExcessDraw(ctx context.Context, tx *gorm.DB, policyID, claimLineID snowflake.ID, amount int64) error {
	if amount <= 0 {
		return fundingdomain.ErrInvalidAmount
	}
	if tx == nil {
		tx = s.db
	}

	now := s.clock.Now()
	entry := &fundingdomain.LedgerEntry{
		ID:          s.genID.Generate(),
		PolicyID:    policyID,
		Source:      fundingdomain.SourceBuffer,
		EntryType:   fundingdomain.EntryDraw,
		Amount:      -amount,
		ClaimLineID: claimLineID,
		OccurredAt:  now,
		CreatedAt:   now,
	}
	if err := s.repo.AppendEntry(ctx, tx, entry); err != nil {
		return err
	}

	s.metrics.RecordFundingDraw(ctx, string(fundingdomain.SourceBuffer))
	s.log.Warn("excess accumulator draw attributed to buffer fund",
		zap.String("policy_id", policyID.String()),
		zap.String("claim_line_id", claimLineID.String()),
		zap.Int64("amount", amount),
	)
	return nil
}

func (s *Service) Reverse(ctx context.Context, tx *gorm.DB, claimLineID snowflake.ID) error {
	if tx == nil {
		tx = s.db
	}

	entries, err := s.repo.ListByClaimLine(ctx, tx, claimLineID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	for _, entry := range entries {
		if entry.EntryType != fundingdomain.EntryDraw {
			continue
		}
		reversal := &fundingdomain.LedgerEntry{
			ID:          s.genID.Generate(),
			PolicyID:    entry.PolicyID,
			Source:      entry.Source,
			EntryType:   fundingdomain.EntryReversal,
			Amount:      -entry.Amount,
			ClaimLineID: claimLineID,
			OccurredAt:  now,
			CreatedAt:   now,
		}
		if err := s.repo.AppendEntry(ctx, tx, reversal); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) Balances(ctx context.Context, policyID snowflake.ID) (map[fundingdomain.Source]int64, error) {
	if policyID == 0 {
		return nil, fundingdomain.ErrInvalidPolicy
	}

	balances := make(map[fundingdomain.Source]int64, 3)
	for _, source := range []fundingdomain.Source{
		fundingdomain.SourceASO,
		fundingdomain.SourceBuffer,
		fundingdomain.SourceNonBenefit,
	} {
		balance, err := s.repo.Balance(ctx, s.db, policyID, source)
		if err != nil {
			return nil, err
		}
		balances[source] = balance
	}
	return balances, nil
}

func (s *Service) Deposit(ctx context.Context, policyID snowflake.ID, source fundingdomain.Source, amount int64) (*fundingdomain.LedgerEntry, error) {
	if policyID == 0 {
		return nil, fundingdomain.ErrInvalidPolicy
	}
	if amount <= 0 {
		return nil, fundingdomain.ErrInvalidAmount
	}
	switch source {
	case fundingdomain.SourceASO, fundingdomain.SourceBuffer, fundingdomain.SourceNonBenefit:
	default:
		return nil, fundingdomain.ErrInvalidSource
	}

	now := s.clock.Now()
	entry := &fundingdomain.LedgerEntry{
		ID:         s.genID.Generate(),
		PolicyID:   policyID,
		Source:     source,
		EntryType:  fundingdomain.EntryDeposit,
		Amount:     amount,
		OccurredAt: now,
		CreatedAt:  now,
	}
	if err := s.repo.AppendEntry(ctx, s.db, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) CreateConfig(ctx context.Context, cfg fundingdomain.Config) (*fundingdomain.Config, error) {
	if cfg.PolicyID == 0 {
		return nil, fundingdomain.ErrInvalidPolicy
	}

	now := s.clock.Now()
	cfg.ID = s.genID.Generate()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	if err := s.repo.InsertConfig(ctx, s.db, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
