package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accumulatordomain "github.com/SalamEnterprise/claims-askes/internal/accumulator/domain"
	"github.com/SalamEnterprise/claims-askes/internal/adjudication/domain"
	"github.com/SalamEnterprise/claims-askes/internal/authz"
	benefitplandomain "github.com/SalamEnterprise/claims-askes/internal/benefitplan/domain"
	"github.com/SalamEnterprise/claims-askes/internal/clock"
	"github.com/SalamEnterprise/claims-askes/internal/config"
	fundingdomain "github.com/SalamEnterprise/claims-askes/internal/funding/domain"
	"github.com/SalamEnterprise/claims-askes/internal/lock"
	"github.com/SalamEnterprise/claims-askes/internal/observability/metrics"
)

// memberLockTTL bounds the advisory lock held across one attempt. The lock
// only dampens retry storms for hot members; the version check on commit is
// what guarantees correctness.
const memberLockTTL = 10 * time.Second

// errAttemptExists signals that a concurrent worker committed the same
// (claim, attempt) pair first; the caller re-reads the stored result.
var errAttemptExists = errors.New("attempt_already_committed")

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock

	repo         domain.Repository
	plans        benefitplandomain.Service
	accumulators accumulatordomain.Service
	funding      fundingdomain.Service
	authz        authz.Client

	locker  *lock.Locker
	metrics *metrics.Metrics

	retryLimit int
	rules      *config.ReviewConfigHolder
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Cfg   config.Config
	Rules *config.ReviewConfigHolder

	Repo         domain.Repository
	Plans        benefitplandomain.Service
	Accumulators accumulatordomain.Service
	Funding      fundingdomain.Service
	Authz        authz.Client

	Locker  *lock.Locker      `optional:"true"`
	Metrics *metrics.Metrics  `optional:"true"`
}

func NewService(p ServiceParam) domain.Service {
	retryLimit := p.Cfg.ConflictRetryLimit
	if retryLimit <= 0 {
		retryLimit = 3
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("adjudication.service"),

		genID: p.GenID,
		clock: p.Clock,

		repo:         p.Repo,
		plans:        p.Plans,
		accumulators: p.Accumulators,
		funding:      p.Funding,
		authz:        p.Authz,

		locker:  p.Locker,
		metrics: p.Metrics,

		retryLimit: retryLimit,
		rules:      p.Rules,
	}
}

// claim is the parsed, validated form of an AdjudicateRequest.
type claim struct {
	claimID   string
	attemptID string

	memberID snowflake.ID
	planID   snowflake.ID
	policyID snowflake.ID

	otherPayerPaid int64
	lines          []domain.LineRequest
}

// lineContext carries everything resolved for a line before the commit
// cycle starts, so slow collaborator calls never sit inside the retry loop.
type lineContext struct {
	number int
	req    domain.LineRequest
	def    *benefitplandomain.BenefitDefinition
	auth   authz.Decision
}

func (s *Service) Adjudicate(ctx context.Context, req domain.AdjudicateRequest) (*domain.Response, error) {
	cl, err := parseClaim(req)
	if err != nil {
		return nil, err
	}

	// Idempotent replay: a stored attempt wins before any work happens.
	if existing, err := s.repo.FindResult(ctx, s.db, cl.claimID, cl.attemptID); err != nil {
		return nil, err
	} else if existing != nil {
		return s.response(ctx, existing)
	}

	if s.locker != nil {
		key := fmt.Sprintf("adjudicate:member:%s", cl.memberID)
		if token, ok, lockErr := s.locker.TryLock(ctx, key, memberLockTTL); lockErr == nil && ok {
			defer func() {
				_ = s.locker.Release(context.WithoutCancel(ctx), key, token)
			}()
		}
	}

	lines, err := s.resolveLines(ctx, cl)
	if err != nil {
		return nil, err
	}

	fundingCfg, err := s.funding.GetConfig(ctx, cl.policyID)
	if err != nil {
		return nil, err
	}

	started := time.Now()

	var resp *domain.Response
	operation := func() error {
		result, attemptErr := s.attempt(ctx, cl, lines, *fundingCfg)
		if attemptErr != nil {
			if errors.Is(attemptErr, accumulatordomain.ErrVersionConflict) {
				s.metrics.RecordAccumulatorConflict(ctx)
				return attemptErr
			}
			return backoff.Permanent(attemptErr)
		}
		resp = result
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.retryLimit)),
		ctx,
	)
	if err := backoff.Retry(operation, bo); err != nil {
		if errors.Is(err, errAttemptExists) {
			// Lost the commit race against an identical attempt; the stored
			// result is the answer.
			stored, findErr := s.repo.FindResult(ctx, s.db, cl.claimID, cl.attemptID)
			if findErr != nil {
				return nil, findErr
			}
			if stored != nil {
				return s.response(ctx, stored)
			}
		}
		if errors.Is(err, accumulatordomain.ErrVersionConflict) {
			s.log.Warn("adjudication retries exhausted",
				zap.String("claim_id", cl.claimID),
				zap.String("attempt_id", cl.attemptID),
				zap.Int("retry_limit", s.retryLimit),
			)
			return nil, domain.ErrConcurrencyConflict
		}
		return nil, err
	}

	s.metrics.RecordClaimAdjudicated(ctx, string(resp.Result.Status), time.Since(started))

	s.log.Info("claim adjudicated",
		zap.String("claim_id", cl.claimID),
		zap.String("attempt_id", cl.attemptID),
		zap.String("status", string(resp.Result.Status)),
		zap.Int64("total_paid", resp.Result.TotalPaid),
		zap.Int64("total_member_responsibility", resp.Result.TotalMemberResp),
	)

	return resp, nil
}

func (s *Service) Get(ctx context.Context, claimID, attemptID string) (*domain.Response, error) {
	if claimID == "" || attemptID == "" {
		return nil, domain.ErrInvalidClaim
	}

	result, err := s.repo.FindResult(ctx, s.db, claimID, attemptID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, domain.ErrClaimNotFound
	}
	return s.response(ctx, result)
}

// resolveLines resolves benefit definitions and authorization decisions up
// front. A missing or ambiguous definition aborts the whole claim; an
// unreachable authorization service surfaces as a dependency error.
func (s *Service) resolveLines(ctx context.Context, cl *claim) ([]lineContext, error) {
	lines := make([]lineContext, 0, len(cl.lines))
	for i, ln := range cl.lines {
		def, err := s.plans.Resolve(ctx, cl.planID, ln.BenefitCode, ln.ServiceDate)
		if err != nil {
			return nil, err
		}

		decision := authz.NotRequired
		if def.RequiresAuthorization {
			decision, err = s.authz.CheckAuthorization(ctx, cl.memberID, ln.BenefitCode, ln.ServiceDate)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", domain.ErrDependencyUnavailable, err)
			}
			decision.Required = true
		}

		lines = append(lines, lineContext{
			number: i + 1,
			req:    ln,
			def:    def,
			auth:   decision,
		})
	}
	return lines, nil
}

func (s *Service) response(ctx context.Context, result *domain.Result) (*domain.Response, error) {
	lines, err := s.repo.ListLineResults(ctx, s.db, result.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Response{Result: result, Lines: lines}, nil
}

func parseClaim(req domain.AdjudicateRequest) (*claim, error) {
	if req.ClaimID == "" || req.AttemptID == "" {
		return nil, domain.ErrInvalidClaim
	}
	if len(req.Lines) == 0 {
		return nil, domain.ErrInvalidClaim
	}
	if req.OtherPayerPaid < 0 {
		return nil, domain.ErrInvalidClaim
	}

	memberID, err := domain.ParseID(req.MemberID)
	if err != nil {
		return nil, domain.ErrInvalidClaim
	}
	planID, err := domain.ParseID(req.PlanID)
	if err != nil {
		return nil, domain.ErrInvalidClaim
	}
	policyID, err := domain.ParseID(req.PolicyID)
	if err != nil {
		return nil, domain.ErrInvalidClaim
	}

	for _, ln := range req.Lines {
		if ln.BenefitCode == "" || ln.ServiceDate.IsZero() {
			return nil, domain.ErrInvalidClaim
		}
		if ln.ChargedAmount < 0 || ln.AllowedAmount < 0 {
			return nil, domain.ErrInvalidClaim
		}
		if ln.AllowedAmount > ln.ChargedAmount {
			return nil, domain.ErrInvalidClaim
		}
	}

	return &claim{
		claimID:        req.ClaimID,
		attemptID:      req.AttemptID,
		memberID:       memberID,
		planID:         planID,
		policyID:       policyID,
		otherPayerPaid: req.OtherPayerPaid,
		lines:          req.Lines,
	}, nil
}
