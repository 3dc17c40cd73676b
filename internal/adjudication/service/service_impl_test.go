package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accumulatordomain "github.com/SalamEnterprise/claims-askes/internal/accumulator/domain"
	accumulatorrepo "github.com/SalamEnterprise/claims-askes/internal/accumulator/repository"
	accumulatorservice "github.com/SalamEnterprise/claims-askes/internal/accumulator/service"
	"github.com/SalamEnterprise/claims-askes/internal/adjudication/domain"
	"github.com/SalamEnterprise/claims-askes/internal/adjudication/repository"
	"github.com/SalamEnterprise/claims-askes/internal/authz"
	benefitplandomain "github.com/SalamEnterprise/claims-askes/internal/benefitplan/domain"
	benefitplanrepo "github.com/SalamEnterprise/claims-askes/internal/benefitplan/repository"
	benefitplanservice "github.com/SalamEnterprise/claims-askes/internal/benefitplan/service"
	"github.com/SalamEnterprise/claims-askes/internal/clock"
	"github.com/SalamEnterprise/claims-askes/internal/config"
	fundingdomain "github.com/SalamEnterprise/claims-askes/internal/funding/domain"
	fundingrepo "github.com/SalamEnterprise/claims-askes/internal/funding/repository"
	fundingservice "github.com/SalamEnterprise/claims-askes/internal/funding/service"
)

type harness struct {
	svc     domain.Service
	db      *gorm.DB
	node    *snowflake.Node
	log     *zap.Logger
	fake    *clock.FakeClock
	plans   benefitplandomain.Service
	accums  accumulatordomain.Service
	funding fundingdomain.Service

	memberID snowflake.ID
	planID   snowflake.ID
	policyID snowflake.ID
}

func setupHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&benefitplandomain.BenefitDefinition{},
		&accumulatordomain.Record{},
		&fundingdomain.LedgerEntry{},
		&fundingdomain.Config{},
		&domain.Result{},
		&domain.LineResult{},
		&domain.AppliedDelta{},
	))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	log := zap.NewNop()
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	plans := benefitplanservice.NewService(benefitplanservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fake, Repo: benefitplanrepo.Provide(),
	})
	accums := accumulatorservice.NewService(accumulatorservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fake, Repo: accumulatorrepo.Provide(),
	})
	funding := fundingservice.NewService(fundingservice.ServiceParam{
		DB: db, Log: log, GenID: node, Clock: fake, Repo: fundingrepo.Provide(),
	})

	if cfg.ConflictRetryLimit == 0 {
		cfg.ConflictRetryLimit = 2
	}

	h := &harness{
		db:      db,
		node:    node,
		log:     log,
		fake:    fake,
		plans:   plans,
		accums:  accums,
		funding: funding,

		memberID: node.Generate(),
		planID:   node.Generate(),
		policyID: node.Generate(),
	}
	h.svc = h.adjudicator(cfg, accums)
	return h
}

// adjudicator builds the orchestrator against the harness collaborators,
// with the accumulator service swappable for contention tests.
func (h *harness) adjudicator(cfg config.Config, accums accumulatordomain.Service) domain.Service {
	return NewService(ServiceParam{
		DB:    h.db,
		Log:   h.log,
		GenID: h.node,
		Clock: h.fake,
		Cfg:   cfg,
		Rules: config.StaticReviewConfigHolder(config.ReviewConfig{
			HighCostThreshold:   cfg.HighCostThreshold,
			ReviewOnMissingAuth: cfg.ReviewOnMissingAuth,
		}),
		Repo:         repository.Provide(),
		Plans:        h.plans,
		Accumulators: accums,
		Funding:      h.funding,
		Authz:        authz.NewStaticClient(nil),
	})
}

type benefitOption func(*benefitplandomain.CreateRequest)

func (h *harness) createBenefit(t *testing.T, code string, opts ...benefitOption) *benefitplandomain.BenefitDefinition {
	t.Helper()

	req := benefitplandomain.CreateRequest{
		PlanID:         h.planID.String(),
		BenefitCode:    code,
		LimitType:      benefitplandomain.LimitPerYear,
		LimitAmount:    1_000_000,
		CoinsurancePct: decimal.Zero,
		EffectiveFrom:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, opt := range opts {
		opt(&req)
	}

	def, err := h.plans.Create(context.Background(), req)
	require.NoError(t, err)
	return def
}

func (h *harness) createFundingConfig(t *testing.T, cfg fundingdomain.Config) {
	t.Helper()
	cfg.PolicyID = h.policyID
	_, err := h.funding.CreateConfig(context.Background(), cfg)
	require.NoError(t, err)
}

func (h *harness) request(claimID, attemptID string, lines ...domain.LineRequest) domain.AdjudicateRequest {
	return domain.AdjudicateRequest{
		ClaimID:   claimID,
		AttemptID: attemptID,
		MemberID:  h.memberID.String(),
		PlanID:    h.planID.String(),
		PolicyID:  h.policyID.String(),
		Lines:     lines,
	}
}

func line(code string, allowed int64) domain.LineRequest {
	return domain.LineRequest{
		BenefitCode:   code,
		ServiceDate:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ChargedAmount: allowed,
		AllowedAmount: allowed,
		InNetwork:     true,
	}
}

func (h *harness) record(t *testing.T, code string, layer benefitplandomain.Layer) *accumulatordomain.Record {
	t.Helper()

	var record accumulatordomain.Record
	err := h.db.Where(
		"member_id = ? AND plan_id = ? AND benefit_code = ? AND year = ? AND layer = ?",
		h.memberID, h.planID, code, 2026, layer,
	).First(&record).Error
	require.NoError(t, err)
	return &record
}

func TestAdjudicateAppliesCostSharing(t *testing.T) {
	h := setupHarness(t, config.Config{})
	ctx := context.Background()

	h.createBenefit(t, "outpatient_gp", func(req *benefitplandomain.CreateRequest) {
		req.CopayAmount = 25_000
		req.CoinsurancePct = decimal.NewFromInt(20)
	})
	h.createFundingConfig(t, fundingdomain.Config{})
	_, err := h.funding.Deposit(ctx, h.policyID, fundingdomain.SourceNonBenefit, 100_000)
	require.NoError(t, err)

	resp, err := h.svc.Adjudicate(ctx, h.request("CLM-1", "A1", line("outpatient_gp", 150_000)))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, resp.Result.Status)
	require.Len(t, resp.Lines, 1)
	lr := resp.Lines[0]
	assert.Equal(t, int64(25_000), lr.CopayAmount)
	assert.Equal(t, int64(25_000), lr.CoinsuranceAmount)
	assert.Equal(t, int64(100_000), lr.InnerLimitDraw)
	assert.Equal(t, int64(50_000), lr.FundedAmount)
	assert.Equal(t, string(fundingdomain.SourceNonBenefit), lr.FundingSource)
	assert.Equal(t, int64(150_000), lr.PaidAmount)
	assert.Equal(t, int64(0), lr.MemberResponsibility)
	assert.Nil(t, lr.DenialReason)

	// Conservation at the claim level.
	assert.Equal(t, resp.Result.TotalAllowed,
		resp.Result.TotalPaid+resp.Result.TotalMemberResp+resp.Result.TotalCOBAdjustment)

	record := h.record(t, "outpatient_gp", benefitplandomain.LayerInnerLimit)
	assert.Equal(t, int64(100_000), record.UsedAmount)
	assert.Equal(t, 1, record.VisitCount)
	assert.Equal(t, int64(1), record.Version)
}

func TestAdjudicateIdempotentReplay(t *testing.T) {
	h := setupHarness(t, config.Config{})
	ctx := context.Background()

	h.createBenefit(t, "outpatient_gp")
	h.createFundingConfig(t, fundingdomain.Config{})

	first, err := h.svc.Adjudicate(ctx, h.request("CLM-2", "A1", line("outpatient_gp", 80_000)))
	require.NoError(t, err)

	second, err := h.svc.Adjudicate(ctx, h.request("CLM-2", "A1", line("outpatient_gp", 80_000)))
	require.NoError(t, err)

	assert.Equal(t, first.Result.ID, second.Result.ID)

	record := h.record(t, "outpatient_gp", benefitplandomain.LayerInnerLimit)
	assert.Equal(t, int64(80_000), record.UsedAmount)
	assert.Equal(t, 1, record.VisitCount)
}

func TestAdjudicateLayerSpillover(t *testing.T) {
	h := setupHarness(t, config.Config{})
	ctx := context.Background()

	h.createBenefit(t, "inpatient_room", func(req *benefitplandomain.CreateRequest) {
		req.LimitAmount = 100_000
		req.LayerApplicability = benefitplandomain.ApplicabilityBoth
		req.Precedence = benefitplandomain.LayerInnerLimit
		req.AllowSpillover = true
	})
	h.createFundingConfig(t, fundingdomain.Config{})

	resp, err := h.svc.Adjudicate(ctx, h.request("CLM-3", "A1", line("inpatient_room", 150_000)))
	require.NoError(t, err)

	require.Len(t, resp.Lines, 1)
	lr := resp.Lines[0]
	assert.Equal(t, int64(100_000), lr.InnerLimitDraw)
	assert.Equal(t, int64(50_000), lr.AnnualCapDraw)
	assert.Equal(t, int64(150_000), lr.PaidAmount)
	assert.Equal(t, int64(0), lr.MemberResponsibility)

	inner := h.record(t, "inpatient_room", benefitplandomain.LayerInnerLimit)
	assert.Equal(t, int64(100_000), inner.UsedAmount)
	annual := h.record(t, "inpatient_room", benefitplandomain.LayerAnnualCap)
	assert.Equal(t, int64(50_000), annual.UsedAmount)
}

func TestAdjudicateDeniesWhenFundingExhausted(t *testing.T) {
	h := setupHarness(t, config.Config{})
	ctx := context.Background()

	h.createBenefit(t, "outpatient_gp", func(req *benefitplandomain.CreateRequest) {
		req.LimitAmount = 100_000
	})
	h.createFundingConfig(t, fundingdomain.Config{DenyOnExhaustedFunding: true})

	resp, err := h.svc.Adjudicate(ctx, h.request("CLM-4", "A1", line("outpatient_gp", 150_000)))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, resp.Result.Status)
	require.Len(t, resp.Lines, 1)
	lr := resp.Lines[0]
	require.NotNil(t, lr.DenialReason)
	assert.Equal(t, domain.DenialFundingExhausted, *lr.DenialReason)
	assert.Equal(t, int64(0), lr.PaidAmount)
	assert.Equal(t, int64(150_000), lr.MemberResponsibility)

	// A denied line leaves accumulators untouched.
	record := h.record(t, "outpatient_gp", benefitplandomain.LayerInnerLimit)
	assert.Equal(t, int64(0), record.UsedAmount)
	assert.Equal(t, 0, record.VisitCount)
}

func TestAdjudicateExcessDrawAttributedToBuffer(t *testing.T) {
	h := setupHarness(t, config.Config{})
	ctx := context.Background()

	h.createBenefit(t, "outpatient_gp", func(req *benefitplandomain.CreateRequest) {
		req.LimitAmount = 100_000
	})
	h.createFundingConfig(t, fundingdomain.Config{AllowExcessDraw: true})

	resp, err := h.svc.Adjudicate(ctx, h.request("CLM-5", "A1", line("outpatient_gp", 150_000)))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, resp.Result.Status)
	lr := resp.Lines[0]
	assert.Equal(t, int64(50_000), lr.ExcessDraw)
	assert.Equal(t, int64(150_000), lr.InnerLimitDraw)
	assert.Equal(t, int64(150_000), lr.PaidAmount)
	assert.Equal(t, int64(0), lr.MemberResponsibility)

	// Used may exceed the limit; remaining floors at zero.
	record := h.record(t, "outpatient_gp", benefitplandomain.LayerInnerLimit)
	assert.Equal(t, int64(150_000), record.UsedAmount)
	assert.Equal(t, int64(0), record.RemainingAmount())

	balances, err := h.funding.Balances(ctx, h.policyID)
	require.NoError(t, err)
	assert.Equal(t, int64(-50_000), balances[fundingdomain.SourceBuffer])
}

func TestAdjudicateDenialOutcomes(t *testing.T) {
	h := setupHarness(t, config.Config{})
	ctx := context.Background()

	h.createBenefit(t, "outpatient_gp")
	h.createBenefit(t, "physio", func(req *benefitplandomain.CreateRequest) {
		req.InNetworkOnly = true
	})
	h.createFundingConfig(t, fundingdomain.Config{})

	outOfNetwork := line("physio", 40_000)
	outOfNetwork.InNetwork = false

	resp, err := h.svc.Adjudicate(ctx, h.request("CLM-6", "A1",
		line("outpatient_gp", 50_000),
		outOfNetwork,
	))
	require.NoError(t, err)

	// A denied line never fails the claim.
	require.Len(t, resp.Lines, 2)
	assert.Nil(t, resp.Lines[0].DenialReason)
	require.NotNil(t, resp.Lines[1].DenialReason)
	assert.Equal(t, domain.DenialBenefitNotCovered, *resp.Lines[1].DenialReason)
	assert.Equal(t, int64(0), resp.Lines[1].PaidAmount)
	assert.Equal(t, int64(40_000), resp.Lines[1].MemberResponsibility)
}

func TestAdjudicateMissingAuthorizationDenied(t *testing.T) {
	h := setupHarness(t, config.Config{ReviewOnMissingAuth: true})
	ctx := context.Background()

	h.createBenefit(t, "mri_scan", func(req *benefitplandomain.CreateRequest) {
		req.RequiresAuthorization = true
	})
	h.createFundingConfig(t, fundingdomain.Config{})

	// Re-point the orchestrator at a client that denies this member.
	denied := authz.NewStaticClient(map[string]authz.Decision{
		authz.StaticKey(h.memberID, "mri_scan"): {Required: true, Approved: false},
	})
	h.svc.(*Service).authz = denied

	resp, err := h.svc.Adjudicate(ctx, h.request("CLM-7", "A1", line("mri_scan", 500_000)))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusRequiresReview, resp.Result.Status)
	assert.Contains(t, resp.Result.ReviewReasons, domain.ReviewMissingAuthorization)
	require.NotNil(t, resp.Lines[0].DenialReason)
	assert.Equal(t, domain.DenialAuthorizationMissing, *resp.Lines[0].DenialReason)
}

func TestAdjudicateVisitLimitExhausted(t *testing.T) {
	h := setupHarness(t, config.Config{})
	ctx := context.Background()

	h.createBenefit(t, "outpatient_gp", func(req *benefitplandomain.CreateRequest) {
		req.LimitVisits = 1
	})
	h.createFundingConfig(t, fundingdomain.Config{})

	_, err := h.svc.Adjudicate(ctx, h.request("CLM-8", "A1", line("outpatient_gp", 30_000)))
	require.NoError(t, err)

	resp, err := h.svc.Adjudicate(ctx, h.request("CLM-9", "A1", line("outpatient_gp", 30_000)))
	require.NoError(t, err)

	require.NotNil(t, resp.Lines[0].DenialReason)
	assert.Equal(t, domain.DenialVisitLimitExhausted, *resp.Lines[0].DenialReason)

	record := h.record(t, "outpatient_gp", benefitplandomain.LayerInnerLimit)
	assert.Equal(t, 1, record.VisitCount)
}

func TestAdjudicateIntraClaimOverlay(t *testing.T) {
	h := setupHarness(t, config.Config{})
	ctx := context.Background()

	h.createBenefit(t, "outpatient_gp", func(req *benefitplandomain.CreateRequest) {
		req.LimitAmount = 100_000
	})
	h.createFundingConfig(t, fundingdomain.Config{})

	// Two lines of the same benefit inside one claim must see each other's
	// usage before anything is committed.
	resp, err := h.svc.Adjudicate(ctx, h.request("CLM-10", "A1",
		line("outpatient_gp", 60_000),
		line("outpatient_gp", 60_000),
	))
	require.NoError(t, err)

	assert.Equal(t, int64(60_000), resp.Lines[0].InnerLimitDraw)
	assert.Equal(t, int64(40_000), resp.Lines[1].InnerLimitDraw)
	assert.Equal(t, int64(20_000), resp.Lines[1].FundedAmount)

	record := h.record(t, "outpatient_gp", benefitplandomain.LayerInnerLimit)
	assert.Equal(t, int64(100_000), record.UsedAmount)
	assert.Equal(t, 2, record.VisitCount)
	// Both lines settle under a single conditional commit.
	assert.Equal(t, int64(1), record.Version)
}

func TestAdjudicateNeverOverdrawsAcrossClaims(t *testing.T) {
	h := setupHarness(t, config.Config{})
	ctx := context.Background()

	h.createBenefit(t, "outpatient_gp", func(req *benefitplandomain.CreateRequest) {
		req.LimitAmount = 100_000
	})
	h.createFundingConfig(t, fundingdomain.Config{})

	_, err := h.svc.Adjudicate(ctx, h.request("CLM-11", "A1", line("outpatient_gp", 50_001)))
	require.NoError(t, err)

	resp, err := h.svc.Adjudicate(ctx, h.request("CLM-12", "A1", line("outpatient_gp", 50_001)))
	require.NoError(t, err)

	// The second claim caps at what the limit has left.
	assert.Equal(t, int64(49_999), resp.Lines[0].InnerLimitDraw)
	assert.Equal(t, int64(2), resp.Lines[0].FundedAmount)

	record := h.record(t, "outpatient_gp", benefitplandomain.LayerInnerLimit)
	assert.Equal(t, int64(100_000), record.UsedAmount)
}

func TestAdjudicateCOBReducesPayable(t *testing.T) {
	h := setupHarness(t, config.Config{})
	ctx := context.Background()

	h.createBenefit(t, "outpatient_gp")
	h.createFundingConfig(t, fundingdomain.Config{})

	req := h.request("CLM-13", "A1", line("outpatient_gp", 100_000))
	req.OtherPayerPaid = 30_000

	resp, err := h.svc.Adjudicate(ctx, req)
	require.NoError(t, err)

	lr := resp.Lines[0]
	assert.Equal(t, int64(30_000), lr.COBAdjustment)
	assert.Equal(t, int64(70_000), lr.PaidAmount)
	assert.Equal(t, int64(70_000), lr.InnerLimitDraw)
	assert.Equal(t, lr.AllowedAmount, lr.PaidAmount+lr.MemberResponsibility+lr.COBAdjustment)

	// Accumulators record net exposure only.
	record := h.record(t, "outpatient_gp", benefitplandomain.LayerInnerLimit)
	assert.Equal(t, int64(70_000), record.UsedAmount)
}

func TestAdjudicateHighCostRoutesToReview(t *testing.T) {
	h := setupHarness(t, config.Config{HighCostThreshold: 100_000})
	ctx := context.Background()

	h.createBenefit(t, "outpatient_gp")
	h.createFundingConfig(t, fundingdomain.Config{})

	resp, err := h.svc.Adjudicate(ctx, h.request("CLM-14", "A1", line("outpatient_gp", 500_000)))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusRequiresReview, resp.Result.Status)
	assert.Contains(t, resp.Result.ReviewReasons, domain.ReviewHighCost)
}

func TestAdjudicateMissingBenefitIsConfigurationError(t *testing.T) {
	h := setupHarness(t, config.Config{})
	ctx := context.Background()

	h.createFundingConfig(t, fundingdomain.Config{})

	_, err := h.svc.Adjudicate(ctx, h.request("CLM-15", "A1", line("acupuncture", 50_000)))
	assert.ErrorIs(t, err, benefitplandomain.ErrBenefitNotFound)

	// A failed attempt leaves nothing behind; a retry under a fresh attempt
	// id starts clean.
	_, err = h.svc.Get(ctx, "CLM-15", "A1")
	assert.ErrorIs(t, err, domain.ErrClaimNotFound)
}

func TestAdjudicateValidation(t *testing.T) {
	h := setupHarness(t, config.Config{})
	ctx := context.Background()

	_, err := h.svc.Adjudicate(ctx, domain.AdjudicateRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidClaim)

	req := h.request("CLM-16", "A1")
	_, err = h.svc.Adjudicate(ctx, req)
	assert.ErrorIs(t, err, domain.ErrInvalidClaim)

	bad := line("outpatient_gp", 10_000)
	bad.AllowedAmount = 20_000
	bad.ChargedAmount = 10_000
	_, err = h.svc.Adjudicate(ctx, h.request("CLM-17", "A1", bad))
	assert.ErrorIs(t, err, domain.ErrInvalidClaim)
}

func TestReverseRestoresState(t *testing.T) {
	h := setupHarness(t, config.Config{})
	ctx := context.Background()

	h.createBenefit(t, "outpatient_gp", func(req *benefitplandomain.CreateRequest) {
		req.CopayAmount = 25_000
	})
	h.createFundingConfig(t, fundingdomain.Config{})

	_, err := h.svc.Adjudicate(ctx, h.request("CLM-18", "A1", line("outpatient_gp", 100_000)))
	require.NoError(t, err)

	before := h.record(t, "outpatient_gp", benefitplandomain.LayerInnerLimit)
	require.Equal(t, int64(75_000), before.UsedAmount)

	reversed, err := h.svc.Reverse(ctx, "CLM-18", "A1")
	require.NoError(t, err)
	assert.NotNil(t, reversed.Result.ReversedAt)

	after := h.record(t, "outpatient_gp", benefitplandomain.LayerInnerLimit)
	assert.Equal(t, int64(0), after.UsedAmount)
	assert.Equal(t, 0, after.VisitCount)

	balances, err := h.funding.Balances(ctx, h.policyID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balances[fundingdomain.SourceNonBenefit])

	_, err = h.svc.Reverse(ctx, "CLM-18", "A1")
	assert.ErrorIs(t, err, domain.ErrAlreadyReversed)

	_, err = h.svc.Reverse(ctx, "CLM-18", "missing")
	assert.ErrorIs(t, err, domain.ErrClaimNotFound)
}

func TestGetReturnsStoredResult(t *testing.T) {
	h := setupHarness(t, config.Config{})
	ctx := context.Background()

	h.createBenefit(t, "outpatient_gp")
	h.createFundingConfig(t, fundingdomain.Config{})

	created, err := h.svc.Adjudicate(ctx, h.request("CLM-19", "A1", line("outpatient_gp", 10_000)))
	require.NoError(t, err)

	got, err := h.svc.Get(ctx, "CLM-19", "A1")
	require.NoError(t, err)
	assert.Equal(t, created.Result.ID, got.Result.ID)
	assert.Len(t, got.Lines, 1)
}

func TestAdjudicatePersistsDiagnosisCodes(t *testing.T) {
	h := setupHarness(t, config.Config{})
	ctx := context.Background()

	h.createBenefit(t, "outpatient_gp")
	h.createFundingConfig(t, fundingdomain.Config{})

	req := h.request("CLM-20", "A1", line("outpatient_gp", 40_000))
	req.Lines[0].DiagnosisCodes = []string{"J06.9", "R50.9"}

	resp, err := h.svc.Adjudicate(ctx, req)
	require.NoError(t, err)
	require.Len(t, resp.Lines, 1)
	assert.Equal(t, []string{"J06.9", "R50.9"}, []string(resp.Lines[0].DiagnosisCodes))

	// The codes must survive the round trip through storage, not only the
	// in-memory response.
	stored, err := h.svc.Get(ctx, "CLM-20", "A1")
	require.NoError(t, err)
	require.Len(t, stored.Lines, 1)
	assert.Equal(t, []string{"J06.9", "R50.9"}, []string(stored.Lines[0].DiagnosisCodes))
}

// contendedRepo lands a competing version bump between the orchestrator's
// read and its conditional commit, once per configured bump, simulating a
// concurrent claim touching the same accumulator row.
type contendedRepo struct {
	accumulatordomain.Repository
	bumps int // -1 bumps forever
	calls int
}

func (r *contendedRepo) ApplyDelta(ctx context.Context, conn *gorm.DB, delta accumulatordomain.Delta) (bool, error) {
	r.calls++
	if r.bumps != 0 {
		if r.bumps > 0 {
			r.bumps--
		}
		err := conn.Exec(
			"UPDATE accumulator_records SET version = version + 1 WHERE id = ?",
			delta.RecordID,
		).Error
		if err != nil {
			return false, err
		}
	}
	return r.Repository.ApplyDelta(ctx, conn, delta)
}

func TestAdjudicateRetriesOnAccumulatorConflict(t *testing.T) {
	h := setupHarness(t, config.Config{ConflictRetryLimit: 2})
	ctx := context.Background()

	h.createBenefit(t, "outpatient_gp")
	h.createFundingConfig(t, fundingdomain.Config{})

	contended := &contendedRepo{Repository: accumulatorrepo.Provide(), bumps: 1}
	svc := h.adjudicator(config.Config{ConflictRetryLimit: 2}, accumulatorservice.NewService(accumulatorservice.ServiceParam{
		DB: h.db, Log: h.log, GenID: h.node, Clock: h.fake, Repo: contended,
	}))

	resp, err := svc.Adjudicate(ctx, h.request("CLM-21", "A1", line("outpatient_gp", 40_000)))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCompleted, resp.Result.Status)
	assert.Equal(t, int64(40_000), resp.Result.TotalPaid)
	assert.GreaterOrEqual(t, contended.calls, 2, "first commit cycle must lose and retry")

	// The losing cycle rolled back wholesale; only the winning one counts.
	record := h.record(t, "outpatient_gp", benefitplandomain.LayerInnerLimit)
	assert.Equal(t, int64(40_000), record.UsedAmount)
	assert.Equal(t, 1, record.VisitCount)
	assert.Equal(t, int64(1), record.Version)
}

func TestAdjudicateExhaustedConflictRetries(t *testing.T) {
	h := setupHarness(t, config.Config{})
	ctx := context.Background()

	h.createBenefit(t, "outpatient_gp")
	h.createFundingConfig(t, fundingdomain.Config{})

	contended := &contendedRepo{Repository: accumulatorrepo.Provide(), bumps: -1}
	svc := h.adjudicator(config.Config{ConflictRetryLimit: 1}, accumulatorservice.NewService(accumulatorservice.ServiceParam{
		DB: h.db, Log: h.log, GenID: h.node, Clock: h.fake, Repo: contended,
	}))

	_, err := svc.Adjudicate(ctx, h.request("CLM-22", "A1", line("outpatient_gp", 40_000)))
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	// Nothing committed: no stored result, no accumulator row.
	_, err = svc.Get(ctx, "CLM-22", "A1")
	assert.ErrorIs(t, err, domain.ErrClaimNotFound)

	var count int64
	require.NoError(t, h.db.Table("accumulator_records").Count(&count).Error)
	assert.Equal(t, int64(0), count)
}
