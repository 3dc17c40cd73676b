package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	accumulatordomain "github.com/SalamEnterprise/claims-askes/internal/accumulator/domain"
	"github.com/SalamEnterprise/claims-askes/internal/adjudication/domain"
	benefitplandomain "github.com/SalamEnterprise/claims-askes/internal/benefitplan/domain"
	"github.com/SalamEnterprise/claims-askes/internal/cob"
	"github.com/SalamEnterprise/claims-askes/internal/config"
	"github.com/SalamEnterprise/claims-askes/internal/costsharing"
	fundingdomain "github.com/SalamEnterprise/claims-askes/internal/funding/domain"
	"github.com/SalamEnterprise/claims-askes/pkg/db"
)

// pendingRecord overlays an accumulator record with the deltas this claim
// has accrued so far, so later lines of the same claim see earlier lines'
// usage without touching the shared row before commit.
type pendingRecord struct {
	record *accumulatordomain.Record
	delta  accumulatordomain.Delta
}

func (p *pendingRecord) availableAmount() int64 {
	available := p.record.RemainingAmount() - p.delta.Amount
	if available < 0 {
		return 0
	}
	return available
}

func (p *pendingRecord) visitsExhausted() bool {
	if p.record.LimitVisits <= 0 {
		return false
	}
	return p.record.VisitCount+p.delta.Visits >= p.record.LimitVisits
}

func (p *pendingRecord) snapshot() costsharing.Snapshot {
	return costsharing.Snapshot{
		DeductibleLimit: p.record.DeductibleLimit,
		DeductibleMet:   p.record.DeductibleMet + p.delta.Deductible,
		OOPMax:          p.record.OOPMax,
		OOPMet:          p.record.OOPMet + p.delta.OOP,
	}
}

// attemptState is the working set of one commit cycle. Each retry builds a
// fresh state from freshly read records.
type attemptState struct {
	tx      *gorm.DB
	claim   *claim
	cfg     fundingdomain.Config
	rules   config.ReviewConfig
	records map[accumulatordomain.Key]*pendingRecord
	order   []accumulatordomain.Key

	allocator *cob.Allocator
	reviews   []string
}

func (st *attemptState) addReview(reason string) {
	for _, existing := range st.reviews {
		if existing == reason {
			return
		}
	}
	st.reviews = append(st.reviews, reason)
}

// attempt runs one full commit cycle inside a single transaction: read
// accumulator state, compute every line, persist the result, then apply all
// accumulator deltas conditionally on the versions read at the start. A
// version conflict rolls the whole transaction back.
func (s *Service) attempt(ctx context.Context, cl *claim, lines []lineContext, cfg fundingdomain.Config) (*domain.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var resp *domain.Response
	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		// One rule snapshot per attempt; a hot reload mid-claim must not
		// split the rule set across lines.
		st := &attemptState{
			tx:        tx,
			claim:     cl,
			cfg:       cfg,
			rules:     s.rules.Get(),
			records:   make(map[accumulatordomain.Key]*pendingRecord),
			allocator: cob.NewAllocator(cl.otherPayerPaid),
		}

		result := &domain.Result{
			ID:        s.genID.Generate(),
			ClaimID:   cl.claimID,
			AttemptID: cl.attemptID,
			MemberID:  cl.memberID,
			PlanID:    cl.planID,
			PolicyID:  cl.policyID,
			Status:    domain.StatusInProgress,
			CreatedAt: now,
		}

		lineResults := make([]domain.LineResult, 0, len(lines))
		for _, lc := range lines {
			lr, err := s.adjudicateLine(ctx, st, result.ID, lc)
			if err != nil {
				return err
			}

			result.TotalCharged += lr.ChargedAmount
			result.TotalAllowed += lr.AllowedAmount
			result.TotalPaid += lr.PaidAmount
			result.TotalMemberResp += lr.MemberResponsibility
			result.TotalCOBAdjustment += lr.COBAdjustment
			result.TotalFunded += lr.FundedAmount

			lineResults = append(lineResults, *lr)
		}

		if st.rules.HighCostThreshold > 0 && result.TotalPaid > st.rules.HighCostThreshold {
			st.addReview(domain.ReviewHighCost)
		}

		result.Status = domain.StatusCompleted
		if len(st.reviews) > 0 {
			result.Status = domain.StatusRequiresReview
			result.ReviewReasons = joinReasons(st.reviews)
		}
		result.CompletedAt = &now

		if err := s.repo.InsertResult(ctx, tx, result); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return errAttemptExists
			}
			return err
		}
		if err := s.repo.InsertLineResults(ctx, tx, lineResults); err != nil {
			return err
		}

		deltas, applied := s.collectDeltas(st, result.ID, now)
		if err := s.repo.InsertAppliedDeltas(ctx, tx, applied); err != nil {
			return err
		}

		// The conditional commit decides the attempt. Any concurrent writer
		// that advanced a record's version since the read above fails this
		// step and rolls everything back.
		if err := s.accumulators.Commit(ctx, tx, deltas); err != nil {
			return err
		}

		resp = &domain.Response{Result: result, Lines: lineResults}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// adjudicateLine computes one line and records its accumulator usage in the
// pending overlay. Denials are outcomes, not errors: the line settles with
// zero payment and the member carries the allowed amount.
func (s *Service) adjudicateLine(ctx context.Context, st *attemptState, resultID snowflake.ID, lc lineContext) (*domain.LineResult, error) {
	req := lc.req
	def := lc.def

	lr := &domain.LineResult{
		ID:             s.genID.Generate(),
		ResultID:       resultID,
		LineNumber:     lc.number,
		BenefitCode:    req.BenefitCode,
		ServiceDate:    req.ServiceDate,
		DiagnosisCodes: datatypes.NewJSONSlice(req.DiagnosisCodes),
		ChargedAmount:  req.ChargedAmount,
		AllowedAmount:  req.AllowedAmount,
		CreatedAt:      s.clock.Now(),
	}

	if def.InNetworkOnly && !req.InNetwork {
		return s.denyLine(ctx, lr, domain.DenialBenefitNotCovered), nil
	}

	if lc.auth.Required && !lc.auth.Approved {
		if st.rules.ReviewOnMissingAuth {
			st.addReview(domain.ReviewMissingAuthorization)
		}
		return s.denyLine(ctx, lr, domain.DenialAuthorizationMissing), nil
	}

	// An approval below the allowed amount caps the benefit; the trimmed
	// portion stays with the member.
	allowed := req.AllowedAmount
	if lc.auth.Approved && lc.auth.ApprovedAmount > 0 && lc.auth.ApprovedAmount < allowed {
		allowed = lc.auth.ApprovedAmount
	}
	authTrim := req.AllowedAmount - allowed

	layers := def.Layers()
	pendings := make([]*pendingRecord, 0, len(layers))
	for _, layer := range layers {
		pending, err := s.loadPending(ctx, st, lc, layer)
		if err != nil {
			return nil, err
		}
		pendings = append(pendings, pending)
	}
	primary := pendings[0]

	if primary.visitsExhausted() {
		return s.denyLine(ctx, lr, domain.DenialVisitLimitExhausted), nil
	}

	cs := costsharing.Calculate(allowed, *def, primary.snapshot())

	netPay, discarded := st.allocator.Apply(cs.PaidAmount)

	// Layer draws, precedence first; spillover only when the definition
	// allows it.
	remaining := netPay
	draws := make([]int64, len(pendings))
	for i, pending := range pendings {
		if remaining <= 0 {
			break
		}
		if i > 0 && !def.AllowSpillover {
			break
		}
		draw := minInt64(remaining, pending.availableAmount())
		draws[i] = draw
		remaining -= draw
	}

	var excess int64
	if remaining > 0 && st.cfg.AllowExcessDraw {
		excess = remaining
		remaining = 0
	}
	uncovered := remaining

	paid := netPay - uncovered
	member := cs.MemberResponsibility + uncovered + authTrim

	if member > 0 {
		alloc, err := s.funding.Allocate(ctx, st.tx, st.cfg, lr.ID, member)
		if err != nil {
			if errors.Is(err, fundingdomain.ErrFundingExhausted) {
				return s.denyLine(ctx, lr, domain.DenialFundingExhausted), nil
			}
			return nil, err
		}
		if alloc != nil {
			lr.FundedAmount = alloc.Amount
			lr.FundingSource = string(alloc.Source)
			member -= alloc.Amount
			paid += alloc.Amount
			if alloc.NeedsReview {
				st.addReview(domain.ReviewNegativeFundBalance)
			}
		}
	}

	if excess > 0 {
		if err := s.funding.AppendExcessDraw(ctx, st.tx, st.claim.policyID, lr.ID, excess); err != nil {
			return nil, err
		}
	}

	// All checks passed; accrue usage into the pending overlay. The excess
	// draw lands on the precedence layer, pushing used past the limit.
	primary.delta.Amount += draws[0] + excess
	primary.delta.Visits++
	primary.delta.Deductible += cs.DeductibleApplied
	primary.delta.OOP += member
	for i := 1; i < len(pendings); i++ {
		pendings[i].delta.Amount += draws[i]
	}

	lr.DeductibleAmount = cs.DeductibleApplied
	lr.CopayAmount = cs.CopayApplied
	lr.CoinsuranceAmount = cs.Coinsurance
	lr.COBAdjustment = discarded
	lr.ExcessDraw = excess
	lr.PaidAmount = paid
	lr.MemberResponsibility = member
	for i, layer := range layers {
		switch layer {
		case benefitplandomain.LayerInnerLimit:
			lr.InnerLimitDraw = draws[i]
			if layers[0] == layer {
				lr.InnerLimitDraw += excess
			}
		case benefitplandomain.LayerAnnualCap:
			lr.AnnualCapDraw = draws[i]
			if layers[0] == layer {
				lr.AnnualCapDraw += excess
			}
		}
	}

	return lr, nil
}

func (s *Service) loadPending(ctx context.Context, st *attemptState, lc lineContext, layer benefitplandomain.Layer) (*pendingRecord, error) {
	key := accumulatordomain.Key{
		MemberID:    st.claim.memberID,
		PlanID:      st.claim.planID,
		BenefitCode: lc.req.BenefitCode,
		Year:        lc.req.ServiceDate.Year(),
		Layer:       layer,
	}

	if pending, ok := st.records[key]; ok {
		return pending, nil
	}

	record, err := s.accumulators.LoadOrCreate(ctx, st.tx, key, *lc.def)
	if err != nil {
		return nil, err
	}

	pending := &pendingRecord{
		record: record,
		delta: accumulatordomain.Delta{
			RecordID:        record.ID,
			ObservedVersion: record.Version,
		},
	}
	st.records[key] = pending
	st.order = append(st.order, key)
	return pending, nil
}

func (s *Service) denyLine(ctx context.Context, lr *domain.LineResult, reason string) *domain.LineResult {
	r := reason
	lr.DenialReason = &r
	lr.PaidAmount = 0
	lr.MemberResponsibility = lr.AllowedAmount
	s.metrics.RecordLineDenied(ctx, reason)
	return lr
}

// collectDeltas turns the pending overlay into one conditional delta per
// touched record, plus the audit rows a reversal replays.
func (s *Service) collectDeltas(st *attemptState, resultID snowflake.ID, now time.Time) ([]accumulatordomain.Delta, []domain.AppliedDelta) {
	deltas := make([]accumulatordomain.Delta, 0, len(st.order))
	applied := make([]domain.AppliedDelta, 0, len(st.order))

	for _, key := range st.order {
		pending := st.records[key]
		d := pending.delta
		if d.Amount == 0 && d.Visits == 0 && d.Deductible == 0 && d.OOP == 0 {
			continue
		}
		deltas = append(deltas, d)
		applied = append(applied, domain.AppliedDelta{
			ID:         s.genID.Generate(),
			ResultID:   resultID,
			RecordID:   d.RecordID,
			Amount:     d.Amount,
			Visits:     d.Visits,
			Deductible: d.Deductible,
			OOP:        d.OOP,
			CreatedAt:  now,
		})
	}

	return deltas, applied
}

func joinReasons(reasons []string) string {
	return strings.Join(reasons, ",")
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
