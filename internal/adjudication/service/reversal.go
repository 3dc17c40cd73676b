package service

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accumulatordomain "github.com/SalamEnterprise/claims-askes/internal/accumulator/domain"
	"github.com/SalamEnterprise/claims-askes/internal/adjudication/domain"
)

// Reverse undoes a committed attempt: every stored accumulator delta is
// replayed negated under the same conditional-version commit, and every
// funded or excess-drawn line gets compensating ledger entries. Visit counts
// come back with the amounts. The result row keeps its totals and gains a
// reversed_at stamp; history is never rewritten.
func (s *Service) Reverse(ctx context.Context, claimID, attemptID string) (*domain.Response, error) {
	if claimID == "" || attemptID == "" {
		return nil, domain.ErrInvalidClaim
	}

	var resp *domain.Response
	operation := func() error {
		err := s.reverseOnce(ctx, claimID, attemptID, &resp)
		if errors.Is(err, accumulatordomain.ErrVersionConflict) {
			s.metrics.RecordAccumulatorConflict(ctx)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.retryLimit)),
		ctx,
	)
	if err := backoff.Retry(operation, bo); err != nil {
		if errors.Is(err, accumulatordomain.ErrVersionConflict) {
			return nil, domain.ErrConcurrencyConflict
		}
		return nil, err
	}

	s.metrics.RecordReversal(ctx)
	s.log.Info("claim reversed",
		zap.String("claim_id", claimID),
		zap.String("attempt_id", attemptID),
	)

	return resp, nil
}

func (s *Service) reverseOnce(ctx context.Context, claimID, attemptID string, out **domain.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		result, err := s.repo.FindResult(ctx, tx, claimID, attemptID)
		if err != nil {
			return err
		}
		if result == nil {
			return domain.ErrClaimNotFound
		}
		if result.ReversedAt != nil {
			return domain.ErrAlreadyReversed
		}
		if result.Status != domain.StatusCompleted && result.Status != domain.StatusRequiresReview {
			return domain.ErrNotReversible
		}

		applied, err := s.repo.ListAppliedDeltas(ctx, tx, result.ID)
		if err != nil {
			return err
		}

		// Each negation is conditioned on the version read here, not the one
		// from the original attempt; intervening claims are fine, a writer
		// racing this transaction is not.
		deltas := make([]accumulatordomain.Delta, 0, len(applied))
		for _, a := range applied {
			record, err := s.accumulators.Get(ctx, tx, a.RecordID)
			if err != nil {
				return err
			}
			deltas = append(deltas, accumulatordomain.Delta{
				RecordID:        a.RecordID,
				ObservedVersion: record.Version,
				Amount:          -a.Amount,
				Visits:          -a.Visits,
				Deductible:      -a.Deductible,
				OOP:             -a.OOP,
				Reversal:        true,
			})
		}
		if err := s.accumulators.Commit(ctx, tx, deltas); err != nil {
			return err
		}

		lines, err := s.repo.ListLineResults(ctx, tx, result.ID)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if line.FundedAmount == 0 && line.ExcessDraw == 0 {
				continue
			}
			if err := s.funding.Reverse(ctx, tx, line.ID); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		result.ReversedAt = &now
		if err := s.repo.MarkReversed(ctx, tx, result); err != nil {
			return err
		}

		*out = &domain.Response{Result: result, Lines: lines}
		return nil
	})
}
