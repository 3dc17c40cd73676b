package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	accumulatordomain "github.com/SalamEnterprise/claims-askes/internal/accumulator/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() accumulatordomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, record *accumulatordomain.Record) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO accumulator_records (
			id, member_id, plan_id, benefit_code, year, layer,
			limit_amount, limit_visits, used_amount, visit_count,
			deductible_limit, deductible_met, oop_max, oop_met,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.MemberID,
		record.PlanID,
		record.BenefitCode,
		record.Year,
		record.Layer,
		record.LimitAmount,
		record.LimitVisits,
		record.UsedAmount,
		record.VisitCount,
		record.DeductibleLimit,
		record.DeductibleMet,
		record.OOPMax,
		record.OOPMet,
		record.Version,
		record.CreatedAt,
		record.UpdatedAt,
	).Error
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, key accumulatordomain.Key) (*accumulatordomain.Record, error) {
	var record accumulatordomain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM accumulator_records
		 WHERE member_id = ? AND plan_id = ? AND benefit_code = ? AND year = ? AND layer = ?`,
		key.MemberID,
		key.PlanID,
		key.BenefitCode,
		key.Year,
		key.Layer,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*accumulatordomain.Record, error) {
	var record accumulatordomain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM accumulator_records WHERE id = ?`, id,
	).Scan(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

// ApplyDelta is the optimistic-concurrency write: the UPDATE only lands when
// the row still carries the version the caller read. No rows affected means
// another claim committed first.
func (r *repo) ApplyDelta(ctx context.Context, db *gorm.DB, delta accumulatordomain.Delta) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE accumulator_records
		 SET used_amount = used_amount + ?,
		     visit_count = visit_count + ?,
		     deductible_met = deductible_met + ?,
		     oop_met = oop_met + ?,
		     version = version + 1,
		     updated_at = ?
		 WHERE id = ? AND version = ?`,
		delta.Amount,
		delta.Visits,
		delta.Deductible,
		delta.OOP,
		time.Now().UTC(),
		delta.RecordID,
		delta.ObservedVersion,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListByMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID, year int) ([]accumulatordomain.Record, error) {
	var records []accumulatordomain.Record
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM accumulator_records
		 WHERE member_id = ? AND year = ?
		 ORDER BY benefit_code ASC, layer ASC`,
		memberID,
		year,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
