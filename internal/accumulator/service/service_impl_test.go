package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	accumulatordomain "github.com/SalamEnterprise/claims-askes/internal/accumulator/domain"
	"github.com/SalamEnterprise/claims-askes/internal/accumulator/repository"
	benefitplandomain "github.com/SalamEnterprise/claims-askes/internal/benefitplan/domain"
	"github.com/SalamEnterprise/claims-askes/internal/clock"
)

func setupService(t *testing.T) (accumulatordomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&accumulatordomain.Record{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})

	return svc, db, node
}

func testKey(node *snowflake.Node) accumulatordomain.Key {
	return accumulatordomain.Key{
		MemberID:    node.Generate(),
		PlanID:      node.Generate(),
		BenefitCode: "outpatient_gp",
		Year:        2026,
		Layer:       benefitplandomain.LayerInnerLimit,
	}
}

func testDef() benefitplandomain.BenefitDefinition {
	return benefitplandomain.BenefitDefinition{
		LimitAmount:     1_000_000,
		LimitVisits:     12,
		DeductibleLimit: 100_000,
		OOPMax:          500_000,
	}
}

func TestLoadOrCreateLazilyCreates(t *testing.T) {
	svc, db, node := setupService(t)
	ctx := context.Background()
	key := testKey(node)

	record, err := svc.LoadOrCreate(ctx, db, key, testDef())
	require.NoError(t, err)
	assert.Equal(t, int64(1_000_000), record.LimitAmount)
	assert.Equal(t, 12, record.LimitVisits)
	assert.Equal(t, int64(0), record.UsedAmount)
	assert.Equal(t, int64(0), record.Version)

	again, err := svc.LoadOrCreate(ctx, db, key, testDef())
	require.NoError(t, err)
	assert.Equal(t, record.ID, again.ID)
}

func TestCommitAppliesDeltaAndBumpsVersion(t *testing.T) {
	svc, db, node := setupService(t)
	ctx := context.Background()

	record, err := svc.LoadOrCreate(ctx, db, testKey(node), testDef())
	require.NoError(t, err)

	err = svc.Commit(ctx, db, []accumulatordomain.Delta{{
		RecordID:        record.ID,
		ObservedVersion: record.Version,
		Amount:          250_000,
		Visits:          1,
		Deductible:      100_000,
		OOP:             50_000,
	}})
	require.NoError(t, err)

	updated, err := svc.Get(ctx, db, record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250_000), updated.UsedAmount)
	assert.Equal(t, 1, updated.VisitCount)
	assert.Equal(t, int64(100_000), updated.DeductibleMet)
	assert.Equal(t, int64(50_000), updated.OOPMet)
	assert.Equal(t, int64(1), updated.Version)
	assert.Equal(t, int64(750_000), updated.RemainingAmount())
	assert.Equal(t, 11, updated.RemainingVisits())
}

func TestCommitStaleVersionConflicts(t *testing.T) {
	svc, db, node := setupService(t)
	ctx := context.Background()

	record, err := svc.LoadOrCreate(ctx, db, testKey(node), testDef())
	require.NoError(t, err)

	first := accumulatordomain.Delta{
		RecordID:        record.ID,
		ObservedVersion: record.Version,
		Amount:          100_000,
	}
	require.NoError(t, svc.Commit(ctx, db, []accumulatordomain.Delta{first}))

	// Second writer observed version 0 but the row is now at version 1.
	err = svc.Commit(ctx, db, []accumulatordomain.Delta{first})
	assert.ErrorIs(t, err, accumulatordomain.ErrVersionConflict)

	updated, err := svc.Get(ctx, db, record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), updated.UsedAmount)
}

func TestCommitRejectsNegativeDeltaWithoutReversal(t *testing.T) {
	svc, db, node := setupService(t)
	ctx := context.Background()

	record, err := svc.LoadOrCreate(ctx, db, testKey(node), testDef())
	require.NoError(t, err)

	err = svc.Commit(ctx, db, []accumulatordomain.Delta{{
		RecordID:        record.ID,
		ObservedVersion: record.Version,
		Amount:          -100_000,
	}})
	assert.ErrorIs(t, err, accumulatordomain.ErrNegativeDelta)
}

func TestCommitReversalDecreasesUsage(t *testing.T) {
	svc, db, node := setupService(t)
	ctx := context.Background()

	record, err := svc.LoadOrCreate(ctx, db, testKey(node), testDef())
	require.NoError(t, err)

	applied := accumulatordomain.Delta{
		RecordID:        record.ID,
		ObservedVersion: 0,
		Amount:          300_000,
		Visits:          1,
	}
	require.NoError(t, svc.Commit(ctx, db, []accumulatordomain.Delta{applied}))

	reversal := applied.Negate()
	reversal.ObservedVersion = 1
	require.NoError(t, svc.Commit(ctx, db, []accumulatordomain.Delta{reversal}))

	updated, err := svc.Get(ctx, db, record.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated.UsedAmount)
	assert.Equal(t, 0, updated.VisitCount)
	assert.Equal(t, int64(2), updated.Version)
}

func TestListByMember(t *testing.T) {
	svc, db, node := setupService(t)
	ctx := context.Background()
	key := testKey(node)

	_, err := svc.LoadOrCreate(ctx, db, key, testDef())
	require.NoError(t, err)

	capKey := key
	capKey.Layer = benefitplandomain.LayerAnnualCap
	_, err = svc.LoadOrCreate(ctx, db, capKey, testDef())
	require.NoError(t, err)

	records, err := svc.ListByMember(ctx, key.MemberID, 2026)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = svc.ListByMember(ctx, 0, 2026)
	assert.ErrorIs(t, err, accumulatordomain.ErrInvalidMember)
}

// racingRepo reproduces losing the first-touch insert race: the row is not
// visible to the read, and the insert hits the unique index. On postgres
// that violation aborts the enclosing transaction, so the recovery must be
// a conflict handed back to the caller, never a re-read.
type racingRepo struct {
	accumulatordomain.Repository
}

func (racingRepo) FindByKey(context.Context, *gorm.DB, accumulatordomain.Key) (*accumulatordomain.Record, error) {
	return nil, nil
}

func (racingRepo) Insert(context.Context, *gorm.DB, *accumulatordomain.Record) error {
	return gorm.ErrDuplicatedKey
}

func TestLoadOrCreateLostInsertRaceIsVersionConflict(t *testing.T) {
	_, db, node := setupService(t)

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Repo:  racingRepo{Repository: repository.Provide()},
	})

	record, err := svc.LoadOrCreate(context.Background(), db, testKey(node), testDef())
	assert.Nil(t, record)
	assert.ErrorIs(t, err, accumulatordomain.ErrVersionConflict)
}
