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

	benefitplandomain "github.com/SalamEnterprise/claims-askes/internal/benefitplan/domain"
	"github.com/SalamEnterprise/claims-askes/internal/benefitplan/repository"
	"github.com/SalamEnterprise/claims-askes/internal/clock"
)

func setupService(t *testing.T) (benefitplandomain.Service, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&benefitplandomain.BenefitDefinition{}))

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})

	return svc, node
}

func createRequest(planID snowflake.ID, code string, from time.Time, to *time.Time) benefitplandomain.CreateRequest {
	return benefitplandomain.CreateRequest{
		PlanID:         planID.String(),
		BenefitCode:    code,
		LimitType:      benefitplandomain.LimitPerYear,
		LimitAmount:    1_000_000,
		CoinsurancePct: decimal.NewFromInt(20),
		CopayAmount:    25_000,
		EffectiveFrom:  from,
		EffectiveTo:    to,
	}
}

func TestCreateAndResolveFromStorage(t *testing.T) {
	svc, node := setupService(t)
	ctx := context.Background()
	planID := node.Generate()

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	created, err := svc.Create(ctx, createRequest(planID, "outpatient_gp", from, nil))
	require.NoError(t, err)

	// No snapshot loaded yet; resolution falls through to storage.
	def, err := svc.Resolve(ctx, planID, "outpatient_gp", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, created.ID, def.ID)

	_, err = svc.Resolve(ctx, planID, "dental", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, benefitplandomain.ErrBenefitNotFound)
}

func TestResolveHonorsEffectiveWindow(t *testing.T) {
	svc, node := setupService(t)
	ctx := context.Background()
	planID := node.Generate()

	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Create(ctx, createRequest(planID, "outpatient_gp", from, &to))
	require.NoError(t, err)

	// The window is [from, to): the end date itself is outside.
	_, err = svc.Resolve(ctx, planID, "outpatient_gp", to)
	assert.ErrorIs(t, err, benefitplandomain.ErrBenefitNotFound)

	def, err := svc.Resolve(ctx, planID, "outpatient_gp", to.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.NotNil(t, def)
}

func TestResolveAmbiguousDefinitions(t *testing.T) {
	svc, node := setupService(t)
	ctx := context.Background()
	planID := node.Generate()

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Create(ctx, createRequest(planID, "outpatient_gp", from, nil))
	require.NoError(t, err)
	_, err = svc.Create(ctx, createRequest(planID, "outpatient_gp", from.AddDate(0, 3, 0), nil))
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, planID, "outpatient_gp", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, benefitplandomain.ErrAmbiguousBenefit)
}

func TestReloadSnapshotServesResolution(t *testing.T) {
	svc, node := setupService(t)
	ctx := context.Background()
	planID := node.Generate()

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	created, err := svc.Create(ctx, createRequest(planID, "maternity", from, nil))
	require.NoError(t, err)

	require.NoError(t, svc.ReloadSnapshot(ctx))

	def, err := svc.Resolve(ctx, planID, "maternity", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, created.ID, def.ID)
}

func TestCreateValidation(t *testing.T) {
	svc, node := setupService(t)
	ctx := context.Background()
	planID := node.Generate()
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	req := createRequest(planID, "outpatient_gp", from, nil)
	req.PlanID = "not-a-number"
	_, err := svc.Create(ctx, req)
	assert.ErrorIs(t, err, benefitplandomain.ErrInvalidPlan)

	req = createRequest(planID, "  ", from, nil)
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, benefitplandomain.ErrInvalidBenefitCode)

	req = createRequest(planID, "outpatient_gp", from, nil)
	req.LimitType = "per_decade"
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, benefitplandomain.ErrInvalidLimitType)

	req = createRequest(planID, "outpatient_gp", from, nil)
	req.CoinsurancePct = decimal.NewFromInt(101)
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, benefitplandomain.ErrInvalidCoinsurance)

	req = createRequest(planID, "outpatient_gp", from, &from)
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, benefitplandomain.ErrInvalidEffectiveRange)
}
