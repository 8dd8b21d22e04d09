package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/jukubill/internal/authorization"
	"github.com/smallbiznis/jukubill/internal/clock"
	"github.com/smallbiznis/jukubill/internal/config"
	deadlinedomain "github.com/smallbiznis/jukubill/internal/deadline/domain"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:deadline_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&deadlinedomain.MonthlyBillingDeadline{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, now time.Time) (*Service, *clock.FakeClock, snowflake.ID) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	enforcer, err := authorization.NewMemoryEnforcer()
	require.NoError(t, err)
	fake := clock.NewFakeClock(now)
	svc := NewService(Params{
		DB:     setupTestDB(t),
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  fake,
		Config: config.Config{Timezone: "UTC"},
		Rules:  config.NewStaticBillingRules(config.DefaultBillingRules()),
		Authz:  authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer}),
	}).(*Service)
	return svc, fake, node.Generate()
}

func TestGet_DefaultsWithoutPersisting(t *testing.T) {
	svc, _, orgID := newTestService(t, time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC))
	tc := tenantctx.New(orgID, "u1", tenantctx.RoleStaff)

	view, err := svc.Get(context.Background(), tc, 2025, 4)
	require.NoError(t, err)
	assert.Equal(t, 25, view.ClosingDay)
	assert.True(t, view.AutoClose)
	assert.Equal(t, deadlinedomain.StateOpen, view.State)

	var count int64
	svc.db.Model(&deadlinedomain.MonthlyBillingDeadline{}).Count(&count)
	assert.Equal(t, int64(0), count)

	_, err = svc.Get(context.Background(), tc, 2025, 13)
	assert.ErrorIs(t, err, deadlinedomain.ErrInvalidPeriod)
}

func TestReviewLifecycle(t *testing.T) {
	svc, _, orgID := newTestService(t, time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	accounting := tenantctx.New(orgID, "acc", tenantctx.RoleAccounting)
	staff := tenantctx.New(orgID, "st", tenantctx.RoleStaff)

	_, err := svc.StartReview(ctx, staff, 2025, 4)
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	view, err := svc.StartReview(ctx, accounting, 2025, 4)
	require.NoError(t, err)
	assert.Equal(t, deadlinedomain.StateUnderReview, view.State)
	assert.Equal(t, "acc", view.ReviewStartedBy)

	assert.ErrorIs(t, svc.CanEdit(ctx, staff, 2025, 4), deadlinedomain.ErrPeriodUnderReview)
	assert.NoError(t, svc.CanEdit(ctx, accounting, 2025, 4))
	assert.NoError(t, svc.CanEdit(ctx, tenantctx.New(orgID, "adm", tenantctx.RoleAdmin), 2025, 4))

	view, err = svc.CancelReview(ctx, accounting, 2025, 4)
	require.NoError(t, err)
	assert.Equal(t, deadlinedomain.StateOpen, view.State)
	assert.NoError(t, svc.CanEdit(ctx, staff, 2025, 4))

	_, err = svc.CancelReview(ctx, accounting, 2025, 4)
	assert.ErrorIs(t, err, deadlinedomain.ErrPeriodNotUnderReview)
}

func TestCloseAndReopen(t *testing.T) {
	svc, _, orgID := newTestService(t, time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()
	accounting := tenantctx.New(orgID, "acc", tenantctx.RoleAccounting)
	admin := tenantctx.New(orgID, "adm", tenantctx.RoleAdmin)

	_, err := svc.StartReview(ctx, accounting, 2025, 4)
	require.NoError(t, err)

	view, err := svc.CloseManually(ctx, accounting, 2025, 4)
	require.NoError(t, err)
	assert.Equal(t, deadlinedomain.StateClosed, view.State)
	assert.False(t, view.IsUnderReview)

	assert.ErrorIs(t, svc.CanEdit(ctx, admin, 2025, 4), deadlinedomain.ErrPeriodClosed)

	_, err = svc.StartReview(ctx, accounting, 2025, 4)
	assert.ErrorIs(t, err, deadlinedomain.ErrPeriodClosed)

	_, err = svc.Reopen(ctx, admin, 2025, 4, "  ")
	assert.ErrorIs(t, err, deadlinedomain.ErrReopenReasonRequired)

	_, err = svc.Reopen(ctx, accounting, 2025, 4, "late textbook order")
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	view, err = svc.Reopen(ctx, admin, 2025, 4, "late textbook order")
	require.NoError(t, err)
	assert.Equal(t, deadlinedomain.StateOpen, view.State)
	assert.True(t, view.IsManuallyClosed)
	assert.True(t, view.IsReopened)
	assert.Equal(t, "late textbook order", view.ReopenReason)
	assert.NoError(t, svc.CanEdit(ctx, accounting, 2025, 4))

	_, err = svc.Reopen(ctx, admin, 2025, 4, "again")
	assert.ErrorIs(t, err, deadlinedomain.ErrPeriodNotClosed)

	_, err = svc.StartReview(ctx, accounting, 2025, 4)
	assert.ErrorIs(t, err, deadlinedomain.ErrPeriodReopened)
	view, err = svc.Get(ctx, accounting, 2025, 4)
	require.NoError(t, err)
	assert.True(t, view.IsReopened)
	assert.False(t, view.IsUnderReview)
	assert.Equal(t, deadlinedomain.StateOpen, view.State)

	view, err = svc.CloseManually(ctx, accounting, 2025, 4)
	require.NoError(t, err)
	assert.False(t, view.IsReopened)
	assert.Equal(t, deadlinedomain.StateClosed, view.State)
}

func TestAutoCloseFollowsClock(t *testing.T) {
	svc, fake, orgID := newTestService(t, time.Date(2025, 4, 25, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()
	staff := tenantctx.New(orgID, "st", tenantctx.RoleStaff)

	require.NoError(t, svc.CanEdit(ctx, staff, 2025, 4))

	fake.Set(time.Date(2025, 4, 26, 0, 0, 1, 0, time.UTC))
	assert.ErrorIs(t, svc.CanEdit(ctx, staff, 2025, 4), deadlinedomain.ErrPeriodClosed)
	assert.NoError(t, svc.CanEdit(ctx, staff, 2025, 5))
}
