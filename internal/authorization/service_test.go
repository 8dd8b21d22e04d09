package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewMemoryEnforcer()
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeRoleHierarchy(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	org := snowflake.ID(1)

	staff := tenantctx.New(org, "u1", tenantctx.RoleStaff)
	accounting := tenantctx.New(org, "u2", tenantctx.RoleAccounting)
	admin := tenantctx.New(org, "u3", tenantctx.RoleAdmin)

	assert.NoError(t, svc.Authorize(ctx, staff, ObjectBillingPeriod, ActionPeriodEdit))
	assert.ErrorIs(t, svc.Authorize(ctx, staff, ObjectBillingPeriod, ActionPeriodEditUnderReview), ErrForbidden)

	assert.NoError(t, svc.Authorize(ctx, accounting, ObjectBillingPeriod, ActionPeriodEditUnderReview))
	assert.NoError(t, svc.Authorize(ctx, accounting, ObjectBillingPeriod, ActionPeriodEdit))
	assert.ErrorIs(t, svc.Authorize(ctx, accounting, ObjectBillingPeriod, ActionPeriodReopen), ErrForbidden)

	assert.NoError(t, svc.Authorize(ctx, admin, ObjectBillingPeriod, ActionPeriodReopen))
	assert.NoError(t, svc.Authorize(ctx, admin, ObjectBillingPeriod, ActionPeriodEditUnderReview))
	assert.NoError(t, svc.Authorize(ctx, tenantctx.System(org), ObjectDirectDebit, ActionDirectDebitUnlock))
}

func TestAuthorizeRejectsInvalidInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	org := snowflake.ID(1)

	assert.ErrorIs(t, svc.Authorize(ctx, tenantctx.New(org, "u", ""), ObjectLedger, ActionLedgerView), ErrInvalidRole)
	assert.ErrorIs(t, svc.Authorize(ctx, tenantctx.New(org, "u", "staff"), "", ActionLedgerView), ErrInvalidObject)
	assert.ErrorIs(t, svc.Authorize(ctx, tenantctx.New(org, "u", "staff"), ObjectLedger, ""), ErrInvalidAction)
	assert.ErrorIs(t, svc.Authorize(ctx, tenantctx.New(org, "u", "guest"), ObjectLedger, ActionLedgerView), ErrForbidden)
}
