package domain

import (
	"context"

	"github.com/smallbiznis/jukubill/pkg/tenantctx"
)

type Service interface {
	// Get returns the stored deadline or the configured defaults without persisting them.
	Get(ctx context.Context, tc tenantctx.TenantContext, year, month int) (View, error)
	Ensure(ctx context.Context, tc tenantctx.TenantContext, year, month int) (View, error)
	StartReview(ctx context.Context, tc tenantctx.TenantContext, year, month int) (View, error)
	CancelReview(ctx context.Context, tc tenantctx.TenantContext, year, month int) (View, error)
	CloseManually(ctx context.Context, tc tenantctx.TenantContext, year, month int) (View, error)
	Reopen(ctx context.Context, tc tenantctx.TenantContext, year, month int, reason string) (View, error)
	// CanEdit returns nil when billing data of the month may be mutated by tc.
	CanEdit(ctx context.Context, tc tenantctx.TenantContext, year, month int) error
}

func ValidatePeriod(year, month int) error {
	if year < 2000 || year > 9999 || month < 1 || month > 12 {
		return ErrInvalidPeriod
	}
	return nil
}
