package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
	"gorm.io/gorm"
)

type Service interface {
	// Allocate spreads amount over the guardian's open snapshots inside tx.
	// It does not protect against being invoked twice for one payment.
	Allocate(ctx context.Context, tx *gorm.DB, tc tenantctx.TenantContext, guardianID snowflake.ID, amount int64, preferBillingID *snowflake.ID) (AllocationResult, error)
	Register(ctx context.Context, tc tenantctx.TenantContext, req RegisterRequest) (RegisterResult, error)
	// RegisterTx runs inside tx; the caller must hold the guardian lock.
	RegisterTx(ctx context.Context, tx *gorm.DB, tc tenantctx.TenantContext, req RegisterRequest) (RegisterResult, error)
	Get(ctx context.Context, tc tenantctx.TenantContext, paymentID snowflake.ID) (RegisterResult, error)
}
