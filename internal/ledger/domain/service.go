package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
	"gorm.io/gorm"
)

type Service interface {
	// Post takes the guardian lock and records one entry in its own transaction.
	Post(ctx context.Context, tc tenantctx.TenantContext, req PostRequest) (PostResult, error)
	// PostTx records one entry inside tx. The caller must hold the guardian lock.
	PostTx(ctx context.Context, tx *gorm.DB, tc tenantctx.TenantContext, req PostRequest) (PostResult, error)
	Balance(ctx context.Context, tc tenantctx.TenantContext, guardianID snowflake.ID) (int64, error)
	BalanceTx(ctx context.Context, tx *gorm.DB, tc tenantctx.TenantContext, guardianID snowflake.ID) (int64, error)
	History(ctx context.Context, tc tenantctx.TenantContext, guardianID snowflake.ID, limit int) ([]OffsetLog, error)
	Offset(ctx context.Context, tc tenantctx.TenantContext, req OffsetRequest) (PostResult, error)
}

// ValidateSign enforces the sign convention for a transaction type.
func ValidateSign(t TransactionType, amount int64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	switch t {
	case TransactionTypeDeposit:
		if amount < 0 {
			return ErrInvalidAmountSign
		}
	case TransactionTypeOffset, TransactionTypeRefund:
		if amount > 0 {
			return ErrInvalidAmountSign
		}
	case TransactionTypeAdjustment:
	default:
		return ErrInvalidTransactionType
	}
	return nil
}
