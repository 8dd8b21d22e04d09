package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, p *Payment) error
	Update(ctx context.Context, db *gorm.DB, p *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Payment, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*Payment, error)
	InsertAllocations(ctx context.Context, db *gorm.DB, allocations []PaymentAllocation) error
	ListAllocations(ctx context.Context, db *gorm.DB, orgID, paymentID snowflake.ID) ([]PaymentAllocation, error)
}
