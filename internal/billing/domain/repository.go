package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*ConfirmedBilling, error)
	// FindForPeriod includes soft-deleted rows so a zeroed snapshot can be restored.
	FindForPeriod(ctx context.Context, db *gorm.DB, orgID, studentID snowflake.ID, year, month int) (*ConfirmedBilling, error)
	FindPrevious(ctx context.Context, db *gorm.DB, orgID, studentID snowflake.ID, year, month int) (*ConfirmedBilling, error)
	// ListOpenByGuardian returns open snapshots oldest first.
	ListOpenByGuardian(ctx context.Context, db *gorm.DB, orgID, guardianID snowflake.ID) ([]*ConfirmedBilling, error)
	ListByIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) ([]*ConfirmedBilling, error)
	ListOutstandingForPeriod(ctx context.Context, db *gorm.DB, orgID snowflake.ID, year, month int) ([]*ConfirmedBilling, error)
	Create(ctx context.Context, db *gorm.DB, b *ConfirmedBilling) error
	Save(ctx context.Context, db *gorm.DB, b *ConfirmedBilling) error
	SoftDelete(ctx context.Context, db *gorm.DB, b *ConfirmedBilling) error
	SetLocked(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID, locked bool, at time.Time) (int64, error)
}
