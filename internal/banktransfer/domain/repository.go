package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/jukubill/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	CreateImport(ctx context.Context, db *gorm.DB, imp *BankTransferImport) error
	SaveImport(ctx context.Context, db *gorm.DB, imp *BankTransferImport) error
	FindImport(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*BankTransferImport, error)
	FindImportForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*BankTransferImport, error)
	ListImports(ctx context.Context, db *gorm.DB, orgID snowflake.ID, page pagination.Pagination) ([]*BankTransferImport, error)

	InsertTransfers(ctx context.Context, db *gorm.DB, transfers []*BankTransfer) error
	FindTransfer(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*BankTransfer, error)
	FindTransferForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*BankTransfer, error)
	SaveTransfer(ctx context.Context, db *gorm.DB, t *BankTransfer) error
	ListTransfers(ctx context.Context, db *gorm.DB, orgID, importID snowflake.ID, statuses ...TransferStatus) ([]*BankTransfer, error)
	MarkPendingUnmatched(ctx context.Context, db *gorm.DB, orgID, importID snowflake.ID, at time.Time) (int64, error)
	CountByImport(ctx context.Context, db *gorm.DB, orgID, importID snowflake.ID) (Counts, error)

	InsertRowErrors(ctx context.Context, db *gorm.DB, rows []*ImportRowError) error
	ListRowErrors(ctx context.Context, db *gorm.DB, orgID, importID snowflake.ID) ([]*ImportRowError, error)
}
