package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/jukubill/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	CreateBatch(ctx context.Context, db *gorm.DB, b *DebitExportBatch) error
	SaveBatch(ctx context.Context, db *gorm.DB, b *DebitExportBatch) error
	FindBatch(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*DebitExportBatch, error)
	FindBatchForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*DebitExportBatch, error)
	ListBatches(ctx context.Context, db *gorm.DB, orgID snowflake.ID, page pagination.Pagination) ([]*DebitExportBatch, error)

	InsertLines(ctx context.Context, db *gorm.DB, lines []*DebitExportLine) error
	ListLines(ctx context.Context, db *gorm.DB, orgID, batchID snowflake.ID) ([]*DebitExportLine, error)
	FindLineForUpdate(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*DebitExportLine, error)
	SaveLine(ctx context.Context, db *gorm.DB, l *DebitExportLine) error
	CountByBatch(ctx context.Context, db *gorm.DB, orgID, batchID snowflake.ID) (Counts, error)
}
