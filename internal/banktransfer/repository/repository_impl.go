package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/jukubill/internal/banktransfer/domain"
	"github.com/smallbiznis/jukubill/pkg/db"
	"github.com/smallbiznis/jukubill/pkg/db/option"
	"github.com/smallbiznis/jukubill/pkg/db/pagination"
	"github.com/smallbiznis/jukubill/pkg/repository"
	"gorm.io/gorm"
)

const insertBatchSize = 200

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CreateImport(ctx context.Context, db *gorm.DB, imp *domain.BankTransferImport) error {
	return repository.ProvideStore[domain.BankTransferImport](db).Create(ctx, imp)
}

func (r *repo) SaveImport(ctx context.Context, db *gorm.DB, imp *domain.BankTransferImport) error {
	return db.WithContext(ctx).Save(imp).Error
}

func (r *repo) FindImport(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.BankTransferImport, error) {
	return repository.ProvideStore[domain.BankTransferImport](db).FindOne(ctx, &domain.BankTransferImport{OrgID: orgID, ID: id})
}

func (r *repo) FindImportForUpdate(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*domain.BankTransferImport, error) {
	var imp domain.BankTransferImport
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&imp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &imp, nil
}

func (r *repo) ListImports(ctx context.Context, db *gorm.DB, orgID snowflake.ID, page pagination.Pagination) ([]*domain.BankTransferImport, error) {
	return repository.ProvideStore[domain.BankTransferImport](db).Find(ctx,
		&domain.BankTransferImport{OrgID: orgID},
		option.ApplyPagination(page),
	)
}

func (r *repo) InsertTransfers(ctx context.Context, db *gorm.DB, transfers []*domain.BankTransfer) error {
	if len(transfers) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(transfers, insertBatchSize).Error
}

func (r *repo) FindTransfer(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.BankTransfer, error) {
	return repository.ProvideStore[domain.BankTransfer](db).FindOne(ctx, &domain.BankTransfer{OrgID: orgID, ID: id})
}

func (r *repo) FindTransferForUpdate(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*domain.BankTransfer, error) {
	var t domain.BankTransfer
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repo) SaveTransfer(ctx context.Context, db *gorm.DB, t *domain.BankTransfer) error {
	return db.WithContext(ctx).Save(t).Error
}

func (r *repo) ListTransfers(ctx context.Context, db *gorm.DB, orgID, importID snowflake.ID, statuses ...domain.TransferStatus) ([]*domain.BankTransfer, error) {
	opts := []option.QueryOption{option.WithOrder("row_no asc, id asc")}
	if len(statuses) > 0 {
		opts = append(opts, option.WithWhere("status IN ?", statuses))
	}
	return repository.ProvideStore[domain.BankTransfer](db).Find(ctx,
		&domain.BankTransfer{OrgID: orgID, ImportID: importID},
		opts...,
	)
}

func (r *repo) MarkPendingUnmatched(ctx context.Context, db *gorm.DB, orgID, importID snowflake.ID, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.BankTransfer{}).
		Where("org_id = ? AND import_id = ? AND status = ?", orgID, importID, domain.TransferStatusPending).
		Updates(map[string]any{
			"status":     domain.TransferStatusUnmatched,
			"updated_at": at,
		})
	return res.RowsAffected, res.Error
}

type statusCount struct {
	Status   domain.TransferStatus
	RowCount int
	Amount   int64
}

func (r *repo) CountByImport(ctx context.Context, db *gorm.DB, orgID, importID snowflake.ID) (domain.Counts, error) {
	var rows []statusCount
	err := db.WithContext(ctx).
		Model(&domain.BankTransfer{}).
		Select("status, COUNT(*) AS row_count, COALESCE(SUM(amount), 0) AS amount").
		Where("org_id = ? AND import_id = ?", orgID, importID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return domain.Counts{}, err
	}

	var c domain.Counts
	for _, row := range rows {
		c.Total += row.RowCount
		switch row.Status {
		case domain.TransferStatusPending:
			c.Pending += row.RowCount
		case domain.TransferStatusMatched:
			c.Matched += row.RowCount
		case domain.TransferStatusUnmatched:
			c.Unmatched += row.RowCount
		case domain.TransferStatusApplied:
			c.Applied += row.RowCount
		case domain.TransferStatusCancelled:
			c.Cancelled += row.RowCount
			continue
		}
		c.TotalAmount += row.Amount
	}
	return c, nil
}

func (r *repo) InsertRowErrors(ctx context.Context, db *gorm.DB, rows []*domain.ImportRowError) error {
	return repository.ProvideStore[domain.ImportRowError](db).BatchCreate(ctx, rows)
}

func (r *repo) ListRowErrors(ctx context.Context, db *gorm.DB, orgID, importID snowflake.ID) ([]*domain.ImportRowError, error) {
	return repository.ProvideStore[domain.ImportRowError](db).Find(ctx,
		&domain.ImportRowError{OrgID: orgID, ImportID: importID},
		option.WithOrder("row_no asc"),
	)
}
