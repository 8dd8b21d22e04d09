package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/jukubill/internal/directdebit/domain"
	"github.com/smallbiznis/jukubill/pkg/db"
	"github.com/smallbiznis/jukubill/pkg/db/option"
	"github.com/smallbiznis/jukubill/pkg/db/pagination"
	"github.com/smallbiznis/jukubill/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CreateBatch(ctx context.Context, db *gorm.DB, b *domain.DebitExportBatch) error {
	return repository.ProvideStore[domain.DebitExportBatch](db).Create(ctx, b)
}

func (r *repo) SaveBatch(ctx context.Context, db *gorm.DB, b *domain.DebitExportBatch) error {
	return db.WithContext(ctx).Save(b).Error
}

func (r *repo) FindBatch(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.DebitExportBatch, error) {
	return repository.ProvideStore[domain.DebitExportBatch](db).FindOne(ctx, &domain.DebitExportBatch{OrgID: orgID, ID: id})
}

func (r *repo) FindBatchForUpdate(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*domain.DebitExportBatch, error) {
	var b domain.DebitExportBatch
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) ListBatches(ctx context.Context, db *gorm.DB, orgID snowflake.ID, page pagination.Pagination) ([]*domain.DebitExportBatch, error) {
	return repository.ProvideStore[domain.DebitExportBatch](db).Find(ctx,
		&domain.DebitExportBatch{OrgID: orgID},
		option.ApplyPagination(page),
	)
}

func (r *repo) InsertLines(ctx context.Context, db *gorm.DB, lines []*domain.DebitExportLine) error {
	return repository.ProvideStore[domain.DebitExportLine](db).BatchCreate(ctx, lines)
}

func (r *repo) ListLines(ctx context.Context, db *gorm.DB, orgID, batchID snowflake.ID) ([]*domain.DebitExportLine, error) {
	return repository.ProvideStore[domain.DebitExportLine](db).Find(ctx,
		&domain.DebitExportLine{OrgID: orgID, BatchID: batchID},
		option.WithOrder("line_no asc"),
	)
}

func (r *repo) FindLineForUpdate(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*domain.DebitExportLine, error) {
	var l domain.DebitExportLine
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("org_id = ? AND id = ?", orgID, id).
		First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repo) SaveLine(ctx context.Context, db *gorm.DB, l *domain.DebitExportLine) error {
	return db.WithContext(ctx).Save(l).Error
}

type resultCount struct {
	ResultStatus domain.ResultStatus
	LineCount    int
	Amount       int64
}

func (r *repo) CountByBatch(ctx context.Context, db *gorm.DB, orgID, batchID snowflake.ID) (domain.Counts, error) {
	var rows []resultCount
	err := db.WithContext(ctx).
		Model(&domain.DebitExportLine{}).
		Select("result_status, COUNT(*) AS line_count, COALESCE(SUM(amount), 0) AS amount").
		Where("org_id = ? AND batch_id = ?", orgID, batchID).
		Group("result_status").
		Scan(&rows).Error
	if err != nil {
		return domain.Counts{}, err
	}

	var c domain.Counts
	for _, row := range rows {
		c.Lines += row.LineCount
		c.Total += row.Amount
		switch row.ResultStatus {
		case domain.ResultPending:
			c.Pending += row.LineCount
		case domain.ResultSuccess:
			c.Success += row.LineCount
			c.SuccessAmount += row.Amount
		case domain.ResultFailed:
			c.Failed += row.LineCount
			c.FailedAmount += row.Amount
		}
	}
	return c, nil
}
