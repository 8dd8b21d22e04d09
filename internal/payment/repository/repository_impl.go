package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/jukubill/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return db.WithContext(ctx).Create(p).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, p *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET applied_amount = ?, unapplied_amount = ?, ledger_entry_id = ?
		 WHERE org_id = ? AND id = ?`,
		p.AppliedAmount,
		p.UnappliedAmount,
		p.LedgerEntryID,
		p.OrgID,
		p.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, orgID snowflake.ID, key string) (*domain.Payment, error) {
	var p domain.Payment
	err := db.WithContext(ctx).
		Where("org_id = ? AND idempotency_key = ?", orgID, key).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) InsertAllocations(ctx context.Context, db *gorm.DB, allocations []domain.PaymentAllocation) error {
	if len(allocations) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&allocations).Error
}

func (r *repo) ListAllocations(ctx context.Context, db *gorm.DB, orgID, paymentID snowflake.ID) ([]domain.PaymentAllocation, error) {
	var out []domain.PaymentAllocation
	err := db.WithContext(ctx).
		Where("org_id = ? AND payment_id = ?", orgID, paymentID).
		Order("id asc").
		Find(&out).Error
	return out, err
}
