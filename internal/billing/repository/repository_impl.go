package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/jukubill/internal/billing/domain"
	"github.com/smallbiznis/jukubill/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, orgID, id snowflake.ID) (*domain.ConfirmedBilling, error) {
	var b domain.ConfirmedBilling
	err := tx.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Take(&b).Error
	return found(&b, err)
}

func (r *repo) FindForPeriod(ctx context.Context, tx *gorm.DB, orgID, studentID snowflake.ID, year, month int) (*domain.ConfirmedBilling, error) {
	var b domain.ConfirmedBilling
	err := db.ForUpdate(tx.WithContext(ctx)).
		Unscoped().
		Where("org_id = ? AND student_id = ? AND year = ? AND month = ?", orgID, studentID, year, month).
		Take(&b).Error
	return found(&b, err)
}

func (r *repo) FindPrevious(ctx context.Context, tx *gorm.DB, orgID, studentID snowflake.ID, year, month int) (*domain.ConfirmedBilling, error) {
	prev := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	var b domain.ConfirmedBilling
	err := tx.WithContext(ctx).
		Where("org_id = ? AND student_id = ? AND year = ? AND month = ?", orgID, studentID, prev.Year(), int(prev.Month())).
		Where("status <> ?", domain.StatusCancelled).
		Take(&b).Error
	return found(&b, err)
}

func (r *repo) ListOpenByGuardian(ctx context.Context, tx *gorm.DB, orgID, guardianID snowflake.ID) ([]*domain.ConfirmedBilling, error) {
	var out []*domain.ConfirmedBilling
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("org_id = ? AND guardian_id = ?", orgID, guardianID).
		Where("status IN ?", domain.OpenStatuses).
		Order("year asc, month asc, id asc").
		Find(&out).Error
	return out, err
}

func (r *repo) ListByIDs(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) ([]*domain.ConfirmedBilling, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []*domain.ConfirmedBilling
	err := tx.WithContext(ctx).
		Where("org_id = ? AND id IN ?", orgID, ids).
		Order("year asc, month asc, id asc").
		Find(&out).Error
	return out, err
}

// ListOutstandingForPeriod locks the rows so an allocation cannot change a
// balance between export and SetLocked.
func (r *repo) ListOutstandingForPeriod(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, year, month int) ([]*domain.ConfirmedBilling, error) {
	var out []*domain.ConfirmedBilling
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("org_id = ? AND year = ? AND month = ?", orgID, year, month).
		Where("status IN ?", domain.OpenStatuses).
		Where("is_locked = ?", false).
		Order("guardian_id asc, student_id asc, id asc").
		Find(&out).Error
	return out, err
}

func (r *repo) Create(ctx context.Context, tx *gorm.DB, b *domain.ConfirmedBilling) error {
	return tx.WithContext(ctx).Create(b).Error
}

func (r *repo) Save(ctx context.Context, tx *gorm.DB, b *domain.ConfirmedBilling) error {
	return tx.WithContext(ctx).Unscoped().Save(b).Error
}

func (r *repo) SoftDelete(ctx context.Context, tx *gorm.DB, b *domain.ConfirmedBilling) error {
	return tx.WithContext(ctx).Delete(b).Error
}

func (r *repo) SetLocked(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, ids []snowflake.ID, locked bool, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	updates := map[string]any{"is_locked": locked, "updated_at": at}
	if locked {
		updates["locked_at"] = at
	} else {
		updates["locked_at"] = nil
	}
	res := tx.WithContext(ctx).
		Model(&domain.ConfirmedBilling{}).
		Where("org_id = ? AND id IN ?", orgID, ids).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func found(b *domain.ConfirmedBilling, err error) (*domain.ConfirmedBilling, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
