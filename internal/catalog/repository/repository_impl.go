package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/jukubill/internal/catalog/domain"
	"github.com/smallbiznis/jukubill/pkg/db/option"
	"github.com/smallbiznis/jukubill/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) GetGuardian(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Guardian, error) {
	return repository.ProvideStore[domain.Guardian](db).FindOne(ctx, &domain.Guardian{OrgID: orgID, ID: id})
}

func (r *repo) FindGuardianByNo(ctx context.Context, db *gorm.DB, orgID snowflake.ID, guardianNo string) (*domain.Guardian, error) {
	if guardianNo == "" {
		return nil, nil
	}
	return repository.ProvideStore[domain.Guardian](db).FindOne(ctx, &domain.Guardian{OrgID: orgID, GuardianNo: guardianNo})
}

func (r *repo) FindGuardianByDebitCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, customerCode string) (*domain.Guardian, error) {
	if customerCode == "" {
		return nil, nil
	}
	return repository.ProvideStore[domain.Guardian](db).FindOne(ctx, &domain.Guardian{OrgID: orgID, DebitCustomerCode: customerCode})
}

func (r *repo) FindGuardiansByName(ctx context.Context, db *gorm.DB, orgID snowflake.ID, lastName, firstName string) ([]*domain.Guardian, error) {
	opts := []option.QueryOption{option.WithWhere("last_name = ?", lastName)}
	if firstName != "" {
		opts = append(opts, option.WithWhere("first_name = ?", firstName))
	}
	opts = append(opts, option.WithOrder("id"), option.WithLimit(10))
	return repository.ProvideStore[domain.Guardian](db).Find(ctx, &domain.Guardian{OrgID: orgID}, opts...)
}

func (r *repo) FindGuardiansByKana(ctx context.Context, db *gorm.DB, orgID snowflake.ID, lastKana, firstKana string) ([]*domain.Guardian, error) {
	opts := []option.QueryOption{option.WithWhere("last_name_kana = ?", lastKana)}
	if firstKana != "" {
		opts = append(opts, option.WithWhere("first_name_kana = ?", firstKana))
	}
	opts = append(opts, option.WithOrder("id"), option.WithLimit(10))
	return repository.ProvideStore[domain.Guardian](db).Find(ctx, &domain.Guardian{OrgID: orgID}, opts...)
}

func (r *repo) ListGuardiansByIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) ([]*domain.Guardian, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return repository.ProvideStore[domain.Guardian](db).Find(ctx, &domain.Guardian{OrgID: orgID}, option.WithIDs(ids), option.WithOrder("id"))
}

func (r *repo) GetStudent(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*domain.Student, error) {
	return repository.ProvideStore[domain.Student](db).FindOne(ctx, &domain.Student{OrgID: orgID, ID: id})
}

func (r *repo) ListActiveStudents(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]*domain.Student, error) {
	return repository.ProvideStore[domain.Student](db).Find(ctx,
		&domain.Student{OrgID: orgID, Status: domain.StudentStatusActive},
		option.WithOrder("student_no, id"),
	)
}

func (r *repo) ListStudentsByGuardian(ctx context.Context, db *gorm.DB, orgID, guardianID snowflake.ID) ([]*domain.Student, error) {
	return repository.ProvideStore[domain.Student](db).Find(ctx,
		&domain.Student{OrgID: orgID},
		option.WithWhere("guardian_id = ?", guardianID),
		option.WithOrder("student_no, id"),
	)
}

func (r *repo) ListPurchasedItems(ctx context.Context, db *gorm.DB, orgID, studentID snowflake.ID, year, month int) ([]*domain.PurchasedItem, error) {
	var items []*domain.PurchasedItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, org_id, student_id, billing_year, billing_month, item_type, product_code,
			product_name, unit_price, quantity, company_discount_cap, created_at
		 FROM purchased_items
		 WHERE org_id = ? AND student_id = ? AND billing_year = ? AND billing_month = ?
		 ORDER BY id`,
		orgID, studentID, year, month,
	).Scan(&items).Error
	return items, err
}

func (r *repo) ListContracts(ctx context.Context, db *gorm.DB, orgID snowflake.ID, studentIDs []snowflake.ID, from, to time.Time) ([]*domain.Contract, error) {
	if len(studentIDs) == 0 {
		return nil, nil
	}
	var contracts []*domain.Contract
	err := db.WithContext(ctx).
		Model(&domain.Contract{}).
		Where("org_id = ? AND student_id IN ?", orgID, studentIDs).
		Where("status = ?", domain.ContractStatusActive).
		Where("start_date < ?", to).
		Where("(end_date IS NULL OR end_date >= ?)", from).
		Order("student_id, id").
		Find(&contracts).Error
	return contracts, err
}

func (r *repo) ListSeminarEnrollments(ctx context.Context, db *gorm.DB, orgID, studentID snowflake.ID, year, month int) ([]*domain.SeminarEnrollment, error) {
	return repository.ProvideStore[domain.SeminarEnrollment](db).Find(ctx,
		&domain.SeminarEnrollment{OrgID: orgID, StudentID: studentID, BillingYear: year, BillingMonth: month, Status: domain.EnrollmentStatusActive},
		option.WithOrder("id"),
	)
}

func (r *repo) ListDiscounts(ctx context.Context, db *gorm.DB, orgID, studentID, guardianID snowflake.ID, from, to time.Time) ([]*domain.Discount, error) {
	var discounts []*domain.Discount
	err := db.WithContext(ctx).
		Model(&domain.Discount{}).
		Where("org_id = ?", orgID).
		Where("(student_id = ? OR guardian_id = ?)", studentID, guardianID).
		Where("(start_date IS NULL OR start_date < ?)", to).
		Where("(end_date IS NULL OR end_date >= ?)", from).
		Order("id").
		Find(&discounts).Error
	return discounts, err
}

func (r *repo) GetMileUsage(ctx context.Context, db *gorm.DB, orgID, guardianID snowflake.ID, year, month int) (*domain.MileUsage, error) {
	return repository.ProvideStore[domain.MileUsage](db).FindOne(ctx,
		&domain.MileUsage{OrgID: orgID, GuardianID: guardianID, BillingYear: year, BillingMonth: month},
	)
}
