package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrGuardianNotFound = errors.New("guardian_not_found")
	ErrStudentNotFound  = errors.New("student_not_found")
)

// Repository reads the catalog tables maintained by the administrative screens.
type Repository interface {
	GetGuardian(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Guardian, error)
	FindGuardianByNo(ctx context.Context, db *gorm.DB, orgID snowflake.ID, guardianNo string) (*Guardian, error)
	FindGuardianByDebitCode(ctx context.Context, db *gorm.DB, orgID snowflake.ID, customerCode string) (*Guardian, error)
	FindGuardiansByName(ctx context.Context, db *gorm.DB, orgID snowflake.ID, lastName, firstName string) ([]*Guardian, error)
	FindGuardiansByKana(ctx context.Context, db *gorm.DB, orgID snowflake.ID, lastKana, firstKana string) ([]*Guardian, error)
	ListGuardiansByIDs(ctx context.Context, db *gorm.DB, orgID snowflake.ID, ids []snowflake.ID) ([]*Guardian, error)

	GetStudent(ctx context.Context, db *gorm.DB, orgID, id snowflake.ID) (*Student, error)
	ListActiveStudents(ctx context.Context, db *gorm.DB, orgID snowflake.ID) ([]*Student, error)
	ListStudentsByGuardian(ctx context.Context, db *gorm.DB, orgID, guardianID snowflake.ID) ([]*Student, error)

	ListPurchasedItems(ctx context.Context, db *gorm.DB, orgID, studentID snowflake.ID, year, month int) ([]*PurchasedItem, error)
	ListContracts(ctx context.Context, db *gorm.DB, orgID snowflake.ID, studentIDs []snowflake.ID, from, to time.Time) ([]*Contract, error)
	ListSeminarEnrollments(ctx context.Context, db *gorm.DB, orgID, studentID snowflake.ID, year, month int) ([]*SeminarEnrollment, error)
	ListDiscounts(ctx context.Context, db *gorm.DB, orgID, studentID, guardianID snowflake.ID, from, to time.Time) ([]*Discount, error)
	GetMileUsage(ctx context.Context, db *gorm.DB, orgID, guardianID snowflake.ID, year, month int) (*MileUsage, error)
}
