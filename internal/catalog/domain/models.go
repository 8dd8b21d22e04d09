package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type PaymentMethod string

const (
	PaymentMethodDirectDebit  PaymentMethod = "direct_debit"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodCash         PaymentMethod = "cash"
)

// ItemType classifies a billable line.
type ItemType string

const (
	ItemTypeTuition  ItemType = "tuition"
	ItemTypeFacility ItemType = "facility"
	ItemTypeTextbook ItemType = "textbook"
	ItemTypeSeminar  ItemType = "seminar"
	ItemTypeOther    ItemType = "other"
)

type DiscountKind string

const (
	DiscountKindManual         DiscountKind = "manual"
	DiscountKindFriendReferral DiscountKind = "friend_referral"
)

const (
	StudentStatusActive    = "active"
	StudentStatusWithdrawn = "withdrawn"

	ContractStatusActive    = "active"
	ContractStatusCancelled = "cancelled"

	EnrollmentStatusActive = "active"
)

// Guardian is the party billed for one or more students.
type Guardian struct {
	ID                      snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID                   snowflake.ID  `gorm:"not null;index;uniqueIndex:ux_guardians_org_no,priority:1" json:"org_id"`
	GuardianNo              string        `gorm:"type:varchar(32);not null;uniqueIndex:ux_guardians_org_no,priority:2" json:"guardian_no"`
	LastName                string        `gorm:"type:text;not null" json:"last_name"`
	FirstName               string        `gorm:"type:text;not null" json:"first_name"`
	LastNameKana            string        `gorm:"type:text" json:"last_name_kana"`
	FirstNameKana           string        `gorm:"type:text" json:"first_name_kana"`
	PaymentMethod           PaymentMethod `gorm:"type:varchar(32);not null;default:'bank_transfer'" json:"payment_method"`
	BankCode                string        `gorm:"type:varchar(4)" json:"bank_code,omitempty"`
	BranchCode              string        `gorm:"type:varchar(3)" json:"branch_code,omitempty"`
	AccountType             string        `gorm:"type:varchar(1)" json:"account_type,omitempty"`
	AccountNumber           string        `gorm:"type:varchar(7)" json:"account_number,omitempty"`
	AccountHolderKana       string        `gorm:"type:text" json:"account_holder_kana,omitempty"`
	DebitProvider           string        `gorm:"type:varchar(16)" json:"debit_provider,omitempty"`
	DebitCustomerCode       string        `gorm:"type:varchar(20);index" json:"debit_customer_code,omitempty"`
	CompanyDiscountEligible bool          `gorm:"not null;default:false" json:"company_discount_eligible"`
	CreatedAt               time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt               time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Guardian) TableName() string { return "guardians" }

func (g Guardian) FullName() string {
	return strings.TrimSpace(g.LastName + " " + g.FirstName)
}

func (g Guardian) FullNameKana() string {
	return strings.TrimSpace(g.LastNameKana + " " + g.FirstNameKana)
}

// HasBankDetails reports whether the guardian can be collected by direct debit.
func (g Guardian) HasBankDetails() bool {
	return strings.TrimSpace(g.BankCode) != "" &&
		strings.TrimSpace(g.BranchCode) != "" &&
		strings.TrimSpace(g.AccountNumber) != "" &&
		strings.TrimSpace(g.AccountHolderKana) != ""
}

type Student struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID  `gorm:"not null;index" json:"org_id"`
	GuardianID *snowflake.ID `gorm:"index" json:"guardian_id,omitempty"`
	StudentNo  string        `gorm:"type:varchar(32);not null" json:"student_no"`
	LastName   string        `gorm:"type:text;not null" json:"last_name"`
	FirstName  string        `gorm:"type:text;not null" json:"first_name"`
	Status     string        `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Student) TableName() string { return "students" }

func (s Student) FullName() string {
	return strings.TrimSpace(s.LastName + " " + s.FirstName)
}

// PurchasedItem is a product purchase tagged with the month it is billed in.
type PurchasedItem struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID              snowflake.ID `gorm:"not null;index:ix_purchased_items_period,priority:1" json:"org_id"`
	StudentID          snowflake.ID `gorm:"not null;index:ix_purchased_items_period,priority:2" json:"student_id"`
	BillingYear        int          `gorm:"not null;index:ix_purchased_items_period,priority:3" json:"billing_year"`
	BillingMonth       int          `gorm:"not null;index:ix_purchased_items_period,priority:4" json:"billing_month"`
	ItemType           ItemType     `gorm:"type:varchar(16);not null" json:"item_type"`
	ProductCode        string       `gorm:"type:varchar(64)" json:"product_code"`
	ProductName        string       `gorm:"type:text;not null" json:"product_name"`
	UnitPrice          int64        `gorm:"not null" json:"unit_price"`
	Quantity           int          `gorm:"not null;default:1" json:"quantity"`
	CompanyDiscountCap int64        `gorm:"not null;default:0" json:"company_discount_cap"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (PurchasedItem) TableName() string { return "purchased_items" }

// Contract is a recurring monthly charge valid over a date range.
type Contract struct {
	ID                 snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID              snowflake.ID `gorm:"not null;index" json:"org_id"`
	StudentID          snowflake.ID `gorm:"not null;index" json:"student_id"`
	ItemType           ItemType     `gorm:"type:varchar(16);not null" json:"item_type"`
	ProductCode        string       `gorm:"type:varchar(64)" json:"product_code"`
	ProductName        string       `gorm:"type:text;not null" json:"product_name"`
	MonthlyAmount      int64        `gorm:"not null" json:"monthly_amount"`
	CompanyDiscountCap int64        `gorm:"not null;default:0" json:"company_discount_cap"`
	StartDate          time.Time    `gorm:"not null" json:"start_date"`
	EndDate            *time.Time   `json:"end_date,omitempty"`
	Status             string       `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Contract) TableName() string { return "contracts" }

type SeminarEnrollment struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID `gorm:"not null;index" json:"org_id"`
	StudentID    snowflake.ID `gorm:"not null;index" json:"student_id"`
	SeminarName  string       `gorm:"type:text;not null" json:"seminar_name"`
	BillingYear  int          `gorm:"not null" json:"billing_year"`
	BillingMonth int          `gorm:"not null" json:"billing_month"`
	Amount       int64        `gorm:"not null" json:"amount"`
	Status       string       `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (SeminarEnrollment) TableName() string { return "seminar_enrollments" }

// Discount is a standing reduction scoped to a student or a guardian.
type Discount struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID      snowflake.ID  `gorm:"not null;index" json:"org_id"`
	StudentID  *snowflake.ID `gorm:"index" json:"student_id,omitempty"`
	GuardianID *snowflake.ID `gorm:"index" json:"guardian_id,omitempty"`
	Kind       DiscountKind  `gorm:"type:varchar(32);not null" json:"kind"`
	Name       string        `gorm:"type:text;not null" json:"name"`
	Amount     int64         `gorm:"not null" json:"amount"`
	StartDate  *time.Time    `json:"start_date,omitempty"`
	EndDate    *time.Time    `json:"end_date,omitempty"`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Discount) TableName() string { return "discounts" }

// MileUsage records loyalty miles a guardian redeems in a billing month.
type MileUsage struct {
	ID           snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID `gorm:"not null;uniqueIndex:ux_mile_usages_period,priority:1" json:"org_id"`
	GuardianID   snowflake.ID `gorm:"not null;uniqueIndex:ux_mile_usages_period,priority:2" json:"guardian_id"`
	BillingYear  int          `gorm:"not null;uniqueIndex:ux_mile_usages_period,priority:3" json:"billing_year"`
	BillingMonth int          `gorm:"not null;uniqueIndex:ux_mile_usages_period,priority:4" json:"billing_month"`
	Miles        int          `gorm:"not null" json:"miles"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (MileUsage) TableName() string { return "mile_usages" }

// MonthRange returns [first day of month, first day of next month). Date
// columns are stored as UTC midnights.
func MonthRange(year, month int) (time.Time, time.Time) {
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}
