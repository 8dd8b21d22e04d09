package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusUnpaid    Status = "UNPAID"
	StatusPartial   Status = "PARTIAL"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// OpenStatuses are the statuses payment allocation may draw against.
var OpenStatuses = []Status{StatusConfirmed, StatusUnpaid, StatusPartial}

func (s Status) IsOpen() bool {
	for _, open := range OpenStatuses {
		if s == open {
			return true
		}
	}
	return false
}

// ConfirmedBilling is the monthly billing snapshot of one student.
type ConfirmedBilling struct {
	ID                snowflake.ID                          `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID                          `gorm:"not null;uniqueIndex:ux_confirmed_billings_period,priority:1;index:ix_confirmed_billings_guardian,priority:1" json:"org_id"`
	StudentID         snowflake.ID                          `gorm:"not null;uniqueIndex:ux_confirmed_billings_period,priority:2" json:"student_id"`
	GuardianID        snowflake.ID                          `gorm:"not null;index:ix_confirmed_billings_guardian,priority:2" json:"guardian_id"`
	Year              int                                   `gorm:"not null;uniqueIndex:ux_confirmed_billings_period,priority:3" json:"year"`
	Month             int                                   `gorm:"not null;uniqueIndex:ux_confirmed_billings_period,priority:4" json:"month"`
	BillingNo         string                                `gorm:"type:varchar(32);not null" json:"billing_no"`
	Subtotal          int64                                 `gorm:"not null;default:0" json:"subtotal"`
	DiscountTotal     int64                                 `gorm:"not null;default:0" json:"discount_total"`
	CarryOverAmount   int64                                 `gorm:"not null;default:0" json:"carry_over_amount"`
	TotalAmount       int64                                 `gorm:"not null;default:0" json:"total_amount"`
	PaidAmount        int64                                 `gorm:"not null;default:0" json:"paid_amount"`
	Balance           int64                                 `gorm:"not null;default:0" json:"balance"`
	ItemsSnapshot     datatypes.JSONType[ItemsDocument]     `gorm:"not null" json:"items_snapshot"`
	DiscountsSnapshot datatypes.JSONType[DiscountsDocument] `gorm:"not null" json:"discounts_snapshot"`
	Status            Status                                `gorm:"type:varchar(16);not null;index" json:"status"`
	PaidAt            *time.Time                            `json:"paid_at,omitempty"`
	IsLocked          bool                                  `gorm:"not null;default:false" json:"is_locked"`
	LockedAt          *time.Time                            `json:"locked_at,omitempty"`
	ConfirmedAt       time.Time                             `gorm:"not null" json:"confirmed_at"`
	CreatedAt         time.Time                             `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time                             `gorm:"not null" json:"updated_at"`
	DeletedAt         gorm.DeletedAt                        `gorm:"index" json:"-"`
}

func (ConfirmedBilling) TableName() string { return "confirmed_billings" }

// Recompute derives total and balance from the stored components.
func (b *ConfirmedBilling) Recompute() {
	b.TotalAmount = b.Subtotal - b.DiscountTotal
	b.Balance = b.TotalAmount + b.CarryOverAmount - b.PaidAmount
}

// ApplyPayment adds up to amount to paid_amount and returns what was applied.
func (b *ConfirmedBilling) ApplyPayment(amount int64, now time.Time) int64 {
	applied := amount
	if b.Balance < applied {
		applied = b.Balance
	}
	if applied <= 0 {
		return 0
	}
	b.PaidAmount += applied
	b.Recompute()
	b.RefreshStatus(now)
	return applied
}

// RefreshStatus moves an open snapshot to PAID or PARTIAL from its amounts.
func (b *ConfirmedBilling) RefreshStatus(now time.Time) {
	if !b.Status.IsOpen() || b.PaidAmount <= 0 {
		return
	}
	if b.Balance <= 0 {
		b.Status = StatusPaid
		paidAt := now.UTC()
		b.PaidAt = &paidAt
		return
	}
	b.Status = StatusPartial
}

// Frozen reports whether regeneration must leave the snapshot untouched.
func (b *ConfirmedBilling) Frozen() bool {
	return b.Status == StatusPaid || b.Status == StatusCancelled || b.IsLocked
}

func (b *ConfirmedBilling) Items() []LineItem {
	return b.ItemsSnapshot.Data().Items
}

func (b *ConfirmedBilling) Discounts() []DiscountLine {
	return b.DiscountsSnapshot.Data().Discounts
}
