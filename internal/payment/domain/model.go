package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/jukubill/internal/billing/domain"
)

type Method string

const (
	MethodBankTransfer Method = "bank_transfer"
	MethodDirectDebit  Method = "direct_debit"
	MethodCash         Method = "cash"
)

func (m Method) Valid() bool {
	switch m {
	case MethodBankTransfer, MethodDirectDebit, MethodCash:
		return true
	}
	return false
}

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

type SourceType string

const (
	SourceManual          SourceType = "manual"
	SourceBankTransfer    SourceType = "bank_transfer"
	SourceDirectDebitLine SourceType = "direct_debit_line"
)

// Payment is one received amount for a guardian.
type Payment struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID  `gorm:"not null;index:ix_payments_guardian,priority:1;uniqueIndex:ux_payments_idempotency,priority:1" json:"org_id"`
	GuardianID      snowflake.ID  `gorm:"not null;index:ix_payments_guardian,priority:2" json:"guardian_id"`
	PaymentNo       string        `gorm:"type:varchar(32);not null" json:"payment_no"`
	Method          Method        `gorm:"type:varchar(32);not null" json:"method"`
	Status          Status        `gorm:"type:varchar(16);not null" json:"status"`
	Amount          int64         `gorm:"not null" json:"amount"`
	AppliedAmount   int64         `gorm:"not null;default:0" json:"applied_amount"`
	UnappliedAmount int64         `gorm:"not null;default:0" json:"unapplied_amount"`
	SourceType      SourceType    `gorm:"type:varchar(32);not null" json:"source_type"`
	SourceID        *snowflake.ID `gorm:"index" json:"source_id,omitempty"`
	TargetBillingID *snowflake.ID `json:"target_billing_id,omitempty"`
	IdempotencyKey  *string       `gorm:"type:varchar(128);uniqueIndex:ux_payments_idempotency,priority:2" json:"idempotency_key,omitempty"`
	LedgerEntryID   *snowflake.ID `json:"ledger_entry_id,omitempty"`
	Note            string        `gorm:"type:text" json:"note,omitempty"`
	PaidAt          time.Time     `gorm:"not null" json:"paid_at"`
	CreatedBy       string        `gorm:"type:varchar(64)" json:"created_by"`
	CreatedAt       time.Time     `gorm:"not null" json:"created_at"`
}

func (Payment) TableName() string { return "payments" }

// PaymentAllocation records the part of a payment applied to one snapshot.
type PaymentAllocation struct {
	ID           snowflake.ID         `gorm:"primaryKey" json:"id"`
	OrgID        snowflake.ID         `gorm:"not null;index" json:"org_id"`
	PaymentID    snowflake.ID         `gorm:"not null;index" json:"payment_id"`
	BillingID    snowflake.ID         `gorm:"not null;index" json:"billing_id"`
	BillingNo    string               `gorm:"type:varchar(32)" json:"billing_no"`
	Year         int                  `gorm:"not null" json:"year"`
	Month        int                  `gorm:"not null" json:"month"`
	Amount       int64                `gorm:"not null" json:"amount"`
	BalanceAfter int64                `gorm:"not null" json:"balance_after"`
	StatusAfter  billingdomain.Status `gorm:"type:varchar(16);not null" json:"status_after"`
	CreatedAt    time.Time            `gorm:"not null" json:"created_at"`
}

func (PaymentAllocation) TableName() string { return "payment_allocations" }

type AllocationResult struct {
	Allocations []PaymentAllocation `json:"allocations"`
	Applied     int64               `json:"applied"`
	Remaining   int64               `json:"remaining"`
}

type RegisterRequest struct {
	GuardianID      snowflake.ID
	Amount          int64
	Method          Method
	PaidAt          time.Time
	SourceType      SourceType
	SourceID        *snowflake.ID
	PreferBillingID *snowflake.ID
	IdempotencyKey  string
	Note            string
}

type RegisterResult struct {
	Payment     Payment             `json:"payment"`
	Allocations []PaymentAllocation `json:"allocations"`
	Balance     int64               `json:"balance"`
	Replayed    bool                `json:"replayed"`
}
