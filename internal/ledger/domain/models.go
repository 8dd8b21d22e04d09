package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TransactionType classifies a ledger posting. Deposits are positive,
// offsets and refunds are negative, adjustments may carry either sign.
type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeOffset     TransactionType = "offset"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

// GuardianBalance is the signed running balance of one guardian.
// Positive means credit held (預り金), negative means owed (不足金).
type GuardianBalance struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID       snowflake.ID `gorm:"not null;uniqueIndex:ux_guardian_balances_guardian,priority:1" json:"org_id"`
	GuardianID  snowflake.ID `gorm:"not null;uniqueIndex:ux_guardian_balances_guardian,priority:2" json:"guardian_id"`
	Balance     int64        `gorm:"not null;default:0" json:"balance"`
	LastUpdated time.Time    `gorm:"not null" json:"last_updated"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (GuardianBalance) TableName() string { return "guardian_balances" }

// OffsetLog is one immutable ledger entry.
type OffsetLog struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID    `gorm:"not null;index:ix_offset_logs_guardian,priority:1;uniqueIndex:ux_offset_logs_idempotency,priority:1" json:"org_id"`
	GuardianID      snowflake.ID    `gorm:"not null;index:ix_offset_logs_guardian,priority:2" json:"guardian_id"`
	BillingID       *snowflake.ID   `gorm:"index" json:"billing_id,omitempty"`
	PaymentID       *snowflake.ID   `gorm:"index" json:"payment_id,omitempty"`
	TransactionType TransactionType `gorm:"type:varchar(16);not null" json:"transaction_type"`
	Amount          int64           `gorm:"not null" json:"amount"`
	BalanceAfter    int64           `gorm:"not null" json:"balance_after"`
	Reason          string          `gorm:"type:text" json:"reason"`
	IdempotencyKey  *string         `gorm:"type:varchar(128);uniqueIndex:ux_offset_logs_idempotency,priority:2" json:"idempotency_key,omitempty"`
	CreatedBy       string          `gorm:"type:varchar(64)" json:"created_by"`
	CreatedAt       time.Time       `gorm:"not null" json:"created_at"`
}

func (OffsetLog) TableName() string { return "offset_logs" }

type PostRequest struct {
	GuardianID     snowflake.ID
	Type           TransactionType
	Amount         int64
	Reason         string
	BillingID      *snowflake.ID
	PaymentID      *snowflake.ID
	IdempotencyKey string
}

type PostResult struct {
	Balance  int64     `json:"balance"`
	Entry    OffsetLog `json:"entry"`
	Replayed bool      `json:"replayed"`
}

// OffsetRequest consumes a guardian's held deposit against billings.
// Amount is the positive magnitude to consume.
type OffsetRequest struct {
	GuardianID     snowflake.ID
	Amount         int64
	BillingID      *snowflake.ID
	Reason         string
	RequireFunded  bool
	IdempotencyKey string
}
