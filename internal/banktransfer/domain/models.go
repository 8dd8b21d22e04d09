package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusMatched   TransferStatus = "matched"
	TransferStatusApplied   TransferStatus = "applied"
	TransferStatusUnmatched TransferStatus = "unmatched"
	TransferStatusCancelled TransferStatus = "cancelled"
)

// Matchable reports whether a guardian may still be assigned.
func (s TransferStatus) Matchable() bool {
	switch s {
	case TransferStatusPending, TransferStatusMatched, TransferStatusUnmatched:
		return true
	}
	return false
}

type ImportStatus string

const (
	ImportStatusPending   ImportStatus = "pending"
	ImportStatusPartial   ImportStatus = "partial"
	ImportStatusCompleted ImportStatus = "completed"
	ImportStatusConfirmed ImportStatus = "confirmed"
)

type ImportSource string

const (
	ImportSourceGeneric ImportSource = "generic"
	ImportSourceRaw     ImportSource = "raw"
)

type MatchStrategy string

const (
	MatchByGuardianNo MatchStrategy = "guardian_no"
	MatchByName       MatchStrategy = "name"
	MatchByKana       MatchStrategy = "kana"
	MatchManual       MatchStrategy = "manual"
)

// BankTransfer is one imported bank-wire record.
type BankTransfer struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	OrgID           snowflake.ID   `gorm:"not null;index:ix_bank_transfers_import,priority:1" json:"org_id"`
	ImportID        snowflake.ID   `gorm:"not null;index:ix_bank_transfers_import,priority:2" json:"import_id"`
	RowNo           int            `gorm:"not null" json:"row_no"`
	TransferDate    time.Time      `gorm:"not null" json:"transfer_date"`
	Amount          int64          `gorm:"not null" json:"amount"`
	PayerName       string         `gorm:"type:text" json:"payer_name"`
	PayerKana       string         `gorm:"type:text" json:"payer_kana"`
	GuardianHint    string         `gorm:"type:varchar(32)" json:"guardian_hint,omitempty"`
	BankName        string         `gorm:"type:text" json:"bank_name,omitempty"`
	BranchName      string         `gorm:"type:text" json:"branch_name,omitempty"`
	Status          TransferStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	GuardianID      *snowflake.ID  `gorm:"index" json:"guardian_id,omitempty"`
	MatchStrategy   MatchStrategy  `gorm:"type:varchar(16)" json:"match_strategy,omitempty"`
	MatchedBy       string         `gorm:"type:varchar(64)" json:"matched_by,omitempty"`
	MatchedAt       *time.Time     `json:"matched_at,omitempty"`
	TargetBillingID *snowflake.ID  `json:"target_billing_id,omitempty"`
	PaymentID       *snowflake.ID  `json:"payment_id,omitempty"`
	AppliedBy       string         `gorm:"type:varchar(64)" json:"applied_by,omitempty"`
	AppliedAt       *time.Time     `json:"applied_at,omitempty"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
}

func (BankTransfer) TableName() string { return "bank_transfers" }

// BankTransferImport is one upload session. Its transfer counters are always
// re-aggregated from its rows; ErrorCount is fixed when the file is parsed.
type BankTransferImport struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID          snowflake.ID `gorm:"not null;index" json:"org_id"`
	BatchNo        string       `gorm:"type:varchar(32);not null;index" json:"batch_no"`
	Source         ImportSource `gorm:"type:varchar(16);not null" json:"source"`
	FileName       string       `gorm:"type:text" json:"file_name"`
	Encoding       string       `gorm:"type:varchar(16)" json:"encoding,omitempty"`
	ArchiveKey     string       `gorm:"type:text" json:"archive_key,omitempty"`
	TotalCount     int          `gorm:"not null;default:0" json:"total_count"`
	MatchedCount   int          `gorm:"not null;default:0" json:"matched_count"`
	UnmatchedCount int          `gorm:"not null;default:0" json:"unmatched_count"`
	AppliedCount   int          `gorm:"not null;default:0" json:"applied_count"`
	CancelledCount int          `gorm:"not null;default:0" json:"cancelled_count"`
	ErrorCount     int          `gorm:"not null;default:0" json:"error_count"`
	TotalAmount    int64        `gorm:"not null;default:0" json:"total_amount"`
	Status         ImportStatus `gorm:"type:varchar(16);not null" json:"status"`
	ConfirmedAt    *time.Time   `json:"confirmed_at,omitempty"`
	ConfirmedBy    string       `gorm:"type:varchar(64)" json:"confirmed_by,omitempty"`
	CreatedBy      string       `gorm:"type:varchar(64)" json:"created_by"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null" json:"updated_at"`
}

func (BankTransferImport) TableName() string { return "bank_transfer_imports" }

// ImportRowError keeps a rejected source row of an import.
type ImportRowError struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null" json:"org_id"`
	ImportID  snowflake.ID `gorm:"not null;index" json:"import_id"`
	Row       int          `gorm:"column:row_no;not null" json:"row"`
	Field     string       `gorm:"type:varchar(64)" json:"field,omitempty"`
	Message   string       `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (ImportRowError) TableName() string { return "bank_transfer_row_errors" }

// Counts is the re-aggregation of an import's rows.
type Counts struct {
	Total       int
	Pending     int
	Matched     int
	Unmatched   int
	Applied     int
	Cancelled   int
	TotalAmount int64
}

// ApplyCounts copies the aggregate onto the batch and derives its status.
// A confirmed batch keeps its status.
func (i *BankTransferImport) ApplyCounts(c Counts) {
	i.TotalCount = c.Total
	i.MatchedCount = c.Matched + c.Applied
	i.UnmatchedCount = c.Pending + c.Unmatched
	i.AppliedCount = c.Applied
	i.CancelledCount = c.Cancelled
	i.TotalAmount = c.TotalAmount
	if i.Status == ImportStatusConfirmed {
		return
	}
	live := c.Total - c.Cancelled
	switch {
	case live > 0 && c.Applied == live:
		i.Status = ImportStatusCompleted
	case c.Matched+c.Applied > 0:
		i.Status = ImportStatusPartial
	default:
		i.Status = ImportStatusPending
	}
}
