package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type BatchStatus string

const (
	BatchStatusExported       BatchStatus = "exported"
	BatchStatusResultPartial  BatchStatus = "result_partial"
	BatchStatusResultComplete BatchStatus = "result_complete"
)

type ResultStatus string

const (
	ResultPending ResultStatus = "pending"
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
)

// ResultCodeSuccess is the only result code that collects the amount.
const ResultCodeSuccess = "0"

var resultReasons = map[string]string{
	"0": "success",
	"1": "insufficient_funds",
	"2": "no_account",
	"3": "depositor_stop",
	"4": "no_authorization",
	"8": "consignor_stop",
	"9": "other",
}

// ResultReason maps a provider result code to a stable reason.
func ResultReason(code string) string {
	if reason, ok := resultReasons[code]; ok {
		return reason
	}
	return "unknown_" + code
}

// DebitExportBatch is one generated collection file.
type DebitExportBatch struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID `gorm:"not null;uniqueIndex:ux_debit_batches_no,priority:1" json:"org_id"`
	BatchNo          string       `gorm:"type:varchar(32);not null;uniqueIndex:ux_debit_batches_no,priority:2" json:"batch_no"`
	Provider         string       `gorm:"type:varchar(16);not null" json:"provider"`
	Year             int          `gorm:"not null" json:"year"`
	Month            int          `gorm:"not null" json:"month"`
	WithdrawalDate   time.Time    `gorm:"not null" json:"withdrawal_date"`
	LineCount        int          `gorm:"not null;default:0" json:"line_count"`
	TotalAmount      int64        `gorm:"not null;default:0" json:"total_amount"`
	PendingCount     int          `gorm:"not null;default:0" json:"pending_count"`
	SuccessCount     int          `gorm:"not null;default:0" json:"success_count"`
	SuccessAmount    int64        `gorm:"not null;default:0" json:"success_amount"`
	FailedCount      int          `gorm:"not null;default:0" json:"failed_count"`
	FailedAmount     int64        `gorm:"not null;default:0" json:"failed_amount"`
	Status           BatchStatus  `gorm:"type:varchar(16);not null" json:"status"`
	IsLocked         bool         `gorm:"not null;default:true" json:"is_locked"`
	FileName         string       `gorm:"type:text" json:"file_name"`
	ArchiveKey       string       `gorm:"type:text" json:"archive_key,omitempty"`
	ResultArchiveKey string       `gorm:"type:text" json:"result_archive_key,omitempty"`
	ExportedBy       string       `gorm:"type:varchar(64)" json:"exported_by"`
	ExportedAt       time.Time    `gorm:"not null" json:"exported_at"`
	ResultImportedAt *time.Time   `json:"result_imported_at,omitempty"`
	UnlockedBy       string       `gorm:"type:varchar(64)" json:"unlocked_by,omitempty"`
	UnlockedAt       *time.Time   `json:"unlocked_at,omitempty"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (DebitExportBatch) TableName() string { return "debit_export_batches" }

// LineRefs lists the snapshots collected by one line.
type LineRefs struct {
	Version    int            `json:"version"`
	BillingIDs []snowflake.ID `json:"billing_ids"`
}

// DebitExportLine is one guardian's collection row.
type DebitExportLine struct {
	ID                snowflake.ID                 `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID                 `gorm:"not null;uniqueIndex:ux_debit_lines_invoice,priority:1" json:"org_id"`
	BatchID           snowflake.ID                 `gorm:"not null;index" json:"batch_id"`
	LineNo            int                          `gorm:"not null" json:"line_no"`
	GuardianID        snowflake.ID                 `gorm:"not null;index" json:"guardian_id"`
	CustomerCode      string                       `gorm:"type:varchar(20);not null" json:"customer_code"`
	InvoiceNo         string                       `gorm:"type:varchar(32);not null;uniqueIndex:ux_debit_lines_invoice,priority:2" json:"invoice_no"`
	BankCode          string                       `gorm:"type:varchar(4)" json:"bank_code"`
	BranchCode        string                       `gorm:"type:varchar(3)" json:"branch_code"`
	AccountType       string                       `gorm:"type:varchar(1)" json:"account_type"`
	AccountNumber     string                       `gorm:"type:varchar(7)" json:"account_number"`
	AccountHolderKana string                       `gorm:"type:text" json:"account_holder_kana"`
	Amount            int64                        `gorm:"not null" json:"amount"`
	Refs              datatypes.JSONType[LineRefs] `json:"refs"`
	ResultStatus      ResultStatus                 `gorm:"type:varchar(16);not null" json:"result_status"`
	ResultCode        string                       `gorm:"type:varchar(4)" json:"result_code,omitempty"`
	ResultReason      string                       `gorm:"type:varchar(32)" json:"result_reason,omitempty"`
	ResultAt          *time.Time                   `json:"result_at,omitempty"`
	PaymentID         *snowflake.ID                `json:"payment_id,omitempty"`
	CreatedAt         time.Time                    `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time                    `gorm:"not null" json:"updated_at"`
}

func (DebitExportLine) TableName() string { return "debit_export_lines" }

func (l *DebitExportLine) BillingIDs() []snowflake.ID {
	return l.Refs.Data().BillingIDs
}

// Counts is the re-aggregation of a batch's lines.
type Counts struct {
	Lines         int
	Total         int64
	Pending       int
	Success       int
	SuccessAmount int64
	Failed        int
	FailedAmount  int64
}

// ApplyCounts copies the aggregate onto the batch. The status only moves
// once results have been imported.
func (b *DebitExportBatch) ApplyCounts(c Counts) {
	b.LineCount = c.Lines
	b.TotalAmount = c.Total
	b.PendingCount = c.Pending
	b.SuccessCount = c.Success
	b.SuccessAmount = c.SuccessAmount
	b.FailedCount = c.Failed
	b.FailedAmount = c.FailedAmount
	if b.ResultImportedAt == nil {
		return
	}
	if c.Pending == 0 {
		b.Status = BatchStatusResultComplete
	} else {
		b.Status = BatchStatusResultPartial
	}
}
