package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/jukubill/pkg/db/pagination"
	"github.com/smallbiznis/jukubill/pkg/rowerr"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
)

type Service interface {
	Export(ctx context.Context, tc tenantctx.TenantContext, req ExportRequest) (ExportResult, error)
	ImportResult(ctx context.Context, tc tenantctx.TenantContext, req ResultImportRequest) (ResultSummary, error)
	Unlock(ctx context.Context, tc tenantctx.TenantContext, batchID snowflake.ID) (*DebitExportBatch, error)
	Get(ctx context.Context, tc tenantctx.TenantContext, batchID snowflake.ID) (BatchDetail, error)
	List(ctx context.Context, tc tenantctx.TenantContext, page pagination.Pagination) ([]*DebitExportBatch, *pagination.PageInfo, error)
}

// ExportRequest selects the outstanding snapshots of one period. A zero
// WithdrawalDate uses the provider's configured withdrawal day.
type ExportRequest struct {
	Provider       string    `json:"provider"`
	Year           int       `json:"year"`
	Month          int       `json:"month"`
	WithdrawalDate time.Time `json:"withdrawal_date"`
}

type SkipReason string

const (
	SkipNonPositiveAmount SkipReason = "non_positive_amount"
	SkipMissingBank       SkipReason = "missing_bank_details"
	SkipNotDirectDebit    SkipReason = "not_direct_debit"
	SkipOtherProvider     SkipReason = "other_provider"
)

type Skipped struct {
	GuardianID snowflake.ID `json:"guardian_id"`
	Amount     int64        `json:"amount"`
	Reason     SkipReason   `json:"reason"`
}

type ExportResult struct {
	Batch       *DebitExportBatch  `json:"batch"`
	Lines       []*DebitExportLine `json:"lines"`
	Skipped     []Skipped          `json:"skipped"`
	File        []byte             `json:"-"`
	FileName    string             `json:"file_name"`
	ContentType string             `json:"content_type"`
}

type ResultImportRequest struct {
	BatchID  snowflake.ID
	FileName string
	Body     []byte
}

type ResultSummary struct {
	Batch     *DebitExportBatch `json:"batch"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	Errors    *rowerr.List      `json:"errors"`
}

type BatchDetail struct {
	Batch *DebitExportBatch  `json:"batch"`
	Lines []*DebitExportLine `json:"lines"`
}
