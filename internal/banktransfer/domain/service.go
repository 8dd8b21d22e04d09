package domain

import (
	"context"
	"io"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/jukubill/internal/payment/domain"
	"github.com/smallbiznis/jukubill/pkg/db/pagination"
	"github.com/smallbiznis/jukubill/pkg/rowerr"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
)

type Service interface {
	ImportGeneric(ctx context.Context, tc tenantctx.TenantContext, req GenericImportRequest) (ImportResult, error)
	ImportRaw(ctx context.Context, tc tenantctx.TenantContext, req RawImportRequest) (ImportResult, error)
	Match(ctx context.Context, tc tenantctx.TenantContext, req MatchRequest) (*BankTransfer, error)
	BulkMatch(ctx context.Context, tc tenantctx.TenantContext, reqs []MatchRequest) (BulkResult, error)
	Apply(ctx context.Context, tc tenantctx.TenantContext, req ApplyRequest) (ApplyResult, error)
	BulkApply(ctx context.Context, tc tenantctx.TenantContext, reqs []ApplyRequest) (BulkResult, error)
	Cancel(ctx context.Context, tc tenantctx.TenantContext, transferID snowflake.ID) (*BankTransfer, error)
	Confirm(ctx context.Context, tc tenantctx.TenantContext, importID snowflake.ID) (ConfirmResult, error)
	Recount(ctx context.Context, tc tenantctx.TenantContext, importID snowflake.ID) (*BankTransferImport, error)
	Get(ctx context.Context, tc tenantctx.TenantContext, importID snowflake.ID) (ImportDetail, error)
	ListImports(ctx context.Context, tc tenantctx.TenantContext, page pagination.Pagination) ([]*BankTransferImport, *pagination.PageInfo, error)
	ListTransfers(ctx context.Context, tc tenantctx.TenantContext, importID snowflake.ID, status TransferStatus) ([]*BankTransfer, error)
}

type GenericImportRequest struct {
	FileName string
	Body     io.Reader
	Mapping  ColumnMapping
}

type RawImportRequest struct {
	FileName string
	Body     []byte
}

type ImportResult struct {
	Import      *BankTransferImport `json:"import"`
	AutoMatched int                 `json:"auto_matched"`
	Errors      *rowerr.List        `json:"errors"`
}

type MatchRequest struct {
	TransferID snowflake.ID `json:"transfer_id"`
	GuardianID snowflake.ID `json:"guardian_id"`
}

// ApplyRequest turns a matched transfer into a payment. GuardianID matches a
// pending transfer first; BillingID is the snapshot to pay before any other.
type ApplyRequest struct {
	TransferID snowflake.ID  `json:"transfer_id"`
	GuardianID *snowflake.ID `json:"guardian_id,omitempty"`
	BillingID  *snowflake.ID `json:"billing_id,omitempty"`
}

type ApplyResult struct {
	Transfer *BankTransfer                `json:"transfer"`
	Payment  paymentdomain.RegisterResult `json:"payment"`
}

type BulkResult struct {
	Succeeded int          `json:"succeeded"`
	Errors    *rowerr.List `json:"errors"`
}

type ConfirmResult struct {
	Import    *BankTransferImport `json:"import"`
	Applied   int                 `json:"applied"`
	Unmatched int64               `json:"unmatched"`
	Errors    *rowerr.List        `json:"errors"`
}

type ImportDetail struct {
	Import    *BankTransferImport `json:"import"`
	RowErrors []*ImportRowError   `json:"row_errors"`
}
