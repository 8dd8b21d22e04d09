package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/jukubill/pkg/rowerr"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
)

// Outcome describes what one generation did to a student's snapshot.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeUpdated   Outcome = "updated"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDeleted   Outcome = "deleted"
)

type GenerateResult struct {
	Outcome Outcome           `json:"outcome"`
	Billing *ConfirmedBilling `json:"billing,omitempty"`
}

type GenerateMonthRequest struct {
	Year  int
	Month int
	// StudentIDs narrows generation; empty means every active student.
	StudentIDs []snowflake.ID
}

type GenerateSummary struct {
	Year      int          `json:"year"`
	Month     int          `json:"month"`
	Students  int          `json:"students"`
	Created   int          `json:"created"`
	Updated   int          `json:"updated"`
	Unchanged int          `json:"unchanged"`
	Skipped   int          `json:"skipped"`
	Deleted   int          `json:"deleted"`
	Errors    *rowerr.List `json:"errors"`
}

func (s *GenerateSummary) Count(outcome Outcome) {
	switch outcome {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeUnchanged:
		s.Unchanged++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeDeleted:
		s.Deleted++
	}
}

type Service interface {
	GenerateForStudent(ctx context.Context, tc tenantctx.TenantContext, studentID snowflake.ID, year, month int) (GenerateResult, error)
	GenerateForMonth(ctx context.Context, tc tenantctx.TenantContext, req GenerateMonthRequest) (GenerateSummary, error)
	ReapplyDiscounts(ctx context.Context, tc tenantctx.TenantContext, billingID snowflake.ID) (*ConfirmedBilling, error)
	Get(ctx context.Context, tc tenantctx.TenantContext, billingID snowflake.ID) (*ConfirmedBilling, error)
	ListOpenForGuardian(ctx context.Context, tc tenantctx.TenantContext, guardianID snowflake.ID) ([]*ConfirmedBilling, error)
}
