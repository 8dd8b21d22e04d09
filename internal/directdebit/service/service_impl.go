package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/jukubill/internal/authorization"
	billingdomain "github.com/smallbiznis/jukubill/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/jukubill/internal/catalog/domain"
	"github.com/smallbiznis/jukubill/internal/clock"
	"github.com/smallbiznis/jukubill/internal/config"
	deadlinedomain "github.com/smallbiznis/jukubill/internal/deadline/domain"
	"github.com/smallbiznis/jukubill/internal/directdebit/domain"
	"github.com/smallbiznis/jukubill/internal/directdebit/provider"
	"github.com/smallbiznis/jukubill/internal/guardlock"
	obsmetrics "github.com/smallbiznis/jukubill/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/jukubill/internal/payment/domain"
	"github.com/smallbiznis/jukubill/internal/sequence"
	"github.com/smallbiznis/jukubill/internal/storage"
	"github.com/smallbiznis/jukubill/pkg/db/pagination"
	"github.com/smallbiznis/jukubill/pkg/rls"
	"github.com/smallbiznis/jukubill/pkg/rowerr"
	"github.com/smallbiznis/jukubill/pkg/telemetry"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const contentTypeShiftJIS = "text/csv; charset=shift_jis"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Rules      *config.BillingRulesHolder
	Locker     guardlock.Locker
	Repo       domain.Repository
	Billing    billingdomain.Repository
	Catalog    catalogdomain.Repository
	Deadline   deadlinedomain.Service
	PaymentSvc paymentdomain.Service
	Authz      authorization.Service
	Archiver   storage.Archiver
	Providers  provider.Registry   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	PromMetric *telemetry.Metrics  `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	loc        *time.Location
	rules      *config.BillingRulesHolder
	locker     guardlock.Locker
	repo       domain.Repository
	billing    billingdomain.Repository
	catalog    catalogdomain.Repository
	deadline   deadlinedomain.Service
	paymentSvc paymentdomain.Service
	authz      authorization.Service
	archiver   storage.Archiver
	providers  provider.Registry
	obsMetrics *obsmetrics.Metrics
	promMetric *telemetry.Metrics
}

func NewService(p Params) domain.Service {
	providers := p.Providers
	if len(providers) == 0 {
		providers = provider.Default()
	}
	archiver := p.Archiver
	if archiver == nil {
		archiver = storage.NopArchiver{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("directdebit.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		loc:        p.Config.Location(),
		rules:      p.Rules,
		locker:     p.Locker,
		repo:       p.Repo,
		billing:    p.Billing,
		catalog:    p.Catalog,
		deadline:   p.Deadline,
		paymentSvc: p.PaymentSvc,
		authz:      p.Authz,
		archiver:   archiver,
		providers:  providers,
		obsMetrics: p.ObsMetrics,
		promMetric: p.PromMetric,
	}
}

type guardianGroup struct {
	guardianID snowflake.ID
	amount     int64
	billingIDs []snowflake.ID
}

// Export collects the outstanding snapshots of a period into one line per
// guardian, writes the provider file and locks every collected snapshot.
func (s *Service) Export(ctx context.Context, tc tenantctx.TenantContext, req domain.ExportRequest) (domain.ExportResult, error) {
	if err := tc.Validate(); err != nil {
		return domain.ExportResult{}, err
	}
	if err := deadlinedomain.ValidatePeriod(req.Year, req.Month); err != nil {
		return domain.ExportResult{}, err
	}
	prov, err := s.providers.Get(req.Provider)
	if err != nil {
		return domain.ExportResult{}, err
	}
	if err := s.deadline.CanEdit(ctx, tc, req.Year, req.Month); err != nil {
		return domain.ExportResult{}, err
	}

	rule := s.rules.Get().Provider(prov.Code())
	now := s.clock.Now().UTC()
	withdrawal := req.WithdrawalDate
	if withdrawal.IsZero() {
		withdrawal = withdrawalDate(req.Year, req.Month, rule.WithdrawalDay, s.loc)
	}
	header := domain.Header{
		ConsignorCode:  rule.ConsignorCode,
		ConsignorName:  rule.ConsignorName,
		BankCode:       rule.BankCode,
		BranchCode:     rule.BranchCode,
		WithdrawalDate: withdrawal,
		Year:           req.Year,
		Month:          req.Month,
	}

	var out domain.ExportResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tc.OrgID); err != nil {
			return err
		}
		billings, err := s.billing.ListOutstandingForPeriod(ctx, tx, tc.OrgID, req.Year, req.Month)
		if err != nil {
			return err
		}
		groups := groupByGuardian(billings)
		guardianIDs := make([]snowflake.ID, 0, len(groups))
		for _, g := range groups {
			guardianIDs = append(guardianIDs, g.guardianID)
		}
		guardians, err := s.catalog.ListGuardiansByIDs(ctx, tx, tc.OrgID, guardianIDs)
		if err != nil {
			return err
		}
		byID := make(map[snowflake.ID]*catalogdomain.Guardian, len(guardians))
		for _, g := range guardians {
			byID[g.ID] = g
		}

		batch := &domain.DebitExportBatch{
			ID:             s.genID.Generate(),
			OrgID:          tc.OrgID,
			Provider:       prov.Code(),
			Year:           req.Year,
			Month:          req.Month,
			WithdrawalDate: withdrawal,
			Status:         domain.BatchStatusExported,
			IsLocked:       true,
			ExportedBy:     tc.Actor(),
			ExportedAt:     now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		var lines []*domain.DebitExportLine
		var locked []snowflake.ID
		for _, grp := range groups {
			g := byID[grp.guardianID]
			if reason, skip := skipReason(g, grp, prov.Code()); skip {
				out.Skipped = append(out.Skipped, domain.Skipped{GuardianID: grp.guardianID, Amount: grp.amount, Reason: reason})
				continue
			}
			invoiceNo, err := sequence.NextInvoiceNo(ctx, tx, tc.OrgID, req.Year, req.Month)
			if err != nil {
				return err
			}
			customerCode := strings.TrimSpace(g.DebitCustomerCode)
			if customerCode == "" {
				customerCode = g.GuardianNo
			}
			lines = append(lines, &domain.DebitExportLine{
				ID:                s.genID.Generate(),
				OrgID:             tc.OrgID,
				BatchID:           batch.ID,
				LineNo:            len(lines) + 1,
				GuardianID:        g.ID,
				CustomerCode:      customerCode,
				InvoiceNo:         invoiceNo,
				BankCode:          g.BankCode,
				BranchCode:        g.BranchCode,
				AccountType:       accountType(g.AccountType),
				AccountNumber:     g.AccountNumber,
				AccountHolderKana: g.AccountHolderKana,
				Amount:            grp.amount,
				Refs:              datatypes.NewJSONType(domain.LineRefs{Version: 1, BillingIDs: grp.billingIDs}),
				ResultStatus:      domain.ResultPending,
				CreatedAt:         now,
				UpdatedAt:         now,
			})
			locked = append(locked, grp.billingIDs...)
		}
		if len(lines) == 0 {
			return domain.ErrNothingToExport
		}

		batchNo, err := sequence.NextDebitBatchNo(ctx, tx, tc.OrgID, prov.Prefix(), now.In(s.loc))
		if err != nil {
			return err
		}
		batch.BatchNo = batchNo
		batch.FileName = storage.FileName(".csv", prov.Code(), batchNo, fmt.Sprintf("%04d-%02d", req.Year, req.Month))
		for _, l := range lines {
			batch.LineCount++
			batch.TotalAmount += l.Amount
		}
		batch.PendingCount = batch.LineCount

		file, err := prov.Encode(header, lines)
		if err != nil {
			return err
		}
		if err := s.repo.CreateBatch(ctx, tx, batch); err != nil {
			return fmt.Errorf("create debit batch: %w", err)
		}
		if err := s.repo.InsertLines(ctx, tx, lines); err != nil {
			return fmt.Errorf("insert debit lines: %w", err)
		}
		if _, err := s.billing.SetLocked(ctx, tx, tc.OrgID, locked, true, now); err != nil {
			return fmt.Errorf("lock billings: %w", err)
		}

		out.Batch = batch
		out.Lines = lines
		out.File = file
		out.FileName = batch.FileName
		out.ContentType = contentTypeShiftJIS
		return nil
	})
	if err != nil {
		s.promMetric.ObserveBatchFile("debit_export", "failed", 0, 0)
		return domain.ExportResult{}, err
	}

	if key, err := s.archiver.Archive(ctx, tc.OrgID, storage.KindDebitExport, now.In(s.loc), out.FileName, out.File, contentTypeShiftJIS); err != nil {
		s.log.Warn("archive debit file failed", zap.String("batch_no", out.Batch.BatchNo), zap.Error(err))
	} else {
		out.Batch.ArchiveKey = key
		if err := s.db.WithContext(ctx).Model(out.Batch).Update("archive_key", key).Error; err != nil {
			s.log.Warn("store archive key failed", zap.String("batch_no", out.Batch.BatchNo), zap.Error(err))
		}
	}

	s.obsMetrics.RecordDebitExported(ctx, tc.OrgID.String(), prov.Code(), len(out.Lines))
	s.promMetric.ObserveBatchFile("debit_export", "ok", len(out.Lines), 0)
	s.log.Info("debit batch exported",
		zap.String("org_id", tc.OrgID.String()),
		zap.String("batch_no", out.Batch.BatchNo),
		zap.String("provider", prov.Code()),
		zap.Int("lines", len(out.Lines)),
		zap.Int("skipped", len(out.Skipped)),
		zap.Int64("total_amount", out.Batch.TotalAmount),
	)
	return out, nil
}

// ImportResult applies a provider result file row by row. Each row commits
// on its own; the batch is recounted at the end even when rows fail.
func (s *Service) ImportResult(ctx context.Context, tc tenantctx.TenantContext, req domain.ResultImportRequest) (domain.ResultSummary, error) {
	if err := tc.Validate(); err != nil {
		return domain.ResultSummary{}, err
	}
	batch, err := s.repo.FindBatch(ctx, s.db, tc.OrgID, req.BatchID)
	if err != nil {
		return domain.ResultSummary{}, err
	}
	if batch == nil {
		return domain.ResultSummary{}, domain.ErrBatchNotFound
	}
	prov, err := s.providers.Get(batch.Provider)
	if err != nil {
		return domain.ResultSummary{}, err
	}
	rows, err := prov.ParseResult(req.Body)
	if err != nil {
		s.promMetric.ObserveBatchFile("debit_result", "failed", 0, 0)
		return domain.ResultSummary{}, err
	}
	lines, err := s.repo.ListLines(ctx, s.db, tc.OrgID, batch.ID)
	if err != nil {
		return domain.ResultSummary{}, err
	}
	byInvoice := make(map[string]*domain.DebitExportLine, len(lines))
	byCustomer := make(map[string][]*domain.DebitExportLine, len(lines))
	for _, l := range lines {
		byInvoice[l.InvoiceNo] = l
		byCustomer[l.CustomerCode] = append(byCustomer[l.CustomerCode], l)
	}

	summary := domain.ResultSummary{Errors: rowerr.NewList(s.rules.Get().MaxRowErrors)}
	for _, row := range rows {
		if row.Err != nil {
			summary.Errors.Add(rowerr.RowError{Row: row.Row, Ref: row.Reference, Message: row.Err.Error()})
			continue
		}
		line := byInvoice[row.Reference]
		if line == nil && len(byCustomer[row.CustomerCode]) == 1 {
			line = byCustomer[row.CustomerCode][0]
		}
		if line == nil {
			summary.Errors.Add(rowerr.RowError{Row: row.Row, Field: "customer_code", Ref: row.CustomerCode, Message: domain.ErrLineNotFound.Error()})
			continue
		}

		status, err := s.applyResultRow(ctx, tc, batch, line.ID, line.GuardianID, row)
		switch {
		case errors.Is(err, domain.ErrLineProcessed):
			summary.Skipped++
		case err != nil:
			summary.Errors.Add(rowerr.RowError{Row: row.Row, Ref: line.InvoiceNo, Message: err.Error()})
		case status == domain.ResultSuccess:
			summary.Succeeded++
		default:
			summary.Failed++
		}
		if err == nil {
			s.obsMetrics.RecordDebitResult(ctx, tc.OrgID.String(), prov.Code(), string(status))
		}
	}

	now := s.clock.Now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tc.OrgID); err != nil {
			return err
		}
		locked, err := s.repo.FindBatchForUpdate(ctx, tx, tc.OrgID, batch.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrBatchNotFound
		}
		counts, err := s.repo.CountByBatch(ctx, tx, tc.OrgID, batch.ID)
		if err != nil {
			return err
		}
		locked.ResultImportedAt = &now
		locked.UpdatedAt = now
		locked.ApplyCounts(counts)
		if err := s.repo.SaveBatch(ctx, tx, locked); err != nil {
			return err
		}
		batch = locked
		return nil
	})
	if err != nil {
		return domain.ResultSummary{}, fmt.Errorf("recount debit batch: %w", err)
	}
	summary.Batch = batch

	fileName := req.FileName
	if strings.TrimSpace(fileName) == "" {
		fileName = batch.BatchNo + "-result.csv"
	}
	if key, err := s.archiver.Archive(ctx, tc.OrgID, storage.KindDebitResult, now.In(s.loc), fileName, req.Body, contentTypeShiftJIS); err != nil {
		s.log.Warn("archive debit result failed", zap.String("batch_no", batch.BatchNo), zap.Error(err))
	} else {
		batch.ResultArchiveKey = key
		if err := s.db.WithContext(ctx).Model(batch).Update("result_archive_key", key).Error; err != nil {
			s.log.Warn("store result archive key failed", zap.String("batch_no", batch.BatchNo), zap.Error(err))
		}
	}

	status := "ok"
	if !summary.Errors.Empty() {
		status = "partial"
	}
	s.promMetric.ObserveBatchFile("debit_result", status, len(rows), summary.Errors.Total)
	s.log.Info("debit results imported",
		zap.String("org_id", tc.OrgID.String()),
		zap.String("batch_no", batch.BatchNo),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("row_errors", summary.Errors.Total),
	)
	return summary, nil
}

func (s *Service) applyResultRow(ctx context.Context, tc tenantctx.TenantContext, batch *domain.DebitExportBatch, lineID, guardianID snowflake.ID, row domain.ResultRow) (domain.ResultStatus, error) {
	release, err := s.locker.Lock(ctx, tc.OrgID, guardianID)
	if err != nil {
		return "", err
	}
	defer release()

	var status domain.ResultStatus
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tc.OrgID); err != nil {
			return err
		}
		line, err := s.repo.FindLineForUpdate(ctx, tx, tc.OrgID, lineID)
		if err != nil {
			return err
		}
		if line == nil {
			return domain.ErrLineNotFound
		}
		if line.ResultStatus != domain.ResultPending {
			return domain.ErrLineProcessed
		}
		guardian, err := s.catalog.GetGuardian(ctx, tx, tc.OrgID, line.GuardianID)
		if err != nil {
			return err
		}
		if guardian == nil {
			return catalogdomain.ErrGuardianNotFound
		}

		now := s.clock.Now().UTC()
		line.ResultCode = row.ResultCode
		line.ResultReason = domain.ResultReason(row.ResultCode)
		line.ResultAt = &now
		line.UpdatedAt = now

		if row.ResultCode == domain.ResultCodeSuccess {
			amount := row.Amount
			if amount <= 0 {
				amount = line.Amount
			}
			var prefer *snowflake.ID
			if ids := line.BillingIDs(); len(ids) > 0 {
				prefer = &ids[0]
			}
			sourceID := line.ID
			reg, err := s.paymentSvc.RegisterTx(ctx, tx, tc, paymentdomain.RegisterRequest{
				GuardianID:      line.GuardianID,
				Amount:          amount,
				Method:          paymentdomain.MethodDirectDebit,
				PaidAt:          batch.WithdrawalDate,
				SourceType:      paymentdomain.SourceDirectDebitLine,
				SourceID:        &sourceID,
				PreferBillingID: prefer,
				IdempotencyKey:  "direct_debit:" + line.ID.String(),
				Note:            line.InvoiceNo,
			})
			if err != nil {
				return err
			}
			line.ResultStatus = domain.ResultSuccess
			line.PaymentID = &reg.Payment.ID
		} else {
			line.ResultStatus = domain.ResultFailed
			if err := s.markUnpaid(ctx, tx, tc.OrgID, line.BillingIDs(), now); err != nil {
				return err
			}
		}
		if err := s.repo.SaveLine(ctx, tx, line); err != nil {
			return err
		}
		status = line.ResultStatus
		return nil
	})
	return status, err
}

// markUnpaid flags confirmed snapshots whose collection failed.
func (s *Service) markUnpaid(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, ids []snowflake.ID, now time.Time) error {
	billings, err := s.billing.ListByIDs(ctx, tx, orgID, ids)
	if err != nil {
		return err
	}
	for _, b := range billings {
		if b.Status != billingdomain.StatusConfirmed {
			continue
		}
		b.Status = billingdomain.StatusUnpaid
		b.UpdatedAt = now
		if err := s.billing.Save(ctx, tx, b); err != nil {
			return err
		}
	}
	return nil
}

// Unlock releases the edit lock an export put on its snapshots.
func (s *Service) Unlock(ctx context.Context, tc tenantctx.TenantContext, batchID snowflake.ID) (*domain.DebitExportBatch, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, tc, authorization.ObjectDirectDebit, authorization.ActionDirectDebitUnlock); err != nil {
		return nil, err
	}

	var out *domain.DebitExportBatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tc.OrgID); err != nil {
			return err
		}
		batch, err := s.repo.FindBatchForUpdate(ctx, tx, tc.OrgID, batchID)
		if err != nil {
			return err
		}
		if batch == nil {
			return domain.ErrBatchNotFound
		}
		out = batch
		if !batch.IsLocked {
			return nil
		}
		lines, err := s.repo.ListLines(ctx, tx, tc.OrgID, batch.ID)
		if err != nil {
			return err
		}
		var ids []snowflake.ID
		for _, l := range lines {
			ids = append(ids, l.BillingIDs()...)
		}
		now := s.clock.Now().UTC()
		if _, err := s.billing.SetLocked(ctx, tx, tc.OrgID, ids, false, now); err != nil {
			return err
		}
		batch.IsLocked = false
		batch.UnlockedBy = tc.Actor()
		batch.UnlockedAt = &now
		batch.UpdatedAt = now
		return s.repo.SaveBatch(ctx, tx, batch)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("debit batch unlocked",
		zap.String("org_id", tc.OrgID.String()),
		zap.String("batch_no", out.BatchNo),
		zap.String("actor", tc.Actor()),
	)
	return out, nil
}

func (s *Service) Get(ctx context.Context, tc tenantctx.TenantContext, batchID snowflake.ID) (domain.BatchDetail, error) {
	if err := tc.Validate(); err != nil {
		return domain.BatchDetail{}, err
	}
	batch, err := s.repo.FindBatch(ctx, s.db, tc.OrgID, batchID)
	if err != nil {
		return domain.BatchDetail{}, err
	}
	if batch == nil {
		return domain.BatchDetail{}, domain.ErrBatchNotFound
	}
	lines, err := s.repo.ListLines(ctx, s.db, tc.OrgID, batch.ID)
	if err != nil {
		return domain.BatchDetail{}, err
	}
	return domain.BatchDetail{Batch: batch, Lines: lines}, nil
}

func (s *Service) List(ctx context.Context, tc tenantctx.TenantContext, page pagination.Pagination) ([]*domain.DebitExportBatch, *pagination.PageInfo, error) {
	if err := tc.Validate(); err != nil {
		return nil, nil, err
	}
	items, err := s.repo.ListBatches(ctx, s.db, tc.OrgID, page)
	if err != nil {
		return nil, nil, err
	}
	items, info := pagination.BuildCursorPageInfo(items, page.Limit(), func(b *domain.DebitExportBatch) string {
		return b.ID.String()
	})
	return items, info, nil
}

// groupByGuardian sums snapshot balances per guardian in first-seen order.
func groupByGuardian(billings []*billingdomain.ConfirmedBilling) []*guardianGroup {
	index := make(map[snowflake.ID]*guardianGroup)
	var groups []*guardianGroup
	for _, b := range billings {
		g, ok := index[b.GuardianID]
		if !ok {
			g = &guardianGroup{guardianID: b.GuardianID}
			index[b.GuardianID] = g
			groups = append(groups, g)
		}
		g.amount += b.Balance
		g.billingIDs = append(g.billingIDs, b.ID)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].guardianID < groups[j].guardianID })
	return groups
}

func skipReason(g *catalogdomain.Guardian, grp *guardianGroup, providerCode string) (domain.SkipReason, bool) {
	switch {
	case g == nil || g.PaymentMethod != catalogdomain.PaymentMethodDirectDebit:
		return domain.SkipNotDirectDebit, true
	case g.DebitProvider != "" && !strings.EqualFold(g.DebitProvider, providerCode):
		return domain.SkipOtherProvider, true
	case grp.amount <= 0:
		return domain.SkipNonPositiveAmount, true
	case !g.HasBankDetails():
		return domain.SkipMissingBank, true
	}
	return "", false
}

func accountType(t string) string {
	if strings.TrimSpace(t) == "" {
		return "1"
	}
	return t
}

// withdrawalDate clamps the configured day to the month end.
func withdrawalDate(year, month, day int, loc *time.Location) time.Time {
	if day <= 0 {
		day = 27
	}
	last := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, loc).Day()
	if day > last {
		day = last
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}
