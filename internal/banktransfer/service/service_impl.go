package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/jukubill/internal/banktransfer/domain"
	"github.com/smallbiznis/jukubill/internal/banktransfer/parser"
	catalogdomain "github.com/smallbiznis/jukubill/internal/catalog/domain"
	"github.com/smallbiznis/jukubill/internal/clock"
	"github.com/smallbiznis/jukubill/internal/config"
	"github.com/smallbiznis/jukubill/internal/guardlock"
	obsmetrics "github.com/smallbiznis/jukubill/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/jukubill/internal/payment/domain"
	"github.com/smallbiznis/jukubill/internal/sequence"
	"github.com/smallbiznis/jukubill/internal/storage"
	"github.com/smallbiznis/jukubill/internal/textenc"
	"github.com/smallbiznis/jukubill/pkg/db/pagination"
	"github.com/smallbiznis/jukubill/pkg/rls"
	"github.com/smallbiznis/jukubill/pkg/rowerr"
	"github.com/smallbiznis/jukubill/pkg/telemetry"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

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
	Catalog    catalogdomain.Repository
	PaymentSvc paymentdomain.Service
	Archiver   storage.Archiver
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
	catalog    catalogdomain.Repository
	paymentSvc paymentdomain.Service
	archiver   storage.Archiver
	obsMetrics *obsmetrics.Metrics
	promMetric *telemetry.Metrics
}

func NewService(p Params) domain.Service {
	archiver := p.Archiver
	if archiver == nil {
		archiver = storage.NopArchiver{}
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("banktransfer.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		loc:        p.Config.Location(),
		rules:      p.Rules,
		locker:     p.Locker,
		repo:       p.Repo,
		catalog:    p.Catalog,
		paymentSvc: p.PaymentSvc,
		archiver:   archiver,
		obsMetrics: p.ObsMetrics,
		promMetric: p.PromMetric,
	}
}

func (s *Service) ImportGeneric(ctx context.Context, tc tenantctx.TenantContext, req domain.GenericImportRequest) (domain.ImportResult, error) {
	if err := tc.Validate(); err != nil {
		return domain.ImportResult{}, err
	}
	if req.Body == nil {
		return domain.ImportResult{}, domain.ErrEmptyFile
	}
	parsed, err := parser.ParseGeneric(req.Body, req.Mapping, s.maxRowErrors())
	if err != nil {
		s.promMetric.ObserveBatchFile("bank_transfer_generic", "failed", 0, 0)
		return domain.ImportResult{}, err
	}
	parsed.Encoding = textenc.EncodingUTF8
	return s.importRows(ctx, tc, domain.ImportSourceGeneric, req.FileName, parsed)
}

func (s *Service) ImportRaw(ctx context.Context, tc tenantctx.TenantContext, req domain.RawImportRequest) (domain.ImportResult, error) {
	if err := tc.Validate(); err != nil {
		return domain.ImportResult{}, err
	}
	parsed, err := parser.ParseRaw(req.Body, s.maxRowErrors())
	if err != nil {
		s.promMetric.ObserveBatchFile("bank_transfer_raw", "failed", 0, 0)
		return domain.ImportResult{}, err
	}
	result, err := s.importRows(ctx, tc, domain.ImportSourceRaw, req.FileName, parsed)
	if err != nil {
		return domain.ImportResult{}, err
	}

	imp := result.Import
	key, err := s.archiver.Archive(ctx, tc.OrgID, storage.KindBankTransfer, imp.CreatedAt.In(s.loc), fileNameOr(req.FileName, imp.BatchNo+".csv"), req.Body, "text/csv")
	if err != nil {
		s.log.Warn("archive bank file failed", zap.String("batch_no", imp.BatchNo), zap.Error(err))
		return result, nil
	}
	imp.ArchiveKey = key
	if err := s.db.WithContext(ctx).Model(imp).Update("archive_key", key).Error; err != nil {
		s.log.Warn("store archive key failed", zap.String("batch_no", imp.BatchNo), zap.Error(err))
	}
	return result, nil
}

func (s *Service) importRows(ctx context.Context, tc tenantctx.TenantContext, source domain.ImportSource, fileName string, parsed *parser.Result) (domain.ImportResult, error) {
	now := s.clock.Now().UTC()
	imp := &domain.BankTransferImport{
		ID:         s.genID.Generate(),
		OrgID:      tc.OrgID,
		BatchNo:    sequence.ImportBatchNo(now.In(s.loc)),
		Source:     source,
		FileName:   strings.TrimSpace(fileName),
		Encoding:   parsed.Encoding,
		ErrorCount: parsed.Errors.Total,
		Status:     domain.ImportStatusPending,
		CreatedBy:  tc.Actor(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	autoMatched := make(map[domain.MatchStrategy]int)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tc.OrgID); err != nil {
			return err
		}
		if err := s.repo.CreateImport(ctx, tx, imp); err != nil {
			return fmt.Errorf("create import: %w", err)
		}

		transfers := make([]*domain.BankTransfer, 0, len(parsed.Rows))
		for _, row := range parsed.Rows {
			t := &domain.BankTransfer{
				ID:           s.genID.Generate(),
				OrgID:        tc.OrgID,
				ImportID:     imp.ID,
				RowNo:        row.Row,
				TransferDate: row.TransferDate,
				Amount:       row.Amount,
				PayerName:    row.PayerName,
				PayerKana:    row.PayerKana,
				GuardianHint: row.GuardianHint,
				BankName:     row.BankName,
				BranchName:   row.BranchName,
				Status:       domain.TransferStatusPending,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			strategy, guardianID, err := s.autoMatch(ctx, tx, tc.OrgID, t)
			if err != nil {
				return err
			}
			if guardianID != nil {
				markMatched(t, *guardianID, strategy, tc.Actor(), now)
				autoMatched[strategy]++
			}
			transfers = append(transfers, t)
		}
		if err := s.repo.InsertTransfers(ctx, tx, transfers); err != nil {
			return fmt.Errorf("insert transfers: %w", err)
		}

		rowErrors := make([]*domain.ImportRowError, 0, len(parsed.Errors.Items))
		for _, re := range parsed.Errors.Items {
			rowErrors = append(rowErrors, &domain.ImportRowError{
				ID:        s.genID.Generate(),
				OrgID:     tc.OrgID,
				ImportID:  imp.ID,
				Row:       re.Row,
				Field:     re.Field,
				Message:   re.Message,
				CreatedAt: now,
			})
		}
		if err := s.repo.InsertRowErrors(ctx, tx, rowErrors); err != nil {
			return fmt.Errorf("insert row errors: %w", err)
		}

		recounted, err := s.recountTx(ctx, tx, tc.OrgID, imp.ID)
		if err != nil {
			return err
		}
		imp = recounted
		return nil
	})
	if err != nil {
		s.promMetric.ObserveBatchFile("bank_transfer_"+string(source), "failed", len(parsed.Rows), parsed.Errors.Total)
		return domain.ImportResult{}, err
	}

	matched := 0
	for strategy, n := range autoMatched {
		matched += n
		for i := 0; i < n; i++ {
			s.obsMetrics.RecordTransferMatched(ctx, tc.OrgID.String(), string(strategy))
		}
	}
	s.obsMetrics.RecordTransfersImported(ctx, tc.OrgID.String(), string(source), len(parsed.Rows))
	status := "ok"
	if !parsed.Errors.Empty() {
		status = "partial"
	}
	s.promMetric.ObserveBatchFile("bank_transfer_"+string(source), status, len(parsed.Rows), parsed.Errors.Total)
	s.log.Info("bank transfers imported",
		zap.String("org_id", tc.OrgID.String()),
		zap.String("batch_no", imp.BatchNo),
		zap.String("source", string(source)),
		zap.String("encoding", imp.Encoding),
		zap.Int("rows", len(parsed.Rows)),
		zap.Int("auto_matched", matched),
		zap.Int("row_errors", parsed.Errors.Total),
	)

	return domain.ImportResult{Import: imp, AutoMatched: matched, Errors: parsed.Errors}, nil
}

// autoMatch tries the guardian number hint, then the payer name, then the
// kana name. Only a single candidate counts as a match.
func (s *Service) autoMatch(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, t *domain.BankTransfer) (domain.MatchStrategy, *snowflake.ID, error) {
	if t.GuardianHint != "" {
		g, err := s.catalog.FindGuardianByNo(ctx, tx, orgID, t.GuardianHint)
		if err != nil {
			return "", nil, err
		}
		if g != nil {
			return domain.MatchByGuardianNo, &g.ID, nil
		}
	}

	if last, first := splitName(t.PayerName); last != "" {
		candidates, err := s.catalog.FindGuardiansByName(ctx, tx, orgID, last, first)
		if err != nil {
			return "", nil, err
		}
		if len(candidates) == 1 {
			return domain.MatchByName, &candidates[0].ID, nil
		}
	}

	kana := t.PayerKana
	if kana == "" {
		kana = t.PayerName
	}
	if last, first := splitName(kana); last != "" {
		candidates, err := s.catalog.FindGuardiansByKana(ctx, tx, orgID, last, first)
		if err != nil {
			return "", nil, err
		}
		if len(candidates) == 1 {
			return domain.MatchByKana, &candidates[0].ID, nil
		}
	}
	return "", nil, nil
}

func (s *Service) Match(ctx context.Context, tc tenantctx.TenantContext, req domain.MatchRequest) (*domain.BankTransfer, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	var out *domain.BankTransfer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tc.OrgID); err != nil {
			return err
		}
		t, err := s.loadForMutation(ctx, tx, tc.OrgID, req.TransferID)
		if err != nil {
			return err
		}
		if err := s.matchTx(ctx, tx, tc, t, req.GuardianID); err != nil {
			return err
		}
		if _, err := s.recountTx(ctx, tx, tc.OrgID, t.ImportID); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.obsMetrics.RecordTransferMatched(ctx, tc.OrgID.String(), string(domain.MatchManual))
	return out, nil
}

func (s *Service) BulkMatch(ctx context.Context, tc tenantctx.TenantContext, reqs []domain.MatchRequest) (domain.BulkResult, error) {
	if err := tc.Validate(); err != nil {
		return domain.BulkResult{}, err
	}
	res := domain.BulkResult{Errors: rowerr.NewList(s.maxRowErrors())}
	for i, req := range reqs {
		if _, err := s.Match(ctx, tc, req); err != nil {
			res.Errors.Add(rowerr.RowError{Row: i + 1, Ref: req.TransferID.String(), Message: err.Error()})
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

func (s *Service) Apply(ctx context.Context, tc tenantctx.TenantContext, req domain.ApplyRequest) (domain.ApplyResult, error) {
	if err := tc.Validate(); err != nil {
		return domain.ApplyResult{}, err
	}
	current, err := s.repo.FindTransfer(ctx, s.db, tc.OrgID, req.TransferID)
	if err != nil {
		return domain.ApplyResult{}, err
	}
	if current == nil {
		return domain.ApplyResult{}, domain.ErrTransferNotFound
	}

	var guardianID snowflake.ID
	switch {
	case req.GuardianID != nil:
		guardianID = *req.GuardianID
	case current.GuardianID != nil:
		guardianID = *current.GuardianID
	default:
		return domain.ApplyResult{}, domain.ErrTransferNotMatched
	}

	release, err := s.locker.Lock(ctx, tc.OrgID, guardianID)
	if err != nil {
		return domain.ApplyResult{}, err
	}
	defer release()

	var out domain.ApplyResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tc.OrgID); err != nil {
			return err
		}
		var err error
		out, err = s.applyTx(ctx, tx, tc, req, guardianID)
		return err
	})
	if err != nil {
		return domain.ApplyResult{}, err
	}

	s.log.Info("bank transfer applied",
		zap.String("org_id", tc.OrgID.String()),
		zap.String("transfer_id", out.Transfer.ID.String()),
		zap.String("payment_no", out.Payment.Payment.PaymentNo),
		zap.Int64("amount", out.Transfer.Amount),
	)
	return out, nil
}

func (s *Service) applyTx(ctx context.Context, tx *gorm.DB, tc tenantctx.TenantContext, req domain.ApplyRequest, lockedGuardian snowflake.ID) (domain.ApplyResult, error) {
	t, err := s.loadForMutation(ctx, tx, tc.OrgID, req.TransferID)
	if err != nil {
		return domain.ApplyResult{}, err
	}
	if req.GuardianID != nil && (t.GuardianID == nil || *t.GuardianID != *req.GuardianID) {
		if err := s.matchTx(ctx, tx, tc, t, *req.GuardianID); err != nil {
			return domain.ApplyResult{}, err
		}
	}
	if t.Status != domain.TransferStatusMatched || t.GuardianID == nil {
		return domain.ApplyResult{}, domain.ErrTransferNotMatched
	}
	if *t.GuardianID != lockedGuardian {
		return domain.ApplyResult{}, domain.ErrTransferChanged
	}

	transferID := t.ID
	reg, err := s.paymentSvc.RegisterTx(ctx, tx, tc, paymentdomain.RegisterRequest{
		GuardianID:      *t.GuardianID,
		Amount:          t.Amount,
		Method:          paymentdomain.MethodBankTransfer,
		PaidAt:          t.TransferDate,
		SourceType:      paymentdomain.SourceBankTransfer,
		SourceID:        &transferID,
		PreferBillingID: req.BillingID,
		IdempotencyKey:  "bank_transfer:" + t.ID.String(),
		Note:            t.PayerName,
	})
	if err != nil {
		return domain.ApplyResult{}, err
	}

	now := s.clock.Now().UTC()
	t.Status = domain.TransferStatusApplied
	t.PaymentID = &reg.Payment.ID
	t.TargetBillingID = req.BillingID
	t.AppliedBy = tc.Actor()
	t.AppliedAt = &now
	t.UpdatedAt = now
	if err := s.repo.SaveTransfer(ctx, tx, t); err != nil {
		return domain.ApplyResult{}, err
	}
	if _, err := s.recountTx(ctx, tx, tc.OrgID, t.ImportID); err != nil {
		return domain.ApplyResult{}, err
	}
	return domain.ApplyResult{Transfer: t, Payment: reg}, nil
}

func (s *Service) BulkApply(ctx context.Context, tc tenantctx.TenantContext, reqs []domain.ApplyRequest) (domain.BulkResult, error) {
	if err := tc.Validate(); err != nil {
		return domain.BulkResult{}, err
	}
	res := domain.BulkResult{Errors: rowerr.NewList(s.maxRowErrors())}
	for i, req := range reqs {
		if _, err := s.Apply(ctx, tc, req); err != nil {
			res.Errors.Add(rowerr.RowError{Row: i + 1, Ref: req.TransferID.String(), Message: err.Error()})
			continue
		}
		res.Succeeded++
	}
	return res, nil
}

func (s *Service) Cancel(ctx context.Context, tc tenantctx.TenantContext, transferID snowflake.ID) (*domain.BankTransfer, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	var out *domain.BankTransfer
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tc.OrgID); err != nil {
			return err
		}
		t, err := s.repo.FindTransferForUpdate(ctx, tx, tc.OrgID, transferID)
		if err != nil {
			return err
		}
		if t == nil {
			return domain.ErrTransferNotFound
		}
		out = t
		switch t.Status {
		case domain.TransferStatusCancelled:
			return nil
		case domain.TransferStatusApplied:
			return domain.ErrTransferApplied
		}
		t.Status = domain.TransferStatusCancelled
		t.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.SaveTransfer(ctx, tx, t); err != nil {
			return err
		}
		_, err = s.recountTx(ctx, tx, tc.OrgID, t.ImportID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Confirm applies every matched transfer of the batch, marks what is still
// pending as unmatched and finalizes the batch.
func (s *Service) Confirm(ctx context.Context, tc tenantctx.TenantContext, importID snowflake.ID) (domain.ConfirmResult, error) {
	if err := tc.Validate(); err != nil {
		return domain.ConfirmResult{}, err
	}
	imp, err := s.repo.FindImport(ctx, s.db, tc.OrgID, importID)
	if err != nil {
		return domain.ConfirmResult{}, err
	}
	if imp == nil {
		return domain.ConfirmResult{}, domain.ErrImportNotFound
	}
	if imp.Status == domain.ImportStatusConfirmed {
		return domain.ConfirmResult{}, domain.ErrImportConfirmed
	}

	matched, err := s.repo.ListTransfers(ctx, s.db, tc.OrgID, importID, domain.TransferStatusMatched)
	if err != nil {
		return domain.ConfirmResult{}, err
	}
	res := domain.ConfirmResult{Errors: rowerr.NewList(s.maxRowErrors())}
	for _, t := range matched {
		if _, err := s.Apply(ctx, tc, domain.ApplyRequest{TransferID: t.ID}); err != nil {
			res.Errors.Add(rowerr.RowError{Row: t.RowNo, Ref: t.ID.String(), Message: err.Error()})
			continue
		}
		res.Applied++
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tc.OrgID); err != nil {
			return err
		}
		locked, err := s.repo.FindImportForUpdate(ctx, tx, tc.OrgID, importID)
		if err != nil {
			return err
		}
		if locked == nil {
			return domain.ErrImportNotFound
		}
		if locked.Status == domain.ImportStatusConfirmed {
			return domain.ErrImportConfirmed
		}
		now := s.clock.Now().UTC()
		if res.Unmatched, err = s.repo.MarkPendingUnmatched(ctx, tx, tc.OrgID, importID, now); err != nil {
			return err
		}
		counts, err := s.repo.CountByImport(ctx, tx, tc.OrgID, importID)
		if err != nil {
			return err
		}
		locked.Status = domain.ImportStatusConfirmed
		locked.ConfirmedAt = &now
		locked.ConfirmedBy = tc.Actor()
		locked.UpdatedAt = now
		locked.ApplyCounts(counts)
		if err := s.repo.SaveImport(ctx, tx, locked); err != nil {
			return err
		}
		res.Import = locked
		return nil
	})
	if err != nil {
		return domain.ConfirmResult{}, err
	}

	s.log.Info("bank transfer import confirmed",
		zap.String("org_id", tc.OrgID.String()),
		zap.String("batch_no", res.Import.BatchNo),
		zap.Int("applied", res.Applied),
		zap.Int64("unmatched", res.Unmatched),
		zap.Int("failed", res.Errors.Total),
	)
	return res, nil
}

func (s *Service) Recount(ctx context.Context, tc tenantctx.TenantContext, importID snowflake.ID) (*domain.BankTransferImport, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	var out *domain.BankTransferImport
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tc.OrgID); err != nil {
			return err
		}
		var err error
		out, err = s.recountTx(ctx, tx, tc.OrgID, importID)
		return err
	})
	return out, err
}

func (s *Service) recountTx(ctx context.Context, tx *gorm.DB, orgID, importID snowflake.ID) (*domain.BankTransferImport, error) {
	imp, err := s.repo.FindImportForUpdate(ctx, tx, orgID, importID)
	if err != nil {
		return nil, err
	}
	if imp == nil {
		return nil, domain.ErrImportNotFound
	}
	counts, err := s.repo.CountByImport(ctx, tx, orgID, importID)
	if err != nil {
		return nil, err
	}
	imp.ApplyCounts(counts)
	imp.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.SaveImport(ctx, tx, imp); err != nil {
		return nil, fmt.Errorf("recount import: %w", err)
	}
	return imp, nil
}

func (s *Service) Get(ctx context.Context, tc tenantctx.TenantContext, importID snowflake.ID) (domain.ImportDetail, error) {
	if err := tc.Validate(); err != nil {
		return domain.ImportDetail{}, err
	}
	imp, err := s.repo.FindImport(ctx, s.db, tc.OrgID, importID)
	if err != nil {
		return domain.ImportDetail{}, err
	}
	if imp == nil {
		return domain.ImportDetail{}, domain.ErrImportNotFound
	}
	rowErrors, err := s.repo.ListRowErrors(ctx, s.db, tc.OrgID, importID)
	if err != nil {
		return domain.ImportDetail{}, err
	}
	return domain.ImportDetail{Import: imp, RowErrors: rowErrors}, nil
}

func (s *Service) ListImports(ctx context.Context, tc tenantctx.TenantContext, page pagination.Pagination) ([]*domain.BankTransferImport, *pagination.PageInfo, error) {
	if err := tc.Validate(); err != nil {
		return nil, nil, err
	}
	items, err := s.repo.ListImports(ctx, s.db, tc.OrgID, page)
	if err != nil {
		return nil, nil, err
	}
	items, info := pagination.BuildCursorPageInfo(items, page.Limit(), func(i *domain.BankTransferImport) string {
		return i.ID.String()
	})
	return items, info, nil
}

func (s *Service) ListTransfers(ctx context.Context, tc tenantctx.TenantContext, importID snowflake.ID, status domain.TransferStatus) ([]*domain.BankTransfer, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	imp, err := s.repo.FindImport(ctx, s.db, tc.OrgID, importID)
	if err != nil {
		return nil, err
	}
	if imp == nil {
		return nil, domain.ErrImportNotFound
	}
	if status == "" {
		return s.repo.ListTransfers(ctx, s.db, tc.OrgID, importID)
	}
	return s.repo.ListTransfers(ctx, s.db, tc.OrgID, importID, status)
}

func (s *Service) loadForMutation(ctx context.Context, tx *gorm.DB, orgID, transferID snowflake.ID) (*domain.BankTransfer, error) {
	t, err := s.repo.FindTransferForUpdate(ctx, tx, orgID, transferID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.ErrTransferNotFound
	}
	switch t.Status {
	case domain.TransferStatusApplied:
		return nil, domain.ErrTransferApplied
	case domain.TransferStatusCancelled:
		return nil, domain.ErrTransferCancelled
	}
	return t, nil
}

func (s *Service) matchTx(ctx context.Context, tx *gorm.DB, tc tenantctx.TenantContext, t *domain.BankTransfer, guardianID snowflake.ID) error {
	if !t.Status.Matchable() {
		return domain.ErrTransferApplied
	}
	g, err := s.catalog.GetGuardian(ctx, tx, tc.OrgID, guardianID)
	if err != nil {
		return err
	}
	if g == nil {
		return catalogdomain.ErrGuardianNotFound
	}
	now := s.clock.Now().UTC()
	markMatched(t, g.ID, domain.MatchManual, tc.Actor(), now)
	t.UpdatedAt = now
	if err := s.repo.SaveTransfer(ctx, tx, t); err != nil {
		return fmt.Errorf("save transfer: %w", err)
	}
	return nil
}

func (s *Service) maxRowErrors() int {
	if s.rules == nil {
		return rowerr.DefaultMax
	}
	return s.rules.Get().MaxRowErrors
}

func markMatched(t *domain.BankTransfer, guardianID snowflake.ID, strategy domain.MatchStrategy, actor string, at time.Time) {
	t.Status = domain.TransferStatusMatched
	t.GuardianID = &guardianID
	t.MatchStrategy = strategy
	t.MatchedBy = actor
	t.MatchedAt = &at
}

// splitName returns the first token as the last name and the rest as the
// first name.
func splitName(s string) (last, first string) {
	fields := strings.Fields(textenc.NormalizeSpaces(s))
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

func fileNameOr(name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		return fallback
	}
	return name
}
