package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/jukubill/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/jukubill/internal/catalog/domain"
	"github.com/smallbiznis/jukubill/internal/clock"
	"github.com/smallbiznis/jukubill/internal/config"
	deadlinedomain "github.com/smallbiznis/jukubill/internal/deadline/domain"
	"github.com/smallbiznis/jukubill/internal/guardlock"
	obsmetrics "github.com/smallbiznis/jukubill/internal/observability/metrics"
	"github.com/smallbiznis/jukubill/internal/sequence"
	"github.com/smallbiznis/jukubill/pkg/rls"
	"github.com/smallbiznis/jukubill/pkg/rowerr"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Locker     guardlock.Locker
	Repo       billingdomain.Repository
	Catalog    catalogdomain.Repository
	Deadline   deadlinedomain.Service
	Rules      *config.BillingRulesHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	locker     guardlock.Locker
	repo       billingdomain.Repository
	catalog    catalogdomain.Repository
	deadline   deadlinedomain.Service
	rules      *config.BillingRulesHolder
	obsMetrics *obsmetrics.Metrics

	sources  []billingdomain.SnapshotSource
	seminars billingdomain.SnapshotSource
}

func NewService(p Params) billingdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("billing.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		locker:     p.Locker,
		repo:       p.Repo,
		catalog:    p.Catalog,
		deadline:   p.Deadline,
		rules:      p.Rules,
		obsMetrics: p.ObsMetrics,
		sources: []billingdomain.SnapshotSource{
			NewPurchasedItemSource(p.Catalog),
			NewContractSource(p.Catalog),
		},
		seminars: &seminarSource{catalog: p.Catalog},
	}
}

func (s *Service) GenerateForStudent(ctx context.Context, tc tenantctx.TenantContext, studentID snowflake.ID, year, month int) (billingdomain.GenerateResult, error) {
	if err := s.gate(ctx, tc, year, month); err != nil {
		return billingdomain.GenerateResult{}, err
	}
	student, err := s.catalog.GetStudent(ctx, s.db, tc.OrgID, studentID)
	if err != nil {
		return billingdomain.GenerateResult{}, err
	}
	if student == nil {
		return billingdomain.GenerateResult{}, catalogdomain.ErrStudentNotFound
	}
	return s.generate(ctx, tc, student, year, month)
}

// GenerateForMonth continues past per-student failures and reports them in
// the summary. Each student is its own transaction.
func (s *Service) GenerateForMonth(ctx context.Context, tc tenantctx.TenantContext, req billingdomain.GenerateMonthRequest) (billingdomain.GenerateSummary, error) {
	if err := s.gate(ctx, tc, req.Year, req.Month); err != nil {
		return billingdomain.GenerateSummary{}, err
	}

	summary := billingdomain.GenerateSummary{
		Year:   req.Year,
		Month:  req.Month,
		Errors: rowerr.NewList(s.rules.Get().MaxRowErrors),
	}

	students, err := s.targetStudents(ctx, tc, req, summary.Errors)
	if err != nil {
		return billingdomain.GenerateSummary{}, err
	}
	summary.Students = len(students)

	for i, student := range students {
		result, err := s.generate(ctx, tc, student, req.Year, req.Month)
		if err != nil {
			summary.Errors.Add(rowerr.RowError{Row: i + 1, Ref: student.StudentNo, Message: err.Error()})
			s.log.Warn("snapshot generation failed",
				zap.String("org_id", tc.OrgID.String()),
				zap.String("student_id", student.ID.String()),
				zap.Error(err),
			)
			continue
		}
		summary.Count(result.Outcome)
	}

	s.log.Info("monthly snapshots generated",
		zap.String("org_id", tc.OrgID.String()),
		zap.Int("year", req.Year),
		zap.Int("month", req.Month),
		zap.Int("students", summary.Students),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("errors", summary.Errors.Total),
	)
	return summary, nil
}

func (s *Service) ReapplyDiscounts(ctx context.Context, tc tenantctx.TenantContext, billingID snowflake.ID) (*billingdomain.ConfirmedBilling, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	current, err := s.repo.FindByID(ctx, s.db, tc.OrgID, billingID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, billingdomain.ErrBillingNotFound
	}
	if current.Frozen() {
		return current, nil
	}
	if err := s.deadline.CanEdit(ctx, tc, current.Year, current.Month); err != nil {
		return nil, err
	}

	release, err := s.locker.Lock(ctx, tc.OrgID, current.GuardianID)
	if err != nil {
		return nil, err
	}
	defer release()

	var out *billingdomain.ConfirmedBilling
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tc.OrgID); err != nil {
			return err
		}
		b, err := s.repo.FindForPeriod(ctx, tx, tc.OrgID, current.StudentID, current.Year, current.Month)
		if err != nil {
			return err
		}
		if b == nil || b.DeletedAt.Valid {
			return billingdomain.ErrBillingNotFound
		}
		if b.Frozen() {
			out = b
			return nil
		}

		student, guardian, siblings, err := s.loadFamily(ctx, tx, tc.OrgID, b.StudentID)
		if err != nil {
			return err
		}
		firstChild, err := s.isFirstChild(ctx, tx, tc.OrgID, student, siblings, b.Year, b.Month)
		if err != nil {
			return err
		}
		discounts, err := s.computeDiscounts(ctx, tx, discountInput{
			orgID:      tc.OrgID,
			guardian:   guardian,
			student:    student,
			siblings:   siblings,
			items:      b.ItemsSnapshot.Data(),
			year:       b.Year,
			month:      b.Month,
			firstChild: firstChild,
			rules:      s.rules.Get(),
		})
		if err != nil {
			return err
		}

		doc := billingdomain.NewDiscountsDocument(discounts)
		b.DiscountsSnapshot = datatypes.NewJSONType(doc)
		b.DiscountTotal = doc.Total()
		b.Recompute()
		b.RefreshStatus(s.clock.Now())
		b.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.Save(ctx, tx, b); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.obsMetrics.RecordSnapshot(ctx, tc.OrgID.String(), "discounts_reapplied")
	return out, nil
}

func (s *Service) Get(ctx context.Context, tc tenantctx.TenantContext, billingID snowflake.ID) (*billingdomain.ConfirmedBilling, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	b, err := s.repo.FindByID(ctx, s.db, tc.OrgID, billingID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, billingdomain.ErrBillingNotFound
	}
	return b, nil
}

func (s *Service) ListOpenForGuardian(ctx context.Context, tc tenantctx.TenantContext, guardianID snowflake.ID) ([]*billingdomain.ConfirmedBilling, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListOpenByGuardian(ctx, s.db, tc.OrgID, guardianID)
}

func (s *Service) gate(ctx context.Context, tc tenantctx.TenantContext, year, month int) error {
	if err := tc.Validate(); err != nil {
		return err
	}
	if err := deadlinedomain.ValidatePeriod(year, month); err != nil {
		return err
	}
	return s.deadline.CanEdit(ctx, tc, year, month)
}

func (s *Service) targetStudents(ctx context.Context, tc tenantctx.TenantContext, req billingdomain.GenerateMonthRequest, errs *rowerr.List) ([]*catalogdomain.Student, error) {
	if len(req.StudentIDs) == 0 {
		return s.catalog.ListActiveStudents(ctx, s.db, tc.OrgID)
	}
	students := make([]*catalogdomain.Student, 0, len(req.StudentIDs))
	for i, id := range req.StudentIDs {
		student, err := s.catalog.GetStudent(ctx, s.db, tc.OrgID, id)
		if err != nil {
			return nil, err
		}
		if student == nil {
			errs.Add(rowerr.RowError{Row: i + 1, Ref: id.String(), Message: catalogdomain.ErrStudentNotFound.Error()})
			continue
		}
		students = append(students, student)
	}
	return students, nil
}

// generate builds or refreshes one student's snapshot under the guardian lock.
func (s *Service) generate(ctx context.Context, tc tenantctx.TenantContext, student *catalogdomain.Student, year, month int) (billingdomain.GenerateResult, error) {
	if student.GuardianID == nil || *student.GuardianID == 0 {
		return billingdomain.GenerateResult{}, billingdomain.ErrStudentNoGuardian
	}
	guardianID := *student.GuardianID

	release, err := s.locker.Lock(ctx, tc.OrgID, guardianID)
	if err != nil {
		return billingdomain.GenerateResult{}, err
	}
	defer release()

	var result billingdomain.GenerateResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tc.OrgID); err != nil {
			return err
		}
		var err error
		result, err = s.generateTx(ctx, tx, tc, student, year, month)
		return err
	})
	if err != nil {
		return billingdomain.GenerateResult{}, err
	}
	s.obsMetrics.RecordSnapshot(ctx, tc.OrgID.String(), string(result.Outcome))
	return result, nil
}

func (s *Service) generateTx(ctx context.Context, tx *gorm.DB, tc tenantctx.TenantContext, student *catalogdomain.Student, year, month int) (billingdomain.GenerateResult, error) {
	existing, err := s.repo.FindForPeriod(ctx, tx, tc.OrgID, student.ID, year, month)
	if err != nil {
		return billingdomain.GenerateResult{}, err
	}
	live := existing != nil && !existing.DeletedAt.Valid
	if live && existing.Frozen() {
		return billingdomain.GenerateResult{Outcome: billingdomain.OutcomeUnchanged, Billing: existing}, nil
	}

	_, guardian, siblings, err := s.loadFamily(ctx, tx, tc.OrgID, student.ID)
	if err != nil {
		return billingdomain.GenerateResult{}, err
	}

	in := billingdomain.SourceInput{OrgID: tc.OrgID, Student: student, Year: year, Month: month}
	items, err := collectItems(ctx, tx, s.sources, s.seminars, in)
	if err != nil {
		return billingdomain.GenerateResult{}, err
	}
	itemsDoc := billingdomain.NewItemsDocument(billingdomain.DedupFacilityItems(items))

	firstChild, err := s.isFirstChild(ctx, tx, tc.OrgID, student, siblings, year, month)
	if err != nil {
		return billingdomain.GenerateResult{}, err
	}
	discounts, err := s.computeDiscounts(ctx, tx, discountInput{
		orgID:      tc.OrgID,
		guardian:   guardian,
		student:    student,
		siblings:   siblings,
		items:      itemsDoc,
		year:       year,
		month:      month,
		firstChild: firstChild,
		rules:      s.rules.Get(),
	})
	if err != nil {
		return billingdomain.GenerateResult{}, err
	}
	discountsDoc := billingdomain.NewDiscountsDocument(discounts)

	var carryOver int64
	prev, err := s.repo.FindPrevious(ctx, tx, tc.OrgID, student.ID, year, month)
	if err != nil {
		return billingdomain.GenerateResult{}, err
	}
	if prev != nil {
		carryOver = prev.Balance
	}

	now := s.clock.Now().UTC()
	zeroValue := itemsDoc.Subtotal() == 0 && len(discountsDoc.Discounts) == 0 && carryOver == 0
	if zeroValue && (!live || existing.PaidAmount == 0) {
		if !live {
			return billingdomain.GenerateResult{Outcome: billingdomain.OutcomeSkipped}, nil
		}
		if err := s.repo.SoftDelete(ctx, tx, existing); err != nil {
			return billingdomain.GenerateResult{}, err
		}
		return billingdomain.GenerateResult{Outcome: billingdomain.OutcomeDeleted}, nil
	}

	if live {
		before := fingerprint(existing)
		applySnapshot(existing, guardian.ID, itemsDoc, discountsDoc, carryOver, now)
		if before == fingerprint(existing) {
			return billingdomain.GenerateResult{Outcome: billingdomain.OutcomeUnchanged, Billing: existing}, nil
		}
		existing.UpdatedAt = now
		if err := s.repo.Save(ctx, tx, existing); err != nil {
			return billingdomain.GenerateResult{}, err
		}
		return billingdomain.GenerateResult{Outcome: billingdomain.OutcomeUpdated, Billing: existing}, nil
	}

	if existing != nil {
		// Restore the soft-deleted row for this month; it keeps its number.
		existing.DeletedAt = gorm.DeletedAt{}
		existing.Status = billingdomain.StatusConfirmed
		existing.PaidAmount = 0
		existing.PaidAt = nil
		existing.ConfirmedAt = now
		applySnapshot(existing, guardian.ID, itemsDoc, discountsDoc, carryOver, now)
		existing.UpdatedAt = now
		if err := s.repo.Save(ctx, tx, existing); err != nil {
			return billingdomain.GenerateResult{}, err
		}
		return billingdomain.GenerateResult{Outcome: billingdomain.OutcomeCreated, Billing: existing}, nil
	}

	billingNo, err := sequence.NextBillingNo(ctx, tx, tc.OrgID, year, month)
	if err != nil {
		return billingdomain.GenerateResult{}, err
	}
	b := &billingdomain.ConfirmedBilling{
		ID:          s.genID.Generate(),
		OrgID:       tc.OrgID,
		StudentID:   student.ID,
		Year:        year,
		Month:       month,
		BillingNo:   billingNo,
		Status:      billingdomain.StatusConfirmed,
		ConfirmedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	applySnapshot(b, guardian.ID, itemsDoc, discountsDoc, carryOver, now)
	if err := s.repo.Create(ctx, tx, b); err != nil {
		return billingdomain.GenerateResult{}, fmt.Errorf("create confirmed billing: %w", err)
	}
	return billingdomain.GenerateResult{Outcome: billingdomain.OutcomeCreated, Billing: b}, nil
}

func applySnapshot(b *billingdomain.ConfirmedBilling, guardianID snowflake.ID, items billingdomain.ItemsDocument, discounts billingdomain.DiscountsDocument, carryOver int64, now time.Time) {
	b.GuardianID = guardianID
	b.ItemsSnapshot = datatypes.NewJSONType(items)
	b.DiscountsSnapshot = datatypes.NewJSONType(discounts)
	b.Subtotal = items.Subtotal()
	b.DiscountTotal = discounts.Total()
	b.CarryOverAmount = carryOver
	b.Recompute()
	b.RefreshStatus(now)
}

// fingerprint captures the regenerated fields of a snapshot.
func fingerprint(b *billingdomain.ConfirmedBilling) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d|%d|%d|%d|%d|%d|%s|", b.GuardianID, b.Subtotal, b.DiscountTotal, b.CarryOverAmount, b.TotalAmount, b.Balance, b.Status)
	items, _ := json.Marshal(b.ItemsSnapshot.Data())
	discounts, _ := json.Marshal(b.DiscountsSnapshot.Data())
	buf.Write(items)
	buf.WriteByte('|')
	buf.Write(discounts)
	return buf.String()
}

// loadFamily returns the student, the guardian and the guardian's active children.
func (s *Service) loadFamily(ctx context.Context, tx *gorm.DB, orgID, studentID snowflake.ID) (*catalogdomain.Student, *catalogdomain.Guardian, []*catalogdomain.Student, error) {
	student, err := s.catalog.GetStudent(ctx, tx, orgID, studentID)
	if err != nil {
		return nil, nil, nil, err
	}
	if student == nil {
		return nil, nil, nil, catalogdomain.ErrStudentNotFound
	}
	if student.GuardianID == nil || *student.GuardianID == 0 {
		return nil, nil, nil, billingdomain.ErrStudentNoGuardian
	}
	guardian, err := s.catalog.GetGuardian(ctx, tx, orgID, *student.GuardianID)
	if err != nil {
		return nil, nil, nil, err
	}
	if guardian == nil {
		return nil, nil, nil, catalogdomain.ErrGuardianNotFound
	}
	children, err := s.catalog.ListStudentsByGuardian(ctx, tx, orgID, guardian.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	siblings := make([]*catalogdomain.Student, 0, len(children))
	for _, child := range children {
		if child.Status == catalogdomain.StudentStatusActive {
			siblings = append(siblings, child)
		}
	}
	return student, guardian, siblings, nil
}

// isFirstChild reports whether student is the lowest numbered active child of
// its guardian that has billable lines in the month.
func (s *Service) isFirstChild(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, student *catalogdomain.Student, siblings []*catalogdomain.Student, year, month int) (bool, error) {
	for _, sibling := range siblings {
		items, err := collectItems(ctx, tx, s.sources, s.seminars, billingdomain.SourceInput{
			OrgID:   orgID,
			Student: sibling,
			Year:    year,
			Month:   month,
		})
		if err != nil {
			return false, err
		}
		if len(items) == 0 {
			continue
		}
		return sibling.ID == student.ID, nil
	}
	return false, nil
}
