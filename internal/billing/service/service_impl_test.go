package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	billingdomain "github.com/smallbiznis/jukubill/internal/billing/domain"
	billingrepo "github.com/smallbiznis/jukubill/internal/billing/repository"
	catalogdomain "github.com/smallbiznis/jukubill/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/jukubill/internal/catalog/repository"
	"github.com/smallbiznis/jukubill/internal/clock"
	"github.com/smallbiznis/jukubill/internal/config"
	deadlinedomain "github.com/smallbiznis/jukubill/internal/deadline/domain"
	"github.com/smallbiznis/jukubill/internal/guardlock"
	"github.com/smallbiznis/jukubill/internal/sequence"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubDeadline struct {
	deadlinedomain.Service
	err error
}

func (s *stubDeadline) CanEdit(ctx context.Context, tc tenantctx.TenantContext, year, month int) error {
	return s.err
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	node     *snowflake.Node
	deadline *stubDeadline
	tc       tenantctx.TenantContext
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:billing_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&catalogdomain.Guardian{},
		&catalogdomain.Student{},
		&catalogdomain.PurchasedItem{},
		&catalogdomain.Contract{},
		&catalogdomain.SeminarEnrollment{},
		&catalogdomain.Discount{},
		&catalogdomain.MileUsage{},
		&billingdomain.ConfirmedBilling{},
		&sequence.Counter{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	deadline := &stubDeadline{}
	svc := NewService(Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2025, 4, 3, 9, 0, 0, 0, time.UTC)),
		Locker:   guardlock.NewLocalLocker(),
		Repo:     billingrepo.Provide(),
		Catalog:  catalogrepo.Provide(),
		Deadline: deadline,
		Rules:    config.NewStaticBillingRules(config.DefaultBillingRules()),
	}).(*Service)
	return &fixture{svc: svc, db: db, node: node, deadline: deadline, tc: tenantctx.System(node.Generate())}
}

func (f *fixture) guardian(t *testing.T, no string, companyEligible bool) *catalogdomain.Guardian {
	t.Helper()
	g := &catalogdomain.Guardian{
		ID:                      f.node.Generate(),
		OrgID:                   f.tc.OrgID,
		GuardianNo:              no,
		LastName:                "山田",
		FirstName:               "花子",
		CompanyDiscountEligible: companyEligible,
	}
	require.NoError(t, f.db.Create(g).Error)
	return g
}

func (f *fixture) student(t *testing.T, guardian *catalogdomain.Guardian, no string) *catalogdomain.Student {
	t.Helper()
	s := &catalogdomain.Student{
		ID:        f.node.Generate(),
		OrgID:     f.tc.OrgID,
		StudentNo: no,
		LastName:  "山田",
		FirstName: "太郎",
		Status:    catalogdomain.StudentStatusActive,
	}
	if guardian != nil {
		s.GuardianID = &guardian.ID
	}
	require.NoError(t, f.db.Create(s).Error)
	return s
}

func (f *fixture) item(t *testing.T, student *catalogdomain.Student, itemType catalogdomain.ItemType, name string, price, cap int64) {
	t.Helper()
	require.NoError(t, f.db.Create(&catalogdomain.PurchasedItem{
		ID:                 f.node.Generate(),
		OrgID:              f.tc.OrgID,
		StudentID:          student.ID,
		BillingYear:        2025,
		BillingMonth:       4,
		ItemType:           itemType,
		ProductCode:        name,
		ProductName:        name,
		UnitPrice:          price,
		Quantity:           1,
		CompanyDiscountCap: cap,
	}).Error)
}

func (f *fixture) contract(t *testing.T, student *catalogdomain.Student, amount int64) {
	t.Helper()
	require.NoError(t, f.db.Create(&catalogdomain.Contract{
		ID:            f.node.Generate(),
		OrgID:         f.tc.OrgID,
		StudentID:     student.ID,
		ItemType:      catalogdomain.ItemTypeTuition,
		ProductCode:   "regular",
		ProductName:   "regular course",
		MonthlyAmount: amount,
		StartDate:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:        catalogdomain.ContractStatusActive,
	}).Error)
}

func TestGenerateForStudent_ItemsAndDiscounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.guardian(t, "1001", true)
	s := f.student(t, g, "S001")
	f.item(t, s, catalogdomain.ItemTypeTuition, "tuition", 20000, 10)
	f.item(t, s, catalogdomain.ItemTypeFacility, "facility-a", 500, 0)
	f.item(t, s, catalogdomain.ItemTypeFacility, "facility-b", 800, 0)
	f.item(t, s, catalogdomain.ItemTypeFacility, "facility-c", 650, 0)
	f.item(t, s, catalogdomain.ItemTypeTextbook, "textbook", 3000, 0)

	res, err := f.svc.GenerateForStudent(ctx, f.tc, s.ID, 2025, 4)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeCreated, res.Outcome)

	b := res.Billing
	require.NotNil(t, b)
	assert.Equal(t, "CB202504-0001", b.BillingNo)
	assert.Equal(t, g.ID, b.GuardianID)
	assert.Equal(t, int64(23800), b.Subtotal)
	assert.Equal(t, int64(3000), b.DiscountTotal)
	assert.Equal(t, int64(20800), b.TotalAmount)
	assert.Equal(t, int64(20800), b.Balance)
	assert.Equal(t, billingdomain.StatusConfirmed, b.Status)
	assert.Len(t, b.Items(), 3)

	discounts := b.Discounts()
	require.Len(t, discounts, 2)
	assert.Equal(t, billingdomain.DiscountCorona, discounts[0].Kind)
	assert.Equal(t, int64(1000), discounts[0].Amount)
	assert.Equal(t, billingdomain.DiscountCompany, discounts[1].Kind)
	assert.Equal(t, int64(2000), discounts[1].Amount)

	var stored billingdomain.ConfirmedBilling
	require.NoError(t, f.db.First(&stored, "id = ?", b.ID).Error)
	assert.Equal(t, billingdomain.DocumentVersion, stored.ItemsSnapshot.Data().Version)
	assert.Equal(t, stored.TotalAmount+stored.CarryOverAmount-stored.PaidAmount, stored.Balance)

	again, err := f.svc.GenerateForStudent(ctx, f.tc, s.ID, 2025, 4)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeUnchanged, again.Outcome)
	assert.Equal(t, b.ID, again.Billing.ID)
}

func TestGenerateForStudent_CompanyDiscountCappedPerProduct(t *testing.T) {
	f := newFixture(t)
	g := f.guardian(t, "1002", true)
	s := f.student(t, g, "S001")
	f.item(t, s, catalogdomain.ItemTypeTuition, "capped", 12345, 5)
	f.item(t, s, catalogdomain.ItemTypeTuition, "excluded", 10000, 0)

	res, err := f.svc.GenerateForStudent(context.Background(), f.tc, s.ID, 2025, 4)
	require.NoError(t, err)
	discounts := res.Billing.Discounts()
	require.Len(t, discounts, 1)
	assert.Equal(t, int64(5), discounts[0].Percent)
	assert.Equal(t, int64(617), discounts[0].Amount)
	assert.Equal(t, "capped", discounts[0].Target)
}

func TestGenerateForStudent_PaidSnapshotIsImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.guardian(t, "1003", false)
	s := f.student(t, g, "S001")
	f.item(t, s, catalogdomain.ItemTypeTuition, "tuition", 15000, 0)

	res, err := f.svc.GenerateForStudent(ctx, f.tc, s.ID, 2025, 4)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&billingdomain.ConfirmedBilling{}).
		Where("id = ?", res.Billing.ID).
		Updates(map[string]any{"status": billingdomain.StatusPaid, "paid_amount": 15000, "balance": 0}).Error)

	f.item(t, s, catalogdomain.ItemTypeTextbook, "late textbook", 2000, 0)

	first, err := f.svc.GenerateForStudent(ctx, f.tc, s.ID, 2025, 4)
	require.NoError(t, err)
	second, err := f.svc.GenerateForStudent(ctx, f.tc, s.ID, 2025, 4)
	require.NoError(t, err)

	assert.Equal(t, billingdomain.OutcomeUnchanged, first.Outcome)
	assert.Equal(t, billingdomain.OutcomeUnchanged, second.Outcome)
	assert.Equal(t, int64(15000), first.Billing.Subtotal)
	assert.Equal(t, first.Billing.Subtotal, second.Billing.Subtotal)
	assert.Equal(t, first.Billing.Balance, second.Billing.Balance)
	assert.Equal(t, first.Billing.UpdatedAt, second.Billing.UpdatedAt)
	assert.Equal(t, billingdomain.StatusPaid, second.Billing.Status)
}

func TestGenerateForStudent_ContractFallbackWithSeminar(t *testing.T) {
	f := newFixture(t)
	g := f.guardian(t, "1004", false)
	s := f.student(t, g, "S001")
	f.contract(t, s, 18000)
	require.NoError(t, f.db.Create(&catalogdomain.SeminarEnrollment{
		ID: f.node.Generate(), OrgID: f.tc.OrgID, StudentID: s.ID,
		SeminarName: "spring seminar", BillingYear: 2025, BillingMonth: 4, Amount: 6000,
		Status: catalogdomain.EnrollmentStatusActive,
	}).Error)

	res, err := f.svc.GenerateForStudent(context.Background(), f.tc, s.ID, 2025, 4)
	require.NoError(t, err)
	items := res.Billing.Items()
	require.Len(t, items, 2)
	assert.Equal(t, billingdomain.SourceContract, items[0].SourceType)
	assert.Equal(t, billingdomain.SourceSeminar, items[1].SourceType)
	assert.Equal(t, int64(24000), res.Billing.Subtotal)
}

func TestGenerateForStudent_CarryOver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.guardian(t, "1005", false)
	s := f.student(t, g, "S001")
	f.contract(t, s, 10000)

	march, err := f.svc.GenerateForStudent(ctx, f.tc, s.ID, 2025, 3)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&billingdomain.ConfirmedBilling{}).
		Where("id = ?", march.Billing.ID).
		Updates(map[string]any{"paid_amount": 7000, "balance": 3000, "status": billingdomain.StatusPartial}).Error)

	april, err := f.svc.GenerateForStudent(ctx, f.tc, s.ID, 2025, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), april.Billing.CarryOverAmount)
	assert.Equal(t, int64(13000), april.Billing.Balance)
	assert.Equal(t, "CB202504-0001", april.Billing.BillingNo)
}

func TestGenerateForStudent_ZeroValueSkippedThenDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.guardian(t, "1006", false)
	s := f.student(t, g, "S001")

	res, err := f.svc.GenerateForStudent(ctx, f.tc, s.ID, 2025, 4)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeSkipped, res.Outcome)
	assert.Nil(t, res.Billing)

	f.item(t, s, catalogdomain.ItemTypeOther, "materials", 1200, 0)
	res, err = f.svc.GenerateForStudent(ctx, f.tc, s.ID, 2025, 4)
	require.NoError(t, err)
	require.Equal(t, billingdomain.OutcomeCreated, res.Outcome)
	billingID := res.Billing.ID

	require.NoError(t, f.db.Where("student_id = ?", s.ID).Delete(&catalogdomain.PurchasedItem{}).Error)
	res, err = f.svc.GenerateForStudent(ctx, f.tc, s.ID, 2025, 4)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeDeleted, res.Outcome)

	_, err = f.svc.Get(ctx, f.tc, billingID)
	assert.ErrorIs(t, err, billingdomain.ErrBillingNotFound)

	f.item(t, s, catalogdomain.ItemTypeOther, "materials", 900, 0)
	res, err = f.svc.GenerateForStudent(ctx, f.tc, s.ID, 2025, 4)
	require.NoError(t, err)
	assert.Equal(t, billingdomain.OutcomeCreated, res.Outcome)
	assert.Equal(t, billingID, res.Billing.ID)
	assert.Equal(t, int64(900), res.Billing.Balance)
}

func TestGenerateForMonth_MileOnFirstChildAndPerStudentErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.guardian(t, "1007", false)
	older := f.student(t, g, "S001")
	younger := f.student(t, g, "S002")
	orphan := f.student(t, nil, "S003")
	f.contract(t, older, 10000)
	f.contract(t, younger, 12000)
	require.NoError(t, f.db.Create(&catalogdomain.MileUsage{
		ID: f.node.Generate(), OrgID: f.tc.OrgID, GuardianID: g.ID, BillingYear: 2025, BillingMonth: 4, Miles: 6,
	}).Error)
	require.NoError(t, f.db.Create(&catalogdomain.Discount{
		ID: f.node.Generate(), OrgID: f.tc.OrgID, GuardianID: &g.ID,
		Kind: catalogdomain.DiscountKindManual, Name: "sibling", Amount: 300,
	}).Error)
	require.NoError(t, f.db.Create(&catalogdomain.Discount{
		ID: f.node.Generate(), OrgID: f.tc.OrgID, StudentID: &younger.ID,
		Kind: catalogdomain.DiscountKindFriendReferral, Name: "referral", Amount: 500,
	}).Error)

	summary, err := f.svc.GenerateForMonth(ctx, f.tc, billingdomain.GenerateMonthRequest{Year: 2025, Month: 4})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Students)
	assert.Equal(t, 2, summary.Created)
	assert.Equal(t, 1, summary.Errors.Total)
	assert.Equal(t, orphan.StudentNo, summary.Errors.Items[0].Ref)
	assert.Equal(t, billingdomain.ErrStudentNoGuardian.Error(), summary.Errors.Items[0].Message)

	var first, second billingdomain.ConfirmedBilling
	require.NoError(t, f.db.First(&first, "student_id = ?", older.ID).Error)
	require.NoError(t, f.db.First(&second, "student_id = ?", younger.ID).Error)

	firstKinds := kinds(first.Discounts())
	assert.Equal(t, []billingdomain.DiscountKind{billingdomain.DiscountManualGuardian, billingdomain.DiscountMile}, firstKinds)
	assert.Equal(t, int64(1300), first.DiscountTotal)
	assert.Equal(t, []billingdomain.DiscountKind{billingdomain.DiscountFriendReferral}, kinds(second.Discounts()))
	assert.Equal(t, int64(11500), second.Balance)
}

func TestGenerateForMonth_PeriodClosed(t *testing.T) {
	f := newFixture(t)
	f.deadline.err = deadlinedomain.ErrPeriodClosed

	_, err := f.svc.GenerateForMonth(context.Background(), f.tc, billingdomain.GenerateMonthRequest{Year: 2025, Month: 4})
	assert.ErrorIs(t, err, deadlinedomain.ErrPeriodClosed)
}

func TestReapplyDiscounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.guardian(t, "1008", false)
	s := f.student(t, g, "S001")
	f.item(t, s, catalogdomain.ItemTypeTuition, "tuition", 10000, 10)

	res, err := f.svc.GenerateForStudent(ctx, f.tc, s.ID, 2025, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Billing.DiscountTotal)

	require.NoError(t, f.db.Model(&catalogdomain.Guardian{}).Where("id = ?", g.ID).Update("company_discount_eligible", true).Error)

	updated, err := f.svc.ReapplyDiscounts(ctx, f.tc, res.Billing.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), updated.DiscountTotal)
	assert.Equal(t, int64(9000), updated.Balance)
	assert.Len(t, updated.Items(), 1)

	_, err = f.svc.ReapplyDiscounts(ctx, f.tc, f.node.Generate())
	assert.ErrorIs(t, err, billingdomain.ErrBillingNotFound)
}

func kinds(lines []billingdomain.DiscountLine) []billingdomain.DiscountKind {
	out := make([]billingdomain.DiscountKind, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Kind)
	}
	return out
}
