package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/jukubill/internal/banktransfer/domain"
	btrepo "github.com/smallbiznis/jukubill/internal/banktransfer/repository"
	billingdomain "github.com/smallbiznis/jukubill/internal/billing/domain"
	billingrepo "github.com/smallbiznis/jukubill/internal/billing/repository"
	catalogdomain "github.com/smallbiznis/jukubill/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/jukubill/internal/catalog/repository"
	"github.com/smallbiznis/jukubill/internal/clock"
	"github.com/smallbiznis/jukubill/internal/config"
	"github.com/smallbiznis/jukubill/internal/guardlock"
	ledgerdomain "github.com/smallbiznis/jukubill/internal/ledger/domain"
	ledgerservice "github.com/smallbiznis/jukubill/internal/ledger/service"
	paymentdomain "github.com/smallbiznis/jukubill/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/jukubill/internal/payment/repository"
	paymentservice "github.com/smallbiznis/jukubill/internal/payment/service"
	"github.com/smallbiznis/jukubill/internal/sequence"
	"github.com/smallbiznis/jukubill/internal/storage"
	"github.com/smallbiznis/jukubill/pkg/db/pagination"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/japanese"
	"gorm.io/gorm"
)

type mockArchiver struct {
	mock.Mock
}

func (m *mockArchiver) Archive(ctx context.Context, orgID snowflake.ID, kind string, at time.Time, fileName string, body []byte, contentType string) (string, error) {
	args := m.Called(ctx, orgID, kind, at, fileName, body, contentType)
	return args.String(0), args.Error(1)
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	node     *snowflake.Node
	ledger   ledgerdomain.Service
	archiver *mockArchiver
	tc       tenantctx.TenantContext
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := fmt.Sprintf("file:banktransfer_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&catalogdomain.Guardian{},
		&billingdomain.ConfirmedBilling{},
		&paymentdomain.Payment{},
		&paymentdomain.PaymentAllocation{},
		&ledgerdomain.GuardianBalance{},
		&ledgerdomain.OffsetLog{},
		&sequence.Counter{},
		&domain.BankTransferImport{},
		&domain.BankTransfer{},
		&domain.ImportRowError{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2025, 4, 7, 1, 30, 0, 0, time.UTC))
	locker := guardlock.NewLocalLocker()
	ledger := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Locker: locker})
	payments := paymentservice.NewService(paymentservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     clk,
		Locker:    locker,
		Repo:      paymentrepo.Provide(),
		Billing:   billingrepo.Provide(),
		Catalog:   catalogrepo.Provide(),
		LedgerSvc: ledger,
	})
	archiver := new(mockArchiver)
	svc := NewService(Params{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Config:     config.Config{Timezone: "Asia/Tokyo"},
		Rules:      config.NewStaticBillingRules(config.DefaultBillingRules()),
		Locker:     locker,
		Repo:       btrepo.Provide(),
		Catalog:    catalogrepo.Provide(),
		PaymentSvc: payments,
		Archiver:   archiver,
	}).(*Service)
	return &fixture{svc: svc, db: db, node: node, ledger: ledger, archiver: archiver, tc: tenantctx.New(node.Generate(), "u-1", tenantctx.RoleAccounting)}
}

func (f *fixture) guardian(t *testing.T, no, last, first, lastKana, firstKana string) *catalogdomain.Guardian {
	t.Helper()
	g := &catalogdomain.Guardian{
		ID:            f.node.Generate(),
		OrgID:         f.tc.OrgID,
		GuardianNo:    no,
		LastName:      last,
		FirstName:     first,
		LastNameKana:  lastKana,
		FirstNameKana: firstKana,
	}
	require.NoError(t, f.db.Create(g).Error)
	return g
}

func (f *fixture) billing(t *testing.T, g *catalogdomain.Guardian, month int, total int64) *billingdomain.ConfirmedBilling {
	t.Helper()
	b := &billingdomain.ConfirmedBilling{
		ID:          f.node.Generate(),
		OrgID:       f.tc.OrgID,
		StudentID:   f.node.Generate(),
		GuardianID:  g.ID,
		Year:        2025,
		Month:       month,
		BillingNo:   fmt.Sprintf("CB2025%02d-0001", month),
		Subtotal:    total,
		TotalAmount: total,
		Balance:     total,
		Status:      billingdomain.StatusConfirmed,
		ConfirmedAt: time.Date(2025, time.Month(month), 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.db.Create(b).Error)
	return b
}

func (f *fixture) transfers(t *testing.T, importID snowflake.ID) map[int]*domain.BankTransfer {
	t.Helper()
	rows, err := f.svc.ListTransfers(context.Background(), f.tc, importID, "")
	require.NoError(t, err)
	out := make(map[int]*domain.BankTransfer, len(rows))
	for _, r := range rows {
		out[r.RowNo] = r
	}
	return out
}

const genericFile = "日付,金額,振込人名,振込人カナ\n" +
	"2025/04/01,12000,山田 花子,ヤマダ ハナコ\n" +
	"2025/04/01,5000,ｻﾄｳ ｲﾁﾛｳ,\n" +
	"2025/04/02,3000,8218859ｺｼﾞﾏ,\n" +
	"2025/04/02,700,知らない 人,\n" +
	"not-a-date,100,誰か,\n"

func TestImportGeneric_AutoMatchesAndRecounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	yamada := f.guardian(t, "1001", "山田", "花子", "ヤマダ", "ハナコ")
	sato := f.guardian(t, "1002", "佐藤", "一郎", "サトウ", "イチロウ")
	kojima := f.guardian(t, "8218859", "小島", "恵", "コジマ", "メグミ")

	res, err := f.svc.ImportGeneric(ctx, f.tc, domain.GenericImportRequest{
		FileName: "april.csv",
		Body:     strings.NewReader(genericFile),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.AutoMatched)
	assert.Equal(t, 1, res.Errors.Total)

	imp := res.Import
	assert.Equal(t, "BTI-20250407103000", imp.BatchNo)
	assert.Equal(t, 4, imp.TotalCount)
	assert.Equal(t, 3, imp.MatchedCount)
	assert.Equal(t, 1, imp.UnmatchedCount)
	assert.Equal(t, 1, imp.ErrorCount)
	assert.Equal(t, int64(20700), imp.TotalAmount)
	assert.Equal(t, domain.ImportStatusPartial, imp.Status)

	rows := f.transfers(t, imp.ID)
	require.Len(t, rows, 4)
	assert.Equal(t, yamada.ID, *rows[2].GuardianID)
	assert.Equal(t, domain.MatchByName, rows[2].MatchStrategy)
	assert.Equal(t, sato.ID, *rows[3].GuardianID)
	assert.Equal(t, domain.MatchByKana, rows[3].MatchStrategy)
	assert.Equal(t, kojima.ID, *rows[4].GuardianID)
	assert.Equal(t, domain.MatchByGuardianNo, rows[4].MatchStrategy)
	assert.Equal(t, domain.TransferStatusPending, rows[5].Status)
	assert.Nil(t, rows[5].GuardianID)

	detail, err := f.svc.Get(ctx, f.tc, imp.ID)
	require.NoError(t, err)
	require.Len(t, detail.RowErrors, 1)
	assert.Equal(t, 6, detail.RowErrors[0].Row)
}

func TestImportGeneric_AmbiguousNameStaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.guardian(t, "1001", "山田", "花子", "ヤマダ", "ハナコ")
	f.guardian(t, "1002", "山田", "花子", "ヤマダ", "ハナコ")

	res, err := f.svc.ImportGeneric(ctx, f.tc, domain.GenericImportRequest{
		Body: strings.NewReader("日付,金額,振込人名\n2025/04/01,1000,山田 花子\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.AutoMatched)
	assert.Equal(t, domain.ImportStatusPending, res.Import.Status)
}

func TestImportRaw_ArchivesFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kawakami := f.guardian(t, "2001", "川上", "由美子", "カワカミ", "ユミコ")

	raw, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(
		"1,header\r\n2,20250401,カワカミ　ユミコ,10000\r\n2,20250401,,８２１８８５９コジマ,5000\r\n9,end\r\n"))
	require.NoError(t, err)

	f.archiver.On("Archive", mock.Anything, f.tc.OrgID, storage.KindBankTransfer, mock.Anything, "raw.csv", raw, "text/csv").
		Return("org/bank-transfer/2025/04/raw.csv", nil).Once()

	res, err := f.svc.ImportRaw(ctx, f.tc, domain.RawImportRequest{FileName: "raw.csv", Body: raw})
	require.NoError(t, err)
	f.archiver.AssertExpectations(t)

	imp := res.Import
	assert.Equal(t, domain.ImportSourceRaw, imp.Source)
	assert.Equal(t, "Shift_JIS", imp.Encoding)
	assert.Equal(t, "org/bank-transfer/2025/04/raw.csv", imp.ArchiveKey)
	assert.Equal(t, 2, imp.TotalCount)
	assert.Equal(t, 1, imp.MatchedCount)

	rows := f.transfers(t, imp.ID)
	assert.Equal(t, kawakami.ID, *rows[2].GuardianID)
	assert.Equal(t, "8218859", rows[3].GuardianHint)
	assert.Equal(t, "コジマ", rows[3].PayerName)
	assert.Equal(t, domain.TransferStatusPending, rows[3].Status)

	var stored domain.BankTransferImport
	require.NoError(t, f.db.First(&stored, "id = ?", imp.ID).Error)
	assert.Equal(t, imp.ArchiveKey, stored.ArchiveKey)
}

func TestApply_CreatesPaymentOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.guardian(t, "1001", "山田", "花子", "ヤマダ", "ハナコ")
	jan := f.billing(t, g, 1, 8000)
	feb := f.billing(t, g, 2, 12000)

	res, err := f.svc.ImportGeneric(ctx, f.tc, domain.GenericImportRequest{
		Body: strings.NewReader("日付,金額,振込人名\n2025/04/01,12000,山田 花子\n"),
	})
	require.NoError(t, err)
	rows := f.transfers(t, res.Import.ID)

	applied, err := f.svc.Apply(ctx, f.tc, domain.ApplyRequest{TransferID: rows[2].ID})
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusApplied, applied.Transfer.Status)
	require.NotNil(t, applied.Transfer.PaymentID)
	assert.Equal(t, paymentdomain.MethodBankTransfer, applied.Payment.Payment.Method)
	assert.Equal(t, "PAY-20250401-0001", applied.Payment.Payment.PaymentNo)

	// exact match pays february first
	require.Len(t, applied.Payment.Allocations, 1)
	assert.Equal(t, feb.ID, applied.Payment.Allocations[0].BillingID)

	var janAfter billingdomain.ConfirmedBilling
	require.NoError(t, f.db.First(&janAfter, "id = ?", jan.ID).Error)
	assert.Equal(t, int64(8000), janAfter.Balance)

	_, err = f.svc.Apply(ctx, f.tc, domain.ApplyRequest{TransferID: rows[2].ID})
	assert.ErrorIs(t, err, domain.ErrTransferApplied)

	balance, err := f.ledger.Balance(ctx, f.tc, g.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12000), balance)

	imp, err := f.svc.Recount(ctx, f.tc, res.Import.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, imp.AppliedCount)
	assert.Equal(t, domain.ImportStatusCompleted, imp.Status)

	_, err = f.svc.Cancel(ctx, f.tc, rows[2].ID)
	assert.ErrorIs(t, err, domain.ErrTransferApplied)
}

func TestApply_WithoutMatchOrTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.guardian(t, "1001", "山田", "花子", "ヤマダ", "ハナコ")

	res, err := f.svc.ImportGeneric(ctx, f.tc, domain.GenericImportRequest{
		Body: strings.NewReader("日付,金額,振込人名\n2025/04/01,4000,不明\n"),
	})
	require.NoError(t, err)
	rows := f.transfers(t, res.Import.ID)

	_, err = f.svc.Apply(ctx, f.tc, domain.ApplyRequest{TransferID: rows[2].ID})
	assert.ErrorIs(t, err, domain.ErrTransferNotMatched)

	// no open snapshots: the deposit is recorded and stays unapplied
	applied, err := f.svc.Apply(ctx, f.tc, domain.ApplyRequest{TransferID: rows[2].ID, GuardianID: &g.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.MatchManual, applied.Transfer.MatchStrategy)
	assert.Empty(t, applied.Payment.Allocations)
	assert.Equal(t, int64(4000), applied.Payment.Payment.UnappliedAmount)
	assert.Nil(t, applied.Transfer.TargetBillingID)
}

func TestMatchCancelAndBulk(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.guardian(t, "1001", "山田", "花子", "ヤマダ", "ハナコ")

	res, err := f.svc.ImportGeneric(ctx, f.tc, domain.GenericImportRequest{
		Body: strings.NewReader("日付,金額,振込人名\n2025/04/01,1000,A\n2025/04/01,2000,B\n2025/04/01,3000,C\n"),
	})
	require.NoError(t, err)
	rows := f.transfers(t, res.Import.ID)

	bulk, err := f.svc.BulkMatch(ctx, f.tc, []domain.MatchRequest{
		{TransferID: rows[2].ID, GuardianID: g.ID},
		{TransferID: rows[3].ID, GuardianID: f.node.Generate()},
		{TransferID: f.node.Generate(), GuardianID: g.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, bulk.Succeeded)
	require.Equal(t, 2, bulk.Errors.Total)
	assert.Equal(t, 2, bulk.Errors.Items[0].Row)
	assert.Equal(t, 3, bulk.Errors.Items[1].Row)

	cancelled, err := f.svc.Cancel(ctx, f.tc, rows[4].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferStatusCancelled, cancelled.Status)

	_, err = f.svc.Match(ctx, f.tc, domain.MatchRequest{TransferID: rows[4].ID, GuardianID: g.ID})
	assert.ErrorIs(t, err, domain.ErrTransferCancelled)

	imp, err := f.svc.Recount(ctx, f.tc, res.Import.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, imp.TotalCount)
	assert.Equal(t, 1, imp.MatchedCount)
	assert.Equal(t, 1, imp.UnmatchedCount)
	assert.Equal(t, 1, imp.CancelledCount)
	assert.Equal(t, int64(3000), imp.TotalAmount)
	assert.Equal(t, domain.ImportStatusPartial, imp.Status)

	applyBulk, err := f.svc.BulkApply(ctx, f.tc, []domain.ApplyRequest{{TransferID: rows[2].ID}, {TransferID: rows[3].ID}})
	require.NoError(t, err)
	assert.Equal(t, 1, applyBulk.Succeeded)
	assert.Equal(t, 1, applyBulk.Errors.Total)
}

func TestConfirm_AppliesMatchedAndFinalizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.guardian(t, "1001", "山田", "花子", "ヤマダ", "ハナコ")
	f.billing(t, g, 3, 5000)

	res, err := f.svc.ImportGeneric(ctx, f.tc, domain.GenericImportRequest{
		Body: strings.NewReader("日付,金額,振込人名\n2025/04/01,5000,山田 花子\n2025/04/01,900,不明\n"),
	})
	require.NoError(t, err)

	confirmed, err := f.svc.Confirm(ctx, f.tc, res.Import.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed.Applied)
	assert.Equal(t, int64(1), confirmed.Unmatched)
	assert.True(t, confirmed.Errors.Empty())
	assert.Equal(t, domain.ImportStatusConfirmed, confirmed.Import.Status)
	assert.Equal(t, 1, confirmed.Import.AppliedCount)
	assert.Equal(t, 1, confirmed.Import.UnmatchedCount)
	require.NotNil(t, confirmed.Import.ConfirmedAt)
	assert.Equal(t, "u-1", confirmed.Import.ConfirmedBy)

	rows := f.transfers(t, res.Import.ID)
	assert.Equal(t, domain.TransferStatusUnmatched, rows[3].Status)

	_, err = f.svc.Confirm(ctx, f.tc, res.Import.ID)
	assert.ErrorIs(t, err, domain.ErrImportConfirmed)

	// later reconciliation keeps the batch confirmed
	_, err = f.svc.Apply(ctx, f.tc, domain.ApplyRequest{TransferID: rows[3].ID, GuardianID: &g.ID})
	require.NoError(t, err)
	imp, err := f.svc.Recount(ctx, f.tc, res.Import.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ImportStatusConfirmed, imp.Status)
	assert.Equal(t, 2, imp.AppliedCount)
}

func TestListImportsAndTenantIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.ImportGeneric(ctx, f.tc, domain.GenericImportRequest{
			Body: strings.NewReader("日付,金額,振込人名\n2025/04/01,1000,A\n"),
		})
		require.NoError(t, err)
	}

	page, info, err := f.svc.ListImports(ctx, f.tc, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.True(t, info.HasMore)

	rest, info, err := f.svc.ListImports(ctx, f.tc, pagination.Pagination{PageSize: 2, PageToken: info.NextPageToken})
	require.NoError(t, err)
	assert.Len(t, rest, 1)
	assert.False(t, info.HasMore)

	other := tenantctx.System(f.node.Generate())
	_, err = f.svc.Get(ctx, other, page[0].ID)
	assert.ErrorIs(t, err, domain.ErrImportNotFound)
}
