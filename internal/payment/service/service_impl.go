package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/jukubill/internal/billing/domain"
	catalogdomain "github.com/smallbiznis/jukubill/internal/catalog/domain"
	"github.com/smallbiznis/jukubill/internal/clock"
	"github.com/smallbiznis/jukubill/internal/guardlock"
	ledgerdomain "github.com/smallbiznis/jukubill/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/jukubill/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/jukubill/internal/payment/domain"
	"github.com/smallbiznis/jukubill/internal/sequence"
	"github.com/smallbiznis/jukubill/pkg/rls"
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
	Locker     guardlock.Locker
	Repo       paymentdomain.Repository
	Billing    billingdomain.Repository
	Catalog    catalogdomain.Repository
	LedgerSvc  ledgerdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	locker     guardlock.Locker
	repo       paymentdomain.Repository
	billing    billingdomain.Repository
	catalog    catalogdomain.Repository
	ledgerSvc  ledgerdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		locker:     p.Locker,
		repo:       p.Repo,
		billing:    p.Billing,
		catalog:    p.Catalog,
		ledgerSvc:  p.LedgerSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Register(ctx context.Context, tc tenantctx.TenantContext, req paymentdomain.RegisterRequest) (paymentdomain.RegisterResult, error) {
	if err := tc.Validate(); err != nil {
		return paymentdomain.RegisterResult{}, err
	}
	if err := validateRequest(&req); err != nil {
		return paymentdomain.RegisterResult{}, err
	}

	release, err := s.locker.Lock(ctx, tc.OrgID, req.GuardianID)
	if err != nil {
		return paymentdomain.RegisterResult{}, err
	}
	defer release()

	var result paymentdomain.RegisterResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tc.OrgID); err != nil {
			return err
		}
		var err error
		result, err = s.RegisterTx(ctx, tx, tc, req)
		return err
	})
	if err != nil {
		return paymentdomain.RegisterResult{}, err
	}
	return result, nil
}

func (s *Service) RegisterTx(ctx context.Context, tx *gorm.DB, tc tenantctx.TenantContext, req paymentdomain.RegisterRequest) (paymentdomain.RegisterResult, error) {
	if err := tc.Validate(); err != nil {
		return paymentdomain.RegisterResult{}, err
	}
	if err := validateRequest(&req); err != nil {
		return paymentdomain.RegisterResult{}, err
	}

	if req.IdempotencyKey != "" {
		existing, err := s.repo.FindByIdempotencyKey(ctx, tx, tc.OrgID, req.IdempotencyKey)
		if err != nil {
			return paymentdomain.RegisterResult{}, err
		}
		if existing != nil {
			if existing.GuardianID != req.GuardianID || existing.Amount != req.Amount || existing.Method != req.Method {
				return paymentdomain.RegisterResult{}, fmt.Errorf("idempotency key %q: %w", req.IdempotencyKey, paymentdomain.ErrIdempotencyConflict)
			}
			return s.replay(ctx, tx, tc, existing)
		}
	}

	guardian, err := s.catalog.GetGuardian(ctx, tx, tc.OrgID, req.GuardianID)
	if err != nil {
		return paymentdomain.RegisterResult{}, err
	}
	if guardian == nil {
		return paymentdomain.RegisterResult{}, catalogdomain.ErrGuardianNotFound
	}

	now := s.clock.Now().UTC()
	paidAt := req.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}
	paymentNo, err := sequence.NextPaymentNo(ctx, tx, tc.OrgID, paidAt)
	if err != nil {
		return paymentdomain.RegisterResult{}, err
	}

	payment := paymentdomain.Payment{
		ID:              s.genID.Generate(),
		OrgID:           tc.OrgID,
		GuardianID:      req.GuardianID,
		PaymentNo:       paymentNo,
		Method:          req.Method,
		Status:          paymentdomain.StatusSuccess,
		Amount:          req.Amount,
		SourceType:      req.SourceType,
		SourceID:        req.SourceID,
		TargetBillingID: req.PreferBillingID,
		Note:            req.Note,
		PaidAt:          paidAt.UTC(),
		CreatedBy:       tc.Actor(),
		CreatedAt:       now,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		payment.IdempotencyKey = &key
	}
	if err := s.repo.Insert(ctx, tx, &payment); err != nil {
		return paymentdomain.RegisterResult{}, fmt.Errorf("insert payment: %w", err)
	}

	allocation, err := s.Allocate(ctx, tx, tc, req.GuardianID, req.Amount, req.PreferBillingID)
	if err != nil {
		return paymentdomain.RegisterResult{}, err
	}
	for i := range allocation.Allocations {
		allocation.Allocations[i].PaymentID = payment.ID
	}
	if err := s.repo.InsertAllocations(ctx, tx, allocation.Allocations); err != nil {
		return paymentdomain.RegisterResult{}, fmt.Errorf("insert allocations: %w", err)
	}

	posted, err := s.ledgerSvc.PostTx(ctx, tx, tc, ledgerdomain.PostRequest{
		GuardianID:     req.GuardianID,
		Type:           ledgerdomain.TransactionTypeDeposit,
		Amount:         req.Amount,
		Reason:         fmt.Sprintf("payment %s (%s)", paymentNo, req.Method),
		PaymentID:      &payment.ID,
		BillingID:      req.PreferBillingID,
		IdempotencyKey: "payment:" + payment.ID.String(),
	})
	if err != nil {
		return paymentdomain.RegisterResult{}, err
	}

	payment.AppliedAmount = allocation.Applied
	payment.UnappliedAmount = allocation.Remaining
	payment.LedgerEntryID = &posted.Entry.ID
	if err := s.repo.Update(ctx, tx, &payment); err != nil {
		return paymentdomain.RegisterResult{}, err
	}

	s.obsMetrics.RecordPaymentAllocated(ctx, tc.OrgID.String(), string(req.Method), allocation.Applied)
	s.log.Info("payment registered",
		zap.String("org_id", tc.OrgID.String()),
		zap.String("guardian_id", req.GuardianID.String()),
		zap.String("payment_no", paymentNo),
		zap.String("method", string(req.Method)),
		zap.Int64("amount", req.Amount),
		zap.Int64("applied", allocation.Applied),
		zap.Int64("unapplied", allocation.Remaining),
	)

	return paymentdomain.RegisterResult{
		Payment:     payment,
		Allocations: allocation.Allocations,
		Balance:     posted.Balance,
	}, nil
}

// Allocate tries the preferred snapshot, then an exact balance match, then
// the remaining open snapshots oldest first.
func (s *Service) Allocate(ctx context.Context, tx *gorm.DB, tc tenantctx.TenantContext, guardianID snowflake.ID, amount int64, preferBillingID *snowflake.ID) (paymentdomain.AllocationResult, error) {
	if amount <= 0 {
		return paymentdomain.AllocationResult{}, paymentdomain.ErrInvalidAmount
	}
	candidates, err := s.billing.ListOpenByGuardian(ctx, tx, tc.OrgID, guardianID)
	if err != nil {
		return paymentdomain.AllocationResult{}, err
	}

	now := s.clock.Now().UTC()
	result := paymentdomain.AllocationResult{Remaining: amount}
	for _, b := range orderCandidates(candidates, amount, preferBillingID) {
		if result.Remaining <= 0 {
			break
		}
		applied := b.ApplyPayment(result.Remaining, now)
		if applied <= 0 {
			continue
		}
		b.UpdatedAt = now
		if err := s.billing.Save(ctx, tx, b); err != nil {
			return paymentdomain.AllocationResult{}, fmt.Errorf("apply payment to %s: %w", b.BillingNo, err)
		}
		result.Remaining -= applied
		result.Applied += applied
		result.Allocations = append(result.Allocations, paymentdomain.PaymentAllocation{
			ID:           s.genID.Generate(),
			OrgID:        tc.OrgID,
			BillingID:    b.ID,
			BillingNo:    b.BillingNo,
			Year:         b.Year,
			Month:        b.Month,
			Amount:       applied,
			BalanceAfter: b.Balance,
			StatusAfter:  b.Status,
			CreatedAt:    now,
		})
	}
	return result, nil
}

func (s *Service) Get(ctx context.Context, tc tenantctx.TenantContext, paymentID snowflake.ID) (paymentdomain.RegisterResult, error) {
	if err := tc.Validate(); err != nil {
		return paymentdomain.RegisterResult{}, err
	}
	p, err := s.repo.FindByID(ctx, s.db, tc.OrgID, paymentID)
	if err != nil {
		return paymentdomain.RegisterResult{}, err
	}
	if p == nil {
		return paymentdomain.RegisterResult{}, paymentdomain.ErrPaymentNotFound
	}
	allocations, err := s.repo.ListAllocations(ctx, s.db, tc.OrgID, p.ID)
	if err != nil {
		return paymentdomain.RegisterResult{}, err
	}
	balance, err := s.ledgerSvc.Balance(ctx, tc, p.GuardianID)
	if err != nil {
		return paymentdomain.RegisterResult{}, err
	}
	return paymentdomain.RegisterResult{Payment: *p, Allocations: allocations, Balance: balance}, nil
}

func (s *Service) replay(ctx context.Context, tx *gorm.DB, tc tenantctx.TenantContext, p *paymentdomain.Payment) (paymentdomain.RegisterResult, error) {
	allocations, err := s.repo.ListAllocations(ctx, tx, tc.OrgID, p.ID)
	if err != nil {
		return paymentdomain.RegisterResult{}, err
	}
	balance, err := s.ledgerSvc.BalanceTx(ctx, tx, tc, p.GuardianID)
	if err != nil {
		return paymentdomain.RegisterResult{}, err
	}
	return paymentdomain.RegisterResult{Payment: *p, Allocations: allocations, Balance: balance, Replayed: true}, nil
}

// orderCandidates puts the preferred snapshot first, then the first snapshot
// whose balance equals amount, then the rest in their (year, month) order.
func orderCandidates(candidates []*billingdomain.ConfirmedBilling, amount int64, preferBillingID *snowflake.ID) []*billingdomain.ConfirmedBilling {
	ordered := make([]*billingdomain.ConfirmedBilling, 0, len(candidates))
	taken := make(map[snowflake.ID]bool, len(candidates))

	if preferBillingID != nil {
		for _, b := range candidates {
			if b.ID == *preferBillingID {
				ordered = append(ordered, b)
				taken[b.ID] = true
				break
			}
		}
	}
	for _, b := range candidates {
		if !taken[b.ID] && b.Balance == amount {
			ordered = append(ordered, b)
			taken[b.ID] = true
			break
		}
	}
	for _, b := range candidates {
		if !taken[b.ID] {
			ordered = append(ordered, b)
		}
	}
	return ordered
}

func validateRequest(req *paymentdomain.RegisterRequest) error {
	if req.GuardianID == 0 {
		return paymentdomain.ErrInvalidGuardian
	}
	if req.Amount <= 0 {
		return paymentdomain.ErrInvalidAmount
	}
	if req.Method == "" {
		req.Method = paymentdomain.MethodCash
	}
	if !req.Method.Valid() {
		return paymentdomain.ErrInvalidMethod
	}
	if req.SourceType == "" {
		req.SourceType = paymentdomain.SourceManual
	}
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	req.Note = strings.TrimSpace(req.Note)
	return nil
}
