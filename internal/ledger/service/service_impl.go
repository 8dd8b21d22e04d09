package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/jukubill/internal/clock"
	"github.com/smallbiznis/jukubill/internal/guardlock"
	ledgerdomain "github.com/smallbiznis/jukubill/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/jukubill/internal/observability/metrics"
	"github.com/smallbiznis/jukubill/pkg/db"
	"github.com/smallbiznis/jukubill/pkg/rls"
	"github.com/smallbiznis/jukubill/pkg/telemetry"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultHistoryLimit = 50

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Locker     guardlock.Locker
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	PromMetric *telemetry.Metrics  `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	locker     guardlock.Locker
	obsMetrics *obsmetrics.Metrics
	promMetric *telemetry.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
		promMetric: p.PromMetric,
	}
}

func (s *Service) Post(ctx context.Context, tc tenantctx.TenantContext, req ledgerdomain.PostRequest) (ledgerdomain.PostResult, error) {
	if err := tc.Validate(); err != nil {
		return ledgerdomain.PostResult{}, err
	}
	if req.GuardianID == 0 {
		return ledgerdomain.PostResult{}, ledgerdomain.ErrInvalidGuardian
	}

	release, err := s.locker.Lock(ctx, tc.OrgID, req.GuardianID)
	if err != nil {
		return ledgerdomain.PostResult{}, err
	}
	defer release()

	var result ledgerdomain.PostResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.PostTx(ctx, tx, tc, req)
		return err
	})
	if err != nil {
		return ledgerdomain.PostResult{}, err
	}
	return result, nil
}

func (s *Service) PostTx(ctx context.Context, tx *gorm.DB, tc tenantctx.TenantContext, req ledgerdomain.PostRequest) (ledgerdomain.PostResult, error) {
	if err := tc.Validate(); err != nil {
		return ledgerdomain.PostResult{}, err
	}
	if req.GuardianID == 0 {
		return ledgerdomain.PostResult{}, ledgerdomain.ErrInvalidGuardian
	}
	if err := ledgerdomain.ValidateSign(req.Type, req.Amount); err != nil {
		return ledgerdomain.PostResult{}, err
	}
	if err := rls.WithTenant(tx, tc.OrgID); err != nil {
		return ledgerdomain.PostResult{}, err
	}

	replayed, err := s.replay(ctx, tx, tc.OrgID, req)
	if err != nil || replayed != nil {
		return derefResult(replayed), err
	}
	key := strings.TrimSpace(req.IdempotencyKey)

	balance, err := s.lockBalance(ctx, tx, tc.OrgID, req.GuardianID)
	if err != nil {
		return ledgerdomain.PostResult{}, err
	}

	now := s.clock.Now().UTC()
	newBalance := balance.Balance + req.Amount

	res := tx.WithContext(ctx).
		Model(&ledgerdomain.GuardianBalance{}).
		Where("id = ? AND balance = ?", balance.ID, balance.Balance).
		Updates(map[string]any{"balance": newBalance, "last_updated": now})
	if res.Error != nil {
		return ledgerdomain.PostResult{}, fmt.Errorf("update guardian balance: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return ledgerdomain.PostResult{}, fmt.Errorf("update guardian balance: concurrent modification of guardian %s", req.GuardianID)
	}

	entry := ledgerdomain.OffsetLog{
		ID:              s.genID.Generate(),
		OrgID:           tc.OrgID,
		GuardianID:      req.GuardianID,
		BillingID:       req.BillingID,
		PaymentID:       req.PaymentID,
		TransactionType: req.Type,
		Amount:          req.Amount,
		BalanceAfter:    newBalance,
		Reason:          strings.TrimSpace(req.Reason),
		CreatedBy:       tc.Actor(),
		CreatedAt:       now,
	}
	if key != "" {
		entry.IdempotencyKey = &key
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return ledgerdomain.PostResult{}, fmt.Errorf("append offset log: %w", err)
	}

	s.obsMetrics.RecordLedgerPosting(ctx, tc.OrgID.String(), string(req.Type))
	s.promMetric.ObserveLedgerAmount(string(req.Type), req.Amount)
	s.log.Debug("ledger posted",
		zap.String("org_id", tc.OrgID.String()),
		zap.String("guardian_id", req.GuardianID.String()),
		zap.String("type", string(req.Type)),
		zap.Int64("amount", req.Amount),
		zap.Int64("balance_after", newBalance),
	)

	return ledgerdomain.PostResult{Balance: newBalance, Entry: entry}, nil
}

func (s *Service) Offset(ctx context.Context, tc tenantctx.TenantContext, req ledgerdomain.OffsetRequest) (ledgerdomain.PostResult, error) {
	if err := tc.Validate(); err != nil {
		return ledgerdomain.PostResult{}, err
	}
	if req.GuardianID == 0 {
		return ledgerdomain.PostResult{}, ledgerdomain.ErrInvalidGuardian
	}
	if req.Amount <= 0 {
		return ledgerdomain.PostResult{}, ledgerdomain.ErrInvalidAmount
	}

	release, err := s.locker.Lock(ctx, tc.OrgID, req.GuardianID)
	if err != nil {
		return ledgerdomain.PostResult{}, err
	}
	defer release()

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual offset"
	}
	post := ledgerdomain.PostRequest{
		GuardianID:     req.GuardianID,
		Type:           ledgerdomain.TransactionTypeOffset,
		Amount:         -req.Amount,
		Reason:         reason,
		BillingID:      req.BillingID,
		IdempotencyKey: req.IdempotencyKey,
	}

	var result ledgerdomain.PostResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tc.OrgID); err != nil {
			return err
		}
		// A repeated key reports the committed offset even when the
		// balance no longer covers it.
		replayed, err := s.replay(ctx, tx, tc.OrgID, post)
		if err != nil {
			return err
		}
		if replayed != nil {
			result = *replayed
			return nil
		}

		if req.RequireFunded {
			balance, err := s.lockBalance(ctx, tx, tc.OrgID, req.GuardianID)
			if err != nil {
				return err
			}
			if balance.Balance < req.Amount {
				return ledgerdomain.ErrInsufficientBalance
			}
		}

		result, err = s.PostTx(ctx, tx, tc, post)
		return err
	})
	if err != nil {
		return ledgerdomain.PostResult{}, err
	}
	return result, nil
}

func (s *Service) Balance(ctx context.Context, tc tenantctx.TenantContext, guardianID snowflake.ID) (int64, error) {
	return s.BalanceTx(ctx, s.db, tc, guardianID)
}

// BalanceTx returns 0 for a guardian without postings.
func (s *Service) BalanceTx(ctx context.Context, tx *gorm.DB, tc tenantctx.TenantContext, guardianID snowflake.ID) (int64, error) {
	if err := tc.Validate(); err != nil {
		return 0, err
	}
	var balance ledgerdomain.GuardianBalance
	err := tx.WithContext(ctx).
		Where("org_id = ? AND guardian_id = ?", tc.OrgID, guardianID).
		Take(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance.Balance, nil
}

func (s *Service) History(ctx context.Context, tc tenantctx.TenantContext, guardianID snowflake.ID, limit int) ([]ledgerdomain.OffsetLog, error) {
	if err := tc.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = defaultHistoryLimit
	}
	var logs []ledgerdomain.OffsetLog
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND guardian_id = ?", tc.OrgID, guardianID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&logs).Error
	return logs, err
}

// lockBalance reads the guardian balance row for update, creating it on first use.
func (s *Service) lockBalance(ctx context.Context, tx *gorm.DB, orgID, guardianID snowflake.ID) (*ledgerdomain.GuardianBalance, error) {
	var balance ledgerdomain.GuardianBalance
	err := db.ForUpdate(tx.WithContext(ctx)).
		Where("org_id = ? AND guardian_id = ?", orgID, guardianID).
		Take(&balance).Error
	if err == nil {
		return &balance, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := s.clock.Now().UTC()
	created := ledgerdomain.GuardianBalance{
		ID:          s.genID.Generate(),
		OrgID:       orgID,
		GuardianID:  guardianID,
		LastUpdated: now,
		CreatedAt:   now,
	}
	err = tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "org_id"}, {Name: "guardian_id"}},
			DoNothing: true,
		}).
		Create(&created).Error
	if err != nil {
		return nil, fmt.Errorf("create guardian balance: %w", err)
	}

	balance = ledgerdomain.GuardianBalance{}
	err = db.ForUpdate(tx.WithContext(ctx)).
		Where("org_id = ? AND guardian_id = ?", orgID, guardianID).
		Take(&balance).Error
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// replay returns the stored result when req repeats an idempotency key, and
// nil for a new or empty key. A key reused for a different guardian, type or
// amount is ErrIdempotencyConflict.
func (s *Service) replay(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, req ledgerdomain.PostRequest) (*ledgerdomain.PostResult, error) {
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		return nil, nil
	}
	existing, err := s.findByIdempotencyKey(ctx, tx, orgID, key)
	if err != nil || existing == nil {
		return nil, err
	}
	if existing.GuardianID != req.GuardianID ||
		existing.TransactionType != req.Type ||
		existing.Amount != req.Amount {
		return nil, fmt.Errorf("idempotency key %q: %w", key, ledgerdomain.ErrIdempotencyConflict)
	}
	balance, err := s.lockBalance(ctx, tx, orgID, existing.GuardianID)
	if err != nil {
		return nil, err
	}
	return &ledgerdomain.PostResult{Balance: balance.Balance, Entry: *existing, Replayed: true}, nil
}

func derefResult(r *ledgerdomain.PostResult) ledgerdomain.PostResult {
	if r == nil {
		return ledgerdomain.PostResult{}
	}
	return *r
}

func (s *Service) findByIdempotencyKey(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, key string) (*ledgerdomain.OffsetLog, error) {
	var entry ledgerdomain.OffsetLog
	err := tx.WithContext(ctx).
		Where("org_id = ? AND idempotency_key = ?", orgID, key).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}
