package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/jukubill/internal/authorization"
	"github.com/smallbiznis/jukubill/internal/clock"
	"github.com/smallbiznis/jukubill/internal/config"
	deadlinedomain "github.com/smallbiznis/jukubill/internal/deadline/domain"
	"github.com/smallbiznis/jukubill/pkg/db"
	"github.com/smallbiznis/jukubill/pkg/rls"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config config.Config
	Rules  *config.BillingRulesHolder
	Authz  authorization.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	loc   *time.Location
	rules *config.BillingRulesHolder
	authz authorization.Service
}

func NewService(p Params) deadlinedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("deadline.service"),
		genID: p.GenID,
		clock: p.Clock,
		loc:   p.Config.Location(),
		rules: p.Rules,
		authz: p.Authz,
	}
}

func (s *Service) Get(ctx context.Context, tc tenantctx.TenantContext, year, month int) (deadlinedomain.View, error) {
	if err := s.validate(tc, year, month); err != nil {
		return deadlinedomain.View{}, err
	}
	d, err := s.find(ctx, s.db, tc.OrgID, year, month)
	if err != nil {
		return deadlinedomain.View{}, err
	}
	if d == nil {
		fresh := s.defaults(tc.OrgID, year, month)
		d = &fresh
	}
	return s.view(*d), nil
}

func (s *Service) Ensure(ctx context.Context, tc tenantctx.TenantContext, year, month int) (deadlinedomain.View, error) {
	if err := s.validate(tc, year, month); err != nil {
		return deadlinedomain.View{}, err
	}
	var out deadlinedomain.MonthlyBillingDeadline
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tc.OrgID); err != nil {
			return err
		}
		d, err := s.ensureTx(ctx, tx, tc.OrgID, year, month)
		if err != nil {
			return err
		}
		out = *d
		return nil
	})
	if err != nil {
		return deadlinedomain.View{}, err
	}
	return s.view(out), nil
}

func (s *Service) StartReview(ctx context.Context, tc tenantctx.TenantContext, year, month int) (deadlinedomain.View, error) {
	return s.transition(ctx, tc, year, month, authorization.ActionPeriodReview, func(d *deadlinedomain.MonthlyBillingDeadline, now time.Time) error {
		if d.IsClosed(now, s.loc) {
			return deadlinedomain.ErrPeriodClosed
		}
		// Dropping the reopened flag must not close the month under the caller.
		next := *d
		next.IsReopened = false
		if next.IsClosed(now, s.loc) {
			return deadlinedomain.ErrPeriodReopened
		}
		d.IsUnderReview = true
		d.ReviewStartedAt = &now
		d.ReviewStartedBy = tc.Actor()
		d.IsReopened = false
		return nil
	})
}

func (s *Service) CancelReview(ctx context.Context, tc tenantctx.TenantContext, year, month int) (deadlinedomain.View, error) {
	return s.transition(ctx, tc, year, month, authorization.ActionPeriodReview, func(d *deadlinedomain.MonthlyBillingDeadline, now time.Time) error {
		if !d.IsUnderReview {
			return deadlinedomain.ErrPeriodNotUnderReview
		}
		d.IsUnderReview = false
		d.ReviewStartedAt = nil
		d.ReviewStartedBy = ""
		return nil
	})
}

func (s *Service) CloseManually(ctx context.Context, tc tenantctx.TenantContext, year, month int) (deadlinedomain.View, error) {
	return s.transition(ctx, tc, year, month, authorization.ActionPeriodClose, func(d *deadlinedomain.MonthlyBillingDeadline, now time.Time) error {
		d.IsManuallyClosed = true
		d.ClosedAt = &now
		d.ClosedBy = tc.Actor()
		d.IsUnderReview = false
		d.ReviewStartedAt = nil
		d.ReviewStartedBy = ""
		d.IsReopened = false
		return nil
	})
}

// Reopen leaves is_manually_closed untouched; the reopened flag wins while set.
func (s *Service) Reopen(ctx context.Context, tc tenantctx.TenantContext, year, month int, reason string) (deadlinedomain.View, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return deadlinedomain.View{}, deadlinedomain.ErrReopenReasonRequired
	}
	return s.transition(ctx, tc, year, month, authorization.ActionPeriodReopen, func(d *deadlinedomain.MonthlyBillingDeadline, now time.Time) error {
		if !d.IsClosed(now, s.loc) {
			return deadlinedomain.ErrPeriodNotClosed
		}
		d.IsReopened = true
		d.ReopenedAt = &now
		d.ReopenedBy = tc.Actor()
		d.ReopenReason = reason
		return nil
	})
}

func (s *Service) CanEdit(ctx context.Context, tc tenantctx.TenantContext, year, month int) error {
	view, err := s.Get(ctx, tc, year, month)
	if err != nil {
		return err
	}
	switch view.State {
	case deadlinedomain.StateClosed:
		return deadlinedomain.ErrPeriodClosed
	case deadlinedomain.StateUnderReview:
		if err := s.authz.Authorize(ctx, tc, authorization.ObjectBillingPeriod, authorization.ActionPeriodEditUnderReview); err != nil {
			if errors.Is(err, authorization.ErrForbidden) {
				return deadlinedomain.ErrPeriodUnderReview
			}
			return err
		}
	}
	return nil
}

func (s *Service) transition(
	ctx context.Context,
	tc tenantctx.TenantContext,
	year, month int,
	action string,
	apply func(d *deadlinedomain.MonthlyBillingDeadline, now time.Time) error,
) (deadlinedomain.View, error) {
	if err := s.validate(tc, year, month); err != nil {
		return deadlinedomain.View{}, err
	}
	if err := s.authz.Authorize(ctx, tc, authorization.ObjectBillingPeriod, action); err != nil {
		return deadlinedomain.View{}, err
	}

	var out deadlinedomain.MonthlyBillingDeadline
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := rls.WithTenant(tx, tc.OrgID); err != nil {
			return err
		}
		d, err := s.ensureTx(ctx, tx, tc.OrgID, year, month)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := apply(d, now); err != nil {
			return err
		}
		d.UpdatedAt = now.UTC()
		if err := tx.WithContext(ctx).Save(d).Error; err != nil {
			return err
		}
		out = *d
		return nil
	})
	if err != nil {
		return deadlinedomain.View{}, err
	}

	s.log.Info("billing period transition",
		zap.String("org_id", tc.OrgID.String()),
		zap.Int("year", year),
		zap.Int("month", month),
		zap.String("action", action),
		zap.String("actor", tc.Actor()),
	)
	return s.view(out), nil
}

func (s *Service) ensureTx(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, year, month int) (*deadlinedomain.MonthlyBillingDeadline, error) {
	d, err := s.findForUpdate(ctx, tx, orgID, year, month)
	if err != nil || d != nil {
		return d, err
	}

	fresh := s.defaults(orgID, year, month)
	err = tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "org_id"}, {Name: "year"}, {Name: "month"}},
			DoNothing: true,
		}).
		Create(&fresh).Error
	if err != nil {
		return nil, err
	}
	d, err = s.findForUpdate(ctx, tx, orgID, year, month)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return d, nil
}

func (s *Service) find(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, year, month int) (*deadlinedomain.MonthlyBillingDeadline, error) {
	var d deadlinedomain.MonthlyBillingDeadline
	err := tx.WithContext(ctx).
		Where("org_id = ? AND year = ? AND month = ?", orgID, year, month).
		Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Service) findForUpdate(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, year, month int) (*deadlinedomain.MonthlyBillingDeadline, error) {
	return s.find(ctx, db.ForUpdate(tx), orgID, year, month)
}

func (s *Service) defaults(orgID snowflake.ID, year, month int) deadlinedomain.MonthlyBillingDeadline {
	rules := s.rules.Get()
	now := s.clock.Now().UTC()
	return deadlinedomain.MonthlyBillingDeadline{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		Year:       year,
		Month:      month,
		ClosingDay: rules.DefaultClosingDay,
		AutoClose:  rules.DefaultAutoClose,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (s *Service) view(d deadlinedomain.MonthlyBillingDeadline) deadlinedomain.View {
	return deadlinedomain.NewView(d, s.clock.Now(), s.loc)
}

func (s *Service) validate(tc tenantctx.TenantContext, year, month int) error {
	if err := tc.Validate(); err != nil {
		return err
	}
	return deadlinedomain.ValidatePeriod(year, month)
}
