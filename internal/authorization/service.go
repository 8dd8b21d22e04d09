package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectLedger        = "ledger"
	ObjectBilling       = "billing"
	ObjectPayment       = "payment"
	ObjectBankTransfer  = "bank_transfer"
	ObjectDirectDebit   = "direct_debit"
	ObjectBillingPeriod = "billing_period"
)

const (
	ActionLedgerView   = "ledger.view"
	ActionLedgerPost   = "ledger.post"
	ActionLedgerOffset = "ledger.offset"

	ActionBillingGenerate = "billing.generate"
	ActionBillingView     = "billing.view"

	ActionPaymentRegister = "payment.register"
	ActionPaymentView     = "payment.view"

	ActionBankTransferView    = "bank_transfer.view"
	ActionBankTransferImport  = "bank_transfer.import"
	ActionBankTransferMatch   = "bank_transfer.match"
	ActionBankTransferApply   = "bank_transfer.apply"
	ActionBankTransferConfirm = "bank_transfer.confirm"

	ActionDirectDebitView   = "direct_debit.view"
	ActionDirectDebitExport = "direct_debit.export"
	ActionDirectDebitImport = "direct_debit.import_result"
	ActionDirectDebitUnlock = "direct_debit.unlock"

	ActionPeriodView            = "billing_period.view"
	ActionPeriodEdit            = "billing_period.edit"
	ActionPeriodEditUnderReview = "billing_period.edit_under_review"
	ActionPeriodReview          = "billing_period.review"
	ActionPeriodClose           = "billing_period.close"
	ActionPeriodReopen          = "billing_period.reopen"
)

// Service decides whether a tenant actor's role may perform an action.
type Service interface {
	Authorize(ctx context.Context, tc tenantctx.TenantContext, object, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

var Module = fx.Module("authorization.service",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

// NewEnforcer persists policies through the gorm adapter and seeds the defaults.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

// NewMemoryEnforcer builds a seeded enforcer without persistence.
func NewMemoryEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, tc tenantctx.TenantContext, object string, action string) error {
	role := strings.ToLower(strings.TrimSpace(tc.Role))
	if role == "" {
		return ErrInvalidRole
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce("role:"+role, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("org_id", tc.OrgID.String()),
			zap.String("actor", tc.Actor()),
			zap.String("role", role),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	groupings := [][]string{
		{"role:system", "role:admin"},
		{"role:admin", "role:accounting"},
		{"role:accounting", "role:staff"},
	}
	for _, g := range groupings {
		if _, err := enforcer.AddGroupingPolicy(g[0], g[1]); err != nil {
			return err
		}
	}

	policies := [][]string{
		{"role:staff", ObjectLedger, ActionLedgerView},
		{"role:staff", ObjectLedger, ActionLedgerPost},
		{"role:staff", ObjectBilling, ActionBillingView},
		{"role:staff", ObjectBilling, ActionBillingGenerate},
		{"role:staff", ObjectPayment, ActionPaymentRegister},
		{"role:staff", ObjectPayment, ActionPaymentView},
		{"role:staff", ObjectBankTransfer, ActionBankTransferView},
		{"role:staff", ObjectBankTransfer, ActionBankTransferImport},
		{"role:staff", ObjectBankTransfer, ActionBankTransferMatch},
		{"role:staff", ObjectBankTransfer, ActionBankTransferApply},
		{"role:staff", ObjectBillingPeriod, ActionPeriodView},
		{"role:staff", ObjectBillingPeriod, ActionPeriodEdit},

		{"role:accounting", ObjectLedger, ActionLedgerOffset},
		{"role:accounting", ObjectBankTransfer, ActionBankTransferConfirm},
		{"role:accounting", ObjectDirectDebit, ActionDirectDebitView},
		{"role:accounting", ObjectDirectDebit, ActionDirectDebitExport},
		{"role:accounting", ObjectDirectDebit, ActionDirectDebitImport},
		{"role:accounting", ObjectBillingPeriod, ActionPeriodEditUnderReview},
		{"role:accounting", ObjectBillingPeriod, ActionPeriodReview},
		{"role:accounting", ObjectBillingPeriod, ActionPeriodClose},

		{"role:admin", ObjectDirectDebit, ActionDirectDebitUnlock},
		{"role:admin", ObjectBillingPeriod, ActionPeriodReopen},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
