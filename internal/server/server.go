package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/jukubill/internal/authorization"
	"github.com/smallbiznis/jukubill/internal/banktransfer"
	banktransferdomain "github.com/smallbiznis/jukubill/internal/banktransfer/domain"
	"github.com/smallbiznis/jukubill/internal/billing"
	billingdomain "github.com/smallbiznis/jukubill/internal/billing/domain"
	"github.com/smallbiznis/jukubill/internal/catalog"
	"github.com/smallbiznis/jukubill/internal/config"
	"github.com/smallbiznis/jukubill/internal/deadline"
	deadlinedomain "github.com/smallbiznis/jukubill/internal/deadline/domain"
	"github.com/smallbiznis/jukubill/internal/directdebit"
	directdebitdomain "github.com/smallbiznis/jukubill/internal/directdebit/domain"
	"github.com/smallbiznis/jukubill/internal/ledger"
	ledgerdomain "github.com/smallbiznis/jukubill/internal/ledger/domain"
	"github.com/smallbiznis/jukubill/internal/observability"
	obslogger "github.com/smallbiznis/jukubill/internal/observability/logger"
	obstracing "github.com/smallbiznis/jukubill/internal/observability/tracing"
	"github.com/smallbiznis/jukubill/internal/payment"
	paymentdomain "github.com/smallbiznis/jukubill/internal/payment/domain"
	"github.com/smallbiznis/jukubill/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Domains wires every billing service the routes depend on.
var Domains = fx.Options(
	authorization.Module,
	catalog.Module,
	ledger.Module,
	deadline.Module,
	billing.Module,
	payment.Module,
	banktransfer.Module,
	directdebit.Module,
)

var Module = fx.Module("http.server",
	Domains,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, promMetric *telemetry.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(RequestMetrics(promMetric))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, promMetric *telemetry.Metrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, promMetric)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	log            *zap.Logger
	authzSvc       authorization.Service
	ledgerSvc      ledgerdomain.Service
	billingSvc     billingdomain.Service
	paymentSvc     paymentdomain.Service
	bankTransfers  banktransferdomain.Service
	directDebitSvc directdebitdomain.Service
	deadlineSvc    deadlinedomain.Service
	loc            *time.Location
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Log            *zap.Logger
	Cfg            config.Config
	AuthzSvc       authorization.Service
	LedgerSvc      ledgerdomain.Service
	BillingSvc     billingdomain.Service
	PaymentSvc     paymentdomain.Service
	BankTransfers  banktransferdomain.Service
	DirectDebitSvc directdebitdomain.Service
	DeadlineSvc    deadlinedomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		log:            p.Log.Named("http.server"),
		authzSvc:       p.AuthzSvc,
		ledgerSvc:      p.LedgerSvc,
		billingSvc:     p.BillingSvc,
		paymentSvc:     p.PaymentSvc,
		bankTransfers:  p.BankTransfers,
		directDebitSvc: p.DirectDebitSvc,
		deadlineSvc:    p.DeadlineSvc,
		loc:            p.Cfg.Location(),
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")
	api.Use(TenantContext())

	// -------- Ledger --------
	api.GET("/guardians/:guardianId/balance", s.authorize(authorization.ObjectLedger, authorization.ActionLedgerView), s.GetBalance)
	api.GET("/guardians/:guardianId/ledger", s.authorize(authorization.ObjectLedger, authorization.ActionLedgerView), s.ListLedgerHistory)
	api.POST("/guardians/:guardianId/ledger", s.authorize(authorization.ObjectLedger, authorization.ActionLedgerPost), s.PostLedgerEntry)
	api.POST("/guardians/:guardianId/offsets", s.authorize(authorization.ObjectLedger, authorization.ActionLedgerOffset), s.OffsetDeposit)
	api.GET("/guardians/:guardianId/billings", s.authorize(authorization.ObjectBilling, authorization.ActionBillingView), s.ListOpenBillings)

	// -------- Billing --------
	api.POST("/billings/generate", s.authorize(authorization.ObjectBilling, authorization.ActionBillingGenerate), s.GenerateMonth)
	api.POST("/students/:studentId/billings/generate", s.authorize(authorization.ObjectBilling, authorization.ActionBillingGenerate), s.GenerateStudent)
	api.GET("/billings/:id", s.authorize(authorization.ObjectBilling, authorization.ActionBillingView), s.GetBilling)
	api.POST("/billings/:id/reapply-discounts", s.authorize(authorization.ObjectBilling, authorization.ActionBillingGenerate), s.ReapplyDiscounts)

	// -------- Payments --------
	api.POST("/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentRegister), s.RegisterPayment)
	api.GET("/payments/:id", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.GetPayment)

	// -------- Bank transfers --------
	bt := api.Group("/bank-transfers")
	bt.GET("/imports", s.authorize(authorization.ObjectBankTransfer, authorization.ActionBankTransferView), s.ListTransferImports)
	bt.POST("/imports", s.authorize(authorization.ObjectBankTransfer, authorization.ActionBankTransferImport), s.ImportGenericTransfers)
	bt.POST("/imports/raw", s.authorize(authorization.ObjectBankTransfer, authorization.ActionBankTransferImport), s.ImportRawTransfers)
	bt.GET("/imports/:id", s.authorize(authorization.ObjectBankTransfer, authorization.ActionBankTransferView), s.GetTransferImport)
	bt.GET("/imports/:id/transfers", s.authorize(authorization.ObjectBankTransfer, authorization.ActionBankTransferView), s.ListTransfers)
	bt.POST("/imports/:id/recount", s.authorize(authorization.ObjectBankTransfer, authorization.ActionBankTransferMatch), s.RecountTransferImport)
	bt.POST("/imports/:id/confirm", s.authorize(authorization.ObjectBankTransfer, authorization.ActionBankTransferConfirm), s.ConfirmTransferImport)
	bt.POST("/transfers/bulk-match", s.authorize(authorization.ObjectBankTransfer, authorization.ActionBankTransferMatch), s.BulkMatchTransfers)
	bt.POST("/transfers/bulk-apply", s.authorize(authorization.ObjectBankTransfer, authorization.ActionBankTransferApply), s.BulkApplyTransfers)
	bt.POST("/transfers/:id/match", s.authorize(authorization.ObjectBankTransfer, authorization.ActionBankTransferMatch), s.MatchTransfer)
	bt.POST("/transfers/:id/apply", s.authorize(authorization.ObjectBankTransfer, authorization.ActionBankTransferApply), s.ApplyTransfer)
	bt.POST("/transfers/:id/cancel", s.authorize(authorization.ObjectBankTransfer, authorization.ActionBankTransferMatch), s.CancelTransfer)

	// -------- Direct debit --------
	dd := api.Group("/direct-debits")
	dd.POST("/exports", s.authorize(authorization.ObjectDirectDebit, authorization.ActionDirectDebitExport), s.ExportDirectDebit)
	dd.GET("/batches", s.authorize(authorization.ObjectDirectDebit, authorization.ActionDirectDebitView), s.ListDebitBatches)
	dd.GET("/batches/:id", s.authorize(authorization.ObjectDirectDebit, authorization.ActionDirectDebitView), s.GetDebitBatch)
	dd.POST("/batches/:id/results", s.authorize(authorization.ObjectDirectDebit, authorization.ActionDirectDebitImport), s.ImportDebitResult)
	dd.POST("/batches/:id/unlock", s.authorize(authorization.ObjectDirectDebit, authorization.ActionDirectDebitUnlock), s.UnlockDebitBatch)

	// -------- Deadlines --------
	dl := api.Group("/deadlines/:year/:month")
	dl.GET("", s.authorize(authorization.ObjectBillingPeriod, authorization.ActionPeriodView), s.GetDeadline)
	dl.POST("/start-review", s.authorize(authorization.ObjectBillingPeriod, authorization.ActionPeriodReview), s.StartReview)
	dl.POST("/cancel-review", s.authorize(authorization.ObjectBillingPeriod, authorization.ActionPeriodReview), s.CancelReview)
	dl.POST("/close", s.authorize(authorization.ObjectBillingPeriod, authorization.ActionPeriodClose), s.CloseDeadline)
	dl.POST("/reopen", s.authorize(authorization.ObjectBillingPeriod, authorization.ActionPeriodReopen), s.ReopenDeadline)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
