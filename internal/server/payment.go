package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/jukubill/internal/payment/domain"
)

type registerPaymentRequest struct {
	GuardianID      string `json:"guardian_id"`
	Amount          int64  `json:"amount"`
	Method          string `json:"method"`
	PaidAt          string `json:"paid_at"`
	PreferBillingID string `json:"prefer_billing_id"`
	IdempotencyKey  string `json:"idempotency_key"`
	Note            string `json:"note"`
}

func (s *Server) RegisterPayment(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	var req registerPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	guardianID, err := snowflake.ParseString(strings.TrimSpace(req.GuardianID))
	if err != nil || guardianID == 0 {
		AbortWithError(c, newValidationError("guardian_id", "invalid_guardian_id", "invalid guardian_id"))
		return
	}
	prefer, err := parseOptionalSnowflakeID(req.PreferBillingID)
	if err != nil {
		AbortWithError(c, newValidationError("prefer_billing_id", "invalid_prefer_billing_id", "invalid prefer_billing_id"))
		return
	}
	paidAt, err := parseOptionalDate(req.PaidAt, s.loc)
	if err != nil {
		AbortWithError(c, newValidationError("paid_at", "invalid_paid_at", "invalid paid_at"))
		return
	}

	resp, err := s.paymentSvc.Register(c.Request.Context(), tc, paymentdomain.RegisterRequest{
		GuardianID:      guardianID,
		Amount:          req.Amount,
		Method:          paymentdomain.Method(strings.ToLower(strings.TrimSpace(req.Method))),
		PaidAt:          paidAt,
		SourceType:      paymentdomain.SourceManual,
		PreferBillingID: prefer,
		IdempotencyKey:  idempotencyKey(c, req.IdempotencyKey),
		Note:            strings.TrimSpace(req.Note),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if resp.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) GetPayment(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.paymentSvc.Get(c.Request.Context(), tc, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
