package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/smallbiznis/jukubill/internal/ledger/domain"
)

const headerIdempotencyKey = "Idempotency-Key"

type postLedgerRequest struct {
	Type           string `json:"type"`
	Amount         int64  `json:"amount"`
	Reason         string `json:"reason"`
	BillingID      string `json:"billing_id"`
	PaymentID      string `json:"payment_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

type offsetRequest struct {
	Amount         int64  `json:"amount"`
	BillingID      string `json:"billing_id"`
	Reason         string `json:"reason"`
	RequireFunded  bool   `json:"require_funded"`
	IdempotencyKey string `json:"idempotency_key"`
}

func idempotencyKey(c *gin.Context, body string) string {
	if key := strings.TrimSpace(body); key != "" {
		return key
	}
	return strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
}

func (s *Server) GetBalance(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	guardianID, err := parseIDParam(c, "guardianId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	balance, err := s.ledgerSvc.Balance(c.Request.Context(), tc, guardianID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"guardian_id": guardianID.String(),
		"balance":     balance,
	}})
}

func (s *Server) ListLedgerHistory(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	guardianID, err := parseIDParam(c, "guardianId")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	limit, err := parseOptionalInt(c.Query("limit"), 50)
	if err != nil || limit <= 0 {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	entries, err := s.ledgerSvc.History(c.Request.Context(), tc, guardianID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (s *Server) PostLedgerEntry(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	guardianID, err := parseIDParam(c, "guardianId")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req postLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	billingID, err := parseOptionalSnowflakeID(req.BillingID)
	if err != nil {
		AbortWithError(c, newValidationError("billing_id", "invalid_billing_id", "invalid billing_id"))
		return
	}
	paymentID, err := parseOptionalSnowflakeID(req.PaymentID)
	if err != nil {
		AbortWithError(c, newValidationError("payment_id", "invalid_payment_id", "invalid payment_id"))
		return
	}

	resp, err := s.ledgerSvc.Post(c.Request.Context(), tc, ledgerdomain.PostRequest{
		GuardianID:     guardianID,
		Type:           ledgerdomain.TransactionType(strings.ToLower(strings.TrimSpace(req.Type))),
		Amount:         req.Amount,
		Reason:         strings.TrimSpace(req.Reason),
		BillingID:      billingID,
		PaymentID:      paymentID,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
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

func (s *Server) OffsetDeposit(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	guardianID, err := parseIDParam(c, "guardianId")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req offsetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	billingID, err := parseOptionalSnowflakeID(req.BillingID)
	if err != nil {
		AbortWithError(c, newValidationError("billing_id", "invalid_billing_id", "invalid billing_id"))
		return
	}

	resp, err := s.ledgerSvc.Offset(c.Request.Context(), tc, ledgerdomain.OffsetRequest{
		GuardianID:     guardianID,
		Amount:         req.Amount,
		BillingID:      billingID,
		Reason:         strings.TrimSpace(req.Reason),
		RequireFunded:  req.RequireFunded,
		IdempotencyKey: idempotencyKey(c, req.IdempotencyKey),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
