package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	deadlinedomain "github.com/smallbiznis/jukubill/internal/deadline/domain"
	"github.com/smallbiznis/jukubill/pkg/tenantctx"
)

type reopenRequest struct {
	Reason string `json:"reason"`
}

type deadlineTransition func(ctx context.Context, tc tenantctx.TenantContext, year, month int) (deadlinedomain.View, error)

func (s *Server) GetDeadline(c *gin.Context) {
	s.deadlineAction(c, s.deadlineSvc.Get)
}

func (s *Server) StartReview(c *gin.Context) {
	s.deadlineAction(c, s.deadlineSvc.StartReview)
}

func (s *Server) CancelReview(c *gin.Context) {
	s.deadlineAction(c, s.deadlineSvc.CancelReview)
}

func (s *Server) CloseDeadline(c *gin.Context) {
	s.deadlineAction(c, s.deadlineSvc.CloseManually)
}

func (s *Server) ReopenDeadline(c *gin.Context) {
	var req reopenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	s.deadlineAction(c, func(ctx context.Context, tc tenantctx.TenantContext, year, month int) (deadlinedomain.View, error) {
		return s.deadlineSvc.Reopen(ctx, tc, year, month, strings.TrimSpace(req.Reason))
	})
}

func (s *Server) deadlineAction(c *gin.Context, fn deadlineTransition) {
	tc, _ := tenantFromContext(c)
	year, month, err := parsePeriodParams(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	view, err := fn(c.Request.Context(), tc, year, month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}
