package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	directdebitdomain "github.com/smallbiznis/jukubill/internal/directdebit/domain"
	obslogger "github.com/smallbiznis/jukubill/internal/observability/logger"
	"github.com/smallbiznis/jukubill/pkg/db/pagination"
)

type exportDebitRequest struct {
	Provider       string `json:"provider"`
	Year           int    `json:"year"`
	Month          int    `json:"month"`
	WithdrawalDate string `json:"withdrawal_date"`
}

// ExportDirectDebit responds with the provider file. Clients asking for JSON
// get the batch summary instead.
func (s *Server) ExportDirectDebit(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	var req exportDebitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	withdrawal, err := parseOptionalDate(req.WithdrawalDate, s.loc)
	if err != nil {
		AbortWithError(c, newValidationError("withdrawal_date", "invalid_withdrawal_date", "invalid withdrawal_date"))
		return
	}

	resp, err := s.directDebitSvc.Export(c.Request.Context(), tc, directdebitdomain.ExportRequest{
		Provider:       strings.TrimSpace(req.Provider),
		Year:           req.Year,
		Month:          req.Month,
		WithdrawalDate: withdrawal,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(obslogger.KeyBatchNo, resp.Batch.BatchNo)
	if strings.Contains(c.GetHeader("Accept"), "application/json") {
		c.JSON(http.StatusCreated, gin.H{"data": resp})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", resp.FileName))
	c.Header("X-Batch-ID", resp.Batch.ID.String())
	c.Header("X-Batch-No", resp.Batch.BatchNo)
	c.Header("X-Skipped-Count", strconv.Itoa(len(resp.Skipped)))
	c.Data(http.StatusCreated, resp.ContentType, resp.File)
}

func (s *Server) ListDebitBatches(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items, pageInfo, err := s.directDebitSvc.List(c.Request.Context(), tc, query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": pageInfo})
}

func (s *Server) GetDebitBatch(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.directDebitSvc.Get(c.Request.Context(), tc, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ImportDebitResult(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	fileName, body, err := readUpload(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.directDebitSvc.ImportResult(c.Request.Context(), tc, directdebitdomain.ResultImportRequest{
		BatchID:  id,
		FileName: fileName,
		Body:     body,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(obslogger.KeyBatchNo, resp.Batch.BatchNo)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UnlockDebitBatch(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.directDebitSvc.Unlock(c.Request.Context(), tc, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
