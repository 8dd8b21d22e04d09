package server

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	banktransferdomain "github.com/smallbiznis/jukubill/internal/banktransfer/domain"
	obslogger "github.com/smallbiznis/jukubill/internal/observability/logger"
	"github.com/smallbiznis/jukubill/pkg/db/pagination"
)

const (
	uploadField    = "file"
	maxUploadBytes = 20 << 20
)

type matchTransferRequest struct {
	GuardianID string `json:"guardian_id"`
}

type applyTransferRequest struct {
	GuardianID string `json:"guardian_id"`
	BillingID  string `json:"billing_id"`
}

type bulkMatchRequest struct {
	Items []banktransferdomain.MatchRequest `json:"items"`
}

type bulkApplyRequest struct {
	Items []banktransferdomain.ApplyRequest `json:"items"`
}

func openUpload(c *gin.Context) (*multipart.FileHeader, multipart.File, error) {
	header, err := c.FormFile(uploadField)
	if err != nil {
		return nil, nil, newValidationError(uploadField, "invalid_file", "file is required")
	}
	if header.Size > maxUploadBytes {
		return nil, nil, newValidationError(uploadField, "file_too_large", "file is too large")
	}
	f, err := header.Open()
	if err != nil {
		return nil, nil, err
	}
	return header, f, nil
}

func readUpload(c *gin.Context) (string, []byte, error) {
	header, f, err := openUpload(c)
	if err != nil {
		return "", nil, err
	}
	defer f.Close()
	body, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		return "", nil, err
	}
	return header.Filename, body, nil
}

func (s *Server) ImportGenericTransfers(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	header, f, err := openUpload(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer f.Close()

	resp, err := s.bankTransfers.ImportGeneric(c.Request.Context(), tc, banktransferdomain.GenericImportRequest{
		FileName: header.Filename,
		Body:     f,
		Mapping: banktransferdomain.ColumnMapping{
			Date:      strings.TrimSpace(c.PostForm("date_column")),
			Amount:    strings.TrimSpace(c.PostForm("amount_column")),
			PayerName: strings.TrimSpace(c.PostForm("payer_name_column")),
			PayerKana: strings.TrimSpace(c.PostForm("payer_kana_column")),
			Bank:      strings.TrimSpace(c.PostForm("bank_column")),
			Branch:    strings.TrimSpace(c.PostForm("branch_column")),
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(obslogger.KeyBatchNo, resp.Import.BatchNo)
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ImportRawTransfers(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	fileName, body, err := readUpload(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.bankTransfers.ImportRaw(c.Request.Context(), tc, banktransferdomain.RawImportRequest{
		FileName: fileName,
		Body:     body,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(obslogger.KeyBatchNo, resp.Import.BatchNo)
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListTransferImports(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items, pageInfo, err := s.bankTransfers.ListImports(c.Request.Context(), tc, query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": pageInfo})
}

func (s *Server) GetTransferImport(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.bankTransfers.Get(c.Request.Context(), tc, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListTransfers(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	status := banktransferdomain.TransferStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))

	resp, err := s.bankTransfers.ListTransfers(c.Request.Context(), tc, id, status)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RecountTransferImport(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.bankTransfers.Recount(c.Request.Context(), tc, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ConfirmTransferImport(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.bankTransfers.Confirm(c.Request.Context(), tc, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) MatchTransfer(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req matchTransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	guardianID, err := parseOptionalSnowflakeID(req.GuardianID)
	if err != nil || guardianID == nil {
		AbortWithError(c, newValidationError("guardian_id", "invalid_guardian_id", "invalid guardian_id"))
		return
	}

	resp, err := s.bankTransfers.Match(c.Request.Context(), tc, banktransferdomain.MatchRequest{
		TransferID: id,
		GuardianID: *guardianID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) BulkMatchTransfers(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	var req bulkMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Items) == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.bankTransfers.BulkMatch(c.Request.Context(), tc, req.Items)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApplyTransfer(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req applyTransferRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	guardianID, err := parseOptionalSnowflakeID(req.GuardianID)
	if err != nil {
		AbortWithError(c, newValidationError("guardian_id", "invalid_guardian_id", "invalid guardian_id"))
		return
	}
	billingID, err := parseOptionalSnowflakeID(req.BillingID)
	if err != nil {
		AbortWithError(c, newValidationError("billing_id", "invalid_billing_id", "invalid billing_id"))
		return
	}

	resp, err := s.bankTransfers.Apply(c.Request.Context(), tc, banktransferdomain.ApplyRequest{
		TransferID: id,
		GuardianID: guardianID,
		BillingID:  billingID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) BulkApplyTransfers(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	var req bulkApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Items) == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.bankTransfers.BulkApply(c.Request.Context(), tc, req.Items)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelTransfer(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.bankTransfers.Cancel(c.Request.Context(), tc, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
