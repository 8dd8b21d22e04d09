package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/smallbiznis/jukubill/internal/billing/domain"
)

type generateMonthRequest struct {
	Year       int      `json:"year"`
	Month      int      `json:"month"`
	StudentIDs []string `json:"student_ids"`
}

type generateStudentRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (s *Server) GenerateMonth(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	var req generateMonthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	studentIDs, err := parseSnowflakeIDs(req.StudentIDs)
	if err != nil {
		AbortWithError(c, newValidationError("student_ids", "invalid_student_ids", "invalid student_ids"))
		return
	}

	summary, err := s.billingSvc.GenerateForMonth(c.Request.Context(), tc, billingdomain.GenerateMonthRequest{
		Year:       req.Year,
		Month:      req.Month,
		StudentIDs: studentIDs,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}

func (s *Server) GenerateStudent(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	studentID, err := parseIDParam(c, "studentId")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req generateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.billingSvc.GenerateForStudent(c.Request.Context(), tc, studentID, req.Year, req.Month)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetBilling(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.billingSvc.Get(c.Request.Context(), tc, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReapplyDiscounts(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.billingSvc.ReapplyDiscounts(c.Request.Context(), tc, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListOpenBillings(c *gin.Context) {
	tc, _ := tenantFromContext(c)
	guardianID, err := parseIDParam(c, "guardianId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.billingSvc.ListOpenForGuardian(c.Request.Context(), tc, guardianID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
