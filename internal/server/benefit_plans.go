package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	benefitplandomain "github.com/SalamEnterprise/claims-askes/internal/benefitplan/domain"
)

func (s *Server) CreateBenefitDefinition(c *gin.Context) {
	var req benefitplandomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	def, err := s.benefitPlanSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": def})
}

func (s *Server) ListBenefitDefinitions(c *gin.Context) {
	planID := strings.TrimSpace(c.Param("plan_id"))

	defs, err := s.benefitPlanSvc.List(c.Request.Context(), planID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": defs})
}

// ReloadBenefitSnapshot rebuilds the resolver snapshot from storage. In-flight
// attempts finish on the snapshot they started with.
func (s *Server) ReloadBenefitSnapshot(c *gin.Context) {
	if err := s.benefitPlanSvc.ReloadSnapshot(c.Request.Context()); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "reloaded"})
}
