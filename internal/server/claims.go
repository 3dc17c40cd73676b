package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	adjudicationdomain "github.com/SalamEnterprise/claims-askes/internal/adjudication/domain"
)

func (s *Server) AdjudicateClaim(c *gin.Context) {
	var req adjudicationdomain.AdjudicateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	c.Set("claim_id", req.ClaimID)

	resp, err := s.adjudicationSvc.Adjudicate(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetAdjudication(c *gin.Context) {
	claimID := strings.TrimSpace(c.Param("claim_id"))
	attemptID := strings.TrimSpace(c.Param("attempt_id"))

	c.Set("claim_id", claimID)

	resp, err := s.adjudicationSvc.Get(c.Request.Context(), claimID, attemptID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ReverseAdjudication(c *gin.Context) {
	claimID := strings.TrimSpace(c.Param("claim_id"))
	attemptID := strings.TrimSpace(c.Param("attempt_id"))

	c.Set("claim_id", claimID)

	resp, err := s.adjudicationSvc.Reverse(c.Request.Context(), claimID, attemptID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
