package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	fundingdomain "github.com/SalamEnterprise/claims-askes/internal/funding/domain"
)

type createDepositRequest struct {
	Source string `json:"source"`
	Amount int64  `json:"amount"`
}

type createFundingConfigRequest struct {
	ASOApplicable          bool `json:"aso_applicable"`
	AllowExcessDraw        bool `json:"allow_excess_draw"`
	DenyOnExhaustedFunding bool `json:"deny_on_exhausted_funding"`
}

func (s *Server) GetFundingBalances(c *gin.Context) {
	policyID, err := fundingdomain.ParseID(strings.TrimSpace(c.Param("policy_id")))
	if err != nil {
		AbortWithError(c, newValidationError("policy_id", "invalid_policy", "invalid policy id"))
		return
	}

	balances, err := s.fundingSvc.Balances(c.Request.Context(), policyID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": balances})
}

func (s *Server) CreateFundingDeposit(c *gin.Context) {
	policyID, err := fundingdomain.ParseID(strings.TrimSpace(c.Param("policy_id")))
	if err != nil {
		AbortWithError(c, newValidationError("policy_id", "invalid_policy", "invalid policy id"))
		return
	}

	var req createDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	entry, err := s.fundingSvc.Deposit(c.Request.Context(), policyID, fundingdomain.Source(strings.TrimSpace(req.Source)), req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entry})
}

func (s *Server) CreateFundingConfig(c *gin.Context) {
	policyID, err := fundingdomain.ParseID(strings.TrimSpace(c.Param("policy_id")))
	if err != nil {
		AbortWithError(c, newValidationError("policy_id", "invalid_policy", "invalid policy id"))
		return
	}

	var req createFundingConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	cfg, err := s.fundingSvc.CreateConfig(c.Request.Context(), fundingdomain.Config{
		PolicyID:               policyID,
		ASOApplicable:          req.ASOApplicable,
		AllowExcessDraw:        req.AllowExcessDraw,
		DenyOnExhaustedFunding: req.DenyOnExhaustedFunding,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": cfg})
}
