package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	accumulatordomain "github.com/SalamEnterprise/claims-askes/internal/accumulator/domain"
)

func (s *Server) ListAccumulators(c *gin.Context) {
	memberID, err := accumulatordomain.ParseID(strings.TrimSpace(c.Param("member_id")))
	if err != nil {
		AbortWithError(c, newValidationError("member_id", "invalid_member", "invalid member id"))
		return
	}

	year := time.Now().UTC().Year()
	if raw := strings.TrimSpace(c.Query("year")); raw != "" {
		year, err = strconv.Atoi(raw)
		if err != nil {
			AbortWithError(c, newValidationError("year", "invalid_year", "invalid year"))
			return
		}
	}

	records, err := s.accumulatorSvc.ListByMember(c.Request.Context(), memberID, year)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records})
}
