package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/docbill/internal/audit/domain"
	"github.com/smallbiznis/docbill/internal/companyctx"
)

func (s *Server) ListAuditLogs(c *gin.Context) {
	companyID, ok := companyctx.CompanyIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	filter := auditdomain.ListFilter{
		CompanyID:  companyID,
		Action:     strings.TrimSpace(c.Query("action")),
		TargetType: strings.TrimSpace(c.Query("target_type")),
		TargetID:   strings.TrimSpace(c.Query("target_id")),
	}
	for param, dst := range map[string]**time.Time{
		"start_at": &filter.StartAt,
		"end_at":   &filter.EndAt,
	} {
		raw := strings.TrimSpace(c.Query(param))
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			AbortWithError(c, newValidationError(param, "invalid_time", "invalid RFC3339 timestamp"))
			return
		}
		*dst = &ts
	}

	entries, err := s.auditSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}
