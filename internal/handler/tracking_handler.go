package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "flowbar/backend/internal/errors"
	"flowbar/backend/internal/model"
	"flowbar/backend/internal/service"
)

type TrackingHandler struct {
	tracking *service.TrackingService
}

func NewTrackingHandler(tracking *service.TrackingService) *TrackingHandler {
	return &TrackingHandler{tracking: tracking}
}

func (h *TrackingHandler) TimeData(c *gin.Context) {
	writeOK(c, gin.H{"timeData": h.tracking.TimeData(c.Request.Context())})
}

func (h *TrackingHandler) Summary(c *gin.Context) {
	domain := model.NormalizeDomain(c.Query("domain"))
	if strings.TrimSpace(domain) == "" {
		writeError(c, apperrors.BadRequest("invalid_domain", "domain is required"))
		return
	}
	writeOK(c, gin.H{"summary": h.tracking.DomainSummary(c.Request.Context(), domain)})
}
